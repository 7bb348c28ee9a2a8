package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services/llm"
)

// Corrector applies user feedback to a detected item.
type Corrector struct {
	completer Completer
	labels    []scan.Label
	logger    *slog.Logger
	timeout   time.Duration
}

// NewCorrector constructs a Corrector. labels constrain suggested label IDs.
func NewCorrector(completer Completer, labels []scan.Label, opts ...Option) *Corrector {
	o := buildOptions("vision-corrector", opts)
	return &Corrector{completer: completer, labels: labels, logger: o.logger, timeout: o.timeout}
}

// Correct returns one or more items replacing item. The result is never empty
// on success.
func (c *Corrector) Correct(ctx context.Context, file scan.File, item scan.CandidateItem, instructions string) ([]scan.CandidateItem, error) {
	if c == nil || c.completer == nil {
		return nil, errors.New("vision corrector unavailable")
	}
	if strings.TrimSpace(instructions) == "" {
		return nil, errors.New("correction instructions required")
	}
	if len(file.Data) == 0 {
		return nil, ErrNoImage
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content, err := c.completer.CompleteVisionJSON(ctx,
		correctionSystemPrompt(c.labels),
		correctionUserPrompt(item, instructions),
		[]llm.Image{{MimeType: file.MimeType, Data: file.Data}},
	)
	if err != nil {
		return nil, fmt.Errorf("correct item %q: %w", item.Name, err)
	}
	items, err := parseItems(content, c.labels)
	if err != nil {
		return nil, fmt.Errorf("correct item %q: %w", item.Name, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("correct item %q: model returned no items", item.Name)
	}
	c.logger.Info("item corrected",
		logging.String("item", item.Name),
		logging.Int("result_count", len(items)),
	)
	return items, nil
}
