package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services/llm"
)

// ErrTooFewItems is returned when a merge is asked for fewer than two items.
var ErrTooFewItems = errors.New("vision: at least two items are required to merge")

// Analyzer reads extra detail from several photos of one item and folds
// similar items into one record.
type Analyzer struct {
	completer Completer
	labels    []scan.Label
	logger    *slog.Logger
	timeout   time.Duration
}

// NewAnalyzer constructs an Analyzer. labels constrain suggested label IDs.
func NewAnalyzer(completer Completer, labels []scan.Label, opts ...Option) *Analyzer {
	o := buildOptions("vision-analyzer", opts)
	return &Analyzer{completer: completer, labels: labels, logger: o.logger, timeout: o.timeout}
}

// AnalyzeDetails returns the fields the model could read off files for item.
// Empty fields in the result mean nothing was visible.
func (a *Analyzer) AnalyzeDetails(ctx context.Context, item scan.ConfirmedItem, files []scan.File) (scan.CandidateItem, error) {
	if a == nil || a.completer == nil {
		return scan.CandidateItem{}, errors.New("vision analyzer unavailable")
	}
	images := make([]llm.Image, 0, len(files))
	for _, file := range files {
		if len(file.Data) == 0 {
			continue
		}
		images = append(images, llm.Image{MimeType: file.MimeType, Data: file.Data})
	}
	if len(images) == 0 {
		return scan.CandidateItem{}, ErrNoImage
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	content, err := a.completer.CompleteVisionJSON(ctx,
		analysisSystemPrompt(a.labels),
		analysisUserPrompt(item),
		images,
	)
	if err != nil {
		return scan.CandidateItem{}, fmt.Errorf("analyze item %q: %w", item.Name, err)
	}
	items, err := parseItems(content, a.labels)
	if err != nil {
		return scan.CandidateItem{}, fmt.Errorf("analyze item %q: %w", item.Name, err)
	}
	if len(items) == 0 {
		return scan.CandidateItem{}, fmt.Errorf("analyze item %q: model returned no item", item.Name)
	}
	a.logger.Info("item analyzed",
		logging.String("item", item.Name),
		logging.Int("image_count", len(images)),
	)
	return items[0], nil
}

// Merge asks the model for one record covering items. A missing quantity
// falls back to the sum of the inputs.
func (a *Analyzer) Merge(ctx context.Context, items []scan.ConfirmedItem) (scan.CandidateItem, error) {
	if a == nil || a.completer == nil {
		return scan.CandidateItem{}, errors.New("vision analyzer unavailable")
	}
	if len(items) < 2 {
		return scan.CandidateItem{}, ErrTooFewItems
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	content, err := a.completer.CompleteVisionJSON(ctx, mergeSystemPrompt(a.labels), mergeUserPrompt(items), nil)
	if err != nil {
		return scan.CandidateItem{}, fmt.Errorf("merge %d items: %w", len(items), err)
	}
	merged, err := parseItems(content, a.labels)
	if err != nil {
		return scan.CandidateItem{}, fmt.Errorf("merge %d items: %w", len(items), err)
	}
	if len(merged) == 0 {
		return scan.CandidateItem{}, fmt.Errorf("merge %d items: model returned no item", len(items))
	}
	out := merged[0]
	if !quantityGiven(content) {
		out.Quantity = 0
		for _, item := range items {
			out.Quantity += item.Quantity
		}
	}
	a.logger.Info("items merged",
		logging.Int("input_count", len(items)),
		logging.String("result", out.Name),
	)
	return out, nil
}
