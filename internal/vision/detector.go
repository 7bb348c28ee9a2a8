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

// DefaultTimeout bounds a single detection or correction request.
const DefaultTimeout = 2 * time.Minute

// ErrNoImage is returned when a request carries no image bytes.
var ErrNoImage = errors.New("vision: image data required")

// Completer sends prompts with images and returns the model's raw JSON text.
type Completer interface {
	CompleteVisionJSON(ctx context.Context, systemPrompt, userPrompt string, images []llm.Image) (string, error)
}

// Detector detects candidate items in photos.
type Detector struct {
	completer Completer
	logger    *slog.Logger
	timeout   time.Duration
}

// Option configures a Detector or Corrector.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	timeout time.Duration
}

// WithLogger sets the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.NewComponentLogger(o.logger, component)
	return o
}

// NewDetector constructs a Detector around completer.
func NewDetector(completer Completer, opts ...Option) *Detector {
	o := buildOptions("vision-detector", opts)
	return &Detector{completer: completer, logger: o.logger, timeout: o.timeout}
}

// Detect returns the normalized candidates found in file. Each candidate
// gets a fresh ID; the caller attaches source image references.
func (d *Detector) Detect(ctx context.Context, file scan.File, opts scan.DetectOptions) ([]scan.CandidateItem, error) {
	if d == nil || d.completer == nil {
		return nil, errors.New("vision detector unavailable")
	}
	if len(file.Data) == 0 {
		return nil, ErrNoImage
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := time.Now()
	content, err := d.completer.CompleteVisionJSON(ctx,
		detectionSystemPrompt(opts),
		detectionUserPrompt(opts),
		[]llm.Image{{MimeType: file.MimeType, Data: file.Data}},
	)
	if err != nil {
		return nil, fmt.Errorf("detect items in %s: %w", displayName(file), err)
	}
	items, err := parseItems(content, opts.Labels)
	if err != nil {
		return nil, fmt.Errorf("detect items in %s: %w", displayName(file), err)
	}
	if opts.SingleItem && len(items) > 1 {
		items = items[:1]
	}
	d.logger.Info("items detected",
		logging.String("file", displayName(file)),
		logging.Int("count", len(items)),
		logging.Bool("single_item", opts.SingleItem),
		logging.Duration("elapsed", time.Since(started)),
	)
	return items, nil
}

func displayName(file scan.File) string {
	if name := strings.TrimSpace(file.Name); name != "" {
		return name
	}
	return file.ID
}
