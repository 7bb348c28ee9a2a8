package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/config"
	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/notifications"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services"
	"github.com/Duelion/homebox-companion-sub001/internal/session"
	"github.com/Duelion/homebox-companion-sub001/internal/submission"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the current status.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrDisposed is returned after Dispose.
	ErrDisposed = errors.New("workflow disposed")
	// ErrItemNotFound is returned when an item or image id is unknown.
	ErrItemNotFound = errors.New("item not found")
)

// Detector finds candidate items in a photo.
type Detector interface {
	Detect(ctx context.Context, file scan.File, opts scan.DetectOptions) ([]scan.CandidateItem, error)
}

// Corrector rewrites a candidate from user instructions. It may split one
// item into several.
type Corrector interface {
	Correct(ctx context.Context, file scan.File, item scan.CandidateItem, instructions string) ([]scan.CandidateItem, error)
}

// Analyzer reads details from extra photos of one item and folds several
// items into one record.
type Analyzer interface {
	AnalyzeDetails(ctx context.Context, item scan.ConfirmedItem, files []scan.File) (scan.CandidateItem, error)
	Merge(ctx context.Context, items []scan.ConfirmedItem) (scan.CandidateItem, error)
}

// DuplicateChecker looks up existing inventory items by serial number.
type DuplicateChecker interface {
	CheckSerial(ctx context.Context, serial string) (*scan.DuplicateMatch, error)
}

// Persister stores snapshots for crash recovery.
type Persister interface {
	Save(state scan.State)
	Clear()
	Flush(ctx context.Context) error
	Summary(ctx context.Context) (session.RecoverySummary, bool)
	Load(ctx context.Context) (scan.State, error)
}

// Previews manages displayable handles for the images in the state.
type Previews interface {
	URL(file scan.File) (string, error)
	Sync(files []scan.File) error
	Cleanup()
}

// Deps are the collaborators the Machine drives. Detector, Inventory and
// Tokens are required for the stages that use them; the rest are optional.
type Deps struct {
	Detector   Detector
	Corrector  Corrector
	Analyzer   Analyzer
	Duplicates DuplicateChecker
	Inventory  submission.Inventory
	Tokens     submission.TokenSource
	Persister  Persister
	Previews   Previews
	Notifier   notifications.Service
	Labels     []scan.Label
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Config tunes detection and submission.
type Config struct {
	DetectionConcurrency int
	DetectionTimeout     time.Duration
	ExtendedFields       bool
	SuggestLabels        bool
	DuplicateCheck       bool
	Submission           submission.Config
}

// ConfigFrom derives Machine settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		DetectionConcurrency: cfg.Detection.Concurrency,
		DetectionTimeout:     time.Duration(cfg.Detection.TimeoutSeconds) * time.Second,
		ExtendedFields:       cfg.Detection.ExtendedFields,
		SuggestLabels:        cfg.Detection.SuggestLabels,
		DuplicateCheck:       cfg.Detection.DuplicateCheck,
		Submission: submission.Config{
			Concurrency:          cfg.Submission.Concurrency,
			AttachmentRetryLimit: cfg.Submission.AttachmentRetryLimit,
			UploadPhotos:         cfg.Submission.UploadPhotos,
		},
	}
}

// StatusChange describes one status transition.
type StatusChange struct {
	From  scan.Status
	To    scan.Status
	Route scan.Route
}

// Machine is the scan wizard state machine. It is safe for concurrent use.
type Machine struct {
	cfg    Config
	deps   Deps
	engine *submission.Engine
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	sessionID  string
	state      scan.State
	generation uint64
	analyzing  bool
	disposed   bool
	pending    []StatusChange
	listeners  map[int]func(StatusChange)
	nextListen int

	// notifyMu orders listener callbacks across goroutines.
	notifyMu sync.Mutex
}

// New constructs a Machine in the no-location status.
func New(cfg Config, deps Deps) *Machine {
	if cfg.DetectionConcurrency < 1 {
		cfg.DetectionConcurrency = 1
	}
	if cfg.DetectionTimeout <= 0 {
		cfg.DetectionTimeout = 2 * time.Minute
	}
	if deps.Persister == nil {
		deps.Persister = noopPersister{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewNoop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	m := &Machine{
		cfg:       cfg,
		deps:      deps,
		logger:    logging.NewComponentLogger(deps.Logger, "workflow"),
		now:       deps.Clock,
		sessionID: scan.NewID(),
		listeners: make(map[int]func(StatusChange)),
	}
	m.state = scan.State{Status: scan.StatusNoLocation, UpdatedAt: m.now()}
	m.engine = submission.NewEngine(deps.Inventory, deps.Tokens, cfg.Submission,
		submission.WithLogger(deps.Logger),
		submission.WithProgress(m.onProgress),
		submission.WithRecordHook(m.onRecord),
	)
	return m
}

// Dispose releases preview handles and detaches listeners. Later mutations
// fail with ErrDisposed. Pending snapshot writes are left to the persister.
func (m *Machine) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.listeners = make(map[int]func(StatusChange))
	m.pending = nil
	m.mu.Unlock()
	if m.deps.Previews != nil {
		m.deps.Previews.Cleanup()
	}
}

// OnStatusChanged registers fn for every status change and returns a
// function that removes it. Callbacks run outside the state lock, in order.
func (m *Machine) OnStatusChanged(fn func(StatusChange)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListen
	m.nextListen++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// State returns a deep copy of the wizard state.
func (m *Machine) State() scan.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Status returns the current status.
func (m *Machine) Status() scan.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status
}

// Route returns the page the current status belongs on.
func (m *Machine) Route() scan.Route {
	return scan.RouteFor(m.Status())
}

// PreviewURL returns a displayable handle for file.
func (m *Machine) PreviewURL(file scan.File) (string, error) {
	if m.deps.Previews == nil {
		return "", errors.New("previews unavailable")
	}
	return m.deps.Previews.URL(file)
}

// lock acquires the state lock, failing once disposed.
func (m *Machine) lock() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	return nil
}

// unlock releases the state lock and then delivers queued status changes.
func (m *Machine) unlock() {
	events := m.pending
	m.pending = nil
	var listeners []func(StatusChange)
	if len(events) > 0 {
		listeners = make([]func(StatusChange), 0, len(m.listeners))
		for i := 0; i < m.nextListen; i++ {
			if fn, ok := m.listeners[i]; ok {
				listeners = append(listeners, fn)
			}
		}
	}
	m.mu.Unlock()
	if len(events) == 0 || len(listeners) == 0 {
		return
	}
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	for _, change := range events {
		for _, fn := range listeners {
			fn(change)
		}
	}
}

// setStatusLocked records a transition and queues its notification.
func (m *Machine) setStatusLocked(to scan.Status) {
	from := m.state.Status
	m.state.Status = to
	if from != to {
		m.pending = append(m.pending, StatusChange{From: from, To: to, Route: scan.RouteFor(to)})
		m.logger.Info("workflow status changed",
			logging.String("from", string(from)),
			logging.String("to", string(to)),
			logging.String(logging.FieldSessionID, m.sessionID),
		)
	}
}

// commitLocked stamps the state, schedules a snapshot and refreshes previews.
// A completed wizard, or one without a resumable stage, clears the snapshot.
func (m *Machine) commitLocked() {
	m.state.UpdatedAt = m.now()
	resume := scan.ResumeStage(m.state.Status)
	if m.state.Status == scan.StatusComplete || !scan.IsRecoverable(resume) {
		m.deps.Persister.Clear()
	} else {
		m.deps.Persister.Save(m.state)
	}
	if m.deps.Previews != nil {
		if err := m.deps.Previews.Sync(m.state.Files()); err != nil {
			logging.WarnWithContext(m.logger, "preview sync failed", "preview_sync_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some thumbnails may not display"),
			)
		}
	}
}

// requireLocked returns ErrInvalidTransition unless the status is one of allowed.
func (m *Machine) requireLocked(op string, allowed ...scan.Status) error {
	for _, status := range allowed {
		if m.state.Status == status {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not allowed from %s", ErrInvalidTransition, op, m.state.Status)
}

func (m *Machine) context(ctx context.Context, stage string) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contextLocked(ctx, stage)
}

func (m *Machine) contextLocked(ctx context.Context, stage string) context.Context {
	ctx = services.WithSessionID(ctx, m.sessionID)
	return services.WithStage(ctx, stage)
}

type noopPersister struct{}

func (noopPersister) Save(scan.State) {}

func (noopPersister) Clear() {}

func (noopPersister) Flush(context.Context) error { return nil }

func (noopPersister) Load(context.Context) (scan.State, error) {
	return scan.State{}, session.ErrNoSnapshot
}

func (noopPersister) Summary(context.Context) (session.RecoverySummary, bool) {
	return session.RecoverySummary{}, false
}
