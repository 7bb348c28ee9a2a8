package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services"
)

var (
	// ErrInProgress is returned when a submission pass is already running.
	ErrInProgress = errors.New("submission already in progress")
	// ErrNothingToSubmit is returned for an empty batch.
	ErrNothingToSubmit = errors.New("no confirmed items to submit")
)

// Inventory performs the per-item steps against the inventory service.
type Inventory interface {
	CreateItem(ctx context.Context, token string, item scan.ConfirmedItem, location scan.Location, parent *scan.ParentItem) (string, error)
	ApplyDetails(ctx context.Context, token, itemID string, item scan.ConfirmedItem) error
	UploadAttachment(ctx context.Context, token, itemID string, attachment scan.Attachment) error
}

// TokenSource supplies the bearer token checked before every dispatch.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// invalidator is implemented by token sources that cache tokens.
type invalidator interface {
	Invalidate(ctx context.Context)
}

// Batch is the set of items to submit and where to create them.
type Batch struct {
	Items    []scan.ConfirmedItem
	Location scan.Location
	Parent   *scan.ParentItem
}

// Config tunes the engine.
type Config struct {
	// Concurrency bounds in-flight items. Values below one mean one.
	Concurrency int
	// AttachmentRetryLimit caps upload passes per item; zero is unlimited.
	AttachmentRetryLimit int
	// UploadPhotos disables attachment uploads when false.
	UploadPhotos bool
}

// Engine submits batches and owns the per-item records.
type Engine struct {
	inventory Inventory
	tokens    TokenSource
	cfg       Config
	logger    *slog.Logger

	onProgress func(scan.Progress)
	onRecord   func(scan.SubmissionRecord)

	running atomic.Bool

	mu      sync.Mutex
	order   []string
	records map[string]scan.SubmissionRecord
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithProgress registers a callback invoked after each item resolves.
func WithProgress(fn func(scan.Progress)) Option {
	return func(e *Engine) { e.onProgress = fn }
}

// WithRecordHook registers a callback invoked whenever a record changes,
// including right after a successful create.
func WithRecordHook(fn func(scan.SubmissionRecord)) Option {
	return func(e *Engine) { e.onRecord = fn }
}

// NewEngine constructs an Engine.
func NewEngine(inventory Inventory, tokens TokenSource, cfg Config, opts ...Option) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	e := &Engine{
		inventory: inventory,
		tokens:    tokens,
		cfg:       cfg,
		records:   make(map[string]scan.SubmissionRecord),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "submission")
	return e
}

// InProgress reports whether a pass is running.
func (e *Engine) InProgress() bool { return e.running.Load() }

// SubmitAll submits every item in batch that has not already succeeded.
// Outcome counts cover the whole batch.
func (e *Engine) SubmitAll(ctx context.Context, batch Batch) (scan.Outcome, error) {
	if !e.running.CompareAndSwap(false, true) {
		return scan.Outcome{}, ErrInProgress
	}
	defer e.running.Store(false)

	if len(batch.Items) == 0 {
		return scan.Outcome{}, ErrNothingToSubmit
	}

	plan := make([]task, 0, len(batch.Items))
	ids := make([]string, 0, len(batch.Items))
	for _, item := range batch.Items {
		ids = append(ids, item.ID)
		rec := e.ensureRecord(item)
		if t, ok := e.taskFor(item, rec, true); ok {
			plan = append(plan, t)
		}
	}
	expired := e.run(ctx, batch, plan)
	return e.outcome(ids, expired), nil
}

// RetryFailed re-submits failed items, the missing follow-up steps of
// partially successful items, and items a halted pass never dispatched.
// Outcome counts cover only the retried items. With nothing to retry it
// returns zero counts without touching the inventory.
func (e *Engine) RetryFailed(ctx context.Context, batch Batch) (scan.Outcome, error) {
	if !e.running.CompareAndSwap(false, true) {
		return scan.Outcome{}, ErrInProgress
	}
	defer e.running.Store(false)

	var plan []task
	var ids []string
	for _, item := range batch.Items {
		rec, ok := e.record(item.ID)
		if !ok {
			continue
		}
		if t, ok := e.taskFor(item, rec, false); ok {
			plan = append(plan, t)
			ids = append(ids, item.ID)
		}
	}
	if len(plan) == 0 {
		return scan.Outcome{Success: e.AllItemsSuccessful()}, nil
	}
	expired := e.run(ctx, batch, plan)
	return e.outcome(ids, expired), nil
}

// HasRetryable reports whether RetryFailed would do any work for items.
func (e *Engine) HasRetryable(items []scan.ConfirmedItem) bool {
	for _, item := range items {
		rec, ok := e.record(item.ID)
		if !ok {
			continue
		}
		if _, ok := e.taskFor(item, rec, false); ok {
			return true
		}
	}
	return false
}

// HasFailedItems reports whether any record is failed or partially successful.
func (e *Engine) HasFailedItems() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range e.records {
		if rec.Status == scan.SubmissionFailed || rec.Status == scan.SubmissionPartialSuccess {
			return true
		}
	}
	return false
}

// AllItemsSuccessful reports whether there is at least one record and all succeeded.
func (e *Engine) AllItemsSuccessful() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.records) == 0 {
		return false
	}
	for _, rec := range e.records {
		if rec.Status != scan.SubmissionSuccess {
			return false
		}
	}
	return true
}

// Records returns a copy of the records in first-submitted order.
func (e *Engine) Records() []scan.SubmissionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]scan.SubmissionRecord, 0, len(e.order))
	for _, id := range e.order {
		if rec, ok := e.records[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Errors returns item name to error message for failed and partial records.
func (e *Engine) Errors() map[string]string {
	out := make(map[string]string)
	for _, rec := range e.Records() {
		if rec.Error != "" && rec.Status != scan.SubmissionSuccess {
			out[rec.ItemID] = rec.Error
		}
	}
	return out
}

// Restore replaces all records, typically from a recovered session.
func (e *Engine) Restore(records []scan.SubmissionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.order = e.order[:0]
	e.records = make(map[string]scan.SubmissionRecord, len(records))
	for _, rec := range records {
		if rec.ItemID == "" {
			continue
		}
		if _, dup := e.records[rec.ItemID]; !dup {
			e.order = append(e.order, rec.ItemID)
		}
		e.records[rec.ItemID] = rec.Clone()
	}
}

// Forget drops the record for itemID.
func (e *Engine) Forget(itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.records, itemID)
	e.order = slices.DeleteFunc(e.order, func(id string) bool { return id == itemID })
}

// Reset drops all records.
func (e *Engine) Reset() {
	e.Restore(nil)
}

type task struct {
	item   scan.ConfirmedItem
	create bool
}

// taskFor decides what remains to be done for item. fresh marks a SubmitAll
// pass, where pending and failed items are created.
func (e *Engine) taskFor(item scan.ConfirmedItem, rec scan.SubmissionRecord, fresh bool) (task, bool) {
	switch rec.Status {
	case scan.SubmissionSuccess:
		return task{}, false
	case scan.SubmissionPartialSuccess:
		if rec.CreatedID == "" {
			return task{item: item, create: true}, true
		}
		if !rec.DetailsPending && !e.attachmentsRetryable(rec) {
			return task{}, false
		}
		return task{item: item}, true
	case scan.SubmissionFailed, scan.SubmissionPending:
		return task{item: item, create: rec.CreatedID == ""}, true
	default:
		if fresh {
			return task{item: item, create: true}, true
		}
		return task{}, false
	}
}

func (e *Engine) attachmentsRetryable(rec scan.SubmissionRecord) bool {
	if len(rec.PendingAttachments) == 0 {
		return false
	}
	return e.cfg.AttachmentRetryLimit <= 0 || rec.AttachmentAttempts < e.cfg.AttachmentRetryLimit
}

// run dispatches plan in order through a bounded pool and reports whether
// the pass halted on an authorization problem. A worker slot is taken before
// the token check, so an item that got a token is always processed.
func (e *Engine) run(ctx context.Context, batch Batch, plan []task) bool {
	var (
		halted  atomic.Bool
		expired atomic.Bool
		done    atomic.Int32
		g       errgroup.Group
	)
	slots := make(chan struct{}, e.cfg.Concurrency)
	total := len(plan)

	halt := func(authLost bool) {
		halted.Store(true)
		if authLost {
			expired.Store(true)
		}
	}

dispatch:
	for _, t := range plan {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			halt(false)
			break dispatch
		}
		if halted.Load() || ctx.Err() != nil {
			<-slots
			break
		}
		token, err := e.tokens.Token(ctx)
		if err != nil {
			<-slots
			logging.WarnWithContext(e.logger, "submission halted: no valid token", "submission_token_missing",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "log in again and retry failed items"),
				logging.String(logging.FieldImpact, "remaining items left pending"),
			)
			halt(true)
			break
		}
		g.Go(func() error {
			defer func() { <-slots }()
			itemCtx := services.WithItemID(ctx, t.item.ID)
			rec, authLost := e.process(itemCtx, token, batch, t)
			if authLost {
				halt(true)
				if inv, ok := e.tokens.(invalidator); ok {
					inv.Invalidate(ctx)
				}
			}
			current := int(done.Add(1))
			e.reportProgress(scan.Progress{Current: current, Total: total, Message: progressMessage(rec)})
			return nil
		})
	}
	_ = g.Wait()
	return expired.Load()
}

// process runs the remaining steps for one item and stores the record.
func (e *Engine) process(ctx context.Context, token string, batch Batch, t task) (scan.SubmissionRecord, bool) {
	logger := logging.WithContext(ctx, e.logger)
	rec, _ := e.record(t.item.ID)
	rec.Name = t.item.Name

	if t.create {
		createdID, err := e.inventory.CreateItem(ctx, token, t.item, batch.Location, batch.Parent)
		if err != nil {
			rec.Status = scan.SubmissionFailed
			rec.Error = err.Error()
			e.store(rec)
			logging.WarnWithContext(logger, "item create failed", "item_create_failed",
				logging.String("item", t.item.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "item not created"),
			)
			return rec, services.IsAuthFailure(err)
		}
		rec.CreatedID = createdID
		rec.Error = ""
		rec.DetailsPending = !t.item.Extended.IsZero()
		rec.PendingAttachments = nil
		rec.AttachmentAttempts = 0
		if e.cfg.UploadPhotos {
			for _, att := range t.item.Attachments() {
				rec.PendingAttachments = append(rec.PendingAttachments, att.File.ID)
			}
		}
		// Mark partial until follow-ups finish so a crash here never re-creates.
		rec.Status = scan.SubmissionPartialSuccess
		e.store(rec)
		logger.Info("item created", logging.String("item", t.item.Name), logging.String("created_id", createdID))
	}

	var problems []string
	authLost := false

	if rec.DetailsPending {
		if err := e.inventory.ApplyDetails(ctx, token, rec.CreatedID, t.item); err != nil {
			problems = append(problems, fmt.Sprintf("details: %v", err))
			authLost = authLost || services.IsAuthFailure(err)
		} else {
			rec.DetailsPending = false
		}
	}

	if len(rec.PendingAttachments) > 0 && !authLost {
		if e.attachmentsRetryable(rec) {
			rec.AttachmentAttempts++
			pending := make(map[string]struct{}, len(rec.PendingAttachments))
			for _, id := range rec.PendingAttachments {
				pending[id] = struct{}{}
			}
			var remaining []string
			for _, att := range t.item.Attachments() {
				if _, ok := pending[att.File.ID]; !ok {
					continue
				}
				if authLost {
					remaining = append(remaining, att.File.ID)
					continue
				}
				if err := e.inventory.UploadAttachment(ctx, token, rec.CreatedID, att); err != nil {
					problems = append(problems, fmt.Sprintf("attachment %s: %v", attachmentName(att), err))
					authLost = services.IsAuthFailure(err)
					remaining = append(remaining, att.File.ID)
				}
				delete(pending, att.File.ID)
			}
			// Attachments no longer on the item are dropped.
			rec.PendingAttachments = remaining
		} else {
			problems = append(problems, fmt.Sprintf("attachment retry limit (%d) reached", e.cfg.AttachmentRetryLimit))
		}
	}

	if rec.DetailsPending || len(rec.PendingAttachments) > 0 {
		rec.Status = scan.SubmissionPartialSuccess
		if len(problems) == 0 {
			problems = append(problems, "follow-up steps pending")
		}
		rec.Error = strings.Join(problems, "; ")
		logging.WarnWithContext(logger, "item created with missing follow-up steps", "item_partial_success",
			logging.String("item", t.item.Name),
			logging.String("error", rec.Error),
			logging.String(logging.FieldErrorHint, "retry failed items to finish uploads"),
			logging.String(logging.FieldImpact, "item exists without some details or photos"),
		)
	} else {
		rec.Status = scan.SubmissionSuccess
		rec.Error = ""
	}
	e.store(rec)
	return rec, authLost
}

func (e *Engine) outcome(ids []string, expired bool) scan.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := scan.Outcome{SessionExpired: expired}
	pending := 0
	for _, id := range ids {
		switch e.records[id].Status {
		case scan.SubmissionSuccess:
			out.SuccessCount++
		case scan.SubmissionPartialSuccess:
			out.PartialSuccessCount++
		case scan.SubmissionFailed:
			out.FailCount++
		default:
			pending++
		}
	}
	out.Success = !expired && pending == 0 && out.FailCount == 0 && out.PartialSuccessCount == 0
	return out
}

func (e *Engine) ensureRecord(item scan.ConfirmedItem) scan.SubmissionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.records[item.ID]; ok {
		return rec.Clone()
	}
	rec := scan.SubmissionRecord{ItemID: item.ID, Name: item.Name, Status: scan.SubmissionPending}
	e.records[item.ID] = rec
	e.order = append(e.order, item.ID)
	return rec
}

func (e *Engine) record(id string) (scan.SubmissionRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	return rec.Clone(), ok
}

func (e *Engine) store(rec scan.SubmissionRecord) {
	e.mu.Lock()
	if _, ok := e.records[rec.ItemID]; !ok {
		e.order = append(e.order, rec.ItemID)
	}
	e.records[rec.ItemID] = rec.Clone()
	e.mu.Unlock()
	if e.onRecord != nil {
		e.onRecord(rec.Clone())
	}
}

func (e *Engine) reportProgress(p scan.Progress) {
	if e.onProgress != nil {
		e.onProgress(p)
	}
}

func progressMessage(rec scan.SubmissionRecord) string {
	switch rec.Status {
	case scan.SubmissionSuccess:
		return fmt.Sprintf("Created %s", rec.Name)
	case scan.SubmissionPartialSuccess:
		return fmt.Sprintf("Created %s with errors", rec.Name)
	default:
		return fmt.Sprintf("Failed %s", rec.Name)
	}
}

func attachmentName(att scan.Attachment) string {
	if att.File.Name != "" {
		return att.File.Name
	}
	return att.File.ID
}
