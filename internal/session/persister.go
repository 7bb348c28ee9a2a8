package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
)

type opKind int

const (
	opSave opKind = iota
	opClear
	opBarrier
)

type op struct {
	kind  opKind
	state scan.State
	ack   chan struct{}
}

// Persister writes snapshots on a single goroutine in the order they are
// requested. Save and Clear return immediately; Flush waits for everything
// queued before it.
type Persister struct {
	kv     KV
	blobs  BlobStore
	quota  int64
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	queue   []op
	closed  bool
	lastErr error
	wake    chan struct{}
	done    chan struct{}
}

// Option configures a Persister.
type Option func(*Persister)

// WithLogger sets the logger used for swallowed write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Persister) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithQuota caps the snapshot footprint (document plus images) in bytes.
// Zero disables the cap.
func WithQuota(bytes int64) Option {
	return func(p *Persister) { p.quota = bytes }
}

// WithClock overrides the time source stamped into snapshots.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPersister starts the writer goroutine. Call Close to stop it.
func NewPersister(kv KV, blobs BlobStore, opts ...Option) *Persister {
	p := &Persister{
		kv:     kv,
		blobs:  blobs,
		logger: logging.NewNop(),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "session")
	go p.loop()
	return p
}

// Save queues a snapshot of state.
func (p *Persister) Save(state scan.State) {
	p.enqueue(op{kind: opSave, state: state.Clone()})
}

// Clear queues removal of the snapshot and its images.
func (p *Persister) Clear() {
	p.enqueue(op{kind: opClear})
}

// Flush blocks until every write queued before the call has finished.
func (p *Persister) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	if !p.enqueue(op{kind: opBarrier, ack: ack}) {
		return nil
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the writer.
func (p *Persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.signal()
	<-p.done
}

// LastError returns the most recent swallowed write failure, if any.
func (p *Persister) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// HasRecoverable reports whether a snapshot in a recoverable stage exists.
// Only the summary header is decoded.
func (p *Persister) HasRecoverable(ctx context.Context) bool {
	_, ok := p.Summary(ctx)
	return ok
}

// Summary returns the resume prompt details for the stored snapshot.
func (p *Persister) Summary(ctx context.Context) (RecoverySummary, bool) {
	doc, ok := p.read(ctx)
	if !ok {
		return RecoverySummary{}, false
	}
	h, err := decodeHeader(doc)
	if err != nil || !h.recoverable() {
		return RecoverySummary{}, false
	}
	return h.summary(), true
}

// Load restores the full state from the stored snapshot, verifying every
// image. It returns ErrNoSnapshot when nothing recoverable is stored and
// wraps ErrCorruptSnapshot when the snapshot cannot be trusted.
func (p *Persister) Load(ctx context.Context) (scan.State, error) {
	if err := p.Flush(ctx); err != nil {
		return scan.State{}, err
	}
	doc, found, err := p.kv.Get(ctx, SnapshotKey)
	if err != nil {
		return scan.State{}, fmt.Errorf("read snapshot: %w", err)
	}
	if !found {
		return scan.State{}, ErrNoSnapshot
	}
	return decode(ctx, doc, p.blobs)
}

func (p *Persister) read(ctx context.Context) ([]byte, bool) {
	if err := p.Flush(ctx); err != nil {
		return nil, false
	}
	doc, found, err := p.kv.Get(ctx, SnapshotKey)
	if err != nil {
		p.warn(ctx, "snapshot read failed", err)
		return nil, false
	}
	return doc, found
}

func (p *Persister) enqueue(o op) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if o.ack != nil {
			close(o.ack)
		}
		return false
	}
	p.queue = append(p.queue, o)
	p.mu.Unlock()
	p.signal()
	return true
}

func (p *Persister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Persister) loop() {
	defer close(p.done)
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			<-p.wake
			continue
		}
		next := p.queue[0]
		p.queue[0] = op{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.apply(next)
	}
}

func (p *Persister) apply(o op) {
	ctx := context.Background()
	var err error
	switch o.kind {
	case opSave:
		err = p.write(ctx, o.state)
	case opClear:
		err = p.clear(ctx)
	case opBarrier:
		close(o.ack)
		return
	}

	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	if err != nil {
		p.warn(ctx, "snapshot write failed", err)
	}
}

func (p *Persister) write(ctx context.Context, state scan.State) error {
	enc, err := encode(state, p.now())
	if err != nil {
		return err
	}
	if p.quota > 0 && enc.size > p.quota {
		return p.dropStale(ctx, fmt.Errorf("%w: snapshot needs %d bytes, quota %d", ErrQuotaExceeded, enc.size, p.quota))
	}

	// Images land before the document that references them.
	for hash, data := range enc.blobs {
		if err := p.blobs.Put(ctx, hash, data); err != nil {
			return fmt.Errorf("store image %s: %w", hash, err)
		}
	}
	if err := p.kv.Put(ctx, SnapshotKey, enc.doc); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return p.dropStale(ctx, err)
		}
		return err
	}

	keep := make(map[string]struct{}, len(enc.blobs))
	for hash := range enc.blobs {
		keep[hash] = struct{}{}
	}
	if _, err := p.blobs.Prune(ctx, keep); err != nil {
		return fmt.Errorf("prune images: %w", err)
	}
	return nil
}

// dropStale clears the previous snapshot when the current one cannot be
// stored, so an outdated stage is never offered for recovery.
func (p *Persister) dropStale(ctx context.Context, cause error) error {
	if err := p.clear(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (p *Persister) clear(ctx context.Context) error {
	if err := p.kv.Delete(ctx, SnapshotKey); err != nil {
		return err
	}
	if _, err := p.blobs.Prune(ctx, nil); err != nil {
		return fmt.Errorf("prune images: %w", err)
	}
	return nil
}

func (p *Persister) warn(ctx context.Context, msg string, err error) {
	hint := "session recovery may be unavailable; the wizard continues"
	if errors.Is(err, ErrQuotaExceeded) {
		hint = "raise session.max_snapshot_bytes or capture fewer photos"
	}
	logging.WarnWithContext(logging.WithContext(ctx, p.logger), msg, "session_persist_failed",
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "session cannot be resumed after a restart"),
		logging.Error(err),
	)
}
