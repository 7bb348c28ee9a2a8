package workflow

import (
	"context"
	"fmt"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/review"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services"
)

// CurrentItem returns the candidate under the review cursor.
func (m *Machine) CurrentItem() (scan.CandidateItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != scan.StatusReviewing {
		return scan.CandidateItem{}, false
	}
	return m.pipelineLocked().Current()
}

// DetectedItems returns the candidates awaiting review.
func (m *Machine) DetectedItems() []scan.CandidateItem {
	return m.State().Detected
}

// ConfirmedItems returns the items queued for submission.
func (m *Machine) ConfirmedItems() []scan.ConfirmedItem {
	return m.State().Confirmed
}

// NextItem moves the review cursor forward. It reports whether it moved.
func (m *Machine) NextItem() (bool, error) {
	return m.moveCursor("NextItem", (*review.Pipeline).Next)
}

// PreviousItem moves the review cursor back. It reports whether it moved.
func (m *Machine) PreviousItem() (bool, error) {
	return m.moveCursor("PreviousItem", (*review.Pipeline).Previous)
}

func (m *Machine) moveCursor(op string, move func(*review.Pipeline) bool) (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.unlock()
	if err := m.requireLocked(op, scan.StatusReviewing); err != nil {
		return false, err
	}
	p := m.pipelineLocked()
	if !move(p) {
		return false, nil
	}
	m.applyPipelineLocked(p)
	m.commitLocked()
	return true, nil
}

// SkipItem discards the current candidate. Skipping the last one moves to
// the summary.
func (m *Machine) SkipItem() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.requireLocked("SkipItem", scan.StatusReviewing); err != nil {
		return err
	}
	p := m.pipelineLocked()
	drained, err := p.Skip()
	if err != nil {
		return err
	}
	m.applyPipelineLocked(p)
	if drained {
		m.setStatusLocked(scan.StatusConfirming)
	}
	m.commitLocked()
	return nil
}

// ConfirmItem validates edited, which must be the current candidate with
// the user's edits applied, and queues it for submission. Confirming the
// last candidate moves to the summary.
func (m *Machine) ConfirmItem(edited scan.ConfirmedItem) (scan.ConfirmedItem, error) {
	if err := m.lock(); err != nil {
		return scan.ConfirmedItem{}, err
	}
	defer m.unlock()
	if err := m.requireLocked("ConfirmItem", scan.StatusReviewing); err != nil {
		return scan.ConfirmedItem{}, err
	}
	return m.confirmLocked(edited)
}

// ConfirmCurrent confirms the current candidate unchanged.
func (m *Machine) ConfirmCurrent() (scan.ConfirmedItem, error) {
	if err := m.lock(); err != nil {
		return scan.ConfirmedItem{}, err
	}
	defer m.unlock()
	if err := m.requireLocked("ConfirmCurrent", scan.StatusReviewing); err != nil {
		return scan.ConfirmedItem{}, err
	}
	current, ok := m.pipelineLocked().Current()
	if !ok {
		return scan.ConfirmedItem{}, review.ErrEmpty
	}
	return m.confirmLocked(current.Promote())
}

func (m *Machine) confirmLocked(edited scan.ConfirmedItem) (scan.ConfirmedItem, error) {
	p := m.pipelineLocked()
	confirmed, drained, err := p.Confirm(edited)
	if err != nil {
		return scan.ConfirmedItem{}, err
	}
	m.applyPipelineLocked(p)
	m.state.Confirmed = append(m.state.Confirmed, confirmed)
	if drained {
		m.setStatusLocked(scan.StatusConfirming)
	}
	m.commitLocked()
	return confirmed.Clone(), nil
}

// UpdateCurrentItem replaces the current candidate with an edited copy.
// Validation happens at confirmation.
func (m *Machine) UpdateCurrentItem(edited scan.CandidateItem) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.requireLocked("UpdateCurrentItem", scan.StatusReviewing); err != nil {
		return err
	}
	p := m.pipelineLocked()
	if err := p.SetCurrent(edited); err != nil {
		return err
	}
	m.applyPipelineLocked(p)
	m.commitLocked()
	return nil
}

// CorrectCurrentItem asks the correction model to rewrite the current
// candidate from instructions and replaces it with the result, which may
// be several items.
func (m *Machine) CorrectCurrentItem(ctx context.Context, instructions string) ([]scan.CandidateItem, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	if err := m.requireLocked("CorrectCurrentItem", scan.StatusReviewing); err != nil {
		m.unlock()
		return nil, err
	}
	if m.deps.Corrector == nil {
		m.unlock()
		return nil, services.Wrap(services.ErrConfiguration, "review", "CorrectCurrentItem", "corrector not configured", nil)
	}
	current, ok := m.pipelineLocked().Current()
	if !ok {
		m.unlock()
		return nil, review.ErrEmpty
	}
	if current.SourceFile == nil {
		m.unlock()
		return nil, services.Wrap(services.ErrValidation, "review", "CorrectCurrentItem", "item has no photo", nil)
	}
	generation := m.generation
	ctx = services.WithItemID(m.contextLocked(ctx, "review"), current.ID)
	m.unlock()

	items, err := m.deps.Corrector.Correct(ctx, *current.SourceFile, current, instructions)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "item correction failed", "item_correction_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item left unchanged"),
		)
		return nil, err
	}
	for i := range items {
		items[i].Normalize()
	}
	m.annotateDuplicates(ctx, items)

	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.unlock()
	if generation != m.generation || m.state.Status != scan.StatusReviewing {
		return nil, fmt.Errorf("%w: wizard changed during correction", review.ErrStaleItem)
	}
	p := m.pipelineLocked()
	if now, ok := p.Current(); !ok || now.ID != current.ID {
		return nil, fmt.Errorf("%w: cursor moved during correction", review.ErrStaleItem)
	}
	if err := p.Replace(items); err != nil {
		return nil, err
	}
	m.applyPipelineLocked(p)
	m.commitLocked()

	replaced := p.Items()[p.Index() : p.Index()+len(items)]
	return replaced, nil
}

func (m *Machine) pipelineLocked() *review.Pipeline {
	return review.New(m.state.Detected, m.state.ReviewIndex)
}

func (m *Machine) applyPipelineLocked(p *review.Pipeline) {
	m.state.Detected = p.Items()
	m.state.ReviewIndex = p.Index()
}
