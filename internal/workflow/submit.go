package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/submission"
)

// SubmitAll creates every confirmed item that has not already been created.
// The wizard ends in complete, submission_failed, or session_expired. A call
// made while another submission runs returns submission.ErrInProgress.
func (m *Machine) SubmitAll(ctx context.Context) (scan.Outcome, error) {
	batch, err := m.beginSubmission("SubmitAll", scan.StatusConfirming, scan.StatusSubmissionFailed)
	if err != nil {
		return scan.Outcome{}, err
	}
	ctx = m.context(ctx, "submission")
	outcome, err := m.engine.SubmitAll(ctx, batch)
	return m.finishSubmission(ctx, batch, outcome, err)
}

// RetryFailed re-submits failed and undispatched items and finishes the
// missing steps of partially created ones. With nothing to retry it reports
// zero counts and leaves the status alone.
func (m *Machine) RetryFailed(ctx context.Context) (scan.Outcome, error) {
	if err := m.lock(); err != nil {
		return scan.Outcome{}, err
	}
	if m.state.Status != scan.StatusSubmitting && !m.engine.HasRetryable(m.state.Confirmed) {
		outcome := scan.Outcome{Success: m.engine.AllItemsSuccessful()}
		m.unlock()
		return outcome, nil
	}
	m.unlock()

	batch, err := m.beginSubmission("RetryFailed", scan.StatusSubmissionFailed, scan.StatusSessionExpired, scan.StatusConfirming)
	if err != nil {
		return scan.Outcome{}, err
	}
	ctx = m.context(ctx, "submission")
	outcome, err := m.engine.RetryFailed(ctx, batch)
	return m.finishSubmission(ctx, batch, outcome, err)
}

func (m *Machine) beginSubmission(op string, allowed ...scan.Status) (submission.Batch, error) {
	if err := m.lock(); err != nil {
		return submission.Batch{}, err
	}
	defer m.unlock()
	if m.state.Status == scan.StatusSubmitting || m.engine.InProgress() {
		return submission.Batch{}, submission.ErrInProgress
	}
	if err := m.requireLocked(op, allowed...); err != nil {
		return submission.Batch{}, err
	}
	if len(m.state.Confirmed) == 0 {
		return submission.Batch{}, submission.ErrNothingToSubmit
	}
	if m.state.Location == nil {
		return submission.Batch{}, fmt.Errorf("%w: %s requires a location", ErrInvalidTransition, op)
	}
	if m.deps.Inventory == nil || m.deps.Tokens == nil {
		return submission.Batch{}, errors.New("inventory client not configured")
	}

	batch := submission.Batch{Location: *m.state.Location}
	for _, item := range m.state.Confirmed {
		batch.Items = append(batch.Items, item.Clone())
	}
	if m.state.Parent != nil {
		parent := *m.state.Parent
		batch.Parent = &parent
	}
	m.state.Result = nil
	m.state.LastError = ""
	m.state.Progress = &scan.Progress{Total: len(batch.Items), Message: "Submitting items"}
	m.setStatusLocked(scan.StatusSubmitting)
	m.commitLocked()
	return batch, nil
}

func (m *Machine) finishSubmission(ctx context.Context, batch submission.Batch, outcome scan.Outcome, runErr error) (scan.Outcome, error) {
	m.mu.Lock()
	m.state.Submission = m.engine.Records()
	if runErr != nil {
		m.state.LastError = runErr.Error()
		m.setStatusLocked(scan.StatusConfirming)
		m.commitLocked()
		m.unlock()
		return outcome, runErr
	}
	result := outcome
	m.state.Result = &result
	switch {
	case outcome.SessionExpired:
		m.state.LastError = "inventory login expired"
		m.setStatusLocked(scan.StatusSessionExpired)
	case m.engine.AllItemsSuccessful():
		m.setStatusLocked(scan.StatusComplete)
	default:
		m.setStatusLocked(scan.StatusSubmissionFailed)
	}
	status := m.state.Status
	pending := 0
	for _, rec := range m.state.Submission {
		if rec.Status != scan.SubmissionSuccess {
			pending++
		}
	}
	m.commitLocked()
	m.unlock()

	logger := logging.WithContext(ctx, m.logger)
	attrs := []logging.Attr{
		logging.String("status", string(status)),
		logging.Int("created", outcome.SuccessCount),
		logging.Int("partial", outcome.PartialSuccessCount),
		logging.Int("failed", outcome.FailCount),
		logging.Bool("session_expired", outcome.SessionExpired),
	}
	switch status {
	case scan.StatusComplete:
		logger.Info("submission complete", logging.Args(attrs...)...)
	case scan.StatusSessionExpired:
		logging.WarnWithContext(logger, "submission halted: inventory login expired", "submission_session_expired",
			append(attrs,
				logging.String(logging.FieldErrorHint, "log in again, then resume and retry failed items"),
				logging.String(logging.FieldImpact, "remaining items not created; session saved"),
			)...)
	default:
		logging.WarnWithContext(logger, "submission finished with failures", "submission_incomplete",
			append(attrs,
				logging.String(logging.FieldErrorHint, "retry failed items"),
				logging.String(logging.FieldImpact, "some items missing or incomplete in inventory"),
			)...)
	}
	m.notifySubmission(ctx, batch, status, outcome, pending)
	return outcome, nil
}

// HasFailedItems reports whether any item failed or is missing follow-up steps.
func (m *Machine) HasFailedItems() bool { return m.engine.HasFailedItems() }

// AllItemsSuccessful reports whether every submitted item was fully created.
func (m *Machine) AllItemsSuccessful() bool { return m.engine.AllItemsSuccessful() }

// SubmissionProgress returns the latest progress of a running or finished pass.
func (m *Machine) SubmissionProgress() (scan.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Progress == nil {
		return scan.Progress{}, false
	}
	return *m.state.Progress, true
}

// SubmissionErrors maps item id to the last error for items that are not successful.
func (m *Machine) SubmissionErrors() map[string]string { return m.engine.Errors() }

// ItemStatuses maps item id to its submission status.
func (m *Machine) ItemStatuses() map[string]scan.SubmissionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.itemStatusesLocked()
}

func (m *Machine) itemStatusesLocked() map[string]scan.SubmissionStatus {
	out := make(map[string]scan.SubmissionStatus)
	for _, rec := range m.engine.Records() {
		out[rec.ItemID] = rec.Status
	}
	return out
}

// SubmissionResult returns the outcome of the last finished pass.
func (m *Machine) SubmissionResult() (scan.Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Result == nil {
		return scan.Outcome{}, false
	}
	return *m.state.Result, true
}

// RemoveConfirmedItem drops an item from the batch. An item that was
// already created stays in the inventory.
func (m *Machine) RemoveConfirmedItem(id string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.requireLocked("RemoveConfirmedItem", scan.StatusConfirming, scan.StatusSubmissionFailed, scan.StatusSessionExpired); err != nil {
		return err
	}
	idx := m.confirmedIndexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: confirmed item %s", ErrItemNotFound, id)
	}
	m.state.Confirmed = append(m.state.Confirmed[:idx], m.state.Confirmed[idx+1:]...)
	m.engine.Forget(id)
	m.state.Submission = m.engine.Records()
	m.commitLocked()
	return nil
}

// UpdateConfirmedItem replaces a confirmed item with an edited copy. Items
// that were already created cannot be edited.
func (m *Machine) UpdateConfirmedItem(item scan.ConfirmedItem) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.requireLocked("UpdateConfirmedItem", scan.StatusConfirming, scan.StatusSubmissionFailed, scan.StatusSessionExpired); err != nil {
		return err
	}
	idx := m.confirmedIndexLocked(item.ID)
	if idx < 0 {
		return fmt.Errorf("%w: confirmed item %s", ErrItemNotFound, item.ID)
	}
	if status, ok := m.itemStatusesLocked()[item.ID]; ok && status == scan.SubmissionSuccess {
		return fmt.Errorf("%w: %q is already in the inventory", ErrInvalidTransition, item.Name)
	}
	if err := item.Validate(); err != nil {
		return err
	}
	m.state.Confirmed[idx] = item.Clone()
	m.commitLocked()
	return nil
}

func (m *Machine) confirmedIndexLocked(id string) int {
	for i, item := range m.state.Confirmed {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (m *Machine) onProgress(p scan.Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Progress = &p
}

// onRecord snapshots every record change so a crash after a create never
// loses the created id.
func (m *Machine) onRecord(scan.SubmissionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.state.Submission = m.engine.Records()
	m.state.UpdatedAt = m.now()
	m.deps.Persister.Save(m.state)
}
