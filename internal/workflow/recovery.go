package workflow

import (
	"context"
	"errors"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/session"
)

// HasRecoverableSession reports whether a resumable snapshot exists. Only
// the snapshot header is inspected.
func (m *Machine) HasRecoverableSession(ctx context.Context) bool {
	_, ok := m.deps.Persister.Summary(ctx)
	return ok
}

// RecoverySummary describes the stored session for a resume prompt.
func (m *Machine) RecoverySummary(ctx context.Context) (session.RecoverySummary, bool) {
	return m.deps.Persister.Summary(ctx)
}

// Recover replaces the current state with the stored snapshot. It returns
// false, leaving the state untouched, when there is nothing to recover or
// the snapshot cannot be fully restored.
func (m *Machine) Recover(ctx context.Context) bool {
	if err := m.lock(); err != nil {
		return false
	}
	if m.state.Status == scan.StatusSubmitting || m.analyzing {
		m.unlock()
		return false
	}
	m.unlock()

	ctx = m.context(ctx, "recovery")
	state, err := m.deps.Persister.Load(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoSnapshot) {
			logging.WarnWithContext(logging.WithContext(ctx, m.logger), "session recovery failed", "session_recovery_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "start a new scan; the saved session is unusable"),
				logging.String(logging.FieldImpact, "previous session discarded"),
			)
		}
		return false
	}

	if err := m.lock(); err != nil {
		return false
	}
	defer m.unlock()
	if m.state.Status == scan.StatusSubmitting || m.analyzing {
		return false
	}
	m.generation++
	status := state.Status
	state.Status = m.state.Status
	m.state = state
	m.engine.Restore(state.Submission)
	m.setStatusLocked(status)
	m.commitLocked()
	logging.WithContext(ctx, m.logger).Info("session recovered",
		logging.String("status", string(status)),
		logging.Int("detected", len(state.Detected)),
		logging.Int("confirmed", len(state.Confirmed)),
	)
	return true
}

// ClearPersistedSession discards the stored snapshot without touching the
// in-memory state.
func (m *Machine) ClearPersistedSession() {
	m.deps.Persister.Clear()
}

// Flush waits for queued snapshot writes.
func (m *Machine) Flush(ctx context.Context) error {
	return m.deps.Persister.Flush(ctx)
}
