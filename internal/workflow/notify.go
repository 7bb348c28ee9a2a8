package workflow

import (
	"context"
	"errors"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/submission"
)

func (m *Machine) notifySubmission(ctx context.Context, batch submission.Batch, status scan.Status, outcome scan.Outcome, pending int) {
	location := batch.Location.Name
	if batch.Location.Path != "" {
		location = batch.Location.Path
	}
	var err error
	switch status {
	case scan.StatusSessionExpired:
		err = m.deps.Notifier.NotifySessionExpired(ctx, location, pending)
	default:
		err = m.deps.Notifier.NotifySubmissionCompleted(ctx, location, outcome.SuccessCount, outcome.PartialSuccessCount, outcome.FailCount)
	}
	m.logNotifyFailure(ctx, "submission notification failed", err)
}

func (m *Machine) notifyError(ctx context.Context, cause error, label string) {
	err := m.deps.Notifier.NotifyError(ctx, cause, label)
	m.logNotifyFailure(ctx, "error notification failed", err)
}

func (m *Machine) logNotifyFailure(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	if errors.Is(err, context.Canceled) {
		logger.Debug("shutting down, notification skipped")
		return
	}
	logger.Debug(msg, logging.Error(err))
}
