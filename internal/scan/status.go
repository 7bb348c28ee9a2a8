package scan

import "strings"

// Status represents the stage of the scan wizard.
type Status string

const (
	StatusNoLocation       Status = "no_location"
	StatusLocationSelected Status = "location_selected"
	StatusCapturing        Status = "capturing"
	StatusAnalyzing        Status = "analyzing"
	StatusPartialAnalysis  Status = "partial_analysis"
	StatusReviewing        Status = "reviewing"
	StatusConfirming       Status = "confirming"
	StatusSubmitting       Status = "submitting"
	StatusComplete         Status = "complete"
	StatusSubmissionFailed Status = "submission_failed"
	StatusSessionExpired   Status = "session_expired"
)

var allStatuses = []Status{
	StatusNoLocation,
	StatusLocationSelected,
	StatusCapturing,
	StatusAnalyzing,
	StatusPartialAnalysis,
	StatusReviewing,
	StatusConfirming,
	StatusSubmitting,
	StatusComplete,
	StatusSubmissionFailed,
	StatusSessionExpired,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var recoverableStatuses = map[Status]struct{}{
	StatusCapturing:       {},
	StatusAnalyzing:       {},
	StatusPartialAnalysis: {},
	StatusReviewing:       {},
	StatusConfirming:      {},
}

// AllStatuses returns every known status in wizard order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsRecoverable reports whether a persisted snapshot in this status may be
// offered for resumption.
func IsRecoverable(status Status) bool {
	_, ok := recoverableStatuses[status]
	return ok
}

// ResumeStage maps a live status to the status written into a snapshot.
// Submission states resume on the summary page so completed items are never
// created twice.
func ResumeStage(status Status) Status {
	switch status {
	case StatusSubmitting, StatusSubmissionFailed, StatusSessionExpired:
		return StatusConfirming
	default:
		return status
	}
}

// IsTerminal reports whether the status ends a submission attempt.
func IsTerminal(status Status) bool {
	switch status {
	case StatusComplete, StatusSubmissionFailed, StatusSessionExpired:
		return true
	default:
		return false
	}
}
