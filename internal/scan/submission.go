package scan

// SubmissionStatus tracks one item through a batch submission.
type SubmissionStatus string

const (
	SubmissionPending        SubmissionStatus = "pending"
	SubmissionSuccess        SubmissionStatus = "success"
	SubmissionPartialSuccess SubmissionStatus = "partial_success"
	SubmissionFailed         SubmissionStatus = "failed"
)

// SubmissionRecord is the per-item outcome of submission attempts.
//
// A record with a CreatedID exists server-side; only DetailsPending and
// PendingAttachments remain to be retried for it.
type SubmissionRecord struct {
	ItemID             string           `json:"item_id"`
	Name               string           `json:"name"`
	Status             SubmissionStatus `json:"status"`
	Error              string           `json:"error,omitempty"`
	CreatedID          string           `json:"created_id,omitempty"`
	DetailsPending     bool             `json:"details_pending,omitempty"`
	PendingAttachments []string         `json:"pending_attachments,omitempty"`
	AttachmentAttempts int              `json:"attachment_attempts,omitempty"`
}

// Clone returns a copy that shares no slices with the receiver.
func (r SubmissionRecord) Clone() SubmissionRecord {
	out := r
	out.PendingAttachments = cloneStrings(r.PendingAttachments)
	return out
}

// Progress reports batch submission progress after each item resolves.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Outcome summarizes one submission pass.
type Outcome struct {
	Success             bool `json:"success"`
	SessionExpired      bool `json:"session_expired"`
	SuccessCount        int  `json:"success_count"`
	PartialSuccessCount int  `json:"partial_success_count"`
	FailCount           int  `json:"fail_count"`
}
