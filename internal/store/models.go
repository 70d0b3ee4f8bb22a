package store

import "time"

// Application status values. Terminal values are write-once: an application
// is never un-submitted.
const (
	AppStatusQueued    = "queued"
	AppStatusSubmitted = "submitted"
	AppStatusSkipped   = "skipped"
	AppStatusFailed    = "failed"
)

// RunRecord is the persisted snapshot of a workflow run. The run state
// machine owns status transitions; the store only records them.
type RunRecord struct {
	ID          string     `json:"id"`
	TemplateID  string     `json:"template_id"`
	Platform    string     `json:"platform"`
	Status      string     `json:"status"`
	SessionID   *string    `json:"session_id,omitempty"` // infinite hunt session that created it
	Error       *string    `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ApplicationRecord is one candidate job encountered during a run. Records
// outlive the run that created them for reporting.
type ApplicationRecord struct {
	ID        string     `json:"id"`
	RunID     string     `json:"run_id"`
	Platform  string     `json:"platform"`
	URL       string     `json:"url"`
	Company   string     `json:"company,omitempty"`
	Title     string     `json:"title,omitempty"`
	Status    string     `json:"status"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
