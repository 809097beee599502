package models

import "time"

type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// DeliveryAttempt is one append-only delivery log row. A retry creates a
// new row with an incremented AttemptNumber; terminal rows are never
// mutated again.
type DeliveryAttempt struct {
	ID            string        `json:"id"`
	WebhookID     string        `json:"webhook_id"`
	EventID       string        `json:"event_id"`
	EventName     string        `json:"event_name"`
	AttemptNumber int           `json:"attempt_number"`
	Status        AttemptStatus `json:"status"`

	RequestURL     string            `json:"request_url"`
	RequestMethod  string            `json:"request_method"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	RequestBody    string            `json:"request_body,omitempty"`

	ResponseStatus  int               `json:"response_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`

	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Terminal reports whether the attempt reached a final outcome.
func (a *DeliveryAttempt) Terminal() bool {
	return a.Status == AttemptSuccess || a.Status == AttemptFailed
}
