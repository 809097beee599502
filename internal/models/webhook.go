package models

import "time"

type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "api_key"
	AuthHMAC   AuthType = "hmac"
)

// Condition is a single trigger predicate stored on a webhook. Field is a
// dot path into the event payload; Value is compared using Operator.
type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// RetryPolicy controls re-delivery of failed attempts. Delays are fixed;
// MaxRetries counts retries after the first attempt, so a webhook with
// MaxRetries=3 can produce up to four attempts.
type RetryPolicy struct {
	Enabled      bool `json:"enabled"`
	MaxRetries   int  `json:"max_retries"`
	DelaySeconds int  `json:"delay_seconds"`
}

type Webhook struct {
	ID         string            `json:"id"`
	AccountID  string            `json:"account_id"`
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Events     []string          `json:"events"`
	AuthType   AuthType          `json:"auth_type"`
	AuthConfig map[string]string `json:"auth_config,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`

	// PayloadTemplate, when set, renders the request body; an empty value
	// sends the raw JSON payload.
	PayloadTemplate string `json:"payload_template,omitempty"`

	// IncludeFullPayload is accepted for compatibility but the full payload
	// is always sent; no subset projection exists.
	IncludeFullPayload bool `json:"include_full_payload"`

	Conditions []Condition `json:"conditions,omitempty"`
	Retry      RetryPolicy `json:"retry"`
	Active     bool        `json:"active"`

	// Aggregate counters, written only by the dispatcher.
	TotalTriggers        int64 `json:"total_triggers"`
	SuccessfulDeliveries int64 `json:"successful_deliveries"`
	FailedDeliveries     int64 `json:"failed_deliveries"`

	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	LastSuccessAt   *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt   *time.Time `json:"last_failure_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubscribedTo reports whether the webhook subscribes to the event name.
func (w *Webhook) SubscribedTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}
