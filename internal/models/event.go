package models

import (
	"encoding/json"
	"time"
)

// Event is one emitted occurrence of a domain event. Delivery attempts
// reference it so retries re-read the same payload.
type Event struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
