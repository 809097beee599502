package models

import "time"

// UsageRecord is one row per inbound API request. High volume,
// append-only.
type UsageRecord struct {
	ID          string    `json:"id"`
	Scope       string    `json:"scope"`
	Endpoint    string    `json:"endpoint"`
	Method      string    `json:"method"`
	StatusCode  int       `json:"status_code"`
	LatencyMs   int64     `json:"latency_ms"`
	RateLimited bool      `json:"rate_limited"`
	CreatedAt   time.Time `json:"created_at"`
}

// UsageSummary is the rollup for one (scope, period, window_start).
// Recomputing the same window overwrites the prior row.
type UsageSummary struct {
	ID          string     `json:"id"`
	Scope       string     `json:"scope"`
	Period      RatePeriod `json:"period"`
	WindowStart time.Time  `json:"window_start"`

	TotalRequests    int64 `json:"total_requests"`
	SuccessCount     int64 `json:"success_count"`
	FailedCount      int64 `json:"failed_count"`
	RateLimitedCount int64 `json:"rate_limited_count"`

	MinLatencyMs int64   `json:"min_latency_ms"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs int64   `json:"max_latency_ms"`

	ByEndpoint   map[string]int64 `json:"by_endpoint"`
	ByStatusCode map[string]int64 `json:"by_status_code"`

	ComputedAt time.Time `json:"computed_at"`
}
