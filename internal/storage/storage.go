package storage

import (
	"context"
	"time"

	"github.com/vantagecrm/hookd/internal/models"
)

type Storage interface {
	// Accounts
	CreateAccount(ctx context.Context, acc *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByAPIKey(ctx context.Context, apiKey string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	UpdateAccountAPIKey(ctx context.Context, id, newKey string) error

	// Webhooks
	CreateWebhook(ctx context.Context, wh *models.Webhook) error
	GetWebhook(ctx context.Context, id string) (*models.Webhook, error)
	ListWebhooks(ctx context.Context, accountID string) ([]models.Webhook, error)
	UpdateWebhook(ctx context.Context, wh *models.Webhook) error
	DeleteWebhook(ctx context.Context, id string) error
	ToggleWebhook(ctx context.Context, id string, active bool) error
	ListActiveWebhooksByEvent(ctx context.Context, event string) ([]models.Webhook, error)
	IncrementTriggerCount(ctx context.Context, id string, at time.Time) error
	RecordDeliveryOutcome(ctx context.Context, id string, success bool, at time.Time) error

	// Events
	CreateEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error)

	// Delivery attempts
	CreateAttempt(ctx context.Context, a *models.DeliveryAttempt) error
	GetAttempt(ctx context.Context, id string) (*models.DeliveryAttempt, error)
	ListAttemptsByWebhook(ctx context.Context, webhookID string, limit, offset int) ([]models.DeliveryAttempt, error)
	ListAttemptsByEvent(ctx context.Context, eventID string) ([]models.DeliveryAttempt, error)
	ListDueAttempts(ctx context.Context, now time.Time, limit int) ([]models.DeliveryAttempt, error)
	FinalizeAttempt(ctx context.Context, a *models.DeliveryAttempt) error

	// Rate limiting
	GetRateCounter(ctx context.Context, scope, endpoint string) (*models.RateLimitCounter, error)
	CreateRateCounter(ctx context.Context, c *models.RateLimitCounter) error
	ResetRateCounter(ctx context.Context, id string, periodStart time.Time) error
	IncrementRateCounter(ctx context.Context, id string) error

	// Usage
	CreateUsageRecord(ctx context.Context, r *models.UsageRecord) error
	ListUsageRecords(ctx context.Context, scope string, from, to time.Time) ([]models.UsageRecord, error)
	ListUsageRecordsPage(ctx context.Context, scope string, limit, offset int) ([]models.UsageRecord, error)
	ListUsageScopes(ctx context.Context, from, to time.Time) ([]string, error)
	UpsertUsageSummary(ctx context.Context, s *models.UsageSummary) error
	GetUsageSummary(ctx context.Context, scope string, period models.RatePeriod, windowStart time.Time) (*models.UsageSummary, error)
	ListUsageSummaries(ctx context.Context, scope string, period models.RatePeriod, limit int) ([]models.UsageSummary, error)

	// Stats
	GetWebhookStats(ctx context.Context, accountID string) (*WebhookStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type WebhookStats struct {
	TotalWebhooks  int64   `json:"total_webhooks"`
	ActiveWebhooks int64   `json:"active_webhooks"`
	TotalTriggers  int64   `json:"total_triggers"`
	TotalAttempts  int64   `json:"total_attempts"`
	SuccessCount   int64   `json:"success_count"`
	FailedCount    int64   `json:"failed_count"`
	PendingCount   int64   `json:"pending_count"`
	SuccessRate    float64 `json:"success_rate"`
}
