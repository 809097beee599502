package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vantagecrm/hookd/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT 'POST',
			events TEXT NOT NULL DEFAULT '[]',
			auth_type TEXT NOT NULL DEFAULT 'none',
			auth_config TEXT NOT NULL DEFAULT '{}',
			headers TEXT NOT NULL DEFAULT '{}',
			payload_template TEXT NOT NULL DEFAULT '',
			include_full_payload INTEGER NOT NULL DEFAULT 1,
			conditions TEXT NOT NULL DEFAULT '[]',
			retry_enabled INTEGER NOT NULL DEFAULT 1,
			max_retries INTEGER NOT NULL DEFAULT 3,
			retry_delay_seconds INTEGER NOT NULL DEFAULT 60,
			active INTEGER NOT NULL DEFAULT 1,
			total_triggers INTEGER NOT NULL DEFAULT 0,
			successful_deliveries INTEGER NOT NULL DEFAULT 0,
			failed_deliveries INTEGER NOT NULL DEFAULT 0,
			last_triggered_at DATETIME,
			last_success_at DATETIME,
			last_failure_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS delivery_attempts (
			id TEXT PRIMARY KEY,
			webhook_id TEXT NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
			event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			event_name TEXT NOT NULL,
			attempt_number INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			request_url TEXT NOT NULL DEFAULT '',
			request_method TEXT NOT NULL DEFAULT 'POST',
			request_headers TEXT NOT NULL DEFAULT '{}',
			request_body TEXT NOT NULL DEFAULT '',
			response_status INTEGER NOT NULL DEFAULT 0,
			response_headers TEXT NOT NULL DEFAULT '{}',
			response_body TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			scheduled_at DATETIME NOT NULL,
			completed_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS rate_limit_counters (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			limit_count INTEGER NOT NULL,
			period TEXT NOT NULL,
			burst_limit INTEGER NOT NULL DEFAULT 0,
			current_count INTEGER NOT NULL DEFAULT 0,
			period_start DATETIME NOT NULL,
			exceeded INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(scope, endpoint)
		)`,
		`CREATE TABLE IF NOT EXISTS usage_records (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			rate_limited INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS usage_summaries (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			period TEXT NOT NULL,
			window_start DATETIME NOT NULL,
			total_requests INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			failed_count INTEGER NOT NULL DEFAULT 0,
			rate_limited_count INTEGER NOT NULL DEFAULT 0,
			min_latency_ms INTEGER NOT NULL DEFAULT 0,
			avg_latency_ms REAL NOT NULL DEFAULT 0,
			max_latency_ms INTEGER NOT NULL DEFAULT 0,
			by_endpoint TEXT NOT NULL DEFAULT '{}',
			by_status_code TEXT NOT NULL DEFAULT '{}',
			computed_at DATETIME NOT NULL,
			UNIQUE(scope, period, window_start)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_api_key ON accounts(api_key)`,
		`CREATE INDEX IF NOT EXISTS idx_webhooks_account ON webhooks(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_webhook ON delivery_attempts(webhook_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_event ON delivery_attempts(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_due ON delivery_attempts(status, scheduled_at) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_counters_scope ON rate_limit_counters(scope, endpoint)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_scope_time ON usage_records(scope, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_scope ON usage_summaries(scope, period, window_start)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Accounts ---

func (s *SQLiteStorage) CreateAccount(ctx context.Context, acc *models.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, api_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		acc.ID, acc.Name, acc.APIKey, acc.CreatedAt, acc.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM accounts WHERE id = ?`, id,
	).Scan(&acc.ID, &acc.Name, &acc.APIKey, &acc.CreatedAt, &acc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &acc, err
}

func (s *SQLiteStorage) GetAccountByAPIKey(ctx context.Context, apiKey string) (*models.Account, error) {
	var acc models.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM accounts WHERE api_key = ?`, apiKey,
	).Scan(&acc.ID, &acc.Name, &acc.APIKey, &acc.CreatedAt, &acc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &acc, err
}

func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accs []models.Account
	for rows.Next() {
		var acc models.Account
		if err := rows.Scan(&acc.ID, &acc.Name, &acc.APIKey, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, err
		}
		accs = append(accs, acc)
	}
	return accs, rows.Err()
}

func (s *SQLiteStorage) DeleteAccount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) UpdateAccountAPIKey(ctx context.Context, id, newKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET api_key = ?, updated_at = ? WHERE id = ?`,
		newKey, time.Now().UTC(), id,
	)
	return err
}

// --- Webhooks ---

const webhookColumns = `id, account_id, name, url, method, events, auth_type, auth_config, headers,
	payload_template, include_full_payload, conditions, retry_enabled, max_retries, retry_delay_seconds,
	active, total_triggers, successful_deliveries, failed_deliveries,
	last_triggered_at, last_success_at, last_failure_at, created_at, updated_at`

func (s *SQLiteStorage) CreateWebhook(ctx context.Context, wh *models.Webhook) error {
	events, _ := json.Marshal(wh.Events)
	authConfig, _ := json.Marshal(wh.AuthConfig)
	headers, _ := json.Marshal(wh.Headers)
	conds, _ := json.Marshal(wh.Conditions)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhooks (`+webhookColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wh.ID, wh.AccountID, wh.Name, wh.URL, wh.Method, string(events), string(wh.AuthType),
		string(authConfig), string(headers), wh.PayloadTemplate, boolToInt(wh.IncludeFullPayload),
		string(conds), boolToInt(wh.Retry.Enabled), wh.Retry.MaxRetries, wh.Retry.DelaySeconds,
		boolToInt(wh.Active), wh.TotalTriggers, wh.SuccessfulDeliveries, wh.FailedDeliveries,
		wh.LastTriggeredAt, wh.LastSuccessAt, wh.LastFailureAt, wh.CreatedAt, wh.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanWebhook(row interface{ Scan(...interface{}) error }) (*models.Webhook, error) {
	var wh models.Webhook
	var events, authConfig, headers, conds, authType string
	var includeFull, retryEnabled, active int
	err := row.Scan(&wh.ID, &wh.AccountID, &wh.Name, &wh.URL, &wh.Method, &events, &authType,
		&authConfig, &headers, &wh.PayloadTemplate, &includeFull, &conds,
		&retryEnabled, &wh.Retry.MaxRetries, &wh.Retry.DelaySeconds,
		&active, &wh.TotalTriggers, &wh.SuccessfulDeliveries, &wh.FailedDeliveries,
		&wh.LastTriggeredAt, &wh.LastSuccessAt, &wh.LastFailureAt, &wh.CreatedAt, &wh.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(events), &wh.Events)
	json.Unmarshal([]byte(authConfig), &wh.AuthConfig)
	json.Unmarshal([]byte(headers), &wh.Headers)
	json.Unmarshal([]byte(conds), &wh.Conditions)
	wh.AuthType = models.AuthType(authType)
	wh.IncludeFullPayload = includeFull == 1
	wh.Retry.Enabled = retryEnabled == 1
	wh.Active = active == 1
	return &wh, nil
}

func (s *SQLiteStorage) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)
	wh, err := s.scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return wh, err
}

func (s *SQLiteStorage) ListWebhooks(ctx context.Context, accountID string) ([]models.Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE account_id = ? ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []models.Webhook
	for rows.Next() {
		wh, err := s.scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, *wh)
	}
	return hooks, rows.Err()
}

func (s *SQLiteStorage) UpdateWebhook(ctx context.Context, wh *models.Webhook) error {
	events, _ := json.Marshal(wh.Events)
	authConfig, _ := json.Marshal(wh.AuthConfig)
	headers, _ := json.Marshal(wh.Headers)
	conds, _ := json.Marshal(wh.Conditions)
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET name = ?, url = ?, method = ?, events = ?, auth_type = ?, auth_config = ?,
		 headers = ?, payload_template = ?, include_full_payload = ?, conditions = ?,
		 retry_enabled = ?, max_retries = ?, retry_delay_seconds = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		wh.Name, wh.URL, wh.Method, string(events), string(wh.AuthType), string(authConfig),
		string(headers), wh.PayloadTemplate, boolToInt(wh.IncludeFullPayload), string(conds),
		boolToInt(wh.Retry.Enabled), wh.Retry.MaxRetries, wh.Retry.DelaySeconds,
		boolToInt(wh.Active), time.Now().UTC(), wh.ID,
	)
	return err
}

func (s *SQLiteStorage) DeleteWebhook(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) ToggleWebhook(ctx context.Context, id string, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC(), id)
	return err
}

func (s *SQLiteStorage) ListActiveWebhooksByEvent(ctx context.Context, event string) ([]models.Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []models.Webhook
	for rows.Next() {
		wh, err := s.scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		if wh.SubscribedTo(event) {
			hooks = append(hooks, *wh)
		}
	}
	return hooks, rows.Err()
}

func (s *SQLiteStorage) IncrementTriggerCount(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET total_triggers = total_triggers + 1, last_triggered_at = ?, updated_at = ? WHERE id = ?`,
		at, at, id)
	return err
}

func (s *SQLiteStorage) RecordDeliveryOutcome(ctx context.Context, id string, success bool, at time.Time) error {
	if success {
		_, err := s.db.ExecContext(ctx,
			`UPDATE webhooks SET successful_deliveries = successful_deliveries + 1, last_success_at = ?, updated_at = ? WHERE id = ?`,
			at, at, id)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET failed_deliveries = failed_deliveries + 1, last_failure_at = ?, updated_at = ? WHERE id = ?`,
		at, at, id)
	return err
}

// --- Events ---

func (s *SQLiteStorage) CreateEvent(ctx context.Context, e *models.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, name, payload, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Name, string(e.Payload), e.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var e models.Event
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, payload, created_at FROM events WHERE id = ?`, id,
	).Scan(&e.ID, &e.Name, &payload, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	e.Payload = json.RawMessage(payload)
	return &e, err
}

func (s *SQLiteStorage) ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, payload, created_at FROM events ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evts []models.Event
	for rows.Next() {
		var e models.Event
		var payload string
		if err := rows.Scan(&e.ID, &e.Name, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		evts = append(evts, e)
	}
	return evts, rows.Err()
}

// --- Delivery attempts ---

const attemptColumns = `id, webhook_id, event_id, event_name, attempt_number, status,
	request_url, request_method, request_headers, request_body,
	response_status, response_headers, response_body, error, duration_ms,
	scheduled_at, completed_at, created_at`

func (s *SQLiteStorage) CreateAttempt(ctx context.Context, a *models.DeliveryAttempt) error {
	reqHeaders, _ := json.Marshal(a.RequestHeaders)
	respHeaders, _ := json.Marshal(a.ResponseHeaders)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_attempts (`+attemptColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.WebhookID, a.EventID, a.EventName, a.AttemptNumber, string(a.Status),
		a.RequestURL, a.RequestMethod, string(reqHeaders), a.RequestBody,
		a.ResponseStatus, string(respHeaders), a.ResponseBody, a.Error, a.DurationMs,
		a.ScheduledAt, a.CompletedAt, a.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanAttempt(row interface{ Scan(...interface{}) error }) (*models.DeliveryAttempt, error) {
	var a models.DeliveryAttempt
	var status, reqHeaders, respHeaders string
	err := row.Scan(&a.ID, &a.WebhookID, &a.EventID, &a.EventName, &a.AttemptNumber, &status,
		&a.RequestURL, &a.RequestMethod, &reqHeaders, &a.RequestBody,
		&a.ResponseStatus, &respHeaders, &a.ResponseBody, &a.Error, &a.DurationMs,
		&a.ScheduledAt, &a.CompletedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = models.AttemptStatus(status)
	json.Unmarshal([]byte(reqHeaders), &a.RequestHeaders)
	json.Unmarshal([]byte(respHeaders), &a.ResponseHeaders)
	return &a, nil
}

func (s *SQLiteStorage) GetAttempt(ctx context.Context, id string) (*models.DeliveryAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM delivery_attempts WHERE id = ?`, id)
	a, err := s.scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStorage) ListAttemptsByWebhook(ctx context.Context, webhookID string, limit, offset int) ([]models.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE webhook_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		webhookID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows, s)
}

func (s *SQLiteStorage) ListAttemptsByEvent(ctx context.Context, eventID string) ([]models.DeliveryAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE event_id = ? ORDER BY attempt_number`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows, s)
}

func (s *SQLiteStorage) ListDueAttempts(ctx context.Context, now time.Time, limit int) ([]models.DeliveryAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts
		 WHERE status = 'pending' AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC LIMIT ?`,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows, s)
}

func collectAttempts(rows *sql.Rows, s *SQLiteStorage) ([]models.DeliveryAttempt, error) {
	var attempts []models.DeliveryAttempt
	for rows.Next() {
		a, err := s.scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func (s *SQLiteStorage) FinalizeAttempt(ctx context.Context, a *models.DeliveryAttempt) error {
	reqHeaders, _ := json.Marshal(a.RequestHeaders)
	respHeaders, _ := json.Marshal(a.ResponseHeaders)
	_, err := s.db.ExecContext(ctx,
		`UPDATE delivery_attempts SET status = ?, request_headers = ?, request_body = ?,
		 response_status = ?, response_headers = ?, response_body = ?, error = ?, duration_ms = ?,
		 completed_at = ?
		 WHERE id = ? AND status = 'pending'`,
		string(a.Status), string(reqHeaders), a.RequestBody,
		a.ResponseStatus, string(respHeaders), a.ResponseBody, a.Error, a.DurationMs,
		a.CompletedAt, a.ID,
	)
	return err
}

// --- Rate limit counters ---

func (s *SQLiteStorage) GetRateCounter(ctx context.Context, scope, endpoint string) (*models.RateLimitCounter, error) {
	var c models.RateLimitCounter
	var period string
	var exceeded int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, scope, endpoint, limit_count, period, burst_limit, current_count, period_start, exceeded, updated_at
		 FROM rate_limit_counters WHERE scope = ? AND endpoint = ?`, scope, endpoint,
	).Scan(&c.ID, &c.Scope, &c.Endpoint, &c.Limit, &period, &c.BurstLimit, &c.CurrentCount, &c.PeriodStart, &exceeded, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Period = models.RatePeriod(period)
	c.Exceeded = exceeded == 1
	return &c, nil
}

func (s *SQLiteStorage) CreateRateCounter(ctx context.Context, c *models.RateLimitCounter) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limit_counters (id, scope, endpoint, limit_count, period, burst_limit, current_count, period_start, exceeded, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(scope, endpoint) DO NOTHING`,
		c.ID, c.Scope, c.Endpoint, c.Limit, string(c.Period), c.BurstLimit, c.CurrentCount,
		c.PeriodStart, boolToInt(c.Exceeded), c.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) ResetRateCounter(ctx context.Context, id string, periodStart time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rate_limit_counters SET current_count = 0, exceeded = 0, period_start = ?, updated_at = ? WHERE id = ?`,
		periodStart, periodStart, id)
	return err
}

// IncrementRateCounter bumps the counter and flips exceeded in one
// statement so concurrent requests cannot both observe the last slot.
func (s *SQLiteStorage) IncrementRateCounter(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rate_limit_counters
		 SET current_count = current_count + 1,
		     exceeded = CASE WHEN current_count + 1 >= limit_count THEN 1 ELSE 0 END,
		     updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(), id)
	return err
}

// --- Usage ---

func (s *SQLiteStorage) CreateUsageRecord(ctx context.Context, r *models.UsageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, scope, endpoint, method, status_code, latency_ms, rate_limited, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Scope, r.Endpoint, r.Method, r.StatusCode, r.LatencyMs, boolToInt(r.RateLimited), r.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) ListUsageRecords(ctx context.Context, scope string, from, to time.Time) ([]models.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, endpoint, method, status_code, latency_ms, rate_limited, created_at
		 FROM usage_records WHERE scope = ? AND created_at >= ? AND created_at < ? ORDER BY created_at`,
		scope, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsageRecords(rows)
}

func (s *SQLiteStorage) ListUsageRecordsPage(ctx context.Context, scope string, limit, offset int) ([]models.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, endpoint, method, status_code, latency_ms, rate_limited, created_at
		 FROM usage_records WHERE scope = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		scope, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsageRecords(rows)
}

func collectUsageRecords(rows *sql.Rows) ([]models.UsageRecord, error) {
	var recs []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var rateLimited int
		if err := rows.Scan(&r.ID, &r.Scope, &r.Endpoint, &r.Method, &r.StatusCode, &r.LatencyMs, &rateLimited, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.RateLimited = rateLimited == 1
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStorage) ListUsageScopes(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT scope FROM usage_records WHERE created_at >= ? AND created_at < ?`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var sc string
		if err := rows.Scan(&sc); err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}

func (s *SQLiteStorage) UpsertUsageSummary(ctx context.Context, sum *models.UsageSummary) error {
	byEndpoint, _ := json.Marshal(sum.ByEndpoint)
	byStatus, _ := json.Marshal(sum.ByStatusCode)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_summaries (id, scope, period, window_start, total_requests, success_count,
		 failed_count, rate_limited_count, min_latency_ms, avg_latency_ms, max_latency_ms,
		 by_endpoint, by_status_code, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(scope, period, window_start) DO UPDATE SET
		   total_requests = excluded.total_requests,
		   success_count = excluded.success_count,
		   failed_count = excluded.failed_count,
		   rate_limited_count = excluded.rate_limited_count,
		   min_latency_ms = excluded.min_latency_ms,
		   avg_latency_ms = excluded.avg_latency_ms,
		   max_latency_ms = excluded.max_latency_ms,
		   by_endpoint = excluded.by_endpoint,
		   by_status_code = excluded.by_status_code,
		   computed_at = excluded.computed_at`,
		sum.ID, sum.Scope, string(sum.Period), sum.WindowStart, sum.TotalRequests, sum.SuccessCount,
		sum.FailedCount, sum.RateLimitedCount, sum.MinLatencyMs, sum.AvgLatencyMs, sum.MaxLatencyMs,
		string(byEndpoint), string(byStatus), sum.ComputedAt,
	)
	return err
}

func (s *SQLiteStorage) scanSummary(row interface{ Scan(...interface{}) error }) (*models.UsageSummary, error) {
	var sum models.UsageSummary
	var period, byEndpoint, byStatus string
	err := row.Scan(&sum.ID, &sum.Scope, &period, &sum.WindowStart, &sum.TotalRequests, &sum.SuccessCount,
		&sum.FailedCount, &sum.RateLimitedCount, &sum.MinLatencyMs, &sum.AvgLatencyMs, &sum.MaxLatencyMs,
		&byEndpoint, &byStatus, &sum.ComputedAt)
	if err != nil {
		return nil, err
	}
	sum.Period = models.RatePeriod(period)
	json.Unmarshal([]byte(byEndpoint), &sum.ByEndpoint)
	json.Unmarshal([]byte(byStatus), &sum.ByStatusCode)
	return &sum, nil
}

const summaryColumns = `id, scope, period, window_start, total_requests, success_count, failed_count,
	rate_limited_count, min_latency_ms, avg_latency_ms, max_latency_ms, by_endpoint, by_status_code, computed_at`

func (s *SQLiteStorage) GetUsageSummary(ctx context.Context, scope string, period models.RatePeriod, windowStart time.Time) (*models.UsageSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM usage_summaries WHERE scope = ? AND period = ? AND window_start = ?`,
		scope, string(period), windowStart)
	sum, err := s.scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sum, err
}

func (s *SQLiteStorage) ListUsageSummaries(ctx context.Context, scope string, period models.RatePeriod, limit int) ([]models.UsageSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM usage_summaries WHERE scope = ? AND period = ? ORDER BY window_start DESC LIMIT ?`,
		scope, string(period), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sums []models.UsageSummary
	for rows.Next() {
		sum, err := s.scanSummary(rows)
		if err != nil {
			return nil, err
		}
		sums = append(sums, *sum)
	}
	return sums, rows.Err()
}

// --- Stats ---

func (s *SQLiteStorage) GetWebhookStats(ctx context.Context, accountID string) (*WebhookStats, error) {
	stats := &WebhookStats{}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhooks WHERE account_id = ?`, accountID).Scan(&stats.TotalWebhooks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhooks WHERE account_id = ? AND active = 1`, accountID).Scan(&stats.ActiveWebhooks)
	s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_triggers), 0) FROM webhooks WHERE account_id = ?`, accountID).Scan(&stats.TotalTriggers)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN webhooks w ON a.webhook_id = w.id WHERE w.account_id = ?`, accountID).Scan(&stats.TotalAttempts)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN webhooks w ON a.webhook_id = w.id WHERE w.account_id = ? AND a.status = 'success'`, accountID).Scan(&stats.SuccessCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN webhooks w ON a.webhook_id = w.id WHERE w.account_id = ? AND a.status = 'failed'`, accountID).Scan(&stats.FailedCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN webhooks w ON a.webhook_id = w.id WHERE w.account_id = ? AND a.status = 'pending'`, accountID).Scan(&stats.PendingCount)

	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalAttempts) * 100
	}

	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
