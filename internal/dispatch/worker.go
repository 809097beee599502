package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantagecrm/hookd/internal/metrics"
	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/render"
	"github.com/vantagecrm/hookd/internal/signing"
	"github.com/vantagecrm/hookd/internal/storage"
)

// Worker drives one pending attempt through render, sign, deliver, and
// outcome recording. Failures inside Process never propagate: every path
// ends in a finalized attempt row.
type Worker struct {
	store    storage.Storage
	executor *Executor
	renderer render.Renderer
	log      zerolog.Logger
}

func NewWorker(store storage.Storage, executor *Executor, renderer render.Renderer, log zerolog.Logger) *Worker {
	return &Worker{
		store:    store,
		executor: executor,
		renderer: renderer,
		log:      log,
	}
}

func (w *Worker) Process(ctx context.Context, a models.DeliveryAttempt) {
	wh, err := w.store.GetWebhook(ctx, a.WebhookID)
	if err != nil {
		// Transient store error: leave the attempt pending so the next
		// poll picks it up again.
		w.log.Error().Err(err).Str("attempt_id", a.ID).Msg("failed to load webhook for attempt")
		return
	}
	if wh == nil {
		w.failTerminal(ctx, &a, nil, "webhook no longer exists")
		return
	}

	evt, err := w.store.GetEvent(ctx, a.EventID)
	if err != nil {
		w.log.Error().Err(err).Str("attempt_id", a.ID).Msg("failed to load event for attempt")
		return
	}
	if evt == nil {
		w.failTerminal(ctx, &a, wh, "event no longer exists")
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		w.failTerminal(ctx, &a, wh, "malformed event payload")
		return
	}

	body := render.Body(w.renderer, wh.PayloadTemplate, payload)

	headers, err := signing.BuildHeaders(wh, evt.Name, body)
	if err != nil {
		// Signing failures are terminal for this webhook only; siblings
		// for the same event still run.
		w.log.Warn().Err(err).
			Str("webhook_id", wh.ID).
			Str("attempt_id", a.ID).
			Msg("signing failed, attempt terminally failed")
		a.RequestBody = truncate(string(body), maxSnapshot)
		w.failTerminal(ctx, &a, wh, err.Error())
		return
	}

	result := w.executor.Do(ctx, a.RequestMethod, a.RequestURL, headers, body)
	metrics.DeliveryDuration.Observe(float64(result.DurationMs) / 1000)

	now := time.Now().UTC()
	a.RequestHeaders = headers
	a.RequestBody = truncate(string(body), maxSnapshot)
	a.ResponseStatus = result.StatusCode
	a.ResponseHeaders = result.Headers
	a.ResponseBody = truncate(result.Body, maxSnapshot)
	a.Error = result.Err
	a.DurationMs = result.DurationMs
	a.CompletedAt = &now

	if result.Success() {
		a.Status = models.AttemptSuccess
		w.finalize(ctx, &a)
		w.recordOutcome(ctx, wh.ID, true, now)
		metrics.Deliveries.WithLabelValues("success").Inc()
		w.log.Info().
			Str("attempt_id", a.ID).
			Str("webhook_id", wh.ID).
			Int("status_code", result.StatusCode).
			Int64("duration_ms", result.DurationMs).
			Msg("delivery succeeded")
		return
	}

	a.Status = models.AttemptFailed
	if a.Error == "" {
		a.Error = fmt.Sprintf("HTTP %d", result.StatusCode)
	}
	w.finalize(ctx, &a)

	if ShouldRetry(wh.Retry, a.AttemptNumber) {
		next := models.DeliveryAttempt{
			ID:            models.NewID("att"),
			WebhookID:     a.WebhookID,
			EventID:       a.EventID,
			EventName:     a.EventName,
			AttemptNumber: a.AttemptNumber + 1,
			Status:        models.AttemptPending,
			RequestURL:    a.RequestURL,
			RequestMethod: a.RequestMethod,
			ScheduledAt:   NextRun(now, wh.Retry),
			CreatedAt:     now,
		}
		if err := w.store.CreateAttempt(ctx, &next); err != nil {
			w.log.Error().Err(err).Str("attempt_id", a.ID).Msg("failed to schedule retry")
			w.recordOutcome(ctx, wh.ID, false, now)
			metrics.Deliveries.WithLabelValues("failed").Inc()
			return
		}
		metrics.Deliveries.WithLabelValues("retried").Inc()
		w.log.Info().
			Str("attempt_id", a.ID).
			Str("webhook_id", wh.ID).
			Int("attempt", a.AttemptNumber).
			Time("next_run", next.ScheduledAt).
			Str("error", a.Error).
			Msg("delivery failed, retry scheduled")
		return
	}

	// Terminal failure: the aggregate counter moves exactly once per
	// dispatch chain, here at exhaustion.
	w.recordOutcome(ctx, wh.ID, false, now)
	metrics.Deliveries.WithLabelValues("failed").Inc()
	w.log.Warn().
		Str("attempt_id", a.ID).
		Str("webhook_id", wh.ID).
		Int("attempts", a.AttemptNumber).
		Str("error", a.Error).
		Msg("delivery permanently failed")
}

func (w *Worker) failTerminal(ctx context.Context, a *models.DeliveryAttempt, wh *models.Webhook, msg string) {
	now := time.Now().UTC()
	a.Status = models.AttemptFailed
	a.Error = msg
	a.CompletedAt = &now
	w.finalize(ctx, a)
	if wh != nil {
		w.recordOutcome(ctx, wh.ID, false, now)
	}
	metrics.Deliveries.WithLabelValues("failed").Inc()
}

func (w *Worker) finalize(ctx context.Context, a *models.DeliveryAttempt) {
	if err := w.store.FinalizeAttempt(ctx, a); err != nil {
		w.log.Error().Err(err).Str("attempt_id", a.ID).Msg("failed to finalize attempt")
	}
}

func (w *Worker) recordOutcome(ctx context.Context, webhookID string, success bool, at time.Time) {
	if err := w.store.RecordDeliveryOutcome(ctx, webhookID, success, at); err != nil {
		w.log.Error().Err(err).Str("webhook_id", webhookID).Msg("failed to update webhook counters")
	}
}
