// Package dispatch orchestrates webhook delivery: matching emitted events
// to subscribed webhooks, evaluating trigger conditions, and running the
// bounded worker pool that performs the outbound attempts.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vantagecrm/hookd/internal/conditions"
	"github.com/vantagecrm/hookd/internal/events"
	"github.com/vantagecrm/hookd/internal/metrics"
	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/render"
	"github.com/vantagecrm/hookd/internal/storage"
)

// ErrNotRetryable is returned when a manual retry targets an attempt that
// is not in a terminal failed state.
var ErrNotRetryable = errors.New("only failed attempts can be retried")

// ErrChainActive is returned when a manual retry targets a chain that
// already has a pending attempt scheduled.
var ErrChainActive = errors.New("a pending attempt already exists for this delivery")

// Dispatcher is the producer-facing entry point. Emit never performs
// network I/O: it validates, persists the event, and enqueues pending
// attempts for the pool to deliver.
type Dispatcher struct {
	store    storage.Storage
	renderer render.Renderer
	log      zerolog.Logger
}

func NewDispatcher(store storage.Storage, renderer render.Renderer, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: store, renderer: renderer, log: log}
}

// Emit fans an event out to every active webhook subscribed to it.
// Webhooks whose conditions reject the payload are skipped without a
// delivery log row: a skip is not an attempt.
func (d *Dispatcher) Emit(ctx context.Context, name string, payload map[string]interface{}) (*models.Event, error) {
	if _, err := events.Lookup(name); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	now := time.Now().UTC()
	evt := &models.Event{
		ID:        models.NewID("evt"),
		Name:      name,
		Payload:   raw,
		CreatedAt: now,
	}
	if err := d.store.CreateEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("store event: %w", err)
	}

	hooks, err := d.store.ListActiveWebhooksByEvent(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list subscribed webhooks: %w", err)
	}

	enqueued := 0
	for i := range hooks {
		wh := &hooks[i]
		if !conditions.Evaluate(wh.Conditions, payload) {
			d.log.Debug().
				Str("webhook_id", wh.ID).
				Str("event", name).
				Msg("conditions not met, skipping webhook")
			continue
		}
		if err := d.enqueueFirstAttempt(ctx, wh, evt, now); err != nil {
			// One bad webhook must not starve its siblings.
			d.log.Error().Err(err).
				Str("webhook_id", wh.ID).
				Str("event", name).
				Msg("failed to enqueue delivery")
			continue
		}
		enqueued++
	}

	metrics.EventsEmitted.WithLabelValues(name).Inc()
	d.log.Info().
		Str("event_id", evt.ID).
		Str("event", name).
		Int("webhooks", enqueued).
		Msg("event emitted")
	return evt, nil
}

func (d *Dispatcher) enqueueFirstAttempt(ctx context.Context, wh *models.Webhook, evt *models.Event, now time.Time) error {
	attempt := &models.DeliveryAttempt{
		ID:            models.NewID("att"),
		WebhookID:     wh.ID,
		EventID:       evt.ID,
		EventName:     evt.Name,
		AttemptNumber: 1,
		Status:        models.AttemptPending,
		RequestURL:    wh.URL,
		RequestMethod: methodFor(wh),
		ScheduledAt:   now,
		CreatedAt:     now,
	}
	if err := d.store.CreateAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	// total_triggers counts dispatches, not retries: bumped only here.
	if err := d.store.IncrementTriggerCount(ctx, wh.ID, now); err != nil {
		return fmt.Errorf("increment trigger count: %w", err)
	}
	return nil
}

// Test enqueues a synthetic delivery for one webhook, bypassing its
// conditions so operators can verify the endpoint regardless of filters.
func (d *Dispatcher) Test(ctx context.Context, wh *models.Webhook) (*models.DeliveryAttempt, error) {
	now := time.Now().UTC()
	payload := map[string]interface{}{
		"webhook_id": wh.ID,
		"test_id":    uuid.New().String(),
		"timestamp":  now.Format(time.RFC3339),
	}
	raw, _ := json.Marshal(payload)

	evt := &models.Event{
		ID:        models.NewID("evt"),
		Name:      "webhook.test",
		Payload:   raw,
		CreatedAt: now,
	}
	if err := d.store.CreateEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("store test event: %w", err)
	}

	attempt := &models.DeliveryAttempt{
		ID:            models.NewID("att"),
		WebhookID:     wh.ID,
		EventID:       evt.ID,
		EventName:     evt.Name,
		AttemptNumber: 1,
		Status:        models.AttemptPending,
		RequestURL:    wh.URL,
		RequestMethod: methodFor(wh),
		ScheduledAt:   now,
		CreatedAt:     now,
	}
	if err := d.store.CreateAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create test attempt: %w", err)
	}
	if err := d.store.IncrementTriggerCount(ctx, wh.ID, now); err != nil {
		return nil, fmt.Errorf("increment trigger count: %w", err)
	}
	return attempt, nil
}

// Requeue schedules a fresh attempt for a terminally failed one. This is
// an operator override and counts as a new dispatch of the chain so the
// webhook's aggregate counters stay consistent. A chain only ever has one
// pending attempt: the requeue is rejected while a scheduled retry is
// outstanding, and the new attempt is numbered after the chain's last.
func (d *Dispatcher) Requeue(ctx context.Context, attemptID string) (*models.DeliveryAttempt, error) {
	prev, err := d.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if prev == nil {
		return nil, nil
	}
	if prev.Status != models.AttemptFailed {
		return nil, ErrNotRetryable
	}

	siblings, err := d.store.ListAttemptsByEvent(ctx, prev.EventID)
	if err != nil {
		return nil, fmt.Errorf("list chain attempts: %w", err)
	}
	last := prev.AttemptNumber
	for _, sib := range siblings {
		if sib.WebhookID != prev.WebhookID {
			continue
		}
		if sib.Status == models.AttemptPending {
			return nil, ErrChainActive
		}
		if sib.AttemptNumber > last {
			last = sib.AttemptNumber
		}
	}

	now := time.Now().UTC()
	next := &models.DeliveryAttempt{
		ID:            models.NewID("att"),
		WebhookID:     prev.WebhookID,
		EventID:       prev.EventID,
		EventName:     prev.EventName,
		AttemptNumber: last + 1,
		Status:        models.AttemptPending,
		RequestURL:    prev.RequestURL,
		RequestMethod: prev.RequestMethod,
		ScheduledAt:   now,
		CreatedAt:     now,
	}
	if err := d.store.CreateAttempt(ctx, next); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	if err := d.store.IncrementTriggerCount(ctx, prev.WebhookID, now); err != nil {
		return nil, fmt.Errorf("increment trigger count: %w", err)
	}
	return next, nil
}

func methodFor(wh *models.Webhook) string {
	if wh.Method == "" {
		return http.MethodPost
	}
	return wh.Method
}
