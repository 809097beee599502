package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vantagecrm/hookd/internal/dispatch"
	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/storage"
)

type DeliveryHandler struct {
	store      storage.Storage
	dispatcher *dispatch.Dispatcher
}

func NewDeliveryHandler(store storage.Storage, dispatcher *dispatch.Dispatcher) *DeliveryHandler {
	return &DeliveryHandler{store: store, dispatcher: dispatcher}
}

// owned loads an attempt and checks it belongs to a webhook of the
// calling account.
func (h *DeliveryHandler) owned(w http.ResponseWriter, r *http.Request) *models.DeliveryAttempt {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}
	id := chi.URLParam(r, "id")
	a, err := h.store.GetAttempt(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get delivery attempt")
		return nil
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "delivery attempt not found")
		return nil
	}
	wh, err := h.store.GetWebhook(r.Context(), a.WebhookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get webhook")
		return nil
	}
	if wh == nil || wh.AccountID != acc.ID {
		writeError(w, http.StatusNotFound, "delivery attempt not found")
		return nil
	}
	return a
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	a := h.owned(w, r)
	if a == nil {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Chain lists every attempt made for the same event and webhook chain.
func (h *DeliveryHandler) Chain(w http.ResponseWriter, r *http.Request) {
	a := h.owned(w, r)
	if a == nil {
		return
	}
	attempts, err := h.store.ListAttemptsByEvent(r.Context(), a.EventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	chain := attempts[:0]
	for _, att := range attempts {
		if att.WebhookID == a.WebhookID {
			chain = append(chain, att)
		}
	}
	writeJSON(w, http.StatusOK, chain)
}

// Retry re-queues a terminally failed attempt as a fresh pending one.
func (h *DeliveryHandler) Retry(w http.ResponseWriter, r *http.Request) {
	a := h.owned(w, r)
	if a == nil {
		return
	}

	next, err := h.dispatcher.Requeue(r.Context(), a.ID)
	if err != nil {
		if errors.Is(err, dispatch.ErrNotRetryable) || errors.Is(err, dispatch.ErrChainActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to retry delivery")
		return
	}
	writeJSON(w, http.StatusAccepted, next)
}
