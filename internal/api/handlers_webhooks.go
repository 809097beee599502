package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vantagecrm/hookd/internal/conditions"
	"github.com/vantagecrm/hookd/internal/dispatch"
	"github.com/vantagecrm/hookd/internal/events"
	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/storage"
)

type WebhookHandler struct {
	store      storage.Storage
	dispatcher *dispatch.Dispatcher
}

func NewWebhookHandler(store storage.Storage, dispatcher *dispatch.Dispatcher) *WebhookHandler {
	return &WebhookHandler{store: store, dispatcher: dispatcher}
}

type webhookRequest struct {
	Name               string              `json:"name"`
	URL                string              `json:"url"`
	Method             string              `json:"method"`
	Events             []string            `json:"events"`
	AuthType           string              `json:"auth_type"`
	AuthConfig         map[string]string   `json:"auth_config"`
	Headers            map[string]string   `json:"headers"`
	PayloadTemplate    string              `json:"payload_template"`
	IncludeFullPayload *bool               `json:"include_full_payload"`
	Conditions         []models.Condition  `json:"conditions"`
	Retry              *models.RetryPolicy `json:"retry"`
	Active             *bool               `json:"active"`
}

// validate enforces everything that must be rejected synchronously so it
// never reaches dispatch: unknown events, malformed URLs, bad operators.
func (req *webhookRequest) validate() error {
	if req.URL == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("url must be a valid HTTP or HTTPS URL")
	}
	if len(req.Events) == 0 {
		return errors.New("at least one event subscription is required")
	}
	if err := events.Validate(req.Events); err != nil {
		return err
	}
	switch req.Method {
	case "", http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return fmt.Errorf("unsupported method: %s", req.Method)
	}
	switch models.AuthType(req.AuthType) {
	case "", models.AuthNone, models.AuthBasic, models.AuthBearer, models.AuthAPIKey, models.AuthHMAC:
	default:
		return fmt.Errorf("unsupported auth type: %s", req.AuthType)
	}
	for _, c := range req.Conditions {
		if c.Field == "" {
			return errors.New("condition field is required")
		}
		if !conditions.ValidOperator(c.Operator) {
			return fmt.Errorf("unsupported condition operator: %s", c.Operator)
		}
	}
	if req.Retry != nil {
		if req.Retry.MaxRetries < 0 || req.Retry.MaxRetries > 10 {
			return errors.New("max_retries must be between 0 and 10")
		}
		if req.Retry.DelaySeconds < 0 || req.Retry.DelaySeconds > 86400 {
			return errors.New("delay_seconds must be between 0 and 86400")
		}
	}
	return nil
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	wh := &models.Webhook{
		ID:                 models.NewID("wh"),
		AccountID:          acc.ID,
		Name:               req.Name,
		URL:                req.URL,
		Method:             req.Method,
		Events:             req.Events,
		AuthType:           models.AuthType(req.AuthType),
		AuthConfig:         req.AuthConfig,
		Headers:            req.Headers,
		PayloadTemplate:    req.PayloadTemplate,
		IncludeFullPayload: true,
		Conditions:         req.Conditions,
		Retry:              models.RetryPolicy{Enabled: true, MaxRetries: 3, DelaySeconds: 60},
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if wh.Method == "" {
		wh.Method = http.MethodPost
	}
	if wh.AuthType == "" {
		wh.AuthType = models.AuthNone
	}
	if wh.AuthType == models.AuthHMAC && wh.AuthConfig["secret"] == "" {
		if wh.AuthConfig == nil {
			wh.AuthConfig = map[string]string{}
		}
		wh.AuthConfig["secret"] = models.NewSecret()
	}
	if req.Retry != nil {
		wh.Retry = *req.Retry
	}
	if req.Active != nil {
		wh.Active = *req.Active
	}

	if err := h.store.CreateWebhook(r.Context(), wh); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

func (h *WebhookHandler) owned(w http.ResponseWriter, r *http.Request) *models.Webhook {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}
	id := chi.URLParam(r, "id")
	wh, err := h.store.GetWebhook(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get webhook")
		return nil
	}
	if wh == nil || wh.AccountID != acc.ID {
		writeError(w, http.StatusNotFound, "webhook not found")
		return nil
	}
	return wh
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	wh := h.owned(w, r)
	if wh == nil {
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	hooks, err := h.store.ListWebhooks(r.Context(), acc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	if hooks == nil {
		hooks = []models.Webhook{}
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	wh := h.owned(w, r)
	if wh == nil {
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		req.URL = wh.URL
	}
	if req.Events == nil {
		req.Events = wh.Events
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wh.Name = req.Name
	wh.URL = req.URL
	if req.Method != "" {
		wh.Method = req.Method
	}
	wh.Events = req.Events
	if req.AuthType != "" {
		wh.AuthType = models.AuthType(req.AuthType)
	}
	if req.AuthConfig != nil {
		wh.AuthConfig = req.AuthConfig
	}
	if req.Headers != nil {
		wh.Headers = req.Headers
	}
	wh.PayloadTemplate = req.PayloadTemplate
	if req.Conditions != nil {
		wh.Conditions = req.Conditions
	}
	if req.Retry != nil {
		wh.Retry = *req.Retry
	}
	if req.Active != nil {
		wh.Active = *req.Active
	}

	if err := h.store.UpdateWebhook(r.Context(), wh); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update webhook")
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	wh := h.owned(w, r)
	if wh == nil {
		return
	}
	if err := h.store.DeleteWebhook(r.Context(), wh.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete webhook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	wh := h.owned(w, r)
	if wh == nil {
		return
	}

	newActive := !wh.Active
	if err := h.store.ToggleWebhook(r.Context(), wh.ID, newActive); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle webhook")
		return
	}

	wh.Active = newActive
	writeJSON(w, http.StatusOK, wh)
}

// Test fires a synthetic delivery through the regular pipeline so the
// configured auth, headers, and template are exercised for real.
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	wh := h.owned(w, r)
	if wh == nil {
		return
	}

	attempt, err := h.dispatcher.Test(r.Context(), wh)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue test delivery")
		return
	}
	writeJSON(w, http.StatusAccepted, attempt)
}

func (h *WebhookHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	wh := h.owned(w, r)
	if wh == nil {
		return
	}

	limit, offset := pagination(r)
	attempts, err := h.store.ListAttemptsByWebhook(r.Context(), wh.ID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if attempts == nil {
		attempts = []models.DeliveryAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}
