package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vantagecrm/hookd/internal/dispatch"
	"github.com/vantagecrm/hookd/internal/events"
	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/storage"
)

type EventHandler struct {
	store      storage.Storage
	dispatcher *dispatch.Dispatcher
}

func NewEventHandler(store storage.Storage, dispatcher *dispatch.Dispatcher) *EventHandler {
	return &EventHandler{store: store, dispatcher: dispatcher}
}

// Definitions lists the static event catalog.
func (h *EventHandler) Definitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.All())
}

type emitRequest struct {
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}

// Emit is the producer coupling point: the CRM's CRUD layer posts entity
// mutations here and the dispatcher fans them out.
func (h *EventHandler) Emit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]interface{}{}
	}

	evt, err := h.dispatcher.Emit(r.Context(), req.Event, req.Payload)
	if err != nil {
		if errors.Is(err, events.ErrUnknownEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to emit event")
		return
	}
	writeJSON(w, http.StatusAccepted, evt)
}

// History lists recently emitted events.
func (h *EventHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	evts, err := h.store.ListEvents(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if evts == nil {
		evts = []models.Event{}
	}
	writeJSON(w, http.StatusOK, evts)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
