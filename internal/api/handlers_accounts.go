package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/storage"
)

type AccountHandler struct {
	store storage.Storage
}

func NewAccountHandler(store storage.Storage) *AccountHandler {
	return &AccountHandler{store: store}
}

type createAccountRequest struct {
	Name string `json:"name"`
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	acc := &models.Account{
		ID:        models.NewID("acc"),
		Name:      req.Name,
		APIKey:    models.NewAPIKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateAccount(r.Context(), acc); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	acc, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}
	if acc == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accs, err := h.store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	if accs == nil {
		accs = []models.Account{}
	}
	writeJSON(w, http.StatusOK, accs)
}

func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	acc, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}
	if acc == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	newKey := models.NewAPIKey()
	if err := h.store.UpdateAccountAPIKey(r.Context(), id, newKey); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rotate api key")
		return
	}

	acc.APIKey = newKey
	writeJSON(w, http.StatusOK, acc)
}
