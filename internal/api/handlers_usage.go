package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/storage"
	"github.com/vantagecrm/hookd/internal/usage"
)

type UsageHandler struct {
	store storage.Storage
	agg   *usage.Aggregator
}

func NewUsageHandler(store storage.Storage, agg *usage.Aggregator) *UsageHandler {
	return &UsageHandler{store: store, agg: agg}
}

func (h *UsageHandler) Records(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, offset := pagination(r)
	recs, err := h.store.ListUsageRecordsPage(r.Context(), acc.ID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list usage records")
		return
	}
	if recs == nil {
		recs = []models.UsageRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *UsageHandler) Summaries(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	period := models.RatePeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = models.PeriodHour
	}
	limit, _ := pagination(r)

	sums, err := h.store.ListUsageSummaries(r.Context(), acc.ID, period, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list usage summaries")
		return
	}
	if sums == nil {
		sums = []models.UsageSummary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

type recomputeRequest struct {
	Period      string    `json:"period"`
	WindowStart time.Time `json:"window_start"`
}

// Recompute re-runs aggregation for one window. Idempotent: the summary
// row is overwritten.
func (h *UsageHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	period := models.RatePeriod(req.Period)
	switch period {
	case models.PeriodHour, models.PeriodDay:
	default:
		writeError(w, http.StatusBadRequest, "period must be hour or day")
		return
	}
	if req.WindowStart.IsZero() {
		writeError(w, http.StatusBadRequest, "window_start is required")
		return
	}

	sum, err := h.agg.Aggregate(r.Context(), acc.ID, period, req.WindowStart)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to recompute usage summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type StatsHandler struct {
	store storage.Storage
}

func NewStatsHandler(store storage.Storage) *StatsHandler {
	return &StatsHandler{store: store}
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.store.GetWebhookStats(r.Context(), acc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
