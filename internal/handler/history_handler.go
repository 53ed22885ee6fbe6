package handler

import (
	"context"
	"net/http"

	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/models"

	"github.com/gorilla/mux"
)

type ReadingQuerier interface {
	Query(ctx context.Context, q models.HistoryQuery) ([]models.Reading, int, error)
}

type AggregateQuerier interface {
	Query(ctx context.Context, q models.HistoryQuery) ([]models.Aggregate, int, error)
}

type AlertQuerier interface {
	Query(ctx context.Context, q models.HistoryQuery, severity models.Severity) ([]models.Alert, int, error)
}

// HistoryHandler serves persisted history. Any nil querier answers 503, as
// happens when the service runs without a database.
type HistoryHandler struct {
	readings   ReadingQuerier
	aggregates AggregateQuerier
	alerts     AlertQuerier
	log        *logger.Logger
}

func NewHistoryHandler(readings ReadingQuerier, aggregates AggregateQuerier, alerts AlertQuerier, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		readings:   readings,
		aggregates: aggregates,
		alerts:     alerts,
		log:        log,
	}
}

func (h *HistoryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/readings", h.Readings).Methods("GET")
	r.HandleFunc("/aggregates", h.Aggregates).Methods("GET")
	r.HandleFunc("/alerts", h.Alerts).Methods("GET")
}

func (h *HistoryHandler) Readings(w http.ResponseWriter, r *http.Request) {
	if h.readings == nil {
		respondError(w, http.StatusServiceUnavailable, "History storage is not enabled")
		return
	}
	q, err := parseHistoryQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, total, err := h.readings.Query(r.Context(), q)
	if err != nil {
		h.log.Error("Failed to query readings: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to query readings")
		return
	}
	respondJSON(w, http.StatusOK, PagedResponse{Data: readings, Total: total, Limit: q.Limit, Offset: q.Offset})
}

func (h *HistoryHandler) Aggregates(w http.ResponseWriter, r *http.Request) {
	if h.aggregates == nil {
		respondError(w, http.StatusServiceUnavailable, "History storage is not enabled")
		return
	}
	q, err := parseHistoryQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	aggs, total, err := h.aggregates.Query(r.Context(), q)
	if err != nil {
		h.log.Error("Failed to query aggregates: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to query aggregates")
		return
	}
	respondJSON(w, http.StatusOK, PagedResponse{Data: aggs, Total: total, Limit: q.Limit, Offset: q.Offset})
}

func (h *HistoryHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		respondError(w, http.StatusServiceUnavailable, "History storage is not enabled")
		return
	}
	q, err := parseHistoryQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var severity models.Severity
	switch s := models.Severity(r.URL.Query().Get("severity")); s {
	case "", models.SeverityWarning, models.SeverityDanger:
		severity = s
	default:
		respondError(w, http.StatusBadRequest, "severity must be warning or danger")
		return
	}

	alerts, total, err := h.alerts.Query(r.Context(), q, severity)
	if err != nil {
		h.log.Error("Failed to query alerts: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to query alerts")
		return
	}
	respondJSON(w, http.StatusOK, PagedResponse{Data: alerts, Total: total, Limit: q.Limit, Offset: q.Offset})
}
