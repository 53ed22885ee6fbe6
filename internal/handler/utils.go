package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"GasMonitorAPI/internal/models"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// PagedResponse wraps a history query result.
type PagedResponse struct {
	Data   interface{} `json:"data"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		return
	}
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// parseTime accepts RFC3339 or unix seconds.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

func parseHistoryQuery(r *http.Request) (models.HistoryQuery, error) {
	var q models.HistoryQuery
	v := r.URL.Query()

	if s := v.Get("device_id"); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil {
			return q, fmt.Errorf("invalid device_id %q", s)
		}
		q.DeviceID = &id
	}
	if s := v.Get("quantity"); s != "" {
		quantity, ok := models.ParseQuantity(s)
		if !ok {
			return q, fmt.Errorf("unknown quantity %q", s)
		}
		q.Quantity = quantity
	}
	if s := v.Get("window"); s != "" {
		if _, ok := models.WindowByLabel(s); !ok {
			return q, fmt.Errorf("unknown window %q", s)
		}
		q.Window = s
	}
	if s := v.Get("start_time"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return q, err
		}
		q.StartTime = &t
	}
	if s := v.Get("end_time"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return q, err
		}
		q.EndTime = &t
	}
	if q.StartTime != nil && q.EndTime != nil && q.EndTime.Before(*q.StartTime) {
		return q, fmt.Errorf("end_time is before start_time")
	}

	var err error
	if q.Limit, err = intParam(v.Get("limit")); err != nil {
		return q, fmt.Errorf("invalid limit: %w", err)
	}
	if q.Offset, err = intParam(v.Get("offset")); err != nil {
		return q, fmt.Errorf("invalid offset: %w", err)
	}
	return q, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", s)
	}
	return n, nil
}
