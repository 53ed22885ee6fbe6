package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/report"

	"github.com/gorilla/mux"
)

const defaultShift = 8 * time.Hour

type ReportBuilder interface {
	Build(ctx context.Context, device models.Device, from, to time.Time) (*report.Data, error)
}

type ReportHandler struct {
	devices DeviceDirectory
	builder ReportBuilder
	log     *logger.Logger
	now     func() time.Time
}

func NewReportHandler(devices DeviceDirectory, builder ReportBuilder, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		devices: devices,
		builder: builder,
		log:     log,
		now:     time.Now,
	}
}

func (h *ReportHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/devices/{id}/report.pdf", h.Report).Methods("GET")
}

// Report renders the exposure summary for [start_time, end_time], defaulting
// to the last shift.
func (h *ReportHandler) Report(w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDevice(h.devices, mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "Device not found")
		return
	}

	to := h.now().UTC()
	if s := r.URL.Query().Get("end_time"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		to = t
	}
	from := to.Add(-defaultShift)
	if s := r.URL.Query().Get("start_time"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		from = t
	}
	if !to.After(from) {
		respondError(w, http.StatusBadRequest, "end_time must be after start_time")
		return
	}

	data, err := h.builder.Build(r.Context(), d, from, to)
	if err != nil {
		h.log.Error("Failed to build report for device %d: %v", d.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to build report")
		return
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, data); err != nil {
		h.log.Error("Failed to render report for device %d: %v", d.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="exposure-%s-%s.pdf"`,
		d.ExternalIdentifier, from.Format("20060102-1504")))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
