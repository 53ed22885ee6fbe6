package handler

import (
	"net/http"
	"strconv"

	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/models"

	"github.com/gorilla/mux"
)

// DeviceDirectory is the registry the API reads devices from.
type DeviceDirectory interface {
	Devices() []models.Device
	Device(id int) (models.Device, bool)
	Resolve(raw string) (int, error)
}

// ExposureSource serves the latest completed aggregation pass.
type ExposureSource interface {
	Latest(deviceID int) ([]models.Aggregate, []models.Alert)
}

type DeviceHandler struct {
	devices  DeviceDirectory
	exposure ExposureSource
	log      *logger.Logger
}

func NewDeviceHandler(devices DeviceDirectory, exposure ExposureSource, log *logger.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices:  devices,
		exposure: exposure,
		log:      log,
	}
}

func (h *DeviceHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/devices", h.List).Methods("GET")
	r.HandleFunc("/devices/{id}", h.Get).Methods("GET")
	r.HandleFunc("/devices/{id}/exposure", h.Exposure).Methods("GET")
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.devices.Devices())
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDevice(h.devices, mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "Device not found")
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (h *DeviceHandler) Exposure(w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDevice(h.devices, mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "Device not found")
		return
	}

	aggs, alerts := h.exposure.Latest(d.ID)
	if aggs == nil {
		aggs = []models.Aggregate{}
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	respondJSON(w, http.StatusOK, models.ExposureResponse{
		Device:     d,
		Aggregates: aggs,
		Alerts:     alerts,
	})
}

// lookupDevice accepts a canonical id or a raw external identifier.
func lookupDevice(dir DeviceDirectory, raw string) (models.Device, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		if id, err = dir.Resolve(raw); err != nil {
			return models.Device{}, false
		}
	}
	return dir.Device(id)
}
