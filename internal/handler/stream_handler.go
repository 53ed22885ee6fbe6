package handler

import (
	"net/http"

	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/websocket"

	"github.com/gorilla/mux"
)

// StreamHandler upgrades viewers onto the live event feed.
type StreamHandler struct {
	hub     *websocket.Hub
	devices DeviceDirectory
	log     *logger.Logger
}

func NewStreamHandler(hub *websocket.Hub, devices DeviceDirectory, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub:     hub,
		devices: devices,
		log:     log,
	}
}

func (h *StreamHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.Stream).Methods("GET")
}

// Stream accepts an optional device_id to narrow the feed to one device.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var filter func(models.Event) bool
	if raw := r.URL.Query().Get("device_id"); raw != "" {
		d, ok := lookupDevice(h.devices, raw)
		if !ok {
			respondError(w, http.StatusNotFound, "Device not found")
			return
		}
		filter = websocket.DeviceFilter(d.ID)
	}
	websocket.ServeWs(h.hub, w, r, filter, h.log)
}
