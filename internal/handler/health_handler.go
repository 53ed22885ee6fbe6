package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"GasMonitorAPI/internal/aggregation"
	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/mqtt"

	"github.com/gorilla/mux"
)

// Pinger reports database reachability.
type Pinger interface {
	Health(ctx context.Context) error
}

// PoolStats is implemented by databases that expose connection pool figures.
type PoolStats interface {
	Stats() sql.DBStats
}

type ConnectionStatus interface {
	IsConnected() bool
}

// BrokerReporter is implemented by MQTT clients that report subscription detail.
type BrokerReporter interface {
	Health(ctx context.Context) (*mqtt.HealthStatus, error)
}

type SessionCounter interface {
	Len() int
}

type CycleReporter interface {
	LastRun() aggregation.CycleResult
}

// HealthHandler reports component status. A nil db means the service runs
// without persistence, which does not degrade health.
type HealthHandler struct {
	db         Pinger
	mqttClient ConnectionStatus
	sessions   SessionCounter
	cycles     CycleReporter
	log        *logger.Logger
}

func NewHealthHandler(db Pinger, mqttClient ConnectionStatus, sessions SessionCounter, cycles CycleReporter, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:         db,
		mqttClient: mqttClient,
		sessions:   sessions,
		cycles:     cycles,
		log:        log,
	}
}

func (h *HealthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/health/live", h.Liveness).Methods("GET")
	r.HandleFunc("/health/ready", h.Readiness).Methods("GET")
}

func (h *HealthHandler) dbHealthy(ctx context.Context) (bool, error) {
	if h.db == nil {
		return true, nil
	}
	err := h.db.Health(ctx)
	return err == nil, err
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	response.Services.Database, _ = h.dbHealthy(ctx)
	response.Services.MQTT = h.mqttClient != nil && h.mqttClient.IsConnected()
	if h.sessions != nil {
		response.Sessions = h.sessions.Len()
	}
	if br, ok := h.mqttClient.(BrokerReporter); ok {
		if st, err := br.Health(ctx); err == nil {
			response.Broker = &models.BrokerStatus{
				Subscriptions: st.Subscriptions,
				LastConnected: st.LastConnected,
			}
		}
	}
	if ps, ok := h.db.(PoolStats); ok {
		st := ps.Stats()
		response.Pool = &models.PoolStatus{
			Open:      st.OpenConnections,
			InUse:     st.InUse,
			Idle:      st.Idle,
			WaitCount: st.WaitCount,
		}
	}
	if h.cycles != nil {
		if last := h.cycles.LastRun(); !last.ComputedAt.IsZero() {
			response.LastCycle = &models.CycleStatus{
				ComputedAt: last.ComputedAt,
				Aggregates: last.Aggregates,
				Alerts:     last.Alerts,
				Failed:     last.Failed,
				Evicted:    last.Evicted,
			}
		}
	}

	if !response.Services.Database || !response.Services.MQTT {
		response.Status = "degraded"
		h.log.Warn("Health check degraded - DB: %v, MQTT: %v", response.Services.Database, response.Services.MQTT)
	}

	statusCode := http.StatusOK
	if response.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	respondJSON(w, statusCode, response)
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbOK, dbErr := h.dbHealthy(ctx)
	mqttConnected := h.mqttClient != nil && h.mqttClient.IsConnected()

	if !dbOK || !mqttConnected {
		h.log.Warn("Readiness check failed - DB error: %v, MQTT connected: %v", dbErr, mqttConnected)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
