package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GasMonitorAPI/internal/auth"
	"GasMonitorAPI/internal/config"
	"GasMonitorAPI/internal/handler"
	"GasMonitorAPI/internal/identity"
	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/metrics"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/report"
	"GasMonitorAPI/internal/websocket"
)

type noExposure struct{}

func (noExposure) Latest(int) ([]models.Aggregate, []models.Alert) { return nil, nil }

type connected struct{}

func (connected) IsConnected() bool { return true }

func newTestServer(t *testing.T, authEnabled bool) (*Server, *auth.Manager) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Security.AuthEnabled = authEnabled
	cfg.Security.CORSAllowedOrigins = []string{"*"}
	cfg.Security.CORSAllowedMethods = []string{"GET"}

	log := logger.Nop()
	reg, err := identity.NewFleetRegistry("device", 2)
	require.NoError(t, err)
	hub := websocket.NewHub(websocket.HubOptions{}, nil, log)
	t.Cleanup(hub.Close)

	mgr, err := auth.NewManager("0123456789abcdef0123", "gas-monitor", time.Hour)
	require.NoError(t, err)

	s := New(cfg, log)
	s.RegisterHandlers(context.Background(), Handlers{
		Devices: handler.NewDeviceHandler(reg, noExposure{}, log),
		History: handler.NewHistoryHandler(nil, nil, nil, log),
		Reports: handler.NewReportHandler(reg, &report.Builder{Live: noExposure{}}, log),
		Stream:  handler.NewStreamHandler(hub, reg, log),
		Health:  handler.NewHealthHandler(nil, connected{}, hub, nil, log),
		Metrics: metrics.New(nil).Handler(),
	}, mgr)
	return s, mgr
}

func get(h http.Handler, url, token string) int {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRoutesWithoutAuth(t *testing.T) {
	s, _ := newTestServer(t, false)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(h, "/api/v1/devices", ""))
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/devices/1/exposure", ""))
	assert.Equal(t, http.StatusServiceUnavailable, get(h, "/api/v1/readings", ""))
	assert.Equal(t, http.StatusOK, get(h, "/health", ""))
	assert.Equal(t, http.StatusOK, get(h, "/metrics", ""))
	assert.Equal(t, http.StatusNotFound, get(h, "/api/v1/nothing", ""))
}

func TestRoutesRequireTokenWhenEnabled(t *testing.T) {
	s, mgr := newTestServer(t, true)
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/devices", ""))
	assert.Equal(t, http.StatusUnauthorized, get(h, "/ws", ""))

	token, err := mgr.Mint("viewer", "viewer", 0)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/devices", token))

	assert.Equal(t, http.StatusOK, get(h, "/health/live", ""))
	assert.Equal(t, http.StatusOK, get(h, "/metrics", ""))
}
