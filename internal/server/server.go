// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"GasMonitorAPI/internal/config"
	"GasMonitorAPI/internal/handler"
	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/middleware"

	"github.com/gorilla/mux"
)

type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cfg        *config.Config
	log        *logger.Logger
}

// Handlers groups the route sets mounted by RegisterHandlers. Metrics may be nil.
type Handlers struct {
	Devices *handler.DeviceHandler
	History *handler.HistoryHandler
	Reports *handler.ReportHandler
	Stream  *handler.StreamHandler
	Health  *handler.HealthHandler
	Metrics http.Handler
}

func New(cfg *config.Config, log *logger.Logger) *Server {
	router := mux.NewRouter()

	server := &Server{
		router: router,
		cfg:    cfg,
		log:    log,
		httpServer: &http.Server{
			Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		},
	}

	return server
}

// RegisterHandlers mounts the query API under /api/v1 and the viewer feed at
// /ws. Both sit behind token auth when it is enabled; health and metrics
// stay open for orchestrator health checks.
func (s *Server) RegisterHandlers(ctx context.Context, h Handlers, verifier middleware.TokenVerifier) {
	s.router.Use(middleware.Recovery(s.log))

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestLogger(s.log))
	api.Use(middleware.CORS(s.cfg.Security.CORSAllowedOrigins, s.cfg.Security.CORSAllowedMethods))

	if s.cfg.Security.EnableRateLimit {
		api.Use(middleware.RateLimit(ctx, s.cfg.Security.RateLimitPerMinute))
	}

	feed := s.router.PathPrefix("/ws").Subrouter()

	if s.cfg.Security.AuthEnabled && verifier != nil {
		api.Use(middleware.RequireToken(verifier))
		feed.Use(middleware.RequireToken(verifier))
	}

	h.Devices.RegisterRoutes(api)
	h.History.RegisterRoutes(api)
	h.Reports.RegisterRoutes(api)
	feed.HandleFunc("", h.Stream.Stream).Methods("GET")
	h.Health.RegisterRoutes(s.router)
	if h.Metrics != nil {
		s.router.Handle("/metrics", h.Metrics).Methods("GET")
	}

	s.log.Info("All handlers registered")
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.log.Info("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info("Starting HTTP server on %s", l.Addr())

	if err := s.httpServer.Serve(l); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}
