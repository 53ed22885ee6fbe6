package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"GasMonitorAPI/internal/aggregation"
	"GasMonitorAPI/internal/auth"
	"GasMonitorAPI/internal/database"
	"GasMonitorAPI/internal/handler"
	"GasMonitorAPI/internal/ingest"
	"GasMonitorAPI/internal/middleware"
	"GasMonitorAPI/internal/report"
	"GasMonitorAPI/internal/repository"
	"GasMonitorAPI/internal/scheduler"
	"GasMonitorAPI/internal/server"
	"GasMonitorAPI/internal/sink"
	"GasMonitorAPI/internal/store"
	"GasMonitorAPI/internal/websocket"
)

// Serve runs the monitoring pipeline until SIGINT/SIGTERM or ctx ends.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := a.Config
	log := a.Log

	var db *database.Database
	if cfg.NeedsDatabase() {
		var err error
		if db, err = a.openDatabase(ctx); err != nil {
			return err
		}
		defer db.Close()
	} else {
		log.Warn("No component needs the database; persistence disabled")
	}

	registry, err := a.buildRegistry(ctx, db)
	if err != nil {
		return err
	}
	log.Info("Device registry loaded: %d devices (%s)", registry.Len(), cfg.Registry.Source)

	thresholds, err := cfg.Thresholds()
	if err != nil {
		return err
	}

	readings := store.New(store.Options{
		Retention:     cfg.Store.Retention,
		Tolerance:     cfg.Store.Tolerance,
		MaxFutureSkew: cfg.Store.MaxFutureSkew,
	})

	hub := websocket.NewHub(websocket.HubOptions{
		QueueSize:     cfg.Hub.QueueSize,
		StatsInterval: cfg.Hub.StatsInterval,
	}, a.Metrics, log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	var (
		persist   *sink.Sink
		readRepo  *repository.ReadingRepository
		aggRepo   *repository.AggregateRepository
		alertRepo *repository.AlertRepository
	)
	if db != nil {
		readRepo = repository.NewReadingRepository(db.DB)
		aggRepo = repository.NewAggregateRepository(db.DB)
		alertRepo = repository.NewAlertRepository(db.DB)
	}
	if cfg.Sink.Enabled {
		persist = sink.New(&sink.PostgresWriter{
			Readings:   readRepo,
			Aggregates: aggRepo,
			Alerts:     alertRepo,
		}, sink.Options{
			QueueSize:     cfg.Sink.QueueSize,
			BatchSize:     cfg.Sink.BatchSize,
			FlushInterval: cfg.Sink.FlushInterval,
			Retry:         cfg.Sink.Retry,
		}, a.Metrics, log)
		persist.Start()
	}
	if alertRepo != nil && cfg.Sink.AlertRetention > 0 && cfg.Sink.SweepInterval > 0 {
		sweepCtx, stopSweep := context.WithCancel(context.Background())
		defer stopSweep()
		retention := sink.NewRetention(alertRepo, cfg.Sink.AlertRetention, log)
		sweeper := scheduler.New(scheduler.Options{Interval: cfg.Sink.SweepInterval}, log)
		go sweeper.Run(sweepCtx, retention.Sweep)
	}

	gateway, err := ingest.NewGateway(ingest.Config{
		Resolver:  registry,
		Store:     readings,
		Publisher: hub,
		Recorder:  persist,
		Metrics:   a.Metrics,
		Logger:    log,
		Options: ingest.Options{
			QueueSize:      cfg.Ingest.QueueSize,
			Workers:        cfg.Ingest.Workers,
			ShardQueueSize: cfg.Ingest.ShardQueueSize,
		},
	})
	if err != nil {
		return err
	}
	if err := gateway.Start(); err != nil {
		return err
	}

	engine, err := aggregation.NewEngine(aggregation.Config{
		Source:     readings,
		Devices:    registry,
		Thresholds: thresholds,
		Publisher:  hub,
		Recorder:   persist,
		Metrics:    a.Metrics,
		Logger:     log,
	})
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.Options{
		Interval:     cfg.Aggregation.Interval,
		AlignToStart: cfg.Aggregation.AlignToStart,
		StartupDelay: cfg.Aggregation.StartupDelay,
		OnOverrun: func(elapsed time.Duration) {
			a.Metrics.CycleOverruns.Inc()
		},
	}, log)
	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	engineDone := make(chan error, 1)
	go func() { engineDone <- engine.Run(engineCtx, sched) }()

	mqttClient, err := a.connectMQTT(ctx, cfg.MQTT.ClientID)
	if err != nil {
		gateway.Stop(context.Background())
		return err
	}
	if err := mqttClient.SubscribeTelemetry(gateway); err != nil {
		mqttClient.Disconnect()
		gateway.Stop(context.Background())
		return err
	}
	log.Info("MQTT subscriptions active on %s", cfg.MQTT.TelemetryTopic)

	var verifier middleware.TokenVerifier
	if cfg.Security.AuthEnabled {
		mgr, err := auth.NewManager(cfg.Security.JWTSecret, cfg.Security.JWTIssuer,
			time.Duration(cfg.Security.JWTExpirationHours)*time.Hour)
		if err != nil {
			return err
		}
		verifier = mgr
	}

	builder := &report.Builder{Live: engine, Thresholds: thresholds}
	history := handler.NewHistoryHandler(nil, nil, nil, log)
	var pinger handler.Pinger
	if db != nil {
		builder.Stats, builder.Peaks, builder.Alerts = readRepo, aggRepo, alertRepo
		history = handler.NewHistoryHandler(readRepo, aggRepo, alertRepo, log)
		pinger = db
	}

	srv := server.New(cfg, log)
	srv.RegisterHandlers(ctx, server.Handlers{
		Devices: handler.NewDeviceHandler(registry, engine, log),
		History: history,
		Reports: handler.NewReportHandler(registry, builder, log),
		Stream:  handler.NewStreamHandler(hub, registry, log),
		Health:  handler.NewHealthHandler(pinger, mqttClient, hub, engine, log),
		Metrics: a.Metrics.Handler(),
	}, verifier)

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start() }()
	log.Info("API server ready on http://%s:%d", cfg.Server.Host, cfg.Server.Port)

	var runErr error
	select {
	case <-ctx.Done():
		log.Warn("Shutdown signal received")
	case runErr = <-srvErr:
		log.Error("HTTP server stopped unexpectedly: %v", runErr)
	case runErr = <-engineDone:
		log.Error("Aggregation engine stopped unexpectedly: %v", runErr)
		engineDone <- nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := mqttClient.UnsubscribeTelemetry(); err != nil {
		log.Warn("MQTT unsubscribe: %v", err)
	}
	if err := mqttClient.Disconnect(); err != nil {
		log.Error("Failed to disconnect MQTT: %v", err)
	}
	if err := gateway.Stop(shutdownCtx); err != nil {
		log.Error("Ingest gateway stop: %v", err)
	}
	stopEngine()
	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		log.Warn("Aggregation pass did not finish before the shutdown deadline")
	}
	stopHub()
	hub.Close()
	if err := persist.Close(shutdownCtx); err != nil {
		log.Error("Persistence sink close: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error: %v", err)
	}

	log.Info("Shutdown complete")
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
