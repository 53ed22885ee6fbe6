// Package app wires configuration into the running pipeline and the CLI jobs.
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"GasMonitorAPI/internal/config"
	"GasMonitorAPI/internal/database"
	"GasMonitorAPI/internal/identity"
	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/metrics"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/mqtt"
	"GasMonitorAPI/internal/repository"
	"GasMonitorAPI/internal/retry"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Metrics *metrics.Metrics
}

func New(cfg *config.Config, log *logger.Logger) *App {
	return &App{
		Config:  cfg,
		Log:     log.With("app"),
		Metrics: metrics.New(nil),
	}
}

func (a *App) openDatabase(ctx context.Context) (*database.Database, error) {
	db, err := database.New(&a.Config.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	a.Log.Info("Database connected and schema ready")
	return db, nil
}

// buildRegistry loads the device registry from the configured source. When a
// database is available the registry is mirrored into it so persisted history
// can be joined to device metadata.
func (a *App) buildRegistry(ctx context.Context, db *database.Database) (*identity.Registry, error) {
	rc := a.Config.Registry

	var (
		reg *identity.Registry
		err error
	)
	switch rc.Source {
	case config.RegistryFleet:
		reg, err = identity.NewFleetRegistry(rc.Prefix, rc.FleetSize)
	case config.RegistryFile:
		reg, err = identity.NewRegistry(rc.Prefix, rc.Devices)
	case config.RegistryDatabase:
		if db == nil {
			return nil, fmt.Errorf("registry source %q requires a database", rc.Source)
		}
		devices, gerr := repository.NewDeviceRepository(db.DB).GetAll(ctx)
		if gerr != nil {
			return nil, gerr
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("registry source %q: devices table is empty", rc.Source)
		}
		return identity.NewRegistry(rc.Prefix, devices)
	default:
		return nil, fmt.Errorf("unknown registry source %q", rc.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	if db != nil {
		if err := repository.NewDeviceRepository(db.DB).Upsert(ctx, reg.Devices()); err != nil {
			return nil, fmt.Errorf("mirror registry: %w", err)
		}
	}
	return reg, nil
}

func (a *App) connectMQTT(ctx context.Context, clientID string) (*mqtt.Client, error) {
	mc := a.Config.MQTT
	mc.ClientID = clientID

	client, err := mqtt.NewClient(mqtt.ClientConfig{MQTT: &mc, Logger: a.Log})
	if err != nil {
		return nil, err
	}

	policy := retry.Config{
		MaxAttempts:  10,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
	if err := client.ConnectWithRetry(ctx, policy); err != nil {
		return nil, err
	}
	return client, nil
}

// resolveDevice accepts a canonical id or a wire identifier.
func resolveDevice(reg *identity.Registry, raw string) (models.Device, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		if id, err = reg.Resolve(raw); err != nil {
			return models.Device{}, err
		}
	}
	d, ok := reg.Device(id)
	if !ok {
		return models.Device{}, fmt.Errorf("%w: id %d", identity.ErrNotFound, id)
	}
	return d, nil
}
