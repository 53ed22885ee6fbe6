package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"GasMonitorAPI/internal/identity"
	"GasMonitorAPI/internal/simulator"
)

// SimulateOptions override the simulator section of the configuration.
type SimulateOptions struct {
	Devices     int
	Interval    time.Duration
	Seed        int64
	SpikeChance float64
	// Ticks stops after this many rounds; zero runs until interrupted.
	Ticks int
}

// Simulate publishes a synthetic fleet to the configured broker.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc := a.Config.Simulator
	if opts.Devices > 0 {
		sc.Devices = opts.Devices
	}
	if opts.Interval > 0 {
		sc.Interval = opts.Interval
	}
	if opts.Seed != 0 {
		sc.Seed = opts.Seed
	}
	if opts.SpikeChance > 0 {
		sc.SpikeChance = opts.SpikeChance
	}

	reg, err := identity.NewFleetRegistry(a.Config.Registry.Prefix, sc.Devices)
	if err != nil {
		return fmt.Errorf("simulator fleet: %w", err)
	}

	client, err := a.connectMQTT(ctx, a.Config.MQTT.ClientID+"-sim")
	if err != nil {
		return err
	}
	defer client.Disconnect()

	sim, err := simulator.New(client, simulator.Options{
		Devices:     sc.Devices,
		Interval:    sc.Interval,
		Seed:        sc.Seed,
		SpikeChance: sc.SpikeChance,
		Topic:       a.Config.MQTT.TelemetryTopic,
		Identifier:  reg.Identifier,
	}, a.Log)
	if err != nil {
		return err
	}

	if opts.Ticks <= 0 {
		return sim.Run(ctx)
	}

	ticker := time.NewTicker(sc.Interval)
	defer ticker.Stop()
	for i := 0; i < opts.Ticks; i++ {
		sent, err := sim.Tick()
		if err != nil {
			a.Log.Warn("Tick %d: %v", i+1, err)
		}
		a.Log.Info("Tick %d/%d: published %d payloads", i+1, opts.Ticks, sent)
		if i == opts.Ticks-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
