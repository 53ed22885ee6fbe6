// Package aggregation derives multi-window TWA exposure and alerts from the reading store.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/metrics"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/scheduler"
	"GasMonitorAPI/internal/store"
)

// ErrCycleInProgress is returned when a pass is requested while one is running.
var ErrCycleInProgress = errors.New("aggregation cycle already in progress")

// ReadingSource is the read side of the reading store.
type ReadingSource interface {
	Keys() []store.SeriesKey
	Snapshot(deviceID int, quantity models.Quantity, since time.Time) []store.Sample
	EvictOlderThan(cutoff time.Time) int
	Retention() time.Duration
}

type DeviceLookup interface {
	Device(id int) (models.Device, bool)
}

type Publisher interface {
	Publish(event models.Event)
}

// Recorder receives every emitted aggregate and alert for persistence.
type Recorder interface {
	RecordAggregate(a models.Aggregate)
	RecordAlert(a models.Alert)
}

type Config struct {
	Source     ReadingSource
	Devices    DeviceLookup
	Thresholds Thresholds
	Publisher  Publisher
	Recorder   Recorder
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

// CycleResult summarises one pass.
type CycleResult struct {
	ComputedAt time.Time
	Aggregates int
	Alerts     int
	Skipped    int
	Failed     int
	Evicted    int
}

type latestKey struct {
	deviceID int
	quantity models.Quantity
	window   string
}

type Engine struct {
	cfg     Config
	log     *logger.Logger
	running atomic.Bool

	mu      sync.RWMutex
	latest  map[latestKey]models.Aggregate
	alerts  map[latestKey]models.Alert
	lastRun CycleResult
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Source == nil || cfg.Devices == nil {
		return nil, fmt.Errorf("aggregation: source and device lookup are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultThresholds()
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}

	return &Engine{
		cfg:    cfg,
		log:    cfg.Logger.With("aggregation"),
		latest: make(map[latestKey]models.Aggregate),
		alerts: make(map[latestKey]models.Alert),
	}, nil
}

// Run drives RunCycle from the given scheduler until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	e.log.Info("Aggregation engine started")
	err := sched.Run(ctx, func(ctx context.Context, now time.Time) error {
		_, err := e.RunCycle(ctx, now)
		return err
	})
	e.log.Info("Aggregation engine stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunCycle performs one full recomputation at reference time now. The
// stored view of latest aggregates is swapped only when the pass completes;
// an abandoned pass leaves the previous view in place.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return CycleResult{}, ErrCycleInProgress
	}
	defer e.running.Store(false)

	started := time.Now()
	defer func() { e.cfg.Metrics.RecordCycle(time.Since(started)) }()

	res := CycleResult{ComputedAt: now}
	res.Evicted = e.cfg.Source.EvictOlderThan(now.Add(-e.cfg.Source.Retention()))
	e.cfg.Metrics.SamplesEvicted.Add(float64(res.Evicted))

	latest := make(map[latestKey]models.Aggregate)
	alerts := make(map[latestKey]models.Alert)

	for _, key := range e.cfg.Source.Keys() {
		if err := ctx.Err(); err != nil {
			e.log.Warn("Aggregation pass abandoned after %d aggregates: %v", res.Aggregates, err)
			return res, err
		}

		aggs, alts, err := e.computeKey(key, now)
		if err != nil {
			res.Failed++
			e.cfg.Metrics.ComputationErrors.Inc()
			e.log.Error("Skipping device=%d quantity=%s: %v", key.DeviceID, key.Quantity, err)
			continue
		}

		res.Skipped += len(models.Windows) - len(aggs)
		for _, a := range aggs {
			latest[latestKey{a.DeviceID, a.Quantity, a.Window}] = a
			e.emitAggregate(a)
			res.Aggregates++
		}
		for _, a := range alts {
			alerts[latestKey{a.DeviceID, a.Quantity, a.Window}] = a
			e.emitAlert(a)
			res.Alerts++
		}
	}

	e.mu.Lock()
	e.latest = latest
	e.alerts = alerts
	e.lastRun = res
	e.mu.Unlock()

	e.log.Debug("Aggregation pass: aggregates=%d alerts=%d skipped=%d failed=%d evicted=%d",
		res.Aggregates, res.Alerts, res.Skipped, res.Failed, res.Evicted)
	return res, nil
}

// computeKey computes every window for one series. A panic is converted into
// an error so that one bad series cannot abort the pass.
func (e *Engine) computeKey(key store.SeriesKey, now time.Time) (aggs []models.Aggregate, alerts []models.Alert, err error) {
	defer func() {
		if r := recover(); r != nil {
			aggs, alerts, err = nil, nil, fmt.Errorf("panic: %v", r)
		}
	}()

	if _, ok := e.cfg.Devices.Device(key.DeviceID); !ok {
		return nil, nil, fmt.Errorf("no registry entry for device %d", key.DeviceID)
	}

	longest := models.Windows[len(models.Windows)-1]
	samples := e.cfg.Source.Snapshot(key.DeviceID, key.Quantity, now.Add(-longest.Duration))

	for _, w := range models.Windows {
		since := now.Add(-w.Duration)
		i := sort.Search(len(samples), func(i int) bool {
			return !samples[i].ObservedAt.Before(since)
		})

		mean, count, err := TimeWeightedAverage(samples[i:], now)
		if errors.Is(err, ErrEmptyWindow) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		agg := models.Aggregate{
			DeviceID:    key.DeviceID,
			Quantity:    key.Quantity,
			Window:      w.Label,
			Mean:        mean,
			ComputedAt:  now,
			SampleCount: count,
		}
		aggs = append(aggs, agg)

		severity, threshold := e.cfg.Thresholds.Classify(key.Quantity, w.Label, mean)
		if severity != models.SeverityNormal {
			alerts = append(alerts, models.Alert{
				DeviceID:    key.DeviceID,
				Quantity:    key.Quantity,
				Window:      w.Label,
				Severity:    severity,
				Mean:        mean,
				Threshold:   threshold,
				TriggeredAt: now,
			})
		}
	}
	return aggs, alerts, nil
}

func (e *Engine) emitAggregate(a models.Aggregate) {
	e.cfg.Metrics.AggregatesEmitted.Inc()
	if e.cfg.Publisher != nil {
		e.cfg.Publisher.Publish(models.NewAggregateEvent(a))
	}
	if e.cfg.Recorder != nil {
		e.cfg.Recorder.RecordAggregate(a)
	}
}

func (e *Engine) emitAlert(a models.Alert) {
	e.cfg.Metrics.RecordAlert(string(a.Severity))
	if a.Severity == models.SeverityDanger {
		e.log.Warn("DANGER exposure: device=%d %s %s TWA=%.3f (limit %.3f)",
			a.DeviceID, a.Quantity, a.Window, a.Mean, a.Threshold)
	}
	if e.cfg.Publisher != nil {
		e.cfg.Publisher.Publish(models.NewAlertEvent(a))
	}
	if e.cfg.Recorder != nil {
		e.cfg.Recorder.RecordAlert(a)
	}
}

// Latest returns the aggregates and active alerts of the last completed
// pass for one device, ordered by quantity then window length.
func (e *Engine) Latest(deviceID int) ([]models.Aggregate, []models.Alert) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var aggs []models.Aggregate
	var alerts []models.Alert
	for _, q := range models.Quantities {
		for _, w := range models.Windows {
			k := latestKey{deviceID, q, w.Label}
			if a, ok := e.latest[k]; ok {
				aggs = append(aggs, a)
			}
			if a, ok := e.alerts[k]; ok {
				alerts = append(alerts, a)
			}
		}
	}
	return aggs, alerts
}

// LastRun reports the summary of the last completed pass.
func (e *Engine) LastRun() CycleResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun
}
