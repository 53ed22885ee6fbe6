package aggregation

import (
	"context"
	"sync"
	"testing"
	"time"

	"GasMonitorAPI/internal/identity"
	"GasMonitorAPI/internal/metrics"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu         sync.Mutex
	events     []models.Event
	aggregates []models.Aggregate
	alerts     []models.Alert
}

func (c *capture) Publish(ev models.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *capture) RecordAggregate(a models.Aggregate) {
	c.mu.Lock()
	c.aggregates = append(c.aggregates, a)
	c.mu.Unlock()
}

func (c *capture) RecordAlert(a models.Alert) {
	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	c.mu.Unlock()
}

type fixture struct {
	store   *store.Store
	engine  *Engine
	out     *capture
	metrics *metrics.Metrics
	now     time.Time
}

func newFixture(t *testing.T, devices int) *fixture {
	t.Helper()
	f := &fixture{out: &capture{}, metrics: metrics.New(nil), now: refNow}
	f.store = store.New(store.Options{Tolerance: 5 * time.Second, Now: func() time.Time { return f.now }})

	reg, err := identity.NewFleetRegistry("", devices)
	require.NoError(t, err)

	f.engine, err = NewEngine(Config{
		Source:    f.store,
		Devices:   reg,
		Publisher: f.out,
		Recorder:  f.out,
		Metrics:   f.metrics,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) append(t *testing.T, device int, q models.Quantity, v float64, at time.Time) {
	t.Helper()
	require.NoError(t, f.store.Append(models.Reading{DeviceID: device, Quantity: q, Value: v, ObservedAt: at}))
}

func aggregateFor(aggs []models.Aggregate, window string) (models.Aggregate, bool) {
	for _, a := range aggs {
		if a.Window == window {
			return a, true
		}
	}
	return models.Aggregate{}, false
}

func TestRunCycleSingleReading(t *testing.T) {
	f := newFixture(t, 5)
	f.append(t, 1, models.QuantityCO, 5, f.now)

	cycleAt := f.now.Add(time.Minute)
	res, err := f.engine.RunCycle(context.Background(), cycleAt)
	require.NoError(t, err)
	assert.Equal(t, len(models.Windows), res.Aggregates)
	assert.Zero(t, res.Alerts)

	agg, ok := aggregateFor(f.out.aggregates, "10min")
	require.True(t, ok)
	assert.Equal(t, 1, agg.DeviceID)
	assert.Equal(t, models.QuantityCO, agg.Quantity)
	assert.InDelta(t, 5.0, agg.Mean, 1e-9)
	assert.Equal(t, 1, agg.SampleCount)
	assert.Equal(t, cycleAt, agg.ComputedAt)
	assert.Empty(t, f.out.alerts)

	require.NotEmpty(t, f.out.events)
	assert.Equal(t, models.EventAggregate, f.out.events[0].Type)
}

func TestRunCycleWindowsSeeDifferentData(t *testing.T) {
	f := newFixture(t, 1)
	// 300 ppm two hours ago, then clean air for the last 20 minutes.
	f.append(t, 1, models.QuantityCO, 300, f.now.Add(-2*time.Hour))
	f.append(t, 1, models.QuantityCO, 0, f.now.Add(-20*time.Minute))

	_, err := f.engine.RunCycle(context.Background(), f.now)
	require.NoError(t, err)

	aggs, alerts := f.engine.Latest(1)
	require.Len(t, aggs, len(models.Windows)-1)

	_, ok := aggregateFor(aggs, "10min")
	assert.False(t, ok, "no reading falls inside the 10 minute window")

	halfHour, _ := aggregateFor(aggs, "30min")
	assert.InDelta(t, 0.0, halfHour.Mean, 1e-9)
	assert.Equal(t, 1, halfHour.SampleCount)

	fourHr, _ := aggregateFor(aggs, "4hr")
	assert.Equal(t, 2, fourHr.SampleCount)
	// 300 for 100 minutes then 0 for 20 minutes, averaged over 120 minutes.
	assert.InDelta(t, 250.0, fourHr.Mean, 1e-9)

	var windows []string
	for _, a := range alerts {
		windows = append(windows, a.Window)
		assert.Equal(t, models.SeverityDanger, a.Severity)
	}
	assert.ElementsMatch(t, []string{"4hr", "8hr"}, windows)
}

func TestRunCycleSkipsEmptyWindows(t *testing.T) {
	f := newFixture(t, 1)
	f.append(t, 1, models.QuantityNO2, 0.1, f.now.Add(-2*time.Hour))

	res, err := f.engine.RunCycle(context.Background(), f.now)
	require.NoError(t, err)

	aggs, _ := f.engine.Latest(1)
	var windows []string
	for _, a := range aggs {
		windows = append(windows, a.Window)
	}
	assert.Equal(t, []string{"4hr", "8hr"}, windows)
	assert.Equal(t, 3, res.Skipped)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	f := newFixture(t, 2)
	for i := 0; i < 30; i++ {
		f.append(t, 1, models.QuantityCO, float64(i%5)*3.3, f.now.Add(time.Duration(i-30)*time.Minute))
		f.append(t, 2, models.QuantityNO2, float64(i%3)*0.7, f.now.Add(time.Duration(i-30)*time.Minute))
	}

	_, err := f.engine.RunCycle(context.Background(), f.now)
	require.NoError(t, err)
	first1, _ := f.engine.Latest(1)
	first2, alerts := f.engine.Latest(2)

	_, err = f.engine.RunCycle(context.Background(), f.now)
	require.NoError(t, err)
	second1, _ := f.engine.Latest(1)
	second2, alertsAgain := f.engine.Latest(2)

	assert.Equal(t, first1, second1)
	assert.Equal(t, first2, second2)
	assert.Equal(t, alerts, alertsAgain)
}

func TestRunCycleReplacesPreviousAggregates(t *testing.T) {
	f := newFixture(t, 1)
	f.append(t, 1, models.QuantityCO, 10, f.now.Add(-5*time.Minute))

	_, err := f.engine.RunCycle(context.Background(), f.now)
	require.NoError(t, err)

	f.now = f.now.Add(9 * time.Hour)
	_, err = f.engine.RunCycle(context.Background(), f.now)
	require.NoError(t, err)

	aggs, alerts := f.engine.Latest(1)
	assert.Empty(t, aggs, "evicted data must not leave stale aggregates behind")
	assert.Empty(t, alerts)
}

func TestRunCycleSkipsUnknownDevice(t *testing.T) {
	f := newFixture(t, 1)
	f.append(t, 1, models.QuantityCO, 5, f.now.Add(-time.Minute))
	f.append(t, 7, models.QuantityCO, 5, f.now.Add(-time.Minute))

	res, err := f.engine.RunCycle(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, len(models.Windows), res.Aggregates)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ComputationErrors))

	aggs, _ := f.engine.Latest(7)
	assert.Empty(t, aggs)
}

func TestRunCycleAlertBoundaries(t *testing.T) {
	f := newFixture(t, 2)
	danger := DefaultThresholds()[models.QuantityCO]["10min"].Danger

	f.append(t, 1, models.QuantityCO, danger, f.now.Add(-time.Minute))
	f.append(t, 2, models.QuantityCO, danger-1, f.now.Add(-time.Minute))

	_, err := f.engine.RunCycle(context.Background(), f.now)
	require.NoError(t, err)

	_, alerts1 := f.engine.Latest(1)
	_, alerts2 := f.engine.Latest(2)

	find := func(alerts []models.Alert, window string) models.Alert {
		for _, a := range alerts {
			if a.Window == window {
				return a
			}
		}
		t.Fatalf("no alert for window %s", window)
		return models.Alert{}
	}

	assert.Equal(t, models.SeverityDanger, find(alerts1, "10min").Severity)
	assert.Equal(t, models.SeverityWarning, find(alerts2, "10min").Severity)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AlertsEmitted.WithLabelValues("warning")))
}

func TestRunCycleAbandonedOnCancel(t *testing.T) {
	f := newFixture(t, 1)
	f.append(t, 1, models.QuantityCO, 5, f.now.Add(-time.Minute))

	_, err := f.engine.RunCycle(context.Background(), f.now)
	require.NoError(t, err)
	before, _ := f.engine.Latest(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.engine.RunCycle(ctx, f.now.Add(time.Minute))
	assert.ErrorIs(t, err, context.Canceled)

	after, _ := f.engine.Latest(1)
	assert.Equal(t, before, after)
}

func TestRunCycleRejectsOverlap(t *testing.T) {
	f := newFixture(t, 1)
	f.engine.running.Store(true)
	_, err := f.engine.RunCycle(context.Background(), f.now)
	assert.ErrorIs(t, err, ErrCycleInProgress)
}

func TestNewEngineValidatesThresholds(t *testing.T) {
	reg, err := identity.NewFleetRegistry("", 1)
	require.NoError(t, err)

	_, err = NewEngine(Config{
		Source:     store.New(store.Options{}),
		Devices:    reg,
		Thresholds: Thresholds{models.QuantityCO: {"10min": {Warning: 5, Danger: 1}}},
	})
	assert.Error(t, err)

	_, err = NewEngine(Config{Devices: reg})
	assert.Error(t, err)
}
