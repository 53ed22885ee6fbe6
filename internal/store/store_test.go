package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"GasMonitorAPI/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(Options{Tolerance: 5 * time.Second, Now: clock.Now}), clock
}

func reading(device int, q models.Quantity, v float64, at time.Time) models.Reading {
	return models.Reading{DeviceID: device, Quantity: q, Value: v, ObservedAt: at}
}

func TestSnapshotReturnsOrderedSubset(t *testing.T) {
	s, clock := newTestStore(t)
	start := clock.Now().Add(-time.Hour)

	for i := 0; i < 60; i++ {
		require.NoError(t, s.Append(reading(1, models.QuantityCO, float64(i), start.Add(time.Duration(i)*time.Minute))))
	}

	since := start.Add(50 * time.Minute)
	snap := s.Snapshot(1, models.QuantityCO, since)
	require.Len(t, snap, 10)
	for i, sample := range snap {
		assert.Equal(t, float64(50+i), sample.Value)
		assert.False(t, sample.ObservedAt.Before(since))
		if i > 0 {
			assert.True(t, sample.ObservedAt.After(snap[i-1].ObservedAt))
		}
	}

	assert.Empty(t, s.Snapshot(1, models.QuantityNO2, start))
	assert.Empty(t, s.Snapshot(2, models.QuantityCO, start))
	assert.Empty(t, s.Snapshot(1, models.QuantityCO, clock.Now().Add(time.Minute)))
}

func TestSnapshotIsACopy(t *testing.T) {
	s, clock := newTestStore(t)
	require.NoError(t, s.Append(reading(1, models.QuantityCO, 5, clock.Now())))

	snap := s.Snapshot(1, models.QuantityCO, clock.Now().Add(-time.Minute))
	snap[0].Value = 999

	again := s.Snapshot(1, models.QuantityCO, clock.Now().Add(-time.Minute))
	assert.Equal(t, 5.0, again[0].Value)
}

func TestAppendRejectsStale(t *testing.T) {
	s, clock := newTestStore(t)

	err := s.Append(reading(1, models.QuantityCO, 1, clock.Now().Add(-8*time.Hour-time.Second)))
	assert.ErrorIs(t, err, ErrStaleReading)

	err = s.Append(reading(1, models.QuantityCO, 1, clock.Now().Add(10*time.Minute)))
	assert.ErrorIs(t, err, ErrStaleReading)

	assert.Equal(t, 0, s.Len())
}

func TestAppendOutOfOrderTolerance(t *testing.T) {
	s, clock := newTestStore(t)
	now := clock.Now()

	require.NoError(t, s.Append(reading(1, models.QuantityCO, 1, now)))
	require.NoError(t, s.Append(reading(1, models.QuantityCO, 2, now.Add(-3*time.Second))))

	err := s.Append(reading(1, models.QuantityCO, 3, now.Add(-6*time.Second)))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	snap := s.Snapshot(1, models.QuantityCO, now.Add(-time.Minute))
	require.Len(t, snap, 2)
	assert.Equal(t, 2.0, snap[0].Value)
	assert.Equal(t, 1.0, snap[1].Value)

	// Another series is unaffected by this one's newest timestamp.
	require.NoError(t, s.Append(reading(1, models.QuantityNO2, 1, now.Add(-time.Minute))))
}

func TestAppendEvictsRelativeToNewestSample(t *testing.T) {
	s, clock := newTestStore(t)
	t0 := clock.Now().Add(-7 * time.Hour)

	require.NoError(t, s.Append(reading(1, models.QuantityCO, 1, t0)))
	clock.Advance(2 * time.Hour)

	latest := clock.Now()
	require.NoError(t, s.Append(reading(1, models.QuantityCO, 2, latest)))

	snap := s.Snapshot(1, models.QuantityCO, time.Time{})
	require.Len(t, snap, 1)
	for _, sample := range snap {
		assert.False(t, sample.ObservedAt.Before(latest.Add(-8*time.Hour)))
	}
}

func TestEvictOlderThanRemovesEmptySeries(t *testing.T) {
	s, clock := newTestStore(t)
	now := clock.Now()

	require.NoError(t, s.Append(reading(1, models.QuantityCO, 1, now.Add(-2*time.Hour))))
	require.NoError(t, s.Append(reading(1, models.QuantityCO, 2, now)))
	require.NoError(t, s.Append(reading(2, models.QuantityNO2, 1, now.Add(-3*time.Hour))))

	removed := s.EvictOlderThan(now.Add(-time.Hour))
	assert.Equal(t, 2, removed)
	assert.Equal(t, []SeriesKey{{DeviceID: 1, Quantity: models.QuantityCO}}, s.Keys())

	// A removed series is recreated transparently.
	require.NoError(t, s.Append(reading(2, models.QuantityNO2, 4, now)))
	assert.Len(t, s.Snapshot(2, models.QuantityNO2, now.Add(-time.Minute)), 1)
}

func TestKeysSorted(t *testing.T) {
	s, clock := newTestStore(t)
	now := clock.Now()
	require.NoError(t, s.Append(reading(3, models.QuantityCO, 1, now)))
	require.NoError(t, s.Append(reading(1, models.QuantityNO2, 1, now)))
	require.NoError(t, s.Append(reading(1, models.QuantityCO, 1, now)))

	assert.Equal(t, []SeriesKey{
		{DeviceID: 1, Quantity: models.QuantityCO},
		{DeviceID: 1, Quantity: models.QuantityNO2},
		{DeviceID: 3, Quantity: models.QuantityCO},
	}, s.Keys())
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	s, clock := newTestStore(t)
	base := clock.Now().Add(-time.Hour)

	var wg sync.WaitGroup
	for d := 1; d <= 8; d++ {
		wg.Add(1)
		go func(device int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				err := s.Append(reading(device, models.QuantityCO, float64(i), base.Add(time.Duration(i)*time.Second)))
				if err != nil {
					panic(fmt.Sprintf("append: %v", err))
				}
			}
		}(d)
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for d := 1; d <= 8; d++ {
				snap := s.Snapshot(d, models.QuantityCO, base)
				for i := 1; i < len(snap); i++ {
					if snap[i].ObservedAt.Before(snap[i-1].ObservedAt) {
						panic("snapshot out of order")
					}
				}
			}
			s.EvictOlderThan(base.Add(-time.Minute))
		}
	}()

	wg.Wait()
	close(stop)
	readers.Wait()

	assert.Equal(t, 8*500, s.Len())
}
