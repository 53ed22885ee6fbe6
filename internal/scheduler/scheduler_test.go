package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"GasMonitorAPI/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerTicksUntilCancelled(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, now time.Time) error {
			if ticks.Add(1) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(3), ticks.Load())
}

func TestSchedulerStopsDuringStartupDelay(t *testing.T) {
	s := New(Options{Interval: time.Millisecond, StartupDelay: time.Hour}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := s.Run(ctx, func(ctx context.Context, now time.Time) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestSchedulerContinuesAfterTickError(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, now time.Time) error {
		if ticks.Add(1) >= 2 {
			cancel()
		}
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), ticks.Load())
}

func TestSchedulerOverrunRunsNextImmediately(t *testing.T) {
	var overruns atomic.Int32
	s := New(Options{
		Interval:  10 * time.Millisecond,
		OnOverrun: func(time.Duration) { overruns.Add(1) },
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		ticks   atomic.Int32
		running atomic.Bool
		stamps  []time.Time
	)
	err := s.Run(ctx, func(ctx context.Context, now time.Time) error {
		require.True(t, running.CompareAndSwap(false, true), "ticks overlapped")
		defer running.Store(false)

		stamps = append(stamps, now)
		if ticks.Add(1) == 1 {
			time.Sleep(35 * time.Millisecond)
			return nil
		}
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, stamps, 2)
	assert.Equal(t, int32(1), overruns.Load())
	// The catch-up tick fires without waiting a full interval after the overrun.
	assert.Less(t, stamps[1].Sub(stamps[0]), 70*time.Millisecond)
}

func TestSchedulerAlignToStart(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 7, 0, time.UTC)
	s := New(Options{Interval: time.Minute, AlignToStart: true, Now: func() time.Time { return base }}, logger.Nop())
	assert.Equal(t, time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC), s.nextTick(base))

	s = New(Options{Interval: time.Minute, Now: func() time.Time { return base }}, logger.Nop())
	assert.Equal(t, base.Add(time.Minute), s.nextTick(base))
}

func TestNewPanicsOnInvalidInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, logger.Nop()) })
}
