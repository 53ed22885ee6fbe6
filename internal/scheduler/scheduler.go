// Package scheduler drives strictly periodic, non-overlapping jobs.
package scheduler

import (
	"context"
	"time"

	"GasMonitorAPI/internal/logger"
)

// TickFunc is invoked once per cycle with the cycle's reference time.
type TickFunc func(ctx context.Context, now time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// OnOverrun is called when a tick takes longer than Interval.
	OnOverrun func(elapsed time.Duration)
	Now       func() time.Time
}

// Scheduler runs one tick at a time. A tick that overruns the interval is
// followed immediately by the next one; ticks never overlap.
type Scheduler struct {
	opts Options
	log  *logger.Logger
}

func New(opts Options, log *logger.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{opts: opts, log: log.With("scheduler")}
}

// Run blocks, invoking tick every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(s.opts.Now())
	for {
		if delay := next.Sub(s.opts.Now()); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		started := s.opts.Now()
		if err := tick(ctx, started); err != nil {
			s.log.Error("Tick at %s failed: %v", started.Format(time.RFC3339), err)
		}

		elapsed := s.opts.Now().Sub(started)
		if elapsed > s.opts.Interval {
			s.log.Warn("Cycle overran interval: took %s, interval %s", elapsed, s.opts.Interval)
			if s.opts.OnOverrun != nil {
				s.opts.OnOverrun(elapsed)
			}
		}

		next = next.Add(s.opts.Interval)
		if now := s.opts.Now(); next.Before(now) {
			next = now
		}
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}
