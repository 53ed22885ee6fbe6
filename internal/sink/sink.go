// Package sink persists readings, aggregates and alerts off the live path.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/metrics"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/retry"
)

// ErrSinkUnavailable wraps a batch write that failed after all retries.
var ErrSinkUnavailable = errors.New("persistence sink unavailable")

const (
	KindReading   = "reading"
	KindAggregate = "aggregate"
	KindAlert     = "alert"
)

// Writer persists batches. Implementations must be idempotent per record so
// that a retried batch does not duplicate rows.
type Writer interface {
	WriteReadings(ctx context.Context, readings []models.Reading) error
	WriteAggregates(ctx context.Context, aggregates []models.Aggregate) error
	WriteAlerts(ctx context.Context, alerts []models.Alert) error
}

type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
	Retry         retry.Config
}

type record struct {
	kind      string
	reading   models.Reading
	aggregate models.Aggregate
	alert     models.Alert
}

type batch struct {
	readings   []models.Reading
	aggregates []models.Aggregate
	alerts     []models.Alert
}

func (b *batch) size() int {
	return len(b.readings) + len(b.aggregates) + len(b.alerts)
}

func (b *batch) add(r record) {
	switch r.kind {
	case KindReading:
		b.readings = append(b.readings, r.reading)
	case KindAggregate:
		b.aggregates = append(b.aggregates, r.aggregate)
	case KindAlert:
		b.alerts = append(b.alerts, r.alert)
	}
}

// Sink buffers records in a bounded queue and writes them in batches from a
// single goroutine. Enqueueing never blocks; a full queue drops the record.
// A nil *Sink accepts and discards everything.
type Sink struct {
	w       Writer
	opts    Options
	metrics *metrics.Metrics
	log     *logger.Logger

	queue chan record
	done  chan struct{}
	exit  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

func New(w Writer, opts Options, m *metrics.Metrics, log *logger.Logger) *Sink {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sink{
		w:       w,
		opts:    opts,
		metrics: m,
		log:     log.With("sink"),
		queue:   make(chan record, opts.QueueSize),
		done:    make(chan struct{}),
		exit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the writer goroutine.
func (s *Sink) Start() {
	if s == nil || !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.loop()
	s.log.Info("Persistence sink started (batch %d, every %s)", s.opts.BatchSize, s.opts.FlushInterval)
}

func (s *Sink) RecordReading(r models.Reading) {
	s.enqueue(record{kind: KindReading, reading: r})
}

func (s *Sink) RecordAggregate(a models.Aggregate) {
	s.enqueue(record{kind: KindAggregate, aggregate: a})
}

func (s *Sink) RecordAlert(a models.Alert) {
	s.enqueue(record{kind: KindAlert, alert: a})
}

func (s *Sink) enqueue(r record) {
	if s == nil {
		return
	}
	if s.closed.Load() {
		s.metrics.SinkDropped.Inc()
		return
	}
	select {
	case s.queue <- r:
	default:
		s.metrics.SinkDropped.Inc()
	}
}

// Close stops accepting records and flushes what is pending. When ctx
// expires first, retries are abandoned and the remainder is dropped.
func (s *Sink) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
	if !s.started.Load() {
		s.cancel()
		return nil
	}

	select {
	case <-s.exit:
		s.cancel()
		s.log.Info("Persistence sink flushed and stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-s.exit
		return fmt.Errorf("sink: flush interrupted: %w", ctx.Err())
	}
}

func (s *Sink) loop() {
	defer close(s.exit)

	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	var pending batch
	for {
		select {
		case r := <-s.queue:
			pending.add(r)
			if pending.size() >= s.opts.BatchSize {
				s.flush(&pending)
			}
		case <-ticker.C:
			s.flush(&pending)
		case <-s.done:
			for {
				select {
				case r := <-s.queue:
					pending.add(r)
					if pending.size() >= s.opts.BatchSize {
						s.flush(&pending)
					}
				default:
					s.flush(&pending)
					return
				}
			}
		}
	}
}

func (s *Sink) flush(b *batch) {
	if b.size() == 0 {
		return
	}
	s.write(KindReading, len(b.readings), func(ctx context.Context) error {
		return s.w.WriteReadings(ctx, b.readings)
	})
	s.write(KindAggregate, len(b.aggregates), func(ctx context.Context) error {
		return s.w.WriteAggregates(ctx, b.aggregates)
	})
	s.write(KindAlert, len(b.alerts), func(ctx context.Context) error {
		return s.w.WriteAlerts(ctx, b.alerts)
	})
	*b = batch{}
}

func (s *Sink) write(kind string, n int, fn func(ctx context.Context) error) {
	if n == 0 {
		return
	}
	err := retry.Do(s.ctx, s.opts.Retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
		return fn(ctx)
	})
	if err != nil {
		err = fmt.Errorf("%w: %d %s records: %w", ErrSinkUnavailable, n, kind, err)
		s.metrics.SinkFailures.Inc()
		s.metrics.SinkDropped.Add(float64(n))
		s.log.Error("%v", err)
		return
	}
	s.metrics.RecordSinkWritten(kind, n)
}
