// Package ingest turns inbound transport messages into stored readings.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/metrics"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/store"
)

var (
	ErrUnknownDevice  = errors.New("unknown device")
	ErrQueueFull      = errors.New("ingest queue full")
	ErrGatewayStopped = errors.New("ingest gateway stopped")
	ErrNotStarted     = errors.New("ingest gateway not started")
)

type Resolver interface {
	Resolve(raw string) (int, error)
}

type ReadingStore interface {
	Append(r models.Reading) error
}

type Publisher interface {
	Publish(event models.Event)
}

// ReadingRecorder receives every stored reading for persistence. It must not block.
type ReadingRecorder interface {
	RecordReading(r models.Reading)
}

type Options struct {
	QueueSize      int `mapstructure:"queue_size"`
	Workers        int `mapstructure:"workers"`
	ShardQueueSize int `mapstructure:"shard_queue_size"`
}

type Config struct {
	Resolver  Resolver
	Store     ReadingStore
	Publisher Publisher
	Recorder  ReadingRecorder
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
	Options   Options
}

// Result summarises one processed message.
type Result struct {
	DeviceID int
	Stored   int
	Rejected int
}

type work struct {
	parsed   Parsed
	received time.Time
}

// Gateway queues inbound messages and processes them on per-device shards:
// messages of one device are handled in arrival order, different devices in
// parallel. The dispatcher never waits on a shard; overflow is dropped and
// counted as queue_full.
type Gateway struct {
	cfg Config
	log *logger.Logger

	inbound chan Message
	shards  []chan work
	quit    chan struct{}
	wg      sync.WaitGroup

	mu       sync.RWMutex
	started  bool
	stopped  bool
	quitOnce sync.Once
}

func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.Resolver == nil || cfg.Store == nil {
		return nil, fmt.Errorf("ingest: resolver and store are required")
	}
	if cfg.Options.QueueSize <= 0 {
		cfg.Options.QueueSize = 1024
	}
	if cfg.Options.Workers <= 0 {
		cfg.Options.Workers = 4
	}
	if cfg.Options.ShardQueueSize <= 0 {
		cfg.Options.ShardQueueSize = 64
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	g := &Gateway{
		cfg:     cfg,
		log:     cfg.Logger.With("ingest"),
		inbound: make(chan Message, cfg.Options.QueueSize),
		shards:  make([]chan work, cfg.Options.Workers),
		quit:    make(chan struct{}),
	}
	for i := range g.shards {
		g.shards[i] = make(chan work, cfg.Options.ShardQueueSize)
	}
	return g, nil
}

// Start launches the dispatcher and shard workers.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return ErrGatewayStopped
	}
	if g.started {
		return nil
	}
	g.started = true

	for i, shard := range g.shards {
		g.wg.Add(1)
		go g.worker(i, shard)
	}
	g.wg.Add(1)
	go g.dispatch()

	g.log.Info("Ingestion gateway started with %d workers (queue %d)", len(g.shards), cap(g.inbound))
	return nil
}

// Submit enqueues msg. When the queue stays full until ctx is done the
// message is dropped and ErrQueueFull returned.
func (g *Gateway) Submit(ctx context.Context, msg Message) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.stopped {
		return ErrGatewayStopped
	}
	if !g.started {
		return ErrNotStarted
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	select {
	case g.inbound <- msg:
		return nil
	default:
	}

	select {
	case g.inbound <- msg:
		return nil
	case <-g.quit:
		return ErrGatewayStopped
	case <-ctx.Done():
		g.cfg.Metrics.RecordMessage(metrics.ResultQueueFull)
		g.log.Warn("Inbound queue full, dropping message from %s", msg.Topic)
		return ErrQueueFull
	}
}

// Stop refuses new messages, drains what is queued and waits for the
// workers, bounded by ctx.
func (g *Gateway) Stop(ctx context.Context) error {
	g.quitOnce.Do(func() { close(g.quit) })

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	wasStarted := g.started
	close(g.inbound)
	g.mu.Unlock()

	if !wasStarted {
		return nil
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		g.log.Info("Ingestion gateway stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ingest: drain interrupted: %w", ctx.Err())
	}
}

func (g *Gateway) dispatch() {
	defer g.wg.Done()
	defer func() {
		for _, shard := range g.shards {
			close(shard)
		}
	}()

	for msg := range g.inbound {
		p, err := Parse(msg)
		if err != nil {
			g.cfg.Metrics.RecordMessage(metrics.ResultMalformed)
			g.log.Debug("Discarding message from %s: %v", msg.Topic, err)
			continue
		}
		// A full shard sheds the message so one stalled device cannot hold
		// up the devices hashed to the other shards.
		select {
		case g.shards[shardFor(p.RawID, len(g.shards))] <- work{parsed: p, received: msg.ReceivedAt}:
		default:
			g.cfg.Metrics.RecordMessage(metrics.ResultQueueFull)
			g.log.Warn("Shard queue full, dropping message from %s", p.RawID)
		}
	}
}

func shardFor(rawID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(rawID))
	return int(h.Sum32() % uint32(n))
}

func (g *Gateway) worker(id int, shard <-chan work) {
	defer g.wg.Done()
	for w := range shard {
		started := time.Now()
		if _, err := g.Process(w.parsed); err != nil {
			g.log.Debug("Worker %d: %v", id, err)
		}
		g.cfg.Metrics.RecordIngestDuration(time.Since(started))
	}
}

// Process resolves, stores and publishes one normalized message. Rejected
// readings are counted and do not fail the message.
func (g *Gateway) Process(p Parsed) (Result, error) {
	deviceID, err := g.cfg.Resolver.Resolve(p.RawID)
	if err != nil {
		g.cfg.Metrics.RecordMessage(metrics.ResultUnknownDevice)
		return Result{}, fmt.Errorf("%w %q: %w", ErrUnknownDevice, p.RawID, err)
	}
	g.cfg.Metrics.RecordMessage(metrics.ResultAccepted)

	res := Result{DeviceID: deviceID}
	for _, m := range p.Measurements {
		r := models.Reading{
			DeviceID:   deviceID,
			Quantity:   m.Quantity,
			Value:      m.Value,
			ObservedAt: p.ObservedAt,
		}

		if err := g.cfg.Store.Append(r); err != nil {
			res.Rejected++
			switch {
			case errors.Is(err, store.ErrStaleReading):
				g.cfg.Metrics.RecordRejected(metrics.ReasonStale)
			case errors.Is(err, store.ErrOutOfOrder):
				g.cfg.Metrics.RecordRejected(metrics.ReasonOutOfOrder)
			}
			g.log.Debug("Rejected %s: %v", r, err)
			continue
		}

		res.Stored++
		g.cfg.Metrics.ReadingsStored.Inc()
		if g.cfg.Publisher != nil {
			g.cfg.Publisher.Publish(models.NewReadingEvent(r))
		}
		if g.cfg.Recorder != nil {
			g.cfg.Recorder.RecordReading(r)
		}
	}
	return res, nil
}

// Pending reports the number of messages waiting in the inbound queue.
func (g *Gateway) Pending() int {
	return len(g.inbound)
}
