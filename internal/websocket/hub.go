package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/metrics"
	"GasMonitorAPI/internal/models"

	"github.com/google/uuid"
)

const DefaultQueueSize = 256

// ErrSessionClosed is returned by Next once a session is unregistered or the hub closes.
var ErrSessionClosed = errors.New("session closed")

// Session is one viewer's subscription. Events are buffered in a bounded
// ring; when it is full the oldest event is discarded.
type Session struct {
	ID string

	filter func(models.Event) bool

	mu    sync.Mutex
	buf   []models.Event
	head  int
	count int

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newSession(size int, filter func(models.Event) bool) *Session {
	return &Session{
		ID:     uuid.NewString(),
		filter: filter,
		buf:    make([]models.Event, size),
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push enqueues ev and reports whether an older event had to be dropped.
func (s *Session) push(ev models.Event) bool {
	s.mu.Lock()
	dropped := false
	if s.count == len(s.buf) {
		s.buf[s.head] = models.Event{}
		s.head = (s.head + 1) % len(s.buf)
		s.count--
		dropped = true
	}
	s.buf[(s.head+s.count)%len(s.buf)] = ev
	s.count++
	s.mu.Unlock()

	if dropped {
		s.dropped.Add(1)
	}
	select {
	case s.ready <- struct{}{}:
	default:
	}
	return dropped
}

func (s *Session) pop() (models.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return models.Event{}, false
	}
	ev := s.buf[s.head]
	s.buf[s.head] = models.Event{}
	s.head = (s.head + 1) % len(s.buf)
	s.count--
	return ev, true
}

func (s *Session) discard() {
	s.mu.Lock()
	for i := range s.buf {
		s.buf[i] = models.Event{}
	}
	s.head, s.count = 0, 0
	s.mu.Unlock()
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Next blocks until an event is available, the session closes or ctx is done.
func (s *Session) Next(ctx context.Context) (models.Event, error) {
	for {
		select {
		case <-s.done:
			return models.Event{}, ErrSessionClosed
		default:
		}
		if ev, ok := s.pop(); ok {
			return ev, nil
		}
		select {
		case <-ctx.Done():
			return models.Event{}, ctx.Err()
		case <-s.done:
			return models.Event{}, ErrSessionClosed
		case <-s.ready:
		}
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Dropped returns the number of events this session lost to a full queue.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Pending returns the number of queued events.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

type HubOptions struct {
	QueueSize     int
	StatsInterval time.Duration
}

// Hub fans events out to every registered session. Publish never blocks on
// a consumer.
type Hub struct {
	opts    HubOptions
	log     *logger.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

func NewHub(opts HubOptions, m *metrics.Metrics, log *logger.Logger) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Minute
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		opts:     opts,
		log:      log.With("hub"),
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Register creates a session receiving every event published from now on.
func (h *Hub) Register() *Session {
	return h.RegisterFiltered(nil)
}

// RegisterFiltered creates a session that only receives events accepted by filter.
func (h *Hub) RegisterFiltered(filter func(models.Event) bool) *Session {
	s := newSession(h.opts.QueueSize, filter)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close()
		return s
	}
	h.sessions[s.ID] = s
	total := len(h.sessions)
	h.mu.Unlock()

	h.metrics.HubSessions.Inc()
	h.log.Info("Viewer session %s registered. Total: %d", s.ID, total)
	return s
}

// Unregister removes the session and discards anything still queued.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	total := len(h.sessions)
	h.mu.Unlock()

	s.close()
	s.discard()
	if ok {
		h.metrics.HubSessions.Dec()
		h.log.Info("Viewer session %s unregistered (dropped %d). Total: %d", s.ID, s.Dropped(), total)
	}
}

func (h *Hub) Publish(ev models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	for _, s := range h.sessions {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		if s.push(ev) {
			h.metrics.HubEventsDropped.Inc()
		}
	}
	h.metrics.RecordPublished(string(ev.Type))
}

// Run reports slow consumers periodically and closes the hub when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Broadcast hub started")
	ticker := time.NewTicker(h.opts.StatsInterval)
	defer ticker.Stop()

	last := make(map[string]uint64)
	for {
		select {
		case <-ctx.Done():
			h.log.Info("Broadcast hub shutting down...")
			h.Close()
			return
		case <-ticker.C:
			h.mu.RLock()
			for id, s := range h.sessions {
				d := s.Dropped()
				if d > last[id] {
					h.log.Warn("Slow consumer %s: %d events dropped since last report", id, d-last[id])
				}
				last[id] = d
			}
			for id := range last {
				if _, ok := h.sessions[id]; !ok {
					delete(last, id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Close ends every session. Later registrations are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
		s.discard()
		h.metrics.HubSessions.Dec()
	}
	h.log.Info("Broadcast hub closed %d sessions", len(sessions))
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
