// Package store holds the bounded in-memory time series of raw readings.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"GasMonitorAPI/internal/models"
)

var (
	// ErrStaleReading is returned for readings outside the retention horizon
	// or too far in the future.
	ErrStaleReading = errors.New("stale reading")
	// ErrOutOfOrder is returned for readings older than the newest stored
	// sample of the same series by more than the tolerance.
	ErrOutOfOrder = errors.New("reading out of order")
)

// SeriesKey identifies one (device, quantity) sequence.
type SeriesKey struct {
	DeviceID int
	Quantity models.Quantity
}

// Sample is one timestamped value in a series.
type Sample struct {
	Value      float64
	ObservedAt time.Time
}

type Options struct {
	// Retention bounds how far back samples are kept. Defaults to the longest window.
	Retention time.Duration
	// Tolerance is how far behind the newest sample a late arrival may be.
	Tolerance time.Duration
	// MaxFutureSkew rejects readings stamped too far ahead of the clock.
	MaxFutureSkew time.Duration
	Now           func() time.Time
}

type series struct {
	mu      sync.RWMutex
	samples []Sample
	// removed is set once the sweep has dropped this series from the map.
	removed bool
}

// Store is safe for concurrent use. The series map lock only guards
// membership; each series carries its own lock.
type Store struct {
	opts Options

	mu     sync.RWMutex
	series map[SeriesKey]*series
}

func New(opts Options) *Store {
	if opts.Retention <= 0 {
		opts.Retention = models.LongestWindow()
	}
	if opts.Tolerance < 0 {
		opts.Tolerance = 0
	}
	if opts.MaxFutureSkew <= 0 {
		opts.MaxFutureSkew = 2 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		opts:   opts,
		series: make(map[SeriesKey]*series),
	}
}

// Retention reports the configured horizon.
func (s *Store) Retention() time.Duration {
	return s.opts.Retention
}

// Append stores a reading, keeping the series ordered by time.
func (s *Store) Append(r models.Reading) error {
	now := s.opts.Now()
	if r.ObservedAt.Before(now.Add(-s.opts.Retention)) {
		return fmt.Errorf("%w: %s older than %s", ErrStaleReading, r.ObservedAt.Format(time.RFC3339), s.opts.Retention)
	}
	if r.ObservedAt.After(now.Add(s.opts.MaxFutureSkew)) {
		return fmt.Errorf("%w: %s is in the future", ErrStaleReading, r.ObservedAt.Format(time.RFC3339))
	}

	key := SeriesKey{DeviceID: r.DeviceID, Quantity: r.Quantity}
	ser := s.getOrCreate(key)
	ser.mu.Lock()
	for ser.removed {
		ser.mu.Unlock()
		ser = s.getOrCreate(key)
		ser.mu.Lock()
	}
	defer ser.mu.Unlock()

	sample := Sample{Value: r.Value, ObservedAt: r.ObservedAt}
	n := len(ser.samples)

	switch {
	case n == 0 || !r.ObservedAt.Before(ser.samples[n-1].ObservedAt):
		ser.samples = append(ser.samples, sample)
	case ser.samples[n-1].ObservedAt.Sub(r.ObservedAt) > s.opts.Tolerance:
		return fmt.Errorf("%w: %s behind newest sample by %s", ErrOutOfOrder,
			r.ObservedAt.Format(time.RFC3339), ser.samples[n-1].ObservedAt.Sub(r.ObservedAt))
	default:
		// Insert after any samples sharing the same timestamp.
		i := sort.Search(n, func(i int) bool {
			return ser.samples[i].ObservedAt.After(r.ObservedAt)
		})
		ser.samples = append(ser.samples, Sample{})
		copy(ser.samples[i+1:], ser.samples[i:])
		ser.samples[i] = sample
	}

	newest := ser.samples[len(ser.samples)-1].ObservedAt
	if now.After(newest) {
		newest = now
	}
	ser.evict(newest.Add(-s.opts.Retention))
	return nil
}

// Snapshot returns a copy of the samples with ObservedAt >= since, oldest first.
func (s *Store) Snapshot(deviceID int, quantity models.Quantity, since time.Time) []Sample {
	s.mu.RLock()
	ser, ok := s.series[SeriesKey{DeviceID: deviceID, Quantity: quantity}]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	ser.mu.RLock()
	defer ser.mu.RUnlock()

	i := sort.Search(len(ser.samples), func(i int) bool {
		return !ser.samples[i].ObservedAt.Before(since)
	})
	if i == len(ser.samples) {
		return nil
	}
	out := make([]Sample, len(ser.samples)-i)
	copy(out, ser.samples[i:])
	return out
}

// EvictOlderThan drops samples observed before cutoff and removes empty
// series. It returns the number of samples removed.
func (s *Store) EvictOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, ser := range s.series {
		ser.mu.Lock()
		removed += ser.evict(cutoff)
		if len(ser.samples) == 0 {
			ser.removed = true
			delete(s.series, key)
		}
		ser.mu.Unlock()
	}
	return removed
}

// Keys returns every live series ordered by device then quantity.
func (s *Store) Keys() []SeriesKey {
	s.mu.RLock()
	keys := make([]SeriesKey, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DeviceID != keys[j].DeviceID {
			return keys[i].DeviceID < keys[j].DeviceID
		}
		return keys[i].Quantity < keys[j].Quantity
	})
	return keys
}

// Len returns the total number of stored samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, ser := range s.series {
		ser.mu.RLock()
		total += len(ser.samples)
		ser.mu.RUnlock()
	}
	return total
}

func (s *Store) getOrCreate(key SeriesKey) *series {
	s.mu.RLock()
	ser, ok := s.series[key]
	s.mu.RUnlock()
	if ok {
		return ser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ser, ok = s.series[key]; ok {
		return ser
	}
	ser = &series{}
	s.series[key] = ser
	return ser
}

// evict must be called with ser.mu held.
func (ser *series) evict(cutoff time.Time) int {
	i := sort.Search(len(ser.samples), func(i int) bool {
		return !ser.samples[i].ObservedAt.Before(cutoff)
	})
	if i == 0 {
		return 0
	}
	ser.samples = append(ser.samples[:0:0], ser.samples[i:]...)
	return i
}
