// Package simulator publishes a synthetic device fleet over MQTT.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/mqtt"
)

// Publisher sends one JSON payload to a topic.
type Publisher interface {
	PublishJSON(topic string, data interface{}) error
}

type Options struct {
	Devices  int
	Interval time.Duration
	Seed     int64
	// SpikeChance is the per-tick probability that a device starts a CO excursion.
	SpikeChance float64
	// Topic is the telemetry pattern; its wildcard is filled with the device id.
	Topic string
	// Identifier renders the wire id for an ordinal.
	Identifier func(ordinal int) string
	Now        func() time.Time
}

// Payload is the flat telemetry shape the gateway accepts.
type Payload struct {
	ID          string  `json:"id"`
	Timestamp   float64 `json:"ts"`
	CO          float64 `json:"co"`
	NO2         float64 `json:"no2"`
	H2S         float64 `json:"h2s"`
	O2          float64 `json:"o2"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

type device struct {
	id       string
	baseCO   float64
	baseTemp float64
	// spike is the number of ticks left in the current excursion.
	spike     int
	spikePeak float64
}

type Simulator struct {
	pub   Publisher
	opts  Options
	log   *logger.Logger
	rng   *rand.Rand
	fleet []*device
	ticks int
}

func New(pub Publisher, opts Options, log *logger.Logger) (*Simulator, error) {
	if pub == nil {
		return nil, fmt.Errorf("simulator: publisher is required")
	}
	if opts.Devices <= 0 {
		return nil, fmt.Errorf("simulator: devices must be positive, got %d", opts.Devices)
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Topic == "" {
		opts.Topic = "safety/devices/+/telemetry"
	}
	if opts.Identifier == nil {
		opts.Identifier = func(ordinal int) string { return fmt.Sprintf("device-%02d", ordinal) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Simulator{
		pub:  pub,
		opts: opts,
		log:  log.With("simulator"),
		rng:  rand.New(rand.NewSource(seed)),
	}
	for i := 1; i <= opts.Devices; i++ {
		s.fleet = append(s.fleet, &device{
			id:       opts.Identifier(i),
			baseCO:   2 + s.rng.Float64()*8,
			baseTemp: 18 + s.rng.Float64()*6,
		})
	}
	return s, nil
}

// Run publishes one payload per device every interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	s.log.Info("Simulating %d devices every %s on %s", len(s.fleet), s.opts.Interval, s.opts.Topic)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(); err != nil {
			s.log.Warn("Simulation tick incomplete: %v", err)
		}
		select {
		case <-ctx.Done():
			s.log.Info("Simulator stopped after %d ticks", s.ticks)
			return nil
		case <-ticker.C:
		}
	}
}

// Tick publishes one payload for every device and reports how many were sent.
// Publishing continues past individual failures; the last error is returned.
func (s *Simulator) Tick() (int, error) {
	now := s.opts.Now()
	s.ticks++

	var lastErr error
	sent := 0
	for _, d := range s.fleet {
		p := s.sample(d, now)
		topic := mqtt.DeviceTopic(s.opts.Topic, d.id)
		if err := s.pub.PublishJSON(topic, p); err != nil {
			lastErr = fmt.Errorf("publish %s: %w", d.id, err)
			continue
		}
		sent++
	}
	return sent, lastErr
}

func (s *Simulator) sample(d *device, now time.Time) Payload {
	if d.spike == 0 && s.rng.Float64() < s.opts.SpikeChance {
		d.spike = 3 + s.rng.Intn(6)
		d.spikePeak = 150 + s.rng.Float64()*250
		s.log.Debug("Device %s starting CO excursion to %.0f ppm", d.id, d.spikePeak)
	}

	co := d.baseCO + s.rng.NormFloat64()
	if d.spike > 0 {
		co += d.spikePeak
		d.spike--
	}

	// Slow daily swing so long windows see movement.
	phase := 2 * math.Pi * float64(now.Hour()*60+now.Minute()) / (24 * 60)

	return Payload{
		ID:          d.id,
		Timestamp:   float64(now.UnixMilli()) / 1000,
		CO:          round(math.Max(0, co), 2),
		NO2:         round(math.Max(0, 0.05+0.02*s.rng.NormFloat64()), 3),
		H2S:         round(math.Max(0, 0.2+0.1*s.rng.NormFloat64()), 3),
		O2:          round(20.9+0.05*s.rng.NormFloat64(), 2),
		Temperature: round(d.baseTemp+2*math.Sin(phase)+0.2*s.rng.NormFloat64(), 2),
		Humidity:    round(math.Min(100, math.Max(0, 45+10*math.Cos(phase)+s.rng.NormFloat64())), 1),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
