package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GasMonitorAPI/internal/identity"
	"GasMonitorAPI/internal/ingest"
	"GasMonitorAPI/internal/models"
)

type published struct {
	topic   string
	payload []byte
}

type recorder struct {
	mu   sync.Mutex
	msgs []published
	fail map[string]bool
}

func (r *recorder) PublishJSON(topic string, data interface{}) error {
	if r.fail[topic] {
		return errors.New("broker unavailable")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.msgs = append(r.msgs, published{topic, b})
	r.mu.Unlock()
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

var refNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTickPayloadsParseAndResolve(t *testing.T) {
	reg, err := identity.NewFleetRegistry("gas", 4)
	require.NoError(t, err)

	rec := &recorder{}
	sim, err := New(rec, Options{
		Devices:    4,
		Seed:       42,
		Identifier: reg.Identifier,
		Now:        func() time.Time { return refNow },
	}, nil)
	require.NoError(t, err)

	sent, err := sim.Tick()
	require.NoError(t, err)
	assert.Equal(t, 4, sent)
	require.Len(t, rec.msgs, 4)

	for i, m := range rec.msgs {
		assert.Equal(t, "safety/devices/"+reg.Identifier(i+1)+"/telemetry", m.topic)

		p, err := ingest.Parse(ingest.Message{Topic: m.topic, Payload: m.payload})
		require.NoError(t, err)
		assert.True(t, p.ObservedAt.Equal(refNow))
		assert.Len(t, p.Measurements, len(models.Quantities))

		id, err := reg.Resolve(p.RawID)
		require.NoError(t, err)
		assert.Equal(t, i+1, id)
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	run := func() []published {
		rec := &recorder{}
		sim, err := New(rec, Options{Devices: 3, Seed: 7, SpikeChance: 0.5, Now: func() time.Time { return refNow }}, nil)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			_, err := sim.Tick()
			require.NoError(t, err)
		}
		return rec.msgs
	}
	assert.Equal(t, run(), run())
}

func TestSpikesRaiseCO(t *testing.T) {
	rec := &recorder{}
	sim, err := New(rec, Options{Devices: 1, Seed: 1, SpikeChance: 1, Now: func() time.Time { return refNow }}, nil)
	require.NoError(t, err)

	_, err = sim.Tick()
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(rec.msgs[0].payload, &p))
	assert.Greater(t, p.CO, 100.0)
}

func TestTickContinuesPastFailures(t *testing.T) {
	rec := &recorder{fail: map[string]bool{"safety/devices/device-02/telemetry": true}}
	sim, err := New(rec, Options{Devices: 3, Seed: 3}, nil)
	require.NoError(t, err)

	sent, err := sim.Tick()
	assert.Error(t, err)
	assert.Equal(t, 2, sent)
}

func TestRunStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	sim, err := New(rec, Options{Devices: 2, Seed: 9, Interval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.count() >= 4 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Options{Devices: 1}, nil)
	assert.Error(t, err)

	_, err = New(&recorder{}, Options{}, nil)
	assert.Error(t, err)
}
