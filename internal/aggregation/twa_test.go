package aggregation

import (
	"testing"
	"time"

	"GasMonitorAPI/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(offset time.Duration, v float64) store.Sample {
	return store.Sample{Value: v, ObservedAt: refNow.Add(offset)}
}

func TestTimeWeightedAverageEvenIntervals(t *testing.T) {
	mean, count, err := TimeWeightedAverage([]store.Sample{
		at(-10*time.Minute, 2),
		at(-5*time.Minute, 4),
	}, refNow)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.InDelta(t, 3.0, mean, 1e-9)
}

func TestTimeWeightedAverageUnevenIntervals(t *testing.T) {
	// 10 for 6 minutes, then 1 for 3 minutes: (10*360 + 1*180) / 540.
	mean, count, err := TimeWeightedAverage([]store.Sample{
		at(-9*time.Minute, 10),
		at(-3*time.Minute, 1),
	}, refNow)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.InDelta(t, 7.0, mean, 1e-9)
}

func TestTimeWeightedAverageUsesCoveredDuration(t *testing.T) {
	// Three minutes of data in a ten-minute window averages over three minutes.
	mean, count, err := TimeWeightedAverage([]store.Sample{
		at(-3*time.Minute, 6),
		at(-2*time.Minute, 6),
		at(-1*time.Minute, 6),
	}, refNow)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.InDelta(t, 6.0, mean, 1e-9)
}

func TestTimeWeightedAverageManySamples(t *testing.T) {
	var samples []store.Sample
	var weighted float64
	for i := 0; i < 120; i++ {
		v := float64(i % 7)
		samples = append(samples, at(time.Duration(i-120)*5*time.Second, v))
		weighted += v * 5
	}
	mean, count, err := TimeWeightedAverage(samples, refNow)
	require.NoError(t, err)
	assert.Equal(t, 120, count)
	assert.InDelta(t, weighted/600, mean, 1e-9)
}

func TestTimeWeightedAverageEmpty(t *testing.T) {
	_, count, err := TimeWeightedAverage(nil, refNow)
	assert.ErrorIs(t, err, ErrEmptyWindow)
	assert.Zero(t, count)
}

func TestTimeWeightedAverageZeroElapsed(t *testing.T) {
	_, _, err := TimeWeightedAverage([]store.Sample{at(0, 42)}, refNow)
	assert.ErrorIs(t, err, ErrEmptyWindow)
}

func TestTimeWeightedAverageIgnoresFutureSamples(t *testing.T) {
	mean, count, err := TimeWeightedAverage([]store.Sample{
		at(-time.Minute, 2),
		at(30*time.Second, 100),
	}, refNow)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.InDelta(t, 2.0, mean, 1e-9)
}
