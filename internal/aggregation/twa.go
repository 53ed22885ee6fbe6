package aggregation

import (
	"errors"
	"time"

	"GasMonitorAPI/internal/store"
)

// ErrEmptyWindow marks a window with no usable data. It is not surfaced as a failure.
var ErrEmptyWindow = errors.New("empty window")

// TimeWeightedAverage computes the TWA of samples (oldest first) up to now.
// Each sample holds until the next one; the last holds until now. The result
// is averaged over the time actually covered, i.e. now minus the first
// sample. Samples after now are ignored.
func TimeWeightedAverage(samples []store.Sample, now time.Time) (mean float64, count int, err error) {
	var (
		weighted float64
		first    time.Time
	)

	for i, s := range samples {
		if s.ObservedAt.After(now) {
			break
		}
		if count == 0 {
			first = s.ObservedAt
		}
		end := now
		if i+1 < len(samples) && !samples[i+1].ObservedAt.After(now) {
			end = samples[i+1].ObservedAt
		}
		weighted += s.Value * end.Sub(s.ObservedAt).Seconds()
		count++
	}

	if count == 0 {
		return 0, 0, ErrEmptyWindow
	}
	covered := now.Sub(first).Seconds()
	if covered <= 0 {
		return 0, count, ErrEmptyWindow
	}
	return weighted / covered, count, nil
}
