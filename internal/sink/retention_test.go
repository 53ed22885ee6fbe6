package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) DeleteOld(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 2, f.err
}

func TestRetentionSweepUsesReferenceTime(t *testing.T) {
	p := &fakePruner{}
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, NewRetention(p, 30*24*time.Hour, nil).Sweep(context.Background(), now))
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), p.cutoffs[0])
}

func TestRetentionDisabled(t *testing.T) {
	p := &fakePruner{}
	require.NoError(t, NewRetention(p, 0, nil).Sweep(context.Background(), time.Now()))
	assert.Empty(t, p.cutoffs)
}

func TestRetentionSweepWrapsErrors(t *testing.T) {
	boom := errors.New("connection reset")
	err := NewRetention(&fakePruner{err: boom}, time.Hour, nil).Sweep(context.Background(), time.Now())
	assert.ErrorIs(t, err, boom)
}
