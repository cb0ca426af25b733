package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestAdaptiveLimiter_HalvesOnThrottle(t *testing.T) {
	t.Parallel()
	a := NewAdaptiveLimiter(0.5, 1)
	assert.Equal(t, rate.Limit(0.5), a.Limit())

	a.OnThrottle()
	assert.Equal(t, rate.Limit(0.25), a.Limit())

	a.OnThrottle()
	assert.Equal(t, rate.Limit(0.125), a.Limit())
}

func TestAdaptiveLimiter_FloorsAtSixteenth(t *testing.T) {
	t.Parallel()
	a := NewAdaptiveLimiter(0.5, 1)
	for i := 0; i < 12; i++ {
		a.OnThrottle()
	}
	assert.Equal(t, rate.Limit(0.5/16), a.Limit())
}

func TestAdaptiveLimiter_NeverExceedsInitialRate(t *testing.T) {
	t.Parallel()
	a := NewAdaptiveLimiter(2, 1)
	for i := 0; i < 5; i++ {
		a.OnThrottle()
		assert.LessOrEqual(t, a.Limit(), rate.Limit(2))
	}
}

func TestAdaptiveLimiter_WaitHonorsCancellation(t *testing.T) {
	t.Parallel()
	a := NewAdaptiveLimiter(0.001, 1)

	// Burn the single burst token so the next wait would block for
	// a very long time.
	require.NoError(t, a.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := a.Wait(ctx)
	require.Error(t, err)
}

func TestAdaptiveLimiter_MinimumBurst(t *testing.T) {
	t.Parallel()
	a := NewAdaptiveLimiter(1, 0)
	require.NoError(t, a.Wait(context.Background()))
}
