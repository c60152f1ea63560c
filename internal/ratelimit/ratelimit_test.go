package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiterSpacesActions(t *testing.T) {
	rl := NewSimpleRateLimiter(20*time.Millisecond, 40*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first action should not wait")

	start = time.Now()
	require.NoError(t, rl.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestSimpleRateLimiterHonoursCancellation(t *testing.T) {
	rl := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, rl.Wait(ctx), context.Canceled)
}

func TestAdaptiveRateLimiterBacksOff(t *testing.T) {
	rl := NewAdaptiveRateLimiter(0, 0)

	for i := 0; i < 3; i++ {
		rl.RecordError()
	}

	minDelay, maxDelay := rl.Delays()
	assert.Equal(t, backoffStep, minDelay)
	assert.Equal(t, backoffStep, maxDelay)
}

func TestAdaptiveRateLimiterRecoversToFloor(t *testing.T) {
	rl := NewAdaptiveRateLimiter(time.Second, 2*time.Second)
	for i := 0; i < 3; i++ {
		rl.RecordError()
	}
	backedOff, _ := rl.Delays()
	require.Greater(t, backedOff, time.Second)

	for i := 0; i < 100; i++ {
		rl.RecordSuccess()
	}

	minDelay, _ := rl.Delays()
	assert.Equal(t, time.Second, minDelay)
}
