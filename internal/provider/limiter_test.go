package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	l := NewAdaptiveLimiter("test", 4, 1)
	require.NotNil(t, l)
	assert.Equal(t, rate.Limit(4), l.Limit())

	for i := 0; i < 20; i++ {
		l.OnSuccess()
	}
	assert.Equal(t, rate.Limit(8), l.Limit(), "capped at twice the initial rate")

	for i := 0; i < 20; i++ {
		l.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(1), l.Limit(), "floored at a quarter of the initial rate")
}

func TestAdaptiveLimiter_HalvesOnRateLimit(t *testing.T) {
	l := NewAdaptiveLimiter("test", 2, 1)
	l.OnRateLimit()
	assert.Equal(t, rate.Limit(1), l.Limit())
	l.OnSuccess()
	assert.InDelta(t, 1.2, float64(l.Limit()), 1e-9)
}

func TestAdaptiveLimiter_NilIsUnlimited(t *testing.T) {
	l := NewAdaptiveLimiter("offline", 0, 1)
	assert.Nil(t, l)
	assert.NoError(t, l.Wait(context.Background()))
	l.OnSuccess()
	l.OnRateLimit()
	assert.Equal(t, rate.Inf, l.Limit())
}

func TestAdaptiveLimiter_WaitRespectsContext(t *testing.T) {
	l := NewAdaptiveLimiter("test", 0.001, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx))
}
