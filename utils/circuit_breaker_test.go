package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func failingCall() (interface{}, error) { return nil, errUpstream }

func okCall() (interface{}, error) { return "ok", nil }

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(ctx, failingCall)
		assert.ErrorIs(t, err, errUpstream)
	}

	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(ctx, failingCall)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(ctx, failingCall)
	}
	_, err := cb.Execute(ctx, okCall)
	require.NoError(t, err)

	// The run restarts; four more failures do not trip it.
	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(ctx, failingCall)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerIgnoresCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 10; i++ {
		_, err := cb.Execute(cancelled, failingCall)
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenClosesAfterProbes(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(ctx, failingCall)
	}
	require.Equal(t, StateOpen, cb.State())

	// Force the cooldown to have elapsed.
	cb.mutex.Lock()
	cb.openedAt = cb.openedAt.Add(-cb.cooldown)
	cb.mutex.Unlock()

	require.Equal(t, StateHalfOpen, cb.State())

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, okCall)
		require.NoError(t, err)
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(ctx, failingCall)
	}

	cb.mutex.Lock()
	cb.openedAt = cb.openedAt.Add(-cb.cooldown)
	cb.mutex.Unlock()

	require.Equal(t, StateHalfOpen, cb.State())

	_, err := cb.Execute(ctx, failingCall)
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, cb.State())
}
