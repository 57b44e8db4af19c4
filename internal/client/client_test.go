package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffGrowsExponentiallyWithinJitterBounds(t *testing.T) {
	c := New(Options{URL: "ws://example.invalid/ws"})

	cases := []struct {
		attempt int
		base    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("attempt %d", tc.attempt), func(t *testing.T) {
			for i := 0; i < 50; i++ {
				delay := c.backoff(tc.attempt)
				lo := time.Duration(float64(tc.base) * jitterMin)
				hi := time.Duration(float64(tc.base) * (jitterMin + jitterRange))
				assert.GreaterOrEqual(t, delay, lo)
				assert.Less(t, delay, hi)
			}
		})
	}
}

func TestBackoffCappedAtMax(t *testing.T) {
	c := New(Options{URL: "ws://example.invalid/ws"})

	// Attempt 5 onward would exceed 30s before jitter; the cap applies to
	// the base, jitter may still push the result up to 1.25x the cap.
	for _, attempt := range []int{5, 6, 10, 30} {
		delay := c.backoff(attempt)
		lo := time.Duration(float64(30*time.Second) * jitterMin)
		hi := time.Duration(float64(30*time.Second) * (jitterMin + jitterRange))
		assert.GreaterOrEqual(t, delay, lo, "attempt %d", attempt)
		assert.Less(t, delay, hi, "attempt %d", attempt)
	}
}

func TestBackoffHonorsCustomSchedule(t *testing.T) {
	c := New(Options{
		URL:            "ws://example.invalid/ws",
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     3,
	})

	delay := c.backoff(1) // base 300ms
	assert.GreaterOrEqual(t, delay, time.Duration(float64(300*time.Millisecond)*jitterMin))
	assert.Less(t, delay, time.Duration(float64(300*time.Millisecond)*(jitterMin+jitterRange)))

	delay = c.backoff(4) // base 8.1s, capped to 1s
	assert.LessOrEqual(t, delay, time.Duration(float64(time.Second)*(jitterMin+jitterRange)))
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Options{URL: "ws://example.invalid/ws"})
	assert.Equal(t, defaultInitialBackoff, c.opts.InitialBackoff)
	assert.Equal(t, defaultMaxBackoff, c.opts.MaxBackoff)
	assert.Equal(t, defaultMultiplier, c.opts.Multiplier)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New(Options{URL: "ws://example.invalid/ws"})
	err := c.Send(map[string]string{"type": "session:start"})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSendAfterClose(t *testing.T) {
	c := New(Options{URL: "ws://example.invalid/ws"})
	require.NoError(t, c.Close())
	err := c.Send(map[string]string{"type": "session:start"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New(Options{URL: "ws://example.invalid/ws"})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
