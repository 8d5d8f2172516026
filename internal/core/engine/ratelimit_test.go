package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestRateLimiterWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(clock.Now)

	require.True(t, limiter.Admit(2))
	limiter.Record()
	require.True(t, limiter.Admit(2))
	limiter.Record()
	require.False(t, limiter.Admit(2))
	require.Equal(t, 2, limiter.WindowCount())

	first := clock.Now()
	assert.Equal(t, first.Add(RateWindow), limiter.NextAllowedTime())

	clock.Advance(RateWindow)
	require.False(t, limiter.Admit(2), "dispatch exactly one window old still counts")

	clock.Advance(time.Millisecond)
	require.True(t, limiter.Admit(2))
	require.Equal(t, 0, limiter.WindowCount())
}

func TestRateLimiterAdmitDoesNotRecord(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(clock.Now)

	for range 5 {
		require.True(t, limiter.Admit(1))
	}
	require.Equal(t, 0, limiter.WindowCount())
	require.Equal(t, clock.Now(), limiter.NextAllowedTime())
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(clock.Now)

	limiter.Record()
	clock.Advance(30 * time.Second)
	second := clock.Now()
	limiter.Record()
	require.False(t, limiter.Admit(2))

	clock.Advance(30*time.Second + time.Millisecond)
	require.True(t, limiter.Admit(2))
	require.Equal(t, 1, limiter.WindowCount())
	assert.Equal(t, second.Add(RateWindow), limiter.NextAllowedTime())
}

func TestRateLimiterPauseMonotonic(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(clock.Now)

	require.False(t, limiter.IsPaused())
	require.True(t, limiter.PauseUntil().IsZero())

	until, extended := limiter.EnterPause(5 * time.Minute)
	require.True(t, extended)
	require.Equal(t, clock.Now().Add(5*time.Minute), until)
	require.True(t, limiter.IsPaused())

	shorter, extended := limiter.EnterPause(time.Minute)
	require.False(t, extended)
	require.Equal(t, until, shorter)
	require.Equal(t, until, limiter.PauseUntil())

	clock.Advance(time.Minute)
	longer, extended := limiter.EnterPause(10 * time.Minute)
	require.True(t, extended)
	require.Equal(t, clock.Now().Add(10*time.Minute), longer)
	require.True(t, longer.After(until))
}

func TestRateLimiterClearIfElapsed(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(clock.Now)

	require.False(t, limiter.ClearIfElapsed())

	limiter.EnterPause(time.Minute)
	clock.Advance(59 * time.Second)
	require.False(t, limiter.ClearIfElapsed())
	require.True(t, limiter.IsPaused())

	clock.Advance(time.Second)
	require.False(t, limiter.IsPaused())
	require.True(t, limiter.ClearIfElapsed())
	require.True(t, limiter.PauseUntil().IsZero())
	require.False(t, limiter.ClearIfElapsed())
}

func TestRateLimiterPauseIndependentOfWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(clock.Now)

	limiter.EnterPause(time.Minute)
	require.True(t, limiter.Admit(10), "admission ignores the pause")
	require.True(t, limiter.IsPaused())
}
