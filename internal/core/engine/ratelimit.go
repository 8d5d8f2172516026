package engine

import "time"

// RateWindow is the trailing window admission control counts over.
const RateWindow = 60 * time.Second

// RateLimiter combines preventive admission over a sliding window with a
// reactive global pause. It is owned by the scheduler goroutine and is not
// safe for concurrent use.
type RateLimiter struct {
	Clock  func() time.Time
	Window time.Duration

	dispatches  []time.Time
	pausedUntil time.Time
}

// NewRateLimiter returns a limiter over the standard 60s window.
func NewRateLimiter(clock func() time.Time) *RateLimiter {
	return &RateLimiter{Clock: clock, Window: RateWindow}
}

// Admit reports whether one more dispatch keeps the window under rpm.
// It does not record anything.
func (r *RateLimiter) Admit(rpm int) bool {
	r.prune()
	return len(r.dispatches) < rpm
}

// Record notes a dispatch at the current time.
func (r *RateLimiter) Record() {
	r.dispatches = append(r.dispatches, r.now())
}

// NextAllowedTime is when the oldest recorded dispatch leaves the window.
// With an empty window it is now.
func (r *RateLimiter) NextAllowedTime() time.Time {
	r.prune()
	if len(r.dispatches) == 0 {
		return r.now()
	}
	return r.dispatches[0].Add(r.window())
}

// WindowCount returns the number of dispatches still inside the window.
func (r *RateLimiter) WindowCount() int {
	r.prune()
	return len(r.dispatches)
}

// EnterPause pauses dispatch for d from now. The pause only ever extends;
// extended is false when the current pause already reaches further.
func (r *RateLimiter) EnterPause(d time.Duration) (until time.Time, extended bool) {
	candidate := r.now().Add(d)
	if !candidate.After(r.pausedUntil) {
		return r.pausedUntil, false
	}
	r.pausedUntil = candidate
	return candidate, true
}

// IsPaused reports whether the pause is still in effect.
func (r *RateLimiter) IsPaused() bool {
	return !r.pausedUntil.IsZero() && r.now().Before(r.pausedUntil)
}

// PauseUntil returns the pause boundary, or the zero time when no pause was
// entered. An elapsed boundary lingers until ClearIfElapsed; use IsPaused
// to decide whether fetches may run.
func (r *RateLimiter) PauseUntil() time.Time {
	return r.pausedUntil
}

// ClearIfElapsed resets an elapsed pause and reports whether it did.
func (r *RateLimiter) ClearIfElapsed() bool {
	if r.pausedUntil.IsZero() || r.now().Before(r.pausedUntil) {
		return false
	}
	r.pausedUntil = time.Time{}
	return true
}

func (r *RateLimiter) prune() {
	cutoff := r.now().Add(-r.window())
	keep := 0
	for keep < len(r.dispatches) && r.dispatches[keep].Before(cutoff) {
		keep++
	}
	if keep > 0 {
		r.dispatches = append(r.dispatches[:0], r.dispatches[keep:]...)
	}
}

func (r *RateLimiter) window() time.Duration {
	if r.Window <= 0 {
		return RateWindow
	}
	return r.Window
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
