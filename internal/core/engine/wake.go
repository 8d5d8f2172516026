package engine

import (
	"sync"
	"time"
)

// Waker delivers a single pending wake-up. Requests coalesce to the
// earliest: asking to wake later than what is already armed is a no-op.
type Waker struct {
	Clock func() time.Time

	mu    sync.Mutex
	ch    chan struct{}
	timer *time.Timer
	at    time.Time
	gen   uint64
}

// NewWaker returns an idle waker.
func NewWaker(clock func() time.Time) *Waker {
	return &Waker{Clock: clock, ch: make(chan struct{}, 1)}
}

// WakeAt arms a wake-up no earlier than t and reports whether the pending
// wake-up moved.
func (w *Waker) WakeAt(t time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.at.IsZero() && !t.Before(w.at) {
		return false
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.at = t

	delay := t.Sub(w.now())
	if delay < 0 {
		delay = 0
	}
	w.timer = time.AfterFunc(delay, func() { w.fire(gen) })
	return true
}

// C receives once per delivered wake-up.
func (w *Waker) C() <-chan struct{} {
	return w.ch
}

// Next returns the pending wake-up time, or the zero time.
func (w *Waker) Next() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.at
}

// Stop cancels any pending wake-up.
func (w *Waker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	w.at = time.Time{}
}

func (w *Waker) fire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.at = time.Time{}
	w.mu.Unlock()

	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (w *Waker) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now().UTC()
}
