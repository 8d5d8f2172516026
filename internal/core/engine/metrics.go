package engine

import "time"

// Metrics receives scheduler measurements.
type Metrics interface {
	Dispatched()
	FetchCompleted(outcome string, duration time.Duration)
	QueueDepth(queued, active int)
	PauseEntered()
}

// Fetch outcomes reported to Metrics.
const (
	OutcomeOK          = "ok"
	OutcomePartial     = "partial"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
)

type nopMetrics struct{}

func (nopMetrics) Dispatched()                          {}
func (nopMetrics) FetchCompleted(string, time.Duration) {}
func (nopMetrics) QueueDepth(int, int)                  {}
func (nopMetrics) PauseEntered()                        {}
