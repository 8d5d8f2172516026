package metrics

import (
	"time"

	"github.com/feedmeta/feedmeta/internal/core/engine"
	"github.com/feedmeta/feedmeta/internal/observability"
)

// Scheduler metric names
const (
	DispatchTotal        = "feedmeta_dispatch_total"
	FetchTotal           = "feedmeta_fetch_total"
	FetchDuration        = "feedmeta_fetch_duration_ms"
	QueueLength          = "feedmeta_queue_length"
	ActiveFetches        = "feedmeta_active_fetches"
	RateLimitPausesTotal = "feedmeta_rate_limit_pauses_total"

	// Push stream metrics
	EventSubscribers = "feedmeta_event_subscribers"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// Scheduler reports engine measurements through the telemetry system.
// It is a no-op until metrics are initialised.
type Scheduler struct{}

var _ engine.Metrics = Scheduler{}

// Dispatched counts one fetch handed to a worker.
func (Scheduler) Dispatched() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(DispatchTotal, 1, nil)
	}
}

// FetchCompleted counts a finished fetch by outcome and records its duration.
func (Scheduler) FetchCompleted(outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		FetchTotal,
		1,
		map[string]string{"outcome": outcome},
	)
	_ = observability.TelemetrySystem.Histogram(
		FetchDuration,
		duration,
		map[string]string{"outcome": outcome},
	)
}

// QueueDepth publishes the queue and in-flight gauges.
func (Scheduler) QueueDepth(queued, active int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(QueueLength, float64(queued), nil)
	_ = observability.TelemetrySystem.Gauge(ActiveFetches, float64(active), nil)
}

// PauseEntered counts a new or extended rate-limit pause.
func (Scheduler) PauseEntered() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(RateLimitPausesTotal, 1, nil)
	}
}

// SetEventSubscribers sets the number of open event streams.
func SetEventSubscribers(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(EventSubscribers, float64(count), nil)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
