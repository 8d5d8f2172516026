package metrics

import (
	"strconv"
	"time"

	"github.com/feedmeta/feedmeta/internal/observability"
)

// HTTP metric names
const (
	HTTPRequestsTotal   = "http_requests_total"
	HTTPRequestDuration = "http_request_duration_ms"
	HTTPErrorsTotal     = "http_errors_total"
	EventStreamDuration = "feedmeta_event_stream_duration_ms"

	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// HTTPRequest is one served request as the metrics middleware saw it.
type HTTPRequest struct {
	Method   string
	Endpoint string
	Status   int
	Duration time.Duration
	// Streaming marks an event stream; its lifetime is recorded apart from
	// request latency.
	Streaming bool
}

// RecordHTTPRequest counts a request and records its latency. 4xx and 5xx
// responses also count as errors.
func RecordHTTPRequest(req HTTPRequest) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{
		"method":   req.Method,
		"endpoint": req.Endpoint,
		"status":   strconv.Itoa(req.Status),
	}
	_ = observability.TelemetrySystem.Counter(HTTPRequestsTotal, 1, labels)

	if req.Streaming {
		_ = observability.TelemetrySystem.Histogram(EventStreamDuration, req.Duration, nil)
	} else {
		_ = observability.TelemetrySystem.Histogram(HTTPRequestDuration, req.Duration, labels)
	}

	if req.Status < 400 {
		return
	}
	errorType := "client_error"
	if req.Status >= 500 {
		errorType = "server_error"
	}
	_ = observability.TelemetrySystem.Counter(HTTPErrorsTotal, 1, map[string]string{
		"method":     req.Method,
		"endpoint":   req.Endpoint,
		"status":     strconv.Itoa(req.Status),
		"error_type": errorType,
	})
}

// RecordError counts an error envelope written to a client.
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ErrorsTotalName, 1, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(PanicsTotalName, 1, nil)
	}
}

// RecordErrorByEndpoint counts an error envelope by route.
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ErrorsByEndpointName, 1, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}
