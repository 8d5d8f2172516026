package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/metrics"
	"github.com/feedmeta/feedmeta/internal/observability"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Flush keeps the event stream working through the wrapper.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *statusRecorder) streaming() bool {
	return strings.HasPrefix(rw.Header().Get("Content-Type"), "text/event-stream")
}

// endpointPatterns maps known paths to metric labels when chi has no route
// pattern, which happens for requests that never reached the router.
var endpointPatterns = map[string]string{
	"/":                "/",
	"/health":          "/health/*",
	"/health/live":     "/health/*",
	"/health/ready":    "/health/*",
	"/health/startup":  "/health/*",
	"/version":         "/version",
	"/metrics":         "/metrics",
	"/v1/status":       "/v1/status",
	"/v1/entities":     "/v1/entities",
	"/v1/settings":     "/v1/settings",
	"/v1/events":       "/v1/events",
	"/v1/cache":        "/v1/cache/*",
	"/v1/cache/import": "/v1/cache/*",
	"/v1/cache/export": "/v1/cache/*",
}

// getEndpointPattern keeps metric labels low-cardinality.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if pattern, ok := endpointPatterns[r.URL.Path]; ok {
		return pattern
	}
	return "/unknown"
}

// RequestMetrics records request counts and latency, and logs each request
// with its request id. Event streams are timed separately so they do not
// skew latency.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		sample := metrics.HTTPRequest{
			Method:    r.Method,
			Endpoint:  getEndpointPattern(r),
			Status:    rec.status,
			Duration:  time.Since(start),
			Streaming: rec.streaming(),
		}
		metrics.RecordHTTPRequest(sample)

		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("HTTP request completed",
				observability.RequestIDField(r.Context()),
				zap.String("method", sample.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", sample.Endpoint),
				zap.Int("status", sample.Status),
				zap.Duration("duration", sample.Duration),
				zap.Bool("stream", sample.Streaming),
				zap.Int64("response_size", rec.bytes))
		}
	})
}
