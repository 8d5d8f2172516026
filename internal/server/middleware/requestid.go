package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/feedmeta/feedmeta/internal/observability"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds ids accepted from clients.
const maxRequestIDLength = 128

// RequestID attaches a request id to the context and response. An id from
// chi's RequestID middleware wins, then a well-formed inbound header, else
// a fresh UUID. The id reaches scheduler logs through the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = sanitizeRequestID(r.Header.Get(RequestIDHeader))
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), requestID)))
	})
}

// GetRequestID returns the request id in ctx, falling back to chi's.
func GetRequestID(ctx context.Context) string {
	if requestID := observability.RequestID(ctx); requestID != "" {
		return requestID
	}
	return middleware.GetReqID(ctx)
}

// sanitizeRequestID drops client ids that are too long or carry characters
// that would corrupt log lines or headers.
func sanitizeRequestID(id string) string {
	if id == "" || len(id) > maxRequestIDLength {
		return ""
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c < 0x21 || c > 0x7e {
			return ""
		}
	}
	return id
}
