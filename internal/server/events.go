package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/core/engine"
	apperrors "github.com/feedmeta/feedmeta/internal/errors"
	"github.com/feedmeta/feedmeta/internal/metrics"
	"github.com/feedmeta/feedmeta/internal/observability"
)

// keepAliveInterval spaces SSE comment lines on an idle stream.
var keepAliveInterval = 25 * time.Second

// handleEvents streams scheduler notifications as server-sent events until
// the client disconnects or the notifier closes the subscription.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		HandleError(w, r, apperrors.NewInternalError("Streaming is not supported by this connection"))
		return
	}

	notifier := s.api.Notifier()
	events, cancel := notifier.Subscribe()
	metrics.SetEventSubscribers(notifier.Count())
	defer func() {
		cancel()
		metrics.SetEventSubscribers(notifier.Count())
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if observability.ServerLogger != nil {
		observability.ServerLogger.Debug("Event stream opened",
			observability.RequestIDField(r.Context()),
			zap.Int("subscribers", notifier.Count()))
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				if observability.ServerLogger != nil {
					observability.ServerLogger.Debug("Event stream closed",
						observability.RequestIDField(r.Context()),
						zap.String("event", string(ev.Type)),
						zap.Error(err))
				}
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev engine.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}
