package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/config"
	apperrors "github.com/feedmeta/feedmeta/internal/errors"
	"github.com/feedmeta/feedmeta/internal/observability"
)

const defaultMetricsPort = 9090

var metricsProxyClient = &http.Client{Timeout: 5 * time.Second}

// hopHeaders are not copied from the exporter response.
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// exporterURL locates the Prometheus exporter: the bound port, then the
// configured one, then the default.
func exporterURL() string {
	port := observability.GetMetricsPort()
	if port == 0 {
		port = defaultMetricsPort
		if cfg := config.GetConfig(); cfg != nil && cfg.Metrics.Port != 0 {
			port = cfg.Metrics.Port
		}
	}
	return fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
}

// MetricsHandler serves the exporter's scrape output on the main listener
// so scheduler and HTTP metrics are reachable at /metrics.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	target := exporterURL()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to construct metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		HandleError(w, r, apperrors.WrapServiceUnavailable(r.Context(), err, "Prometheus exporter unavailable"))
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(key)]; hop {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write metrics response",
			observability.RequestIDField(r.Context()),
			zap.String("exporter", target),
			zap.Error(err))
	}
}
