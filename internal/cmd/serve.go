package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/config"
	errwrap "github.com/feedmeta/feedmeta/internal/errors"
	"github.com/feedmeta/feedmeta/internal/metrics"
	"github.com/feedmeta/feedmeta/internal/observability"
	"github.com/feedmeta/feedmeta/internal/server"
	"github.com/feedmeta/feedmeta/internal/server/handlers"
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// schedulerHealthChecker fails once the scheduler loop has exited.
type schedulerHealthChecker struct {
	done <-chan struct{}
}

func (s schedulerHealthChecker) CheckHealth(ctx context.Context) error {
	select {
	case <-s.done:
		return errwrap.NewServiceUnavailableError("scheduler stopped")
	default:
		return nil
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler behind the HTTP API",
	Long: `Run the fetch scheduler and serve the HTTP API with graceful shutdown support.

Endpoints:
  GET    /v1/status          settings and queue counters
  POST   /v1/entities        request keys {"keys":[...]}
  PATCH  /v1/settings        merge a partial settings object
  GET    /v1/events          server-sent event stream
  DELETE /v1/cache           clear cached entries
  POST   /v1/cache/import    merge {"users":{...}}
  GET    /v1/cache/export    dump {"users":{...}}

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file and report changes (restart to apply)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		namespace := appName

		observability.InitServerLogger(appName, cfg.Logging.Level, namespace)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(appName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}
		metrics.SetServerStartTime(time.Now().Unix())

		logger.Info("Initializing server",
			zap.String("service", appName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", cfg.Metrics.Port),
			zap.String("store_driver", cfg.Store.Driver),
			zap.String("fetcher_driver", cfg.Fetcher.Driver))

		sess, err := openSession(cmd.Context(), cfg, sessionOptions{withFetcher: true})
		if err != nil {
			return errwrap.WrapDatabaseError(cmd.Context(), err, "scheduler initialization failed")
		}

		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		handlers.SetAppName(appName)
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("store", handlers.HealthCheckFunc(sess.backend.Ping))
		hm.RegisterChecker("scheduler", schedulerHealthChecker{done: sess.sched.Done()})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		srv := server.New(cfg.Server, sess.sched)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: HTTP server, then scheduler, then metrics and logger flush.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.ShutdownMetrics(); err != nil {
				logger.Warn("Metrics exporter stop returned error", zap.Error(err))
			}
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Stopping scheduler...")
			if err := sess.Close(); err != nil {
				return errwrap.WrapInternal(ctx, err, "scheduler shutdown failed")
			}
			logger.Info("Scheduler stopped")
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading configuration")

			next, err := config.LoadFile(ctx, cfgFile, flagOverrides())
			if err != nil {
				logger.Error("Failed to reload configuration", zap.Error(err))
				return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
			}
			if next.Server != cfg.Server || next.Store != cfg.Store || next.Fetcher != cfg.Fetcher {
				logger.Warn("Server, store or fetcher configuration changed; restart to apply")
			}
			logger.Info("Configuration reloaded")
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			_ = sess.Close()
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("fetcher", "", "fetcher driver override: rod|none")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("fetcher.driver", serveCmd.Flags().Lookup("fetcher"))
}
