package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/config"
	"github.com/feedmeta/feedmeta/internal/core/engine"
	"github.com/feedmeta/feedmeta/internal/core/fetcher"
	"github.com/feedmeta/feedmeta/internal/core/store"
	"github.com/feedmeta/feedmeta/internal/metrics"
	"github.com/feedmeta/feedmeta/internal/observability"
)

// session is a running scheduler over the configured store.
type session struct {
	sched   *engine.Scheduler
	backend store.Backend
	fetch   fetcher.Fetcher

	cancel    context.CancelFunc
	done      chan error
	closeOnce sync.Once
	closeErr  error
}

type sessionOptions struct {
	// withFetcher selects the configured extractor. Without it the
	// scheduler never sees a consumer, so queued keys are not dispatched.
	withFetcher bool
}

func schedulerConfig(cfg config.SchedulerConfig) engine.Config {
	out := engine.DefaultConfig()
	out.Debounce = cfg.Debounce
	if cfg.ProbeInterval > 0 {
		out.ProbeInterval = cfg.ProbeInterval
	}
	out.RateWindowSlack = cfg.RateWindowSlack
	out.PauseClearSlack = cfg.PauseClearSlack
	out.MaxPartialRetries = cfg.MaxPartialRetries
	if cfg.FetchTimeout > 0 {
		out.FetchTimeout = cfg.FetchTimeout
	}
	return out
}

func openSession(ctx context.Context, cfg *config.Config, opts sessionOptions) (*session, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	var logger engine.Logger
	if l := observability.Active(); l != nil {
		logger = l
	}

	backend, err := store.OpenBackend(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var fetch fetcher.Fetcher = fetcher.Disabled{}
	if opts.withFetcher {
		fetch, err = fetcher.New(cfg.Fetcher, logger)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
	}

	var presence engine.PresenceProbe
	if !opts.withFetcher {
		presence = func() bool { return false }
	}

	sched, err := engine.NewScheduler(engine.SchedulerOptions{
		Store:    backend,
		Fetcher:  fetch,
		Logger:   logger,
		Metrics:  metrics.Scheduler{},
		Presence: presence,
		Config:   schedulerConfig(cfg.Scheduler),
	})
	if err != nil {
		_ = fetch.Close()
		_ = backend.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		sched:   sched,
		backend: backend,
		fetch:   fetch,
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() { s.done <- sched.Run(runCtx) }()
	return s, nil
}

// Close stops the scheduler and releases the store and fetcher. It is safe
// to call more than once.
func (s *session) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.close() })
	return s.closeErr
}

func (s *session) close() error {
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		if l := observability.Active(); l != nil {
			l.Warn("Scheduler did not stop in time")
		}
	}

	var errs []error
	if err := s.fetch.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close fetcher: %w", err))
	}
	if err := s.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		if l := observability.Active(); l != nil {
			l.Debug("Session close reported errors", zap.Error(err))
		}
		return err
	}
	return nil
}
