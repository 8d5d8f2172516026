package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/feedmeta/feedmeta/internal/observability"
)

// Effective bounds applied on top of stored settings.
const (
	MinRequestsPerMinute = 1
	MaxRequestsPerMinute = 120
	MinConcurrency       = 1
	MaxConcurrency       = 10
)

var (
	// ErrSchedulerStopped is returned by calls made after Run has returned.
	ErrSchedulerStopped = errors.New("scheduler stopped")
	// ErrPersistence wraps state store failures surfaced to callers.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidPayload is returned for a malformed import payload.
	ErrInvalidPayload = core.ErrInvalidPayload
)

// StateStore is the durable home of the state document.
type StateStore interface {
	LoadState(ctx context.Context) (*core.State, error)
	SaveState(ctx context.Context, state *core.State) error
}

// PresenceProbe reports whether any consumer currently wants results.
type PresenceProbe func() bool

// Config holds scheduler timings.
type Config struct {
	// Debounce delays the activation that follows a completed fetch.
	Debounce time.Duration
	// ProbeInterval is how long to wait before checking again for consumers.
	ProbeInterval time.Duration
	// RateWindowSlack is added to the rate window boundary before waking.
	RateWindowSlack time.Duration
	// PauseClearSlack is added to the pause boundary before waking.
	PauseClearSlack time.Duration
	// MaxPartialRetries caps refetches of an entry missing a headline count.
	MaxPartialRetries int
	// FetchTimeout is the shortest deadline a fetch gets. Longer page
	// load and header waits in settings extend it.
	FetchTimeout time.Duration
	// PresenceWindow keeps a consumer plausible after its last request.
	PresenceWindow time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		Debounce:          150 * time.Millisecond,
		ProbeInterval:     5 * time.Second,
		RateWindowSlack:   200 * time.Millisecond,
		PauseClearSlack:   50 * time.Millisecond,
		MaxPartialRetries: 3,
		FetchTimeout:      45 * time.Second,
		PresenceWindow:    2 * time.Minute,
	}
}

// SchedulerOptions wires a Scheduler's collaborators. Store and Fetcher are
// required; everything else has a default.
type SchedulerOptions struct {
	Store    StateStore
	Fetcher  Fetcher
	Notifier *Notifier
	Logger   Logger
	Metrics  Metrics
	Clock    func() time.Time
	Presence PresenceProbe
	Config   Config
}

// Scheduler owns the queue, rate limiter and cached state. All of that
// state is touched only by the goroutine running Run; public methods send
// commands to it.
type Scheduler struct {
	store    StateStore
	fetcher  Fetcher
	notifier *Notifier
	logger   Logger
	metrics  Metrics
	clock    func() time.Time
	presence PresenceProbe
	cfg      Config
	policy   Policy

	queue   *TaskQueue
	limiter *RateLimiter
	waker   *Waker
	pool    *WorkerPool

	state          *core.State
	partialRetries map[string]int
	lastRequest    time.Time

	cmds    chan func(context.Context)
	stopped chan struct{}
	running atomic.Bool
}

// NewScheduler builds a scheduler; call Run to start it.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Store == nil {
		return nil, errors.New("scheduler requires a state store")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("scheduler requires a fetcher")
	}

	cfg := opts.Config
	defaults := DefaultConfig()
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaults.ProbeInterval
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.RateWindowSlack < 0 {
		cfg.RateWindowSlack = 0
	}
	if cfg.PauseClearSlack < 0 {
		cfg.PauseClearSlack = 0
	}
	if cfg.MaxPartialRetries < 0 {
		cfg.MaxPartialRetries = 0
	}
	if cfg.PresenceWindow <= 0 {
		cfg.PresenceWindow = defaults.PresenceWindow
	}

	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewNotifier(DefaultSubscriberBuffer)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	logger := loggerOrNop(opts.Logger)

	s := &Scheduler{
		store:          opts.Store,
		fetcher:        opts.Fetcher,
		notifier:       notifier,
		logger:         logger,
		metrics:        metrics,
		clock:          clock,
		cfg:            cfg,
		policy:         Policy{PartialRetryAfter: DefaultPartialRetryAfter},
		queue:          NewTaskQueue(),
		limiter:        NewRateLimiter(clock),
		waker:          NewWaker(clock),
		partialRetries: make(map[string]int),
		cmds:           make(chan func(context.Context)),
		stopped:        make(chan struct{}),
	}
	s.pool = NewWorkerPool(opts.Fetcher, WorkerPoolConfig{WorkerCount: MaxConcurrency, FetchTimeout: cfg.FetchTimeout}, logger)

	s.presence = opts.Presence
	if s.presence == nil {
		s.presence = s.defaultPresence
	}
	return s, nil
}

// Notifier returns the event fan-out consumers subscribe to.
func (s *Scheduler) Notifier() *Notifier {
	return s.notifier
}

// Run drives the scheduler until ctx is cancelled. It activates once at
// start, then on every command, completed fetch and wake-up.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("scheduler is already running")
	}
	s.pool.Start()
	defer func() {
		s.waker.Stop()
		s.pool.Stop()
		close(s.stopped)
	}()

	s.logger.Info("scheduler started")
	s.activate(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping",
				zap.Int("queued", s.queue.Len()),
				zap.Int("active", s.queue.Active()))
			return nil
		case fn := <-s.cmds:
			fn(ctx)
		case outcome := <-s.pool.Results():
			s.complete(ctx, outcome)
		case <-s.waker.C():
			s.activate(ctx)
		}
	}
}

// Done is closed once Run has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// do runs fn on the scheduler goroutine and waits for it. The caller's
// request id rides along on the loop context.
func (s *Scheduler) do(ctx context.Context, fn func(context.Context)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID := observability.RequestID(ctx)
	done := make(chan struct{})
	cmd := func(loopCtx context.Context) {
		defer close(done)
		fn(observability.WithRequestID(loopCtx, requestID))
	}

	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrSchedulerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrSchedulerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// activate is one pass of the control loop.
func (s *Scheduler) activate(ctx context.Context) {
	// An elapsed pause is cleared and broadcast before any early return.
	s.clearElapsedPause()

	state, err := s.reload(ctx)
	if err != nil {
		s.logger.Warn("scheduler could not load state", zap.Error(err))
		if s.queue.Len() > 0 {
			s.waker.WakeAt(s.now().Add(s.cfg.ProbeInterval))
		}
		return
	}
	settings := state.Settings

	if !settings.Enabled {
		if s.limiter.IsPaused() {
			s.waker.WakeAt(s.limiter.PauseUntil().Add(s.cfg.PauseClearSlack))
		}
		return
	}

	if s.limiter.IsPaused() {
		s.waker.WakeAt(s.limiter.PauseUntil().Add(s.cfg.PauseClearSlack))
		return
	}

	if s.queue.Len() > 0 && !s.presence() {
		s.waker.WakeAt(s.now().Add(s.cfg.ProbeInterval))
		return
	}

	rpm := clampInt(settings.MaxRequestsPerMinute, MinRequestsPerMinute, MaxRequestsPerMinute)
	maxActive := clampInt(settings.MaxConcurrentTabs, MinConcurrency, MaxConcurrency)

	for s.queue.Len() > 0 {
		if s.limiter.IsPaused() {
			s.waker.WakeAt(s.limiter.PauseUntil().Add(s.cfg.PauseClearSlack))
			break
		}
		if s.queue.Active() >= maxActive {
			break
		}
		if !s.limiter.Admit(rpm) {
			break
		}

		task, ok := s.queue.DequeueNext()
		if !ok {
			break
		}
		s.queue.MarkInFlight(task.Key)
		s.limiter.Record()
		if !s.dispatch(task, settings) {
			break
		}
	}

	if s.queue.Len() > 0 && !s.limiter.IsPaused() {
		s.waker.WakeAt(s.limiter.NextAllowedTime().Add(s.cfg.RateWindowSlack))
	}
	s.metrics.QueueDepth(s.queue.Len(), s.queue.Active())
}

// dispatch hands task to the pool without waiting for the fetch.
func (s *Scheduler) dispatch(task Task, settings core.Settings) bool {
	req := FetchRequest{
		Key:         task.Key,
		Handle:      task.DisplayForm,
		LoadTimeout: time.Duration(settings.ScrapeTabLoadTimeoutMs) * time.Millisecond,
		HeaderWait:  time.Duration(settings.ScrapeProfileHeaderWaitMs) * time.Millisecond,
	}
	req.Timeout = fetchDeadline(req.LoadTimeout, req.HeaderWait, s.cfg.FetchTimeout)
	if err := s.pool.Submit(task, req); err != nil {
		s.logger.Error("fetch dispatch failed", zap.String("key", task.Key), zap.Error(err))
		s.queue.MarkDone(task.Key)
		s.queue.Enqueue(task.Key, task.DisplayForm, task.EnqueuedAt)
		return false
	}

	s.metrics.Dispatched()
	s.logger.Debug("fetch dispatched",
		zap.String("key", task.Key),
		zap.Int("active", s.queue.Active()),
		zap.Int("queued", s.queue.Len()))
	return true
}

// complete applies one finished fetch: cache entry, persistence, push
// notification, slot release and a debounced re-activation.
func (s *Scheduler) complete(ctx context.Context, outcome FetchOutcome) {
	key := outcome.Task.Key
	now := s.now()

	defer func() {
		s.queue.MarkDone(key)
		s.waker.WakeAt(s.now().Add(s.cfg.Debounce))
		s.metrics.QueueDepth(s.queue.Len(), s.queue.Active())
	}()

	entry := outcome.Result.ToEntry(now)
	if outcome.Err != nil {
		entry = core.UnavailableEntry(now)
	}
	s.metrics.FetchCompleted(fetchOutcomeLabel(outcome, entry), outcome.Duration)

	if outcome.Result.RateLimited {
		s.enterPause()
	}

	if entry.Unavailable || entry.HasHeadlineCounts() {
		delete(s.partialRetries, key)
	}

	state, err := s.reload(ctx)
	if err != nil {
		s.logger.Error("could not load state for fetch result", zap.String("key", key), zap.Error(err))
		return
	}

	previous, existed := state.Users[key]
	state.Users[key] = entry
	if err := s.store.SaveState(ctx, state); err != nil {
		if existed {
			state.Users[key] = previous
		} else {
			delete(state.Users, key)
		}
		s.logger.Error("could not persist fetch result", zap.String("key", key), zap.Error(err))
		return
	}

	value := entry
	s.notifier.Publish(Event{Type: EventEntityUpdated, Key: key, Value: &value, CreatedAt: now})
	s.logger.Debug("fetch completed",
		zap.String("key", key),
		zap.Bool("unavailable", entry.Unavailable),
		zap.Bool("rate_limited", outcome.Result.RateLimited),
		zap.Duration("duration", outcome.Duration))
}

// enterPause applies the configured backoff after a throttle signal.
func (s *Scheduler) enterPause() {
	minutes := core.DefaultSettings().RateLimitPauseMinutes
	if s.state != nil {
		minutes = s.state.Settings.RateLimitPauseMinutes
	}
	until, extended := s.limiter.EnterPause(time.Duration(max(1, minutes)) * time.Minute)
	if !extended {
		return
	}

	remaining := until.Sub(s.now())
	s.metrics.PauseEntered()
	s.notifier.Publish(Event{
		Type:        EventRateLimitEntered,
		Until:       until.UnixMilli(),
		RemainingMs: max(0, remaining.Milliseconds()),
		CreatedAt:   s.now(),
	})
	s.waker.WakeAt(until.Add(s.cfg.PauseClearSlack))
	s.logger.Warn("rate limit detected, pausing fetches",
		zap.Time("until", until),
		zap.Duration("remaining", remaining))
}

func (s *Scheduler) clearElapsedPause() {
	if !s.limiter.ClearIfElapsed() {
		return
	}
	s.notifier.Publish(Event{Type: EventRateLimitCleared, CreatedAt: s.now()})
	s.logger.Info("rate limit pause cleared")
}

// reload refreshes the cached state from the store.
func (s *Scheduler) reload(ctx context.Context) (*core.State, error) {
	state, err := s.store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if state.Users == nil {
		state.Users = map[string]core.CacheEntry{}
	}
	s.state = state
	return state, nil
}

func (s *Scheduler) defaultPresence() bool {
	if s.notifier.Count() > 0 {
		return true
	}
	return !s.lastRequest.IsZero() && s.now().Sub(s.lastRequest) < s.cfg.PresenceWindow
}

func (s *Scheduler) now() time.Time {
	return s.clock()
}

func fetchOutcomeLabel(outcome FetchOutcome, entry core.CacheEntry) string {
	switch {
	case outcome.Result.RateLimited:
		return OutcomeRateLimited
	case outcome.Err != nil:
		return OutcomeError
	case entry.Unavailable:
		return OutcomeUnavailable
	case !entry.HasHeadlineCounts():
		return OutcomePartial
	default:
		return OutcomeOK
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
