package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/feedmeta/feedmeta/internal/core/store"
	"github.com/feedmeta/feedmeta/internal/observability"
)

type recordingMetrics struct {
	mu         sync.Mutex
	dispatched int
	outcomes   []string
	pauses     int
}

func (m *recordingMetrics) Dispatched() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched++
}

func (m *recordingMetrics) FetchCompleted(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) QueueDepth(int, int) {}

func (m *recordingMetrics) PauseEntered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
}

type schedulerFixture struct {
	s       *Scheduler
	store   *store.MemoryStore
	clock   *fakeClock
	metrics *recordingMetrics
	present bool
}

func newSchedulerFixture(t *testing.T, mutate func(*core.State)) *schedulerFixture {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemoryStore()
	state, err := mem.LoadState(ctx)
	require.NoError(t, err)
	if mutate != nil {
		mutate(state)
	}
	require.NoError(t, mem.SaveState(ctx, state))

	f := &schedulerFixture{store: mem, clock: newFakeClock(), metrics: &recordingMetrics{}, present: true}
	s, err := NewScheduler(SchedulerOptions{
		Store: mem,
		Fetcher: FetcherFunc(func(context.Context, FetchRequest) (core.ProfileResult, error) {
			return core.ProfileResult{}, nil
		}),
		Clock:    func() time.Time { return f.clock.Now() },
		Presence: func() bool { return f.present },
		Metrics:  f.metrics,
		Config:   DefaultConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.waker.Stop()
		s.pool.Stop()
	})
	f.s = s
	return f
}

func (f *schedulerFixture) request(t *testing.T, keys ...string) map[string]EntityResult {
	t.Helper()
	results, err := f.s.requestEntities(context.Background(), keys)
	require.NoError(t, err)
	return results
}

func (f *schedulerFixture) finish(key string, result core.ProfileResult, err error) {
	f.s.complete(context.Background(), FetchOutcome{Task: Task{Key: key, DisplayForm: key}, Result: result, Err: err})
}

func (f *schedulerFixture) entry(t *testing.T, key string) (core.CacheEntry, bool) {
	t.Helper()
	state, err := f.store.LoadState(context.Background())
	require.NoError(t, err)
	entry, ok := state.Users[key]
	return entry, ok
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func withSettings(fn func(*core.Settings)) func(*core.State) {
	return func(state *core.State) { fn(&state.Settings) }
}

func TestSchedulerRateCapDefersSecondDispatch(t *testing.T) {
	f := newSchedulerFixture(t, withSettings(func(s *core.Settings) {
		s.MaxRequestsPerMinute = 1
		s.MaxConcurrentTabs = 5
	}))
	first := f.clock.Now()

	f.request(t, "alice", "bob")
	f.s.waker.Stop()
	f.s.activate(context.Background())

	require.Equal(t, 1, f.s.queue.Active())
	require.Equal(t, 1, f.s.queue.Len())
	require.True(t, f.s.queue.IsInFlight("alice"))
	require.Equal(t, first.Add(RateWindow).Add(200*time.Millisecond), f.s.waker.Next())

	f.finish("alice", core.ProfileResult{Followers: core.Int64Ptr(1), Following: core.Int64Ptr(2)}, nil)
	f.clock.Advance(30 * time.Second)
	f.s.activate(context.Background())
	require.True(t, f.s.queue.IsQueued("bob"), "slot is free but the window is full")

	f.clock.Advance(30 * time.Second)
	f.s.activate(context.Background())
	require.True(t, f.s.queue.IsQueued("bob"))

	f.clock.Advance(200 * time.Millisecond)
	f.s.activate(context.Background())
	require.True(t, f.s.queue.IsInFlight("bob"))
	require.Equal(t, 2, f.metrics.dispatched)
}

func TestSchedulerConcurrencyCap(t *testing.T) {
	f := newSchedulerFixture(t, withSettings(func(s *core.Settings) {
		s.MaxRequestsPerMinute = 120
		s.MaxConcurrentTabs = 2
	}))

	f.request(t, "a", "b", "c", "d", "e")
	f.s.activate(context.Background())
	require.Equal(t, 2, f.s.queue.Active())
	require.Equal(t, 3, f.s.queue.Len())

	f.finish("a", core.ProfileResult{Followers: core.Int64Ptr(1), Following: core.Int64Ptr(1)}, nil)
	require.Equal(t, 1, f.s.queue.Active())
	f.s.activate(context.Background())
	require.Equal(t, 2, f.s.queue.Active())
	require.Equal(t, 2, f.s.queue.Len())
}

func TestSchedulerClampsStoredCaps(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	state, err := f.store.LoadState(context.Background())
	require.NoError(t, err)
	state.Settings.MaxConcurrentTabs = 50
	state.Settings.MaxRequestsPerMinute = 500
	require.NoError(t, f.store.SaveState(context.Background(), state))

	keys := make([]string, 15)
	for i := range keys {
		keys[i] = fmt.Sprintf("user%d", i)
	}
	f.request(t, keys...)
	f.s.activate(context.Background())
	require.Equal(t, MaxConcurrency, f.s.queue.Active())
}

func TestSchedulerRateLimitedWithoutData(t *testing.T) {
	f := newSchedulerFixture(t, withSettings(func(s *core.Settings) {
		s.RateLimitPauseMinutes = 5
	}))
	events, cancel := f.s.Notifier().Subscribe()
	defer cancel()

	f.request(t, "alice", "bob")
	f.s.queue.DequeueNext()
	f.s.queue.MarkInFlight("alice")
	now := f.clock.Now()

	f.finish("alice", core.ProfileResult{RateLimited: true}, nil)

	entered := nextEvent(t, events)
	require.Equal(t, EventRateLimitEntered, entered.Type)
	require.Equal(t, now.Add(5*time.Minute).UnixMilli(), entered.Until)
	require.Equal(t, int64(5*60*1000), entered.RemainingMs)

	updated := nextEvent(t, events)
	require.Equal(t, EventEntityUpdated, updated.Type)
	require.True(t, updated.Value.Unavailable)

	entry, ok := f.entry(t, "alice")
	require.True(t, ok)
	require.True(t, entry.Unavailable)
	require.Equal(t, 1, f.metrics.pauses)

	f.clock.Advance(4 * time.Minute)
	f.s.activate(context.Background())
	require.Equal(t, 0, f.s.queue.Active(), "no dispatch while paused")
	require.True(t, f.s.queue.IsQueued("bob"))

	f.clock.Advance(time.Minute)
	f.s.activate(context.Background())
	cleared := nextEvent(t, events)
	require.Equal(t, EventRateLimitCleared, cleared.Type)
	require.True(t, f.s.queue.IsInFlight("bob"))
}

func TestSchedulerRateLimitedKeepsData(t *testing.T) {
	f := newSchedulerFixture(t, nil)

	f.finish("alice", core.ProfileResult{Followers: core.Int64Ptr(1200), RateLimited: true}, nil)

	entry, ok := f.entry(t, "alice")
	require.True(t, ok)
	require.False(t, entry.Unavailable)
	require.Equal(t, int64(1200), *entry.Followers)
	require.True(t, f.s.limiter.IsPaused())
	assert.Equal(t, []string{OutcomeRateLimited}, f.metrics.outcomes)
}

func TestSchedulerPauseOnlyExtends(t *testing.T) {
	f := newSchedulerFixture(t, withSettings(func(s *core.Settings) {
		s.RateLimitPauseMinutes = 10
	}))
	events, cancel := f.s.Notifier().Subscribe()
	defer cancel()

	f.finish("a", core.ProfileResult{RateLimited: true}, nil)
	until := f.s.limiter.PauseUntil()
	require.Equal(t, EventRateLimitEntered, nextEvent(t, events).Type)
	nextEvent(t, events)

	f.clock.Advance(time.Minute)
	f.finish("b", core.ProfileResult{RateLimited: true}, nil)
	require.Equal(t, f.clock.Now().Add(10*time.Minute), f.s.limiter.PauseUntil())
	require.True(t, f.s.limiter.PauseUntil().After(until))
	require.Equal(t, EventRateLimitEntered, nextEvent(t, events).Type)
}

func TestSchedulerFetchErrorBecomesUnavailable(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	events, cancel := f.s.Notifier().Subscribe()
	defer cancel()

	f.request(t, "alice")
	f.s.activate(context.Background())
	require.True(t, f.s.queue.IsInFlight("alice"))

	f.finish("alice", core.ProfileResult{Followers: core.Int64Ptr(3)}, ErrFetchTimeout)

	e := nextEvent(t, events)
	require.Equal(t, EventEntityUpdated, e.Type)
	require.Equal(t, "alice", e.Key)
	require.True(t, e.Value.Unavailable)
	require.Nil(t, e.Value.Followers)
	require.False(t, f.s.queue.IsInFlight("alice"))
	assert.Equal(t, []string{OutcomeError}, f.metrics.outcomes)
}

func TestSchedulerEmptyResultBecomesUnavailable(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	f.finish("ghost", core.ProfileResult{}, nil)

	entry, ok := f.entry(t, "ghost")
	require.True(t, ok)
	require.True(t, entry.Unavailable)
	require.Nil(t, entry.Followers)
	require.Nil(t, entry.Following)
	require.Nil(t, entry.JoinedYear)
	require.Nil(t, entry.Location)
}

func TestSchedulerCompletionPersistFailure(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	events, cancel := f.s.Notifier().Subscribe()
	defer cancel()

	f.request(t, "alice")
	f.s.activate(context.Background())
	f.store.FailSaves(errors.New("disk full"))

	f.finish("alice", core.ProfileResult{Followers: core.Int64Ptr(1), Following: core.Int64Ptr(1)}, nil)

	require.False(t, f.s.queue.IsInFlight("alice"), "slot is released even when the write fails")
	_, ok := f.s.state.Users["alice"]
	require.False(t, ok, "in-memory state rolled back")
	select {
	case e := <-events:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
}

func TestSchedulerDisabled(t *testing.T) {
	f := newSchedulerFixture(t, withSettings(func(s *core.Settings) {
		s.Enabled = false
	}))

	results := f.request(t, "alice")
	require.Empty(t, results)
	require.Equal(t, 0, f.s.queue.Len())

	f.s.queue.Enqueue("bob", "bob", f.clock.Now())
	f.s.activate(context.Background())
	require.Equal(t, 0, f.s.queue.Active())
}

func TestSchedulerWaitsForConsumer(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	f.present = false

	f.request(t, "alice")
	f.s.waker.Stop()
	f.s.activate(context.Background())

	require.Equal(t, 0, f.s.queue.Active())
	require.Equal(t, f.clock.Now().Add(DefaultConfig().ProbeInterval), f.s.waker.Next())

	f.present = true
	f.s.activate(context.Background())
	require.Equal(t, 1, f.s.queue.Active())
}

func TestSchedulerDefaultPresence(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	f.s.presence = f.s.defaultPresence

	require.False(t, f.s.presence())

	f.request(t, "alice")
	require.True(t, f.s.presence())

	f.clock.Advance(DefaultConfig().PresenceWindow)
	require.False(t, f.s.presence())

	_, cancel := f.s.Notifier().Subscribe()
	require.True(t, f.s.presence())
	cancel()
}

func TestRequestEntitiesStatuses(t *testing.T) {
	base := newFakeClock().Now()
	day := 24 * time.Hour
	f := newSchedulerFixture(t, func(state *core.State) {
		state.Settings.CacheTTLDays = 30
		state.Settings.UnavailableTTLHours = 24
		state.Users["fresh"] = core.CacheEntry{FetchedAt: base.Add(-day).UnixMilli(), Followers: core.Int64Ptr(1), Following: core.Int64Ptr(2)}
		state.Users["stale"] = core.CacheEntry{FetchedAt: base.Add(-31 * day).UnixMilli(), Followers: core.Int64Ptr(1), Following: core.Int64Ptr(2)}
		state.Users["gone"] = core.UnavailableEntry(base.Add(-time.Hour))
		state.Users["gone_old"] = core.UnavailableEntry(base.Add(-25 * time.Hour))
		state.Users["partial"] = core.CacheEntry{FetchedAt: base.Add(-time.Minute).UnixMilli(), Followers: core.Int64Ptr(1)}
		state.Users["new_partial"] = core.CacheEntry{FetchedAt: base.Add(-10 * time.Second).UnixMilli(), Following: core.Int64Ptr(1)}
	})

	results := f.request(t, "fresh", "stale", "gone", "gone_old", "partial", "new_partial", "absent", "not a handle!")

	tests := []struct {
		key      string
		status   string
		hasValue bool
		enqueued bool
	}{
		{key: "fresh", status: StatusFresh, hasValue: true},
		{key: "stale", status: StatusQueued, hasValue: true, enqueued: true},
		{key: "gone", status: StatusFresh, hasValue: true},
		{key: "gone_old", status: StatusQueued, hasValue: true, enqueued: true},
		{key: "partial", status: StatusQueued, hasValue: true, enqueued: true},
		{key: "new_partial", status: StatusFresh, hasValue: true},
		{key: "absent", status: StatusQueued, enqueued: true},
	}
	require.Len(t, results, len(tests))
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			got, ok := results[tc.key]
			require.True(t, ok)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.hasValue, got.Value != nil)
			assert.Equal(t, tc.enqueued, f.s.queue.IsQueued(tc.key))
		})
	}
}

func TestRequestEntitiesCaseInsensitive(t *testing.T) {
	f := newSchedulerFixture(t, nil)

	results := f.request(t, "BOB", "bob", "@Bob")
	require.Len(t, results, 1)
	require.Equal(t, StatusQueued, results["bob"].Status)
	require.Equal(t, 1, f.s.queue.Len())

	task, ok := f.s.queue.DequeueNext()
	require.True(t, ok)
	require.Equal(t, "BOB", task.DisplayForm)
}

func TestRequestEntitiesKeyCap(t *testing.T) {
	f := newSchedulerFixture(t, nil)

	keys := make([]string, MaxRequestKeys+50)
	for i := range keys {
		keys[i] = fmt.Sprintf("u%d", i)
	}
	results := f.request(t, keys...)
	require.Len(t, results, MaxRequestKeys)
	_, ok := results[fmt.Sprintf("u%d", MaxRequestKeys)]
	require.False(t, ok)
}

func TestRequestEntitiesInFlightNotRequeued(t *testing.T) {
	f := newSchedulerFixture(t, nil)

	f.request(t, "alice")
	f.s.activate(context.Background())
	require.True(t, f.s.queue.IsInFlight("alice"))

	results := f.request(t, "alice")
	require.Equal(t, StatusQueued, results["alice"].Status)
	require.False(t, f.s.queue.IsQueued("alice"))
}

func TestPartialRetryCap(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	partial := core.ProfileResult{Followers: core.Int64Ptr(10)}

	f.finish("priv", partial, nil)
	for attempt := 1; attempt <= DefaultConfig().MaxPartialRetries; attempt++ {
		f.clock.Advance(31 * time.Second)
		results := f.request(t, "priv")
		require.Equal(t, StatusQueued, results["priv"].Status, "attempt %d", attempt)

		f.clock.Advance(time.Minute)
		f.s.activate(context.Background())
		require.True(t, f.s.queue.IsInFlight("priv"))
		f.finish("priv", partial, nil)
	}

	f.clock.Advance(31 * time.Second)
	results := f.request(t, "priv")
	require.Equal(t, StatusFresh, results["priv"].Status)
	require.Equal(t, 0, f.s.queue.Len())

	f.finish("priv", core.ProfileResult{Followers: core.Int64Ptr(10), Following: core.Int64Ptr(3)}, nil)
	require.NotContains(t, f.s.partialRetries, "priv")
}

func TestPartialNotRetriedWhilePaused(t *testing.T) {
	f := newSchedulerFixture(t, func(state *core.State) {
		state.Users["partial"] = core.CacheEntry{FetchedAt: newFakeClock().Now().Add(-time.Minute).UnixMilli(), Followers: core.Int64Ptr(1)}
	})
	f.s.limiter.EnterPause(time.Minute)

	results := f.request(t, "partial")
	require.Equal(t, StatusFresh, results["partial"].Status)
	require.Equal(t, 0, f.s.queue.Len())
}

func TestSaveSettings(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	events, cancel := f.s.Notifier().Subscribe()
	defer cancel()

	settings, err := f.s.saveSettings(context.Background(), map[string]any{
		"maxRequestsPerMinute": 500,
		"themeMode":            "dark",
		"followerColors":       map[string]any{"gt1m": "#000000"},
	})
	require.NoError(t, err)
	require.Equal(t, 120, settings.MaxRequestsPerMinute)
	require.Equal(t, core.ThemeDark, settings.ThemeMode)
	require.Equal(t, "#000000", settings.FollowerColors.Gt1m)
	require.Equal(t, core.DefaultFollowerColors().Lt1k, settings.FollowerColors.Lt1k)

	e := nextEvent(t, events)
	require.Equal(t, EventSettingsChanged, e.Type)
	require.Equal(t, settings, *e.Settings)

	stored, err := f.store.LoadState(context.Background())
	require.NoError(t, err)
	require.Equal(t, settings, stored.Settings)
}

func TestSaveSettingsFailures(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	events, cancel := f.s.Notifier().Subscribe()
	defer cancel()

	_, err := f.s.saveSettings(context.Background(), map[string]any{"followerColors": "red"})
	require.ErrorIs(t, err, core.ErrInvalidSettings)

	f.store.FailSaves(errors.New("read-only"))
	_, err = f.s.saveSettings(context.Background(), map[string]any{"enabled": false})
	require.ErrorIs(t, err, ErrPersistence)
	require.True(t, f.s.state.Settings.Enabled)

	select {
	case e := <-events:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
}

func TestImportIdempotent(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	payload := map[string]any{
		"Alice": map[string]any{"fetchedAt": float64(1700000000000), "followers": float64(12), "following": float64(3)},
		"bob":   map[string]any{"fetchedAt": float64(1700000000000), "joinedYear": "2011"},
		"empty": map[string]any{},
	}

	parsed, err := core.ParseImport(payload)
	require.NoError(t, err)
	require.Equal(t, 2, parsed.Imported)

	require.NoError(t, f.s.importCache(context.Background(), parsed))
	once := f.store.Body()

	parsed, err = core.ParseImport(payload)
	require.NoError(t, err)
	require.NoError(t, f.s.importCache(context.Background(), parsed))
	require.JSONEq(t, string(once), string(f.store.Body()))

	entry, ok := f.entry(t, "alice")
	require.True(t, ok)
	require.Equal(t, int64(12), *entry.Followers)
}

func TestImportCacheRejectsMalformedPayload(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	saves := f.store.Saves()

	_, err := f.s.ImportCache(context.Background(), []any{"alice"})
	require.ErrorIs(t, err, ErrInvalidPayload)
	require.Equal(t, saves, f.store.Saves())
}

func TestClearCacheAndStatus(t *testing.T) {
	f := newSchedulerFixture(t, func(state *core.State) {
		state.Users["a"] = core.CacheEntry{FetchedAt: 100, Followers: core.Int64Ptr(1)}
		state.Users["b"] = core.CacheEntry{FetchedAt: 300, Following: core.Int64Ptr(1)}
	})

	f.request(t, "c", "d")
	f.s.activate(context.Background())
	until, _ := f.s.limiter.EnterPause(time.Minute)

	status, err := f.s.getStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, status.Status.CacheSize)
	assert.Equal(t, int64(300), status.Status.LastFetchTimestamp)
	assert.Equal(t, 0, status.Status.QueueLength)
	assert.Equal(t, 2, status.Status.ActiveFetches)
	assert.Equal(t, until.UnixMilli(), status.Status.PauseUntil)

	require.NoError(t, f.s.clearCache(context.Background()))
	exported, err := f.s.exportCache(context.Background())
	require.NoError(t, err)
	require.Empty(t, exported)

	f.clock.Advance(time.Minute)
	status, err = f.s.getStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Status.PauseUntil)
}

func TestSchedulerRunEndToEnd(t *testing.T) {
	mem := store.NewMemoryStore()
	fetched := make(chan string, 4)
	s, err := NewScheduler(SchedulerOptions{
		Store: mem,
		Fetcher: FetcherFunc(func(_ context.Context, req FetchRequest) (core.ProfileResult, error) {
			fetched <- req.Handle
			return core.ProfileResult{Followers: core.Int64Ptr(42), Following: core.Int64Ptr(7)}, nil
		}),
	})
	require.NoError(t, err)

	events, cancel := s.Notifier().Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	results, err := s.RequestEntities(ctx, []string{"@Alice"})
	require.NoError(t, err)
	require.Equal(t, StatusQueued, results["alice"].Status)
	require.Nil(t, results["alice"].Value)

	select {
	case handle := <-fetched:
		require.Equal(t, "Alice", handle)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not dispatched")
	}

	e := nextEvent(t, events)
	require.Equal(t, EventEntityUpdated, e.Type)
	require.Equal(t, int64(42), *e.Value.Followers)

	results, err = s.RequestEntities(ctx, []string{"alice"})
	require.NoError(t, err)
	require.Equal(t, StatusFresh, results["alice"].Status)

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, status.Status.CacheSize)

	stop()
	require.NoError(t, <-runErr)
	<-s.Done()

	_, err = s.GetStatus(context.Background())
	require.ErrorIs(t, err, ErrSchedulerStopped)
}

func TestNewSchedulerRequiresCollaborators(t *testing.T) {
	_, err := NewScheduler(SchedulerOptions{Fetcher: FetcherFunc(nil)})
	require.Error(t, err)

	_, err = NewScheduler(SchedulerOptions{Store: store.NewMemoryStore()})
	require.Error(t, err)
}

func TestSchedulerFetchDeadlineCoversSettingsWaits(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	state, err := mem.LoadState(ctx)
	require.NoError(t, err)
	state.Settings.ScrapeTabLoadTimeoutMs = 60000
	state.Settings.ScrapeProfileHeaderWaitMs = 60000
	require.NoError(t, mem.SaveState(ctx, state))

	deadlines := make(chan time.Duration, 1)
	s, err := NewScheduler(SchedulerOptions{
		Store: mem,
		Fetcher: FetcherFunc(func(fetchCtx context.Context, req FetchRequest) (core.ProfileResult, error) {
			deadline, ok := fetchCtx.Deadline()
			if ok {
				deadlines <- time.Until(deadline)
			} else {
				deadlines <- 0
			}
			return core.ProfileResult{Followers: core.Int64Ptr(1), Following: core.Int64Ptr(1)}, nil
		}),
		Presence: func() bool { return true },
		Config:   DefaultConfig(),
	})
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = s.Run(runCtx) }()

	_, err = s.RequestEntities(runCtx, []string{"alice"})
	require.NoError(t, err)

	select {
	case got := <-deadlines:
		assert.Greater(t, got, 2*time.Minute)
		assert.LessOrEqual(t, got, 2*time.Minute+FetchDeadlineSlack)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not dispatched")
	}
}

func TestSchedulerClearsPauseWhileDisabled(t *testing.T) {
	f := newSchedulerFixture(t, withSettings(func(s *core.Settings) {
		s.RateLimitPauseMinutes = 5
	}))
	events, cancel := f.s.Notifier().Subscribe()
	defer cancel()

	f.finish("alice", core.ProfileResult{RateLimited: true}, nil)
	require.Equal(t, EventRateLimitEntered, nextEvent(t, events).Type)
	require.Equal(t, EventEntityUpdated, nextEvent(t, events).Type)

	_, err := f.s.saveSettings(context.Background(), map[string]any{"enabled": false})
	require.NoError(t, err)
	require.Equal(t, EventSettingsChanged, nextEvent(t, events).Type)

	f.s.waker.Stop()
	f.s.activate(context.Background())
	require.True(t, f.s.limiter.IsPaused())
	assert.Equal(t, f.s.limiter.PauseUntil().Add(f.s.cfg.PauseClearSlack), f.s.waker.Next(),
		"pause boundary stays armed while disabled")

	f.clock.Advance(f.s.limiter.PauseUntil().Sub(f.clock.Now()) + time.Second)
	f.s.activate(context.Background())
	require.Equal(t, EventRateLimitCleared, nextEvent(t, events).Type)
	assert.True(t, f.s.limiter.PauseUntil().IsZero())
}

func TestSchedulerCommandLogsCarryRequestID(t *testing.T) {
	logCore, logs := observer.New(zap.DebugLevel)
	s, err := NewScheduler(SchedulerOptions{
		Store: store.NewMemoryStore(),
		Fetcher: FetcherFunc(func(context.Context, FetchRequest) (core.ProfileResult, error) {
			return core.ProfileResult{}, nil
		}),
		Logger: zap.New(logCore),
	})
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = s.Run(ctx) }()

	require.NoError(t, s.ClearCache(observability.WithRequestID(ctx, "req-9")))

	cleared := logs.FilterMessage("cache cleared").All()
	require.Len(t, cleared, 1)
	assert.Equal(t, "req-9", cleared[0].ContextMap()["request_id"])
}
