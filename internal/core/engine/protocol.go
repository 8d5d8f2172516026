package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/feedmeta/feedmeta/internal/observability"
)

// MaxRequestKeys caps how many keys of one request are considered.
const MaxRequestKeys = 400

// Per-key request statuses.
const (
	StatusFresh  = "fresh"
	StatusQueued = "queued"
)

// EntityResult is the immediate answer for one requested key.
type EntityResult struct {
	Status string           `json:"status"`
	Value  *core.CacheEntry `json:"value"`
}

// QueueStatus describes the scheduler's live counters.
type QueueStatus struct {
	CacheSize          int   `json:"cacheSize"`
	LastFetchTimestamp int64 `json:"lastFetchTimestamp"`
	QueueLength        int   `json:"queueLength"`
	ActiveFetches      int   `json:"activeFetches"`
	PauseUntil         int64 `json:"pauseUntil"`
}

// Status is the getStatus reply.
type Status struct {
	Settings core.Settings `json:"settings"`
	Status   QueueStatus   `json:"status"`
}

// GetStatus returns the current settings and counters.
func (s *Scheduler) GetStatus(ctx context.Context) (Status, error) {
	var (
		out  Status
		oerr error
	)
	if err := s.do(ctx, func(ctx context.Context) { out, oerr = s.getStatus(ctx) }); err != nil {
		return Status{}, err
	}
	return out, oerr
}

// RequestEntities answers each key from the cache and enqueues a refresh
// for keys that need one. Invalid keys are skipped and only the first
// MaxRequestKeys keys are considered. Results are keyed by canonical key;
// a disabled feature yields an empty map.
func (s *Scheduler) RequestEntities(ctx context.Context, keys []string) (map[string]EntityResult, error) {
	var (
		out  map[string]EntityResult
		oerr error
	)
	if err := s.do(ctx, func(ctx context.Context) { out, oerr = s.requestEntities(ctx, keys) }); err != nil {
		return nil, err
	}
	return out, oerr
}

// SaveSettings merges patch into the stored settings and broadcasts the
// result. On a persistence failure nothing changes.
func (s *Scheduler) SaveSettings(ctx context.Context, patch map[string]any) (core.Settings, error) {
	var (
		out  core.Settings
		oerr error
	)
	if err := s.do(ctx, func(ctx context.Context) { out, oerr = s.saveSettings(ctx, patch) }); err != nil {
		return core.Settings{}, err
	}
	return out, oerr
}

// ClearCache removes every cached entry.
func (s *Scheduler) ClearCache(ctx context.Context) error {
	var oerr error
	if err := s.do(ctx, func(ctx context.Context) { oerr = s.clearCache(ctx) }); err != nil {
		return err
	}
	return oerr
}

// ImportCache validates payload as a users map and merges the accepted
// entries into the cache. It returns how many entries were imported.
func (s *Scheduler) ImportCache(ctx context.Context, payload any) (int, error) {
	parsed, err := core.ParseImport(payload)
	if err != nil {
		return 0, err
	}
	var oerr error
	if err := s.do(ctx, func(ctx context.Context) { oerr = s.importCache(ctx, parsed) }); err != nil {
		return 0, err
	}
	if oerr != nil {
		return 0, oerr
	}
	return parsed.Imported, nil
}

// ExportCache returns a copy of every cached entry.
func (s *Scheduler) ExportCache(ctx context.Context) (map[string]core.CacheEntry, error) {
	var (
		out  map[string]core.CacheEntry
		oerr error
	)
	if err := s.do(ctx, func(ctx context.Context) { out, oerr = s.exportCache(ctx) }); err != nil {
		return nil, err
	}
	return out, oerr
}

func (s *Scheduler) getStatus(ctx context.Context) (Status, error) {
	state, err := s.reload(ctx)
	if err != nil {
		return Status{}, err
	}
	s.clearElapsedPause()

	var pauseUntil int64
	if s.limiter.IsPaused() {
		pauseUntil = s.limiter.PauseUntil().UnixMilli()
	}
	return Status{
		Settings: state.Settings,
		Status: QueueStatus{
			CacheSize:          len(state.Users),
			LastFetchTimestamp: state.LastFetch(),
			QueueLength:        s.queue.Len(),
			ActiveFetches:      s.queue.Active(),
			PauseUntil:         pauseUntil,
		},
	}, nil
}

func (s *Scheduler) requestEntities(ctx context.Context, keys []string) (map[string]EntityResult, error) {
	results := make(map[string]EntityResult)
	state, err := s.reload(ctx)
	if err != nil {
		return nil, err
	}
	if !state.Settings.Enabled {
		return results, nil
	}

	now := s.now()
	s.lastRequest = now
	if len(keys) > MaxRequestKeys {
		keys = keys[:MaxRequestKeys]
	}

	enqueued := 0
	for _, raw := range keys {
		handle, ok := core.NormalizeHandle(raw)
		if !ok {
			continue
		}
		if _, seen := results[handle.Key]; seen {
			continue
		}
		result, added := s.resolve(state, handle, now)
		results[handle.Key] = result
		if added {
			enqueued++
		}
	}

	if enqueued > 0 {
		s.logger.Debug("entities enqueued",
			observability.RequestIDField(ctx),
			zap.Int("requested", len(keys)),
			zap.Int("enqueued", enqueued),
			zap.Int("queued", s.queue.Len()))
		s.waker.WakeAt(now)
	}
	return results, nil
}

// resolve classifies one key and enqueues it when needed. It reports
// whether a new task entered the queue.
func (s *Scheduler) resolve(state *core.State, handle core.Handle, now time.Time) (EntityResult, bool) {
	var entry *core.CacheEntry
	if cached, ok := state.Users[handle.Key]; ok {
		value := cached
		entry = &value
	}

	switch s.policy.Classify(entry, state.Settings, now) {
	case Absent, Stale:
		added := s.queue.Enqueue(handle.Key, handle.Display, now)
		return EntityResult{Status: StatusQueued, Value: entry}, added
	case Partial:
		if s.queue.IsQueued(handle.Key) || s.queue.IsInFlight(handle.Key) {
			return EntityResult{Status: StatusQueued, Value: entry}, false
		}
		if s.limiter.IsPaused() || s.partialRetries[handle.Key] >= s.cfg.MaxPartialRetries {
			return EntityResult{Status: StatusFresh, Value: entry}, false
		}
		s.queue.Enqueue(handle.Key, handle.Display, now)
		s.partialRetries[handle.Key]++
		return EntityResult{Status: StatusQueued, Value: entry}, true
	default:
		return EntityResult{Status: StatusFresh, Value: entry}, false
	}
}

func (s *Scheduler) saveSettings(ctx context.Context, patch map[string]any) (core.Settings, error) {
	state, err := s.reload(ctx)
	if err != nil {
		return core.Settings{}, err
	}
	merged, err := core.MergeSettings(state.Settings, patch)
	if err != nil {
		return core.Settings{}, err
	}

	previous := state.Settings
	state.Settings = merged
	if err := s.store.SaveState(ctx, state); err != nil {
		state.Settings = previous
		return core.Settings{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	settings := merged
	s.notifier.Publish(Event{Type: EventSettingsChanged, Settings: &settings, CreatedAt: s.now()})
	s.logger.Info("settings saved",
		observability.RequestIDField(ctx),
		zap.Bool("enabled", merged.Enabled),
		zap.Int("max_requests_per_minute", merged.MaxRequestsPerMinute),
		zap.Int("max_concurrent_tabs", merged.MaxConcurrentTabs))
	s.waker.WakeAt(s.now())
	return merged, nil
}

func (s *Scheduler) clearCache(ctx context.Context) error {
	state, err := s.reload(ctx)
	if err != nil {
		return err
	}
	previous := state.Users
	state.Users = map[string]core.CacheEntry{}
	if err := s.store.SaveState(ctx, state); err != nil {
		state.Users = previous
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	clear(s.partialRetries)
	s.logger.Info("cache cleared", observability.RequestIDField(ctx), zap.Int("removed", len(previous)))
	return nil
}

func (s *Scheduler) importCache(ctx context.Context, parsed core.ImportResult) error {
	state, err := s.reload(ctx)
	if err != nil {
		return err
	}
	previous := make(map[string]core.CacheEntry, len(state.Users))
	for k, v := range state.Users {
		previous[k] = v
	}
	for k, v := range parsed.Entries {
		state.Users[k] = v
	}
	if err := s.store.SaveState(ctx, state); err != nil {
		state.Users = previous
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.logger.Info("cache imported",
		observability.RequestIDField(ctx),
		zap.Int("imported", parsed.Imported),
		zap.Int("skipped", parsed.Skipped))
	return nil
}

func (s *Scheduler) exportCache(ctx context.Context) (map[string]core.CacheEntry, error) {
	state, err := s.reload(ctx)
	if err != nil {
		return nil, err
	}
	return state.Clone().Users, nil
}
