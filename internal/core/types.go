package core

import "time"

// SchemaVersion is the version of the persisted state document.
const SchemaVersion = 4

// CacheEntry is the cached result for one entity key.
type CacheEntry struct {
	FetchedAt   int64   `json:"fetchedAt" yaml:"fetchedAt"`
	Followers   *int64  `json:"followers" yaml:"followers"`
	Following   *int64  `json:"following" yaml:"following"`
	JoinedYear  *string `json:"joinedYear" yaml:"joinedYear"`
	Location    *string `json:"location" yaml:"location"`
	Unavailable bool    `json:"unavailable" yaml:"unavailable"`
}

// UnavailableEntry records a fetch attempt that produced no usable data.
func UnavailableEntry(now time.Time) CacheEntry {
	return CacheEntry{FetchedAt: now.UnixMilli(), Unavailable: true}
}

// Normalize strips measurement fields from unavailable entries.
func (e CacheEntry) Normalize() CacheEntry {
	if e.Unavailable {
		return CacheEntry{FetchedAt: e.FetchedAt, Unavailable: true}
	}
	return e
}

// HasHeadlineCounts reports whether both followers and following are known.
func (e CacheEntry) HasHeadlineCounts() bool {
	return e.Followers != nil && e.Following != nil
}

// Age returns how long ago the entry was fetched.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(e.FetchedAt))
}

// ProfileResult is what a single extraction attempt yields.
type ProfileResult struct {
	Followers   *int64  `json:"followers,omitempty"`
	Following   *int64  `json:"following,omitempty"`
	JoinedYear  *string `json:"joinedYear,omitempty"`
	Location    *string `json:"location,omitempty"`
	RateLimited bool    `json:"rateLimited"`
}

// Empty reports whether no measurement field was extracted.
func (r ProfileResult) Empty() bool {
	return r.Followers == nil && r.Following == nil && r.JoinedYear == nil && r.Location == nil
}

// ToEntry converts a result into a cache entry. A result with no fields
// becomes an unavailable entry.
func (r ProfileResult) ToEntry(now time.Time) CacheEntry {
	if r.Empty() {
		return UnavailableEntry(now)
	}
	return CacheEntry{
		FetchedAt:  now.UnixMilli(),
		Followers:  r.Followers,
		Following:  r.Following,
		JoinedYear: r.JoinedYear,
		Location:   r.Location,
	}
}

// State is the single durable document.
type State struct {
	SchemaVersion int                   `json:"schemaVersion"`
	Users         map[string]CacheEntry `json:"users"`
	Settings      Settings              `json:"settings"`
}

// NewState returns an empty state with default settings.
func NewState() *State {
	return &State{
		SchemaVersion: SchemaVersion,
		Users:         map[string]CacheEntry{},
		Settings:      DefaultSettings(),
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		SchemaVersion: s.SchemaVersion,
		Users:         make(map[string]CacheEntry, len(s.Users)),
		Settings:      s.Settings,
	}
	for k, v := range s.Users {
		out.Users[k] = v
	}
	return out
}

// LastFetch returns the most recent fetchedAt across all entries, or 0.
func (s *State) LastFetch() int64 {
	if s == nil {
		return 0
	}
	var last int64
	for _, entry := range s.Users {
		if entry.FetchedAt > last {
			last = entry.FetchedAt
		}
	}
	return last
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}
