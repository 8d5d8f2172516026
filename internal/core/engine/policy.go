package engine

import (
	"time"

	"github.com/feedmeta/feedmeta/internal/core"
)

// Freshness classifies a cached entry against the current settings.
type Freshness int

const (
	// Absent means nothing is cached.
	Absent Freshness = iota
	// Fresh entries satisfy a request as-is.
	Fresh
	// Stale entries are returned provisionally and refetched.
	Stale
	// Unavailable entries recorded a failed fetch still inside the short retry TTL.
	Unavailable
	// Partial entries are fresh but missing followers or following.
	Partial
)

// String returns a lowercase label.
func (f Freshness) String() string {
	switch f {
	case Absent:
		return "absent"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Unavailable:
		return "unavailable"
	case Partial:
		return "partial"
	default:
		return "unknown"
	}
}

// DefaultPartialRetryAfter is how old a partial entry must be before a refetch.
const DefaultPartialRetryAfter = 30 * time.Second

// Policy decides whether a cached entry needs a refetch.
type Policy struct {
	PartialRetryAfter time.Duration
}

// TTL is the lifetime of an entry: hours for unavailable entries, days otherwise.
func (p Policy) TTL(entry core.CacheEntry, settings core.Settings) time.Duration {
	if entry.Unavailable {
		return time.Duration(max(1, settings.UnavailableTTLHours)) * time.Hour
	}
	return time.Duration(max(1, settings.CacheTTLDays)) * 24 * time.Hour
}

// Classify buckets entry at now. A nil entry is Absent; an entry without a
// fetch time is Stale.
func (p Policy) Classify(entry *core.CacheEntry, settings core.Settings, now time.Time) Freshness {
	if entry == nil {
		return Absent
	}
	if entry.FetchedAt <= 0 {
		return Stale
	}
	age := entry.Age(now)
	if age >= p.TTL(*entry, settings) {
		return Stale
	}
	if entry.Unavailable {
		return Unavailable
	}
	if !entry.HasHeadlineCounts() && age > p.partialRetryAfter() {
		return Partial
	}
	return Fresh
}

func (p Policy) partialRetryAfter() time.Duration {
	if p.PartialRetryAfter <= 0 {
		return DefaultPartialRetryAfter
	}
	return p.PartialRetryAfter
}
