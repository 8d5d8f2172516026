package output

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/feedmeta/feedmeta/internal/core/engine"
)

const dash = "-"

// StatusTable renders the scheduler counters.
func StatusTable(status engine.Status) string {
	t := newTable()
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"enabled", status.Settings.Enabled},
		{"cache size", status.Status.CacheSize},
		{"queue length", status.Status.QueueLength},
		{"active fetches", status.Status.ActiveFetches},
		{"last fetch", formatMillis(status.Status.LastFetchTimestamp)},
		{"paused until", formatMillis(status.Status.PauseUntil)},
	})
	return t.Render()
}

// EntitiesTable renders request results sorted by key.
func EntitiesTable(results map[string]engine.EntityResult, colors core.FollowerColors) string {
	t := newTable()
	t.AppendHeader(table.Row{"Key", "Status", "Followers", "Following", "Joined", "Location", "Colour"})
	for _, key := range sortedKeys(results) {
		r := results[key]
		row := table.Row{key, r.Status}
		row = append(row, entryCells(r.Value, colors)...)
		t.AppendRow(row)
	}
	return t.Render()
}

// CacheTable renders every cached entry sorted by key.
func CacheTable(users map[string]core.CacheEntry, colors core.FollowerColors) string {
	t := newTable()
	t.AppendHeader(table.Row{"Key", "Fetched", "Followers", "Following", "Joined", "Location", "Colour"})
	for _, key := range sortedKeys(users) {
		e := users[key]
		row := table.Row{key, formatMillis(e.FetchedAt)}
		row = append(row, entryCells(&e, colors)...)
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "total", len(users)})
	return t.Render()
}

// SettingsTable renders settings as key/value rows.
func SettingsTable(s core.Settings) string {
	t := newTable()
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"enabled", s.Enabled},
		{"showFollowers", s.ShowFollowers},
		{"showFollowing", s.ShowFollowing},
		{"showJoined", s.ShowJoined},
		{"showLocation", s.ShowLocation},
		{"themeMode", s.ThemeMode},
		{"maxRequestsPerMinute", s.MaxRequestsPerMinute},
		{"maxConcurrentTabs", s.MaxConcurrentTabs},
		{"cacheTTLdays", s.CacheTTLDays},
		{"unavailableTTLhours", s.UnavailableTTLHours},
		{"rateLimitPauseMinutes", s.RateLimitPauseMinutes},
		{"scrollPauseMs", s.ScrollPauseMs},
		{"prefetchBatchSize", s.PrefetchBatchSize},
		{"scrapeTabLoadTimeoutMs", s.ScrapeTabLoadTimeoutMs},
		{"scrapeProfileHeaderWaitMs", s.ScrapeProfileHeaderWaitMs},
	})
	t.AppendSeparator()
	for _, bucket := range []string{"gt1m", "k250to1m", "k25to250k", "k5to25k", "k1to5k", "lt1k"} {
		t.AppendRow(table.Row{"followerColors." + bucket, s.FollowerColors.Color(bucket)})
	}
	return t.Render()
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func entryCells(e *core.CacheEntry, colors core.FollowerColors) table.Row {
	if e == nil {
		return table.Row{dash, dash, dash, dash, dash}
	}
	if e.Unavailable {
		return table.Row{"unavailable", dash, dash, dash, dash}
	}
	colour := dash
	if e.Followers != nil {
		colour = colors.Color(core.FollowerBucket(*e.Followers))
	}
	return table.Row{
		formatCount(e.Followers),
		formatCount(e.Following),
		formatString(e.JoinedYear),
		formatString(e.Location),
		colour,
	}
}

func formatCount(v *int64) string {
	if v == nil {
		return dash
	}
	return strconv.FormatInt(*v, 10)
}

func formatString(v *string) string {
	if v == nil || *v == "" {
		return dash
	}
	return *v
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return dash
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Summary is a one-line description of a request batch.
func Summary(results map[string]engine.EntityResult) string {
	queued := 0
	for _, r := range results {
		if r.Status == engine.StatusQueued {
			queued++
		}
	}
	return fmt.Sprintf("%d keys, %d fresh, %d queued", len(results), len(results)-queued, queued)
}
