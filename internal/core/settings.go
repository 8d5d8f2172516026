package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// ErrInvalidSettings is returned when a settings payload cannot be decoded.
var ErrInvalidSettings = errors.New("invalid settings")

// Theme modes.
const (
	ThemeAuto  = "auto"
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// FollowerColors maps each follower-count bucket to a hex colour.
type FollowerColors struct {
	Gt1m      string `json:"gt1m" yaml:"gt1m" mapstructure:"gt1m"`
	K250to1m  string `json:"k250to1m" yaml:"k250to1m" mapstructure:"k250to1m"`
	K25to250k string `json:"k25to250k" yaml:"k25to250k" mapstructure:"k25to250k"`
	K5to25k   string `json:"k5to25k" yaml:"k5to25k" mapstructure:"k5to25k"`
	K1to5k    string `json:"k1to5k" yaml:"k1to5k" mapstructure:"k1to5k"`
	Lt1k      string `json:"lt1k" yaml:"lt1k" mapstructure:"lt1k"`
}

// Settings is the process-wide durable configuration.
type Settings struct {
	Enabled                   bool           `json:"enabled" yaml:"enabled"`
	ShowFollowers             bool           `json:"showFollowers" yaml:"showFollowers"`
	ShowFollowing             bool           `json:"showFollowing" yaml:"showFollowing"`
	ShowJoined                bool           `json:"showJoined" yaml:"showJoined"`
	ShowLocation              bool           `json:"showLocation" yaml:"showLocation"`
	ThemeMode                 string         `json:"themeMode" yaml:"themeMode"`
	MaxRequestsPerMinute      int            `json:"maxRequestsPerMinute" yaml:"maxRequestsPerMinute"`
	CacheTTLDays              int            `json:"cacheTTLdays" yaml:"cacheTTLdays"`
	UnavailableTTLHours       int            `json:"unavailableTTLhours" yaml:"unavailableTTLhours"`
	MaxConcurrentTabs         int            `json:"maxConcurrentTabs" yaml:"maxConcurrentTabs"`
	RateLimitPauseMinutes     int            `json:"rateLimitPauseMinutes" yaml:"rateLimitPauseMinutes"`
	ScrollPauseMs             int            `json:"scrollPauseMs" yaml:"scrollPauseMs"`
	PrefetchBatchSize         int            `json:"prefetchBatchSize" yaml:"prefetchBatchSize"`
	ScrapeTabLoadTimeoutMs    int            `json:"scrapeTabLoadTimeoutMs" yaml:"scrapeTabLoadTimeoutMs"`
	ScrapeProfileHeaderWaitMs int            `json:"scrapeProfileHeaderWaitMs" yaml:"scrapeProfileHeaderWaitMs"`
	FollowerColors            FollowerColors `json:"followerColors" yaml:"followerColors"`
}

// DefaultFollowerColors returns the stock colour scale.
func DefaultFollowerColors() FollowerColors {
	return FollowerColors{
		Gt1m:      "#f4212e",
		K250to1m:  "#ff9f0a",
		K25to250k: "#ffd60a",
		K5to25k:   "#00ba7c",
		K1to5k:    "#40dca0",
		Lt1k:      "#D02ED9",
	}
}

// DefaultSettings returns the settings used when nothing is stored.
func DefaultSettings() Settings {
	return Settings{
		Enabled:                   true,
		ShowFollowers:             true,
		ShowFollowing:             true,
		ShowJoined:                true,
		ShowLocation:              false,
		ThemeMode:                 ThemeAuto,
		MaxRequestsPerMinute:      20,
		CacheTTLDays:              30,
		UnavailableTTLHours:       24,
		MaxConcurrentTabs:         3,
		RateLimitPauseMinutes:     5,
		ScrollPauseMs:             500,
		PrefetchBatchSize:         200,
		ScrapeTabLoadTimeoutMs:    15000,
		ScrapeProfileHeaderWaitMs: 10000,
		FollowerColors:            DefaultFollowerColors(),
	}
}

type numericSetting struct {
	name     string
	min, max int
	field    func(*Settings) *int
}

var numericSettings = []numericSetting{
	{"maxRequestsPerMinute", 1, 120, func(s *Settings) *int { return &s.MaxRequestsPerMinute }},
	{"cacheTTLdays", 1, 365, func(s *Settings) *int { return &s.CacheTTLDays }},
	{"unavailableTTLhours", 1, 168, func(s *Settings) *int { return &s.UnavailableTTLHours }},
	{"maxConcurrentTabs", 1, 10, func(s *Settings) *int { return &s.MaxConcurrentTabs }},
	{"rateLimitPauseMinutes", 1, 60, func(s *Settings) *int { return &s.RateLimitPauseMinutes }},
	{"scrollPauseMs", 100, 5000, func(s *Settings) *int { return &s.ScrollPauseMs }},
	{"prefetchBatchSize", 20, 1000, func(s *Settings) *int { return &s.PrefetchBatchSize }},
	{"scrapeTabLoadTimeoutMs", 3000, 60000, func(s *Settings) *int { return &s.ScrapeTabLoadTimeoutMs }},
	{"scrapeProfileHeaderWaitMs", 1000, 60000, func(s *Settings) *int { return &s.ScrapeProfileHeaderWaitMs }},
}

// DecodeSettings builds settings from a loosely typed document, starting
// from defaults. Numeric tunables are rounded and clamped; missing or
// unparsable values take their default.
func DecodeSettings(raw map[string]any) (Settings, error) {
	out := DefaultSettings()
	rest := make(map[string]any, len(raw))
	for k, v := range raw {
		rest[k] = v
	}

	for _, spec := range numericSettings {
		ptr := spec.field(&out)
		*ptr = clampNumber(rest[spec.name], spec.min, spec.max, *ptr)
		delete(rest, spec.name)
	}

	colors, _ := rest["followerColors"].(map[string]any)
	out.FollowerColors = NormalizeFollowerColors(colors)
	delete(rest, "followerColors")

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return DefaultSettings(), fmt.Errorf("settings decoder: %w", err)
	}
	if err := decoder.Decode(rest); err != nil {
		return DefaultSettings(), fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	switch out.ThemeMode {
	case ThemeAuto, ThemeDark, ThemeLight:
	default:
		out.ThemeMode = ThemeAuto
	}
	return out, nil
}

// NormalizeSettings re-applies every clamp and fallback to typed settings.
func NormalizeSettings(s Settings) Settings {
	raw, err := s.toMap()
	if err != nil {
		return DefaultSettings()
	}
	out, err := DecodeSettings(raw)
	if err != nil {
		return DefaultSettings()
	}
	return out
}

// MergeSettings overlays a partial settings document onto base. Nested
// followerColors are merged key by key.
func MergeSettings(base Settings, patch map[string]any) (Settings, error) {
	raw, err := base.toMap()
	if err != nil {
		return base, err
	}
	for k, v := range patch {
		if k == "followerColors" {
			incoming, ok := v.(map[string]any)
			if !ok {
				if v == nil {
					continue
				}
				return base, fmt.Errorf("%w: followerColors must be an object", ErrInvalidSettings)
			}
			current, _ := raw["followerColors"].(map[string]any)
			merged := make(map[string]any, len(current)+len(incoming))
			for ck, cv := range current {
				merged[ck] = cv
			}
			for ck, cv := range incoming {
				merged[ck] = cv
			}
			raw["followerColors"] = merged
			continue
		}
		raw[k] = v
	}
	return DecodeSettings(raw)
}

func (s Settings) toMap() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return raw, nil
}

// UnmarshalJSON decodes a settings document with every clamp and fallback applied.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := DecodeSettings(raw)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// UnmarshalJSON accepts the legacy colour key names.
func (c *FollowerColors) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = NormalizeFollowerColors(raw)
	return nil
}

var legacyColorKeys = []struct {
	current, legacy string
	field           func(*FollowerColors) *string
}{
	{"gt1m", "red", func(c *FollowerColors) *string { return &c.Gt1m }},
	{"k250to1m", "orange", func(c *FollowerColors) *string { return &c.K250to1m }},
	{"k25to250k", "yellow", func(c *FollowerColors) *string { return &c.K25to250k }},
	{"k5to25k", "green", func(c *FollowerColors) *string { return &c.K5to25k }},
	{"k1to5k", "lightGreen", func(c *FollowerColors) *string { return &c.K1to5k }},
	{"lt1k", "white", func(c *FollowerColors) *string { return &c.Lt1k }},
}

// NormalizeFollowerColors resolves each bucket from its current key, then
// its legacy key, then the default. A pure white lowest bucket is replaced.
func NormalizeFollowerColors(raw map[string]any) FollowerColors {
	out := DefaultFollowerColors()
	for _, k := range legacyColorKeys {
		if v, ok := colorValue(raw[k.current]); ok {
			*k.field(&out) = v
		} else if v, ok := colorValue(raw[k.legacy]); ok {
			*k.field(&out) = v
		}
	}
	if strings.EqualFold(strings.TrimSpace(out.Lt1k), "#ffffff") {
		out.Lt1k = DefaultFollowerColors().Lt1k
	}
	return out
}

func colorValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 3 && len(hex) != 6 {
		return "", false
	}
	if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
		return "", false
	}
	return s, true
}

// FollowerBucket names the colour bucket a follower count falls into.
func FollowerBucket(followers int64) string {
	switch {
	case followers > 1_000_000:
		return "gt1m"
	case followers >= 250_000:
		return "k250to1m"
	case followers >= 25_000:
		return "k25to250k"
	case followers >= 5_000:
		return "k5to25k"
	case followers >= 1_000:
		return "k1to5k"
	default:
		return "lt1k"
	}
}

// Color returns the colour configured for a bucket name.
func (c FollowerColors) Color(bucket string) string {
	for _, k := range legacyColorKeys {
		if k.current == bucket {
			return *k.field(&c)
		}
	}
	return ""
}

func clampNumber(v any, lo, hi, fallback int) int {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case float64:
		f = n
	case float32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return fallback
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return fallback
		}
		f = parsed
	default:
		return fallback
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	f = math.Round(f)
	if f < float64(lo) {
		return lo
	}
	if f > float64(hi) {
		return hi
	}
	return int(f)
}
