package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSettingsDefaults(t *testing.T) {
	got, err := DecodeSettings(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), got)
}

func TestDecodeSettingsClampsNumericTunables(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{name: "below range", value: 0, want: 1},
		{name: "above range", value: 500, want: 120},
		{name: "rounded", value: 12.6, want: 13},
		{name: "numeric string", value: "45", want: 45},
		{name: "garbage string", value: "fast", want: 20},
		{name: "nan", value: math.NaN(), want: 20},
		{name: "infinite", value: math.Inf(1), want: 20},
		{name: "bool", value: true, want: 20},
		{name: "missing", value: nil, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSettings(map[string]any{"maxRequestsPerMinute": tt.value})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.MaxRequestsPerMinute)
		})
	}
}

func TestDecodeSettingsThemeFallback(t *testing.T) {
	got, err := DecodeSettings(map[string]any{"themeMode": "neon"})
	require.NoError(t, err)
	assert.Equal(t, ThemeAuto, got.ThemeMode)

	got, err = DecodeSettings(map[string]any{"themeMode": "dark"})
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, got.ThemeMode)
}

func TestDecodeSettingsRejectsMalformedBooleans(t *testing.T) {
	_, err := DecodeSettings(map[string]any{"enabled": []any{1, 2}})
	require.ErrorIs(t, err, ErrInvalidSettings)
}

func TestNormalizeFollowerColorsLegacyKeys(t *testing.T) {
	got := NormalizeFollowerColors(map[string]any{
		"red":        "#111111",
		"k250to1m":   "#222222",
		"orange":     "#999999",
		"white":      "#FFFFFF",
		"lightGreen": "not-a-colour",
	})

	assert.Equal(t, "#111111", got.Gt1m)
	assert.Equal(t, "#222222", got.K250to1m)
	assert.Equal(t, DefaultFollowerColors().K1to5k, got.K1to5k)
	assert.Equal(t, "#D02ED9", got.Lt1k)
}

func TestMergeSettingsKeepsOverrides(t *testing.T) {
	base := DefaultSettings()
	base.ShowLocation = true
	base.FollowerColors.Gt1m = "#000000"

	merged, err := MergeSettings(base, map[string]any{
		"maxConcurrentTabs": 99,
		"followerColors":    map[string]any{"lt1k": "#123456"},
	})
	require.NoError(t, err)

	assert.True(t, merged.ShowLocation)
	assert.Equal(t, 10, merged.MaxConcurrentTabs)
	assert.Equal(t, "#000000", merged.FollowerColors.Gt1m)
	assert.Equal(t, "#123456", merged.FollowerColors.Lt1k)
}

func TestMergeSettingsRejectsNonObjectColors(t *testing.T) {
	_, err := MergeSettings(DefaultSettings(), map[string]any{"followerColors": "red"})
	require.ErrorIs(t, err, ErrInvalidSettings)
}

func TestSettingsUnmarshalJSONNormalizes(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"cacheTTLdays":0,"enabled":false,"followerColors":{"white":"#ffffff"}}`), &s))

	assert.Equal(t, 1, s.CacheTTLDays)
	assert.False(t, s.Enabled)
	assert.True(t, s.ShowFollowers)
	assert.Equal(t, "#D02ED9", s.FollowerColors.Lt1k)
}

func TestFollowerBucket(t *testing.T) {
	cases := map[int64]string{
		2_000_000: "gt1m",
		1_000_000: "k250to1m",
		250_000:   "k250to1m",
		30_000:    "k25to250k",
		5_000:     "k5to25k",
		1_000:     "k1to5k",
		999:       "lt1k",
	}
	for followers, want := range cases {
		assert.Equal(t, want, FollowerBucket(followers), "followers=%d", followers)
	}

	colors := DefaultFollowerColors()
	assert.Equal(t, colors.Gt1m, colors.Color("gt1m"))
	assert.Empty(t, colors.Color("unknown"))
}
