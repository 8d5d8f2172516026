package fetcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedmeta/feedmeta/internal/config"
	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/feedmeta/feedmeta/internal/core/engine"
)

func strp(s string) *string { return &s }

func intp(i int) *int { return &i }

func TestBuildResult(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		raw   *rawProfile
		probe rateProbe
		want  core.ProfileResult
	}{
		{
			name: "full header",
			key:  "alice",
			raw: &rawProfile{
				ActualHandle:  strp("Alice"),
				FollowersText: strp("1.2M"),
				FollowingText: strp("1,366"),
				Location:      strp("  Lisbon "),
				JoinedText:    strp("Joined March 2011"),
			},
			want: core.ProfileResult{
				Followers:  core.Int64Ptr(1_200_000),
				Following:  core.Int64Ptr(1366),
				JoinedYear: core.StringPtr("2011"),
				Location:   core.StringPtr("Lisbon"),
			},
		},
		{
			name: "different profile rendered",
			key:  "alice",
			raw:  &rawProfile{ActualHandle: strp("mallory"), FollowersText: strp("10")},
			want: core.ProfileResult{},
		},
		{
			name: "no handle span still extracts",
			key:  "bob",
			raw:  &rawProfile{FollowingText: strp("42")},
			want: core.ProfileResult{Following: core.Int64Ptr(42)},
		},
		{
			name:  "throttled with partial data",
			key:   "carol",
			raw:   &rawProfile{FollowersText: strp("12.5K")},
			probe: rateProbe{Hint: true},
			want:  core.ProfileResult{Followers: core.Int64Ptr(12_500), RateLimited: true},
		},
		{
			name:  "nothing extracted",
			key:   "dave",
			raw:   nil,
			probe: rateProbe{Status: intp(429)},
			want:  core.ProfileResult{RateLimited: true},
		},
		{
			name: "unparsable text",
			key:  "erin",
			raw:  &rawProfile{FollowersText: strp("lots"), JoinedText: strp("a while ago"), Location: strp("   ")},
			want: core.ProfileResult{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, buildResult(tc.key, tc.raw, tc.probe))
		})
	}
}

func TestRateProbeLimited(t *testing.T) {
	assert.False(t, rateProbe{}.Limited())
	assert.False(t, rateProbe{Status: intp(200)}.Limited())
	assert.True(t, rateProbe{Status: intp(429)}.Limited())
	assert.True(t, rateProbe{Res429: true}.Limited())
	assert.True(t, rateProbe{Hint: true}.Limited())
}

func TestProfileURL(t *testing.T) {
	f := NewRodFetcher("", true, "", nil)
	got, err := f.profileURL("Alice_1")
	require.NoError(t, err)
	assert.Equal(t, "https://x.com/Alice_1", got)

	f.BaseURL = "http://127.0.0.1:9000/"
	got, err = f.profileURL("bob")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/bob", got)

	_, err = f.profileURL("")
	require.Error(t, err)
}

func TestNewSelectsDriver(t *testing.T) {
	f, err := New(config.FetcherConfig{Driver: DriverRod, ControlURL: " ws://localhost:9222 "}, nil)
	require.NoError(t, err)
	rodFetcher, ok := f.(*RodFetcher)
	require.True(t, ok)
	assert.Equal(t, "ws://localhost:9222", rodFetcher.ControlURL)
	require.NoError(t, f.Close())

	f, err = New(config.FetcherConfig{Driver: DriverNone}, nil)
	require.NoError(t, err)
	result, err := f.Fetch(context.Background(), engine.FetchRequest{Key: "alice", Handle: "alice"})
	require.NoError(t, err)
	assert.True(t, result.Empty())

	_, err = New(config.FetcherConfig{Driver: "selenium"}, nil)
	require.Error(t, err)
}
