package fetcher

import (
	"strings"

	"github.com/feedmeta/feedmeta/internal/core"
)

// rawProfile is what extractProfileJS returns.
type rawProfile struct {
	ActualHandle  *string `json:"actualHandle"`
	FollowersText *string `json:"followersText"`
	FollowingText *string `json:"followingText"`
	Location      *string `json:"location"`
	JoinedText    *string `json:"joinedText"`
}

// rateProbe is what rateProbeJS returns.
type rateProbe struct {
	Status *int `json:"status"`
	Res429 bool `json:"res429"`
	Hint   bool `json:"hint"`
}

// Limited reports whether the page carries a throttle signal.
func (p rateProbe) Limited() bool {
	return (p.Status != nil && *p.Status == 429) || p.Res429 || p.Hint
}

// buildResult turns extracted page text into a ProfileResult. A profile
// rendered for a different handle yields no fields.
func buildResult(key string, raw *rawProfile, probe rateProbe) core.ProfileResult {
	result := core.ProfileResult{RateLimited: probe.Limited()}
	if raw == nil {
		return result
	}

	if actual := deref(raw.ActualHandle); actual != "" && !strings.EqualFold(actual, key) {
		return result
	}

	if n, ok := core.ParseCountText(deref(raw.FollowersText)); ok {
		result.Followers = core.Int64Ptr(n)
	}
	if n, ok := core.ParseCountText(deref(raw.FollowingText)); ok {
		result.Following = core.Int64Ptr(n)
	}
	if year, ok := core.ParseJoinedYear(deref(raw.JoinedText)); ok {
		result.JoinedYear = core.StringPtr(year)
	}
	if loc := strings.TrimSpace(deref(raw.Location)); loc != "" {
		result.Location = core.StringPtr(loc)
	}
	return result
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
