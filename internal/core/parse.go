package core

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	countTokenPattern = regexp.MustCompile(`(\d{1,3}(?:[.,\s]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)?)(?:\s*([kKmM]))?`)
	followersLabel    = regexp.MustCompile(`(?i)followers`)
	followerLabel     = regexp.MustCompile(`(?i)follower`)
	followingLabel    = regexp.MustCompile(`(?i)following`)
	joinedYearPattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	nonDigit          = regexp.MustCompile(`\D`)
)

type countToken struct {
	token  string
	suffix string
	end    int
}

// ParseCountText extracts a count from rendered profile text such as
// "1,366 Followers", "1.2M" or "12,5 k". When a followers or following
// label is present, the number closest before it wins.
func ParseCountText(text string) (int64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
	if raw == "" {
		return 0, false
	}

	anchor := -1
	for _, label := range []*regexp.Regexp{followersLabel, followerLabel, followingLabel} {
		if loc := label.FindStringIndex(raw); loc != nil {
			anchor = loc[0]
			break
		}
	}

	var tokens []countToken
	for _, m := range countTokenPattern.FindAllStringSubmatchIndex(raw, -1) {
		start := m[0]
		if start > 0 && raw[start-1] >= '0' && raw[start-1] <= '9' {
			continue
		}
		tok := countToken{token: raw[m[2]:m[3]], end: m[1]}
		if m[4] >= 0 {
			tok.suffix = strings.ToLower(raw[m[4]:m[5]])
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return 0, false
	}

	picked := tokens[0]
	if anchor >= 0 {
		found := false
		for _, tok := range tokens {
			if tok.end <= anchor && (!found || tok.end > picked.end) {
				picked = tok
				found = true
			}
		}
	}

	num := strings.Join(strings.Fields(picked.token), "")
	if picked.suffix == "k" || picked.suffix == "m" {
		num = strings.ReplaceAll(num, ",", ".")
		if parts := strings.Split(num, "."); len(parts) > 2 {
			last := parts[len(parts)-1]
			num = strings.Join(parts[:len(parts)-1], "") + "." + last
		}
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		scale := 1_000.0
		if picked.suffix == "m" {
			scale = 1_000_000
		}
		return int64(math.Round(v * scale)), true
	}

	digits := nonDigit.ReplaceAllString(num, "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseJoinedYear finds a four-digit year in a "Joined" label.
func ParseJoinedYear(text string) (string, bool) {
	m := joinedYearPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return m[1], true
}
