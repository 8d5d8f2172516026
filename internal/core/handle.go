package core

import (
	"regexp"
	"strings"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// Handle pairs the canonical cache key with the form used for display.
type Handle struct {
	Key     string `json:"key"`
	Display string `json:"display"`
}

// NormalizeHandle validates a raw handle and derives its canonical key.
// One leading "@" is stripped; keys are lower-cased.
func NormalizeHandle(raw string) (Handle, bool) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "@")
	if !handlePattern.MatchString(trimmed) {
		return Handle{}, false
	}
	return Handle{Key: strings.ToLower(trimmed), Display: trimmed}, true
}
