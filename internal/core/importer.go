package core

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// MaxImportEntries bounds how many entries a single import considers.
const MaxImportEntries = 10000

// ErrInvalidPayload is returned for an import payload that is not an object.
var ErrInvalidPayload = errors.New("invalid payload")

var validate = validator.New()

type importRecord struct {
	FetchedAt   float64  `mapstructure:"fetchedAt" validate:"gte=0"`
	Followers   *float64 `mapstructure:"followers" validate:"omitempty,gte=0"`
	Following   *float64 `mapstructure:"following" validate:"omitempty,gte=0"`
	JoinedYear  *string  `mapstructure:"joinedYear" validate:"omitempty,len=4,numeric"`
	Location    *string  `mapstructure:"location"`
	Unavailable bool     `mapstructure:"unavailable"`
}

// ImportResult reports the entries accepted by ParseImport.
type ImportResult struct {
	Entries map[string]CacheEntry
	// Imported counts distinct canonical keys, so "Bob" and "bob" count once.
	Imported int
	Skipped  int
}

// ParseImport validates an operator-supplied users map. Keys are
// normalised; entries that fail validation or carry no data are skipped.
// Keys are visited in sorted order so the entry cap is deterministic.
func ParseImport(payload any) (ImportResult, error) {
	users, ok := payload.(map[string]any)
	if !ok || users == nil {
		return ImportResult{}, ErrInvalidPayload
	}

	keys := make([]string, 0, len(users))
	for k := range users {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > MaxImportEntries {
		keys = keys[:MaxImportEntries]
	}

	result := ImportResult{Entries: make(map[string]CacheEntry, len(keys))}
	for _, k := range keys {
		handle, ok := NormalizeHandle(k)
		if !ok {
			result.Skipped++
			continue
		}
		entry, err := decodeImportEntry(users[k])
		if err != nil {
			result.Skipped++
			continue
		}
		result.Entries[handle.Key] = entry
	}
	result.Imported = len(result.Entries)
	return result, nil
}

func decodeImportEntry(v any) (CacheEntry, error) {
	src, ok := v.(map[string]any)
	if !ok {
		return CacheEntry{}, fmt.Errorf("entry is not an object")
	}
	raw := make(map[string]any, len(src))
	for k, val := range src {
		raw[k] = val
	}
	for _, field := range []string{"joinedYear", "location"} {
		if s, ok := raw[field].(string); ok && strings.TrimSpace(s) == "" {
			raw[field] = nil
		}
	}

	var rec importRecord
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &rec,
	})
	if err != nil {
		return CacheEntry{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return CacheEntry{}, err
	}
	if err := validate.Struct(rec); err != nil {
		return CacheEntry{}, err
	}

	entry := CacheEntry{
		FetchedAt:   int64(rec.FetchedAt),
		Followers:   roundCount(rec.Followers),
		Following:   roundCount(rec.Following),
		JoinedYear:  rec.JoinedYear,
		Location:    rec.Location,
		Unavailable: rec.Unavailable,
	}
	if entry.FetchedAt == 0 && entry.Followers == nil && entry.Following == nil &&
		entry.JoinedYear == nil && entry.Location == nil {
		return CacheEntry{}, fmt.Errorf("entry has no data")
	}
	return entry.Normalize(), nil
}

func roundCount(v *float64) *int64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	n := int64(math.Round(*v))
	return &n
}
