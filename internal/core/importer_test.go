package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImportRejectsNonObject(t *testing.T) {
	_, err := ParseImport([]any{"alice"})
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseImport(nil)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestParseImportValidatesEntries(t *testing.T) {
	payload := map[string]any{
		"@Alice":     map[string]any{"fetchedAt": float64(1000), "followers": float64(12), "following": "7", "joinedYear": float64(2012)},
		"empty":      map[string]any{"fetchedAt": 0, "location": ""},
		"negative":   map[string]any{"fetchedAt": float64(1), "followers": float64(-3)},
		"badyear":    map[string]any{"fetchedAt": float64(1), "joinedYear": "twenty"},
		"not valid!": map[string]any{"fetchedAt": float64(1)},
		"gone":       map[string]any{"fetchedAt": float64(2), "followers": float64(5), "unavailable": true},
		"scalar":     "nope",
	}

	result, err := ParseImport(payload)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 5, result.Skipped)

	alice := result.Entries["alice"]
	require.NotNil(t, alice.Followers)
	assert.Equal(t, int64(12), *alice.Followers)
	assert.Equal(t, int64(7), *alice.Following)
	assert.Equal(t, "2012", *alice.JoinedYear)

	gone := result.Entries["gone"]
	assert.True(t, gone.Unavailable)
	assert.Nil(t, gone.Followers)
}

func TestParseImportIsIdempotent(t *testing.T) {
	payload := map[string]any{
		"carol": map[string]any{"fetchedAt": float64(50), "followers": float64(3), "following": float64(4)},
	}

	state := NewState()
	for i := 0; i < 2; i++ {
		result, err := ParseImport(payload)
		require.NoError(t, err)
		for k, v := range result.Entries {
			state.Users[k] = v
		}
	}

	once := NewState()
	result, err := ParseImport(payload)
	require.NoError(t, err)
	for k, v := range result.Entries {
		once.Users[k] = v
	}

	assert.Equal(t, once.Users, state.Users)
}

func TestParseImportCountsCanonicalKeysOnce(t *testing.T) {
	payload := map[string]any{
		"Bob":  map[string]any{"fetchedAt": float64(10), "followers": float64(1)},
		"bob":  map[string]any{"fetchedAt": float64(20), "followers": float64(2)},
		"@BOB": map[string]any{"fetchedAt": float64(30), "followers": float64(3)},
		"dave": map[string]any{"fetchedAt": float64(40), "followers": float64(4)},
	}

	result, err := ParseImport(payload)
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Skipped)
}
