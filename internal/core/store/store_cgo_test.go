//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/feedmeta/feedmeta/internal/config"
	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/stretchr/testify/require"
)

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Close())
}

func TestLibsqlStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	state, err := backend.LoadState(ctx)
	require.NoError(t, err)
	require.Empty(t, state.Users)

	state.Users["alice"] = core.CacheEntry{FetchedAt: 42, Followers: core.Int64Ptr(7), Location: core.StringPtr("Lisbon")}
	state.Settings.MaxConcurrentTabs = 5
	require.NoError(t, backend.SaveState(ctx, state))

	// overwrite goes through the upsert path
	state.Users["bob"] = core.UnavailableEntry(time.UnixMilli(99))
	require.NoError(t, backend.SaveState(ctx, state))

	loaded, err := backend.LoadState(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Users, 2)
	require.Equal(t, "Lisbon", *loaded.Users["alice"].Location)
	require.True(t, loaded.Users["bob"].Unavailable)
	require.Equal(t, 5, loaded.Settings.MaxConcurrentTabs)
}
