package cache_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
	"github.com/darceymckelvey/codestrata-auth/internal/session/store/cache"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestProfileRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	got, err := c.Profile(ctx)
	require.NoError(t, err)
	require.Nil(t, got, "empty cache has no profile")

	p := &domain.UserProfile{
		ID:       42,
		Username: "darcey",
		Email:    "darcey@example.com",
		Role:     "instructor",
		Settings: json.RawMessage(`{"theme":"dark"}`),
	}
	require.NoError(t, c.SaveProfile(ctx, p))

	got, err = c.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, p.Username, got.Username)
	require.JSONEq(t, `{"theme":"dark"}`, string(got.Settings))

	// Saving again replaces, not duplicates.
	p.Username = "darcey2"
	require.NoError(t, c.SaveProfile(ctx, p))
	got, err = c.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "darcey2", got.Username)
}

func TestVaultsRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	vaults := []cache.Vault{
		{ID: 2, Name: "algorithms", Description: "sorting drills"},
		{ID: 1, Name: "intro-go"},
	}
	require.NoError(t, c.SaveVaults(ctx, vaults))

	got, err := c.Vaults(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].ID, "ordered by id")

	require.NoError(t, c.SaveVaults(ctx, []cache.Vault{{ID: 9, Name: "only"}}))
	got, err = c.Vaults(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1, "snapshot is replaced wholesale")
}

func TestHasSnapshotAndClear(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.False(t, c.HasSnapshot(ctx))

	require.NoError(t, c.SaveVaults(ctx, []cache.Vault{{ID: 1, Name: "v"}}))
	require.True(t, c.HasSnapshot(ctx))

	require.NoError(t, c.Clear(ctx))
	require.False(t, c.HasSnapshot(ctx))

	p, err := c.Profile(ctx)
	require.NoError(t, err)
	require.Nil(t, p)
}
