// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package devicestore

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/signalmast/beacon/internal/models"
)

// newTestStore connects to a real Postgres instance named by
// BEACON_TEST_POSTGRES_DSN, or skips: these exercise the actual SQL, not a
// mock, matching the teacher's own preference for integration tests over
// a mocked database in internal/database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("BEACON_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BEACON_TEST_POSTGRES_DSN not set; skipping devicestore integration test")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	_, err = pool.Exec(context.Background(), Schema)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return New(pool)
}

func TestCreateDeviceAndResolveToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, token, err := s.CreateDevice(ctx, "Lobby Display", "stable-1", 1920, 1080, true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	resolved, err := s.ResolveToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, rec.StableDeviceID, resolved)

	_, err = s.ResolveToken(ctx, "not-a-real-token")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutPlaylistAtomicReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pl := &models.Playlist{
		ID:       "pl-1",
		Name:     "Lobby Rotation",
		IsActive: true,
		Items: []models.PlaylistItem{
			{ID: "item-b", PlaylistID: "pl-1", URL: "https://example.com/b", DurationSeconds: 10, OrderIndex: 2},
			{ID: "item-a", PlaylistID: "pl-1", URL: "https://example.com/a", DurationSeconds: 5, OrderIndex: 1},
		},
	}
	require.NoError(t, s.PutPlaylist(ctx, pl))

	got, err := s.GetPlaylist(ctx, "pl-1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	require.Equal(t, "item-a", got.Items[0].ID)
	require.Equal(t, "item-b", got.Items[1].ID)

	pl.Items = []models.PlaylistItem{{ID: "item-c", PlaylistID: "pl-1", URL: "https://example.com/c", OrderIndex: 1}}
	require.NoError(t, s.PutPlaylist(ctx, pl))

	got, err = s.GetPlaylist(ctx, "pl-1")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, "item-c", got.Items[0].ID)
}

func TestPutPlaylistRejectsInvalidItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pl := &models.Playlist{ID: "pl-bad", Name: "Bad", Items: []models.PlaylistItem{
		{ID: "item-1", PlaylistID: "pl-bad", URL: "https://example.com", DurationSeconds: -1, OrderIndex: 1},
	}}
	err := s.PutPlaylist(ctx, pl)
	require.Error(t, err)
}
