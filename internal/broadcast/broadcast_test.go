// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalmast/beacon/internal/hub"
	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/protocol"
)

type recordedRoute struct {
	deviceID string
	env      protocol.Envelope
	queue    hub.QueueKind
}

type fakeRouter struct {
	mu     sync.Mutex
	routed []recordedRoute
	err    error
}

func (f *fakeRouter) RouteToDevice(deviceID string, env protocol.Envelope, queue hub.QueueKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.routed = append(f.routed, recordedRoute{deviceID: deviceID, env: env, queue: queue})
	return nil
}

func (f *fakeRouter) last() (recordedRoute, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.routed) == 0 {
		return recordedRoute{}, false
	}
	return f.routed[len(f.routed)-1], true
}

type fakeStore struct {
	assigned  map[string]*models.Playlist
	playlists map[string]*models.Playlist
}

func newFakeStore() *fakeStore {
	return &fakeStore{assigned: make(map[string]*models.Playlist), playlists: make(map[string]*models.Playlist)}
}

func (f *fakeStore) AssignedPlaylist(_ context.Context, deviceID string) (*models.Playlist, error) {
	return f.assigned[deviceID], nil
}

func (f *fakeStore) GetPlaylist(_ context.Context, playlistID string) (*models.Playlist, error) {
	pl, ok := f.playlists[playlistID]
	if !ok {
		return nil, nil
	}
	return pl, nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeRouter, *fakeStore, func()) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	router := &fakeRouter{}
	store := newFakeStore()

	c := New(router, store, client, nil)
	return c, router, store, func() { mr.Close() }
}

func TestStartPersistsStateAndPushesBroadcastUpdate(t *testing.T) {
	c, router, store, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()

	store.assigned["device-1"] = &models.Playlist{ID: "pl-1", Name: "Default", IsActive: true}

	require.NoError(t, c.Start(ctx, "device-1", "https://example.com/alert", 0))

	state, ok, err := c.Active(ctx, "device-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pl-1", state.SavedPlaylistID)
	assert.Equal(t, "https://example.com/alert", state.BroadcastURL)
	assert.Nil(t, state.ExpiresAt)

	route, ok := router.last()
	require.True(t, ok)
	assert.Equal(t, "device-1", route.deviceID)
	assert.Equal(t, protocol.EventContentUpdate, route.env.Event)
	assert.Equal(t, hub.QueueControl, route.queue)

	var payload protocol.ContentUpdatePayload
	require.NoError(t, protocol.Decode(route.env, &payload))
	assert.True(t, payload.Broadcast)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, "https://example.com/alert", payload.Items[0].URL)
}

func TestStartWithDurationSetsExpiresAt(t *testing.T) {
	c, _, _, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()

	fixed := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	require.NoError(t, c.Start(ctx, "device-1", "https://example.com/alert", 30*time.Second))

	state, ok, err := c.Active(ctx, "device-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, state.ExpiresAt)
	assert.Equal(t, fixed.Add(30*time.Second), *state.ExpiresAt)
}

func TestEndRestoresSavedPlaylistAndClearsState(t *testing.T) {
	c, router, store, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()

	store.assigned["device-1"] = &models.Playlist{ID: "pl-1", Name: "Default", IsActive: true}
	store.playlists["pl-1"] = &models.Playlist{
		ID:   "pl-1",
		Name: "Default",
		Items: []models.PlaylistItem{
			{ID: "item-1", URL: "https://example.com/home", OrderIndex: 1},
		},
	}

	require.NoError(t, c.Start(ctx, "device-1", "https://example.com/alert", 0))
	require.NoError(t, c.End(ctx, "device-1"))

	_, ok, err := c.Active(ctx, "device-1")
	require.NoError(t, err)
	assert.False(t, ok)

	route, ok := router.last()
	require.True(t, ok)
	var payload protocol.ContentUpdatePayload
	require.NoError(t, protocol.Decode(route.env, &payload))
	assert.False(t, payload.Broadcast)
	assert.Equal(t, "pl-1", payload.PlaylistID)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, "https://example.com/home", payload.Items[0].URL)
}

func TestEndWithNoActiveBroadcastIsNoop(t *testing.T) {
	c, router, _, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, c.End(ctx, "device-unknown"))
	_, ok := router.last()
	assert.False(t, ok)
}

func TestSweepExpiredEndsPastDeadlineBroadcasts(t *testing.T) {
	c, router, store, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()

	store.assigned["device-1"] = &models.Playlist{ID: "pl-1"}
	store.playlists["pl-1"] = &models.Playlist{ID: "pl-1"}
	store.assigned["device-2"] = &models.Playlist{ID: "pl-2"}
	store.playlists["pl-2"] = &models.Playlist{ID: "pl-2"}

	start := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return start }
	require.NoError(t, c.Start(ctx, "device-1", "https://a", time.Second))
	require.NoError(t, c.Start(ctx, "device-2", "https://b", time.Hour))

	c.now = func() time.Time { return start.Add(2 * time.Second) }
	ended, err := c.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ended)

	_, active1, err := c.Active(ctx, "device-1")
	require.NoError(t, err)
	assert.False(t, active1)

	_, active2, err := c.Active(ctx, "device-2")
	require.NoError(t, err)
	assert.True(t, active2)

	_ = router
}

func TestStartCapturesSavedItemIndexFromLookup(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	router := &fakeRouter{}
	store := newFakeStore()
	store.assigned["device-1"] = &models.Playlist{ID: "pl-1"}

	lookup := func(deviceID string) (models.PlaybackState, bool) {
		return models.PlaybackState{CurrentIndex: 3}, true
	}
	c := New(router, store, client, lookup)

	require.NoError(t, c.Start(context.Background(), "device-1", "https://a", 0))

	state, ok, err := c.Active(context.Background(), "device-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, state.SavedItemIndex)
}
