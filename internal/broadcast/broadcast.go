// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package broadcast implements the server-side half of the Broadcast
// Override (spec §4.7/§3): it persists DeviceBroadcastState to Redis so an
// active override survives a server restart, and pushes the content:update
// envelope that drives the device's own save/restore state machine
// (internal/rotation).
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalmast/beacon/internal/hub"
	"github.com/signalmast/beacon/internal/metrics"
	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/protocol"
)

const stateKeyPrefix = "beacon:broadcast:"

// hubRouter narrows internal/hub.Hub to the one call this package issues.
type hubRouter interface {
	RouteToDevice(deviceID string, env protocol.Envelope, queue hub.QueueKind) error
}

// playlistStore narrows internal/devicestore.Store to the two lookups a
// broadcast override needs: the device's normally-assigned playlist (to
// save and later restore) and a playlist by ID (to re-fetch it on End,
// since the assignment itself is never changed by a broadcast).
type playlistStore interface {
	AssignedPlaylist(ctx context.Context, stableDeviceID string) (*models.Playlist, error)
	GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error)
}

// PlaybackLookup returns the last known PlaybackState reported by a device,
// if any, so a broadcast can capture the item index to restore.
// internal/dispatch.Dispatcher.LastPlaybackState tracks the most recent
// playback:state:update per device and satisfies this directly.
type PlaybackLookup func(deviceID string) (models.PlaybackState, bool)

// Coordinator manages broadcast overrides across devices.
type Coordinator struct {
	hub    hubRouter
	store  playlistStore
	redis  *redis.Client
	lookup PlaybackLookup
	now    func() time.Time
}

// New constructs a Coordinator. lookup may be nil, in which case Start
// falls back to saving item index 0 with zero elapsed time.
func New(router hubRouter, store playlistStore, client *redis.Client, lookup PlaybackLookup) *Coordinator {
	return &Coordinator{hub: router, store: store, redis: client, lookup: lookup, now: time.Now}
}

func stateKey(deviceID string) string {
	return stateKeyPrefix + deviceID
}

// Start installs a transient single-item broadcast override on deviceID,
// saving its currently assigned playlist and playback position to Redis,
// then pushing a broadcast content:update. duration of zero means the
// override is ended only explicitly, via End.
func (c *Coordinator) Start(ctx context.Context, deviceID, url string, duration time.Duration) error {
	assigned, err := c.store.AssignedPlaylist(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("broadcast: load assigned playlist: %w", err)
	}

	state := models.DeviceBroadcastState{
		DeviceID:     deviceID,
		BroadcastURL: url,
		StartedAt:    c.now(),
	}
	if assigned != nil {
		state.SavedPlaylistID = assigned.ID
	}
	if c.lookup != nil {
		// Only the item index is recoverable from PlaybackState; elapsed
		// time isn't (it reports remaining time against an item duration
		// this package doesn't have handy). The device's own rotation
		// engine already tracks exact elapsed time in-memory and is what
		// actually performs the save/restore on broadcast end; this
		// persisted copy exists so a restart mid-broadcast still knows
		// which playlist to hand back.
		if pb, ok := c.lookup(deviceID); ok {
			state.SavedItemIndex = pb.CurrentIndex
		}
	}
	if duration > 0 {
		expires := state.StartedAt.Add(duration)
		state.ExpiresAt = &expires
	}

	if err := c.save(ctx, state); err != nil {
		return err
	}

	env, err := protocol.Marshal(protocol.EventContentUpdate, protocol.ContentUpdatePayload{
		PlaylistID: "broadcast:" + deviceID,
		Items: []models.PlaylistItem{{
			ID:              "broadcast",
			URL:             url,
			DurationSeconds: 0,
			OrderIndex:      1,
		}},
		Broadcast: true,
	})
	if err != nil {
		return fmt.Errorf("broadcast: marshal content update: %w", err)
	}
	if err := c.hub.RouteToDevice(deviceID, env, hub.QueueControl); err != nil {
		return err
	}
	metrics.BroadcastsStartedTotal.Inc()
	metrics.BroadcastsActive.Inc()
	return nil
}

// End restores the saved playlist on deviceID and clears its broadcast
// state, per spec §8's "resume from the saved index with the saved
// remaining duration" scenario. Restoration of the exact remaining
// duration is the device-side rotation engine's responsibility
// (internal/rotation.Engine.EndBroadcast); this method only re-delivers
// the saved playlist so the device has something to restore from.
func (c *Coordinator) End(ctx context.Context, deviceID string) error {
	state, ok, err := c.load(ctx, deviceID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := c.clear(ctx, deviceID); err != nil {
		return err
	}
	metrics.BroadcastsActive.Dec()

	if state.SavedPlaylistID == "" {
		return nil
	}
	pl, err := c.store.GetPlaylist(ctx, state.SavedPlaylistID)
	if err != nil {
		return fmt.Errorf("broadcast: load saved playlist: %w", err)
	}

	env, err := protocol.Marshal(protocol.EventContentUpdate, protocol.ContentUpdatePayload{
		PlaylistID: pl.ID,
		Items:      pl.Items,
		Broadcast:  false,
	})
	if err != nil {
		return fmt.Errorf("broadcast: marshal restore update: %w", err)
	}
	return c.hub.RouteToDevice(deviceID, env, hub.QueueControl)
}

// Active reports the persisted broadcast state for deviceID, if any.
func (c *Coordinator) Active(ctx context.Context, deviceID string) (models.DeviceBroadcastState, bool, error) {
	return c.load(ctx, deviceID)
}

// SweepExpired ends every broadcast whose ExpiresAt has passed, per spec
// §4.7's "on end (explicit or automatic after a duration)". Intended to be
// called periodically by internal/supervisor.
func (c *Coordinator) SweepExpired(ctx context.Context) (int, error) {
	var keys []string
	iter := c.redis.Scan(ctx, 0, stateKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("broadcast: scan active states: %w", err)
	}

	ended := 0
	now := c.now()
	for _, key := range keys {
		deviceID := key[len(stateKeyPrefix):]
		state, ok, err := c.load(ctx, deviceID)
		if err != nil || !ok {
			continue
		}
		if state.ExpiresAt == nil || state.ExpiresAt.After(now) {
			continue
		}
		if err := c.End(ctx, deviceID); err != nil {
			return ended, fmt.Errorf("broadcast: auto-end %s: %w", deviceID, err)
		}
		metrics.BroadcastsExpiredTotal.Inc()
		ended++
	}
	return ended, nil
}

func (c *Coordinator) save(ctx context.Context, state models.DeviceBroadcastState) error {
	raw, err := stateJSON(state)
	if err != nil {
		return fmt.Errorf("broadcast: encode state: %w", err)
	}
	if err := c.redis.Set(ctx, stateKey(state.DeviceID), raw, 0).Err(); err != nil {
		return fmt.Errorf("broadcast: persist state: %w", err)
	}
	return nil
}

func (c *Coordinator) load(ctx context.Context, deviceID string) (models.DeviceBroadcastState, bool, error) {
	raw, err := c.redis.Get(ctx, stateKey(deviceID)).Bytes()
	if err == redis.Nil {
		return models.DeviceBroadcastState{}, false, nil
	}
	if err != nil {
		return models.DeviceBroadcastState{}, false, fmt.Errorf("broadcast: load state: %w", err)
	}
	state, err := parseState(raw)
	if err != nil {
		return models.DeviceBroadcastState{}, false, fmt.Errorf("broadcast: decode state: %w", err)
	}
	return state, true, nil
}

func (c *Coordinator) clear(ctx context.Context, deviceID string) error {
	if err := c.redis.Del(ctx, stateKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("broadcast: clear state: %w", err)
	}
	return nil
}
