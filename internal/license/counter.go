// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package license

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const deviceCountKeyPrefix = "beacon:license:devicecount:"

// Counter tracks each license's currentDeviceCount as a fast, atomic
// integer separate from the durable License row, so the hot path (device
// connect/disconnect) never pays for a Badger write, per spec §4.2's
// concurrency note.
type Counter interface {
	Increment(ctx context.Context, licenseID string) (int64, error)
	Decrement(ctx context.Context, licenseID string) (int64, error)
	Get(ctx context.Context, licenseID string) (int64, error)
	// Set forces the counter to a known value. Service does not call it;
	// the counter is not seeded from a License row's persisted
	// CurrentDeviceCount.
	Set(ctx context.Context, licenseID string, value int64) error
}

// RedisCounter is a Counter backed by a single INCR/DECR key per license.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps an already-configured Redis client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func deviceCountKey(licenseID string) string {
	return deviceCountKeyPrefix + licenseID
}

func (c *RedisCounter) Increment(ctx context.Context, licenseID string) (int64, error) {
	n, err := c.client.Incr(ctx, deviceCountKey(licenseID)).Result()
	if err != nil {
		return 0, fmt.Errorf("license: increment device count: %w", err)
	}
	return n, nil
}

func (c *RedisCounter) Decrement(ctx context.Context, licenseID string) (int64, error) {
	n, err := c.client.Decr(ctx, deviceCountKey(licenseID)).Result()
	if err != nil {
		return 0, fmt.Errorf("license: decrement device count: %w", err)
	}
	if n < 0 {
		if setErr := c.client.Set(ctx, deviceCountKey(licenseID), 0, 0).Err(); setErr != nil {
			return 0, fmt.Errorf("license: clamp device count: %w", setErr)
		}
		return 0, nil
	}
	return n, nil
}

func (c *RedisCounter) Get(ctx context.Context, licenseID string) (int64, error) {
	n, err := c.client.Get(ctx, deviceCountKey(licenseID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("license: get device count: %w", err)
	}
	return n, nil
}

func (c *RedisCounter) Set(ctx context.Context, licenseID string, value int64) error {
	if err := c.client.Set(ctx, deviceCountKey(licenseID), value, 0).Err(); err != nil {
		return fmt.Errorf("license: set device count: %w", err)
	}
	return nil
}
