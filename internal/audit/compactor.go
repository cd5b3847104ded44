// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"time"

	"github.com/signalmast/beacon/internal/logging"
	"github.com/signalmast/beacon/internal/metrics"
)

// RetentionCompactor periodically deletes audit_log rows older than
// RetentionDays, per spec §4.9. It implements suture.Service so
// internal/supervisor can run it alongside the Hub run loop and the
// license grace-window sweeper with independent restart-on-panic.
type RetentionCompactor struct {
	store         Store
	retentionDays int
	interval      time.Duration
	now           func() time.Time
}

// NewRetentionCompactor constructs a compactor. retentionDays <= 0 disables
// deletion (Serve becomes a no-op loop); interval <= 0 defaults to 24h.
func NewRetentionCompactor(store Store, retentionDays int, interval time.Duration) *RetentionCompactor {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionCompactor{store: store, retentionDays: retentionDays, interval: interval, now: time.Now}
}

// Serve implements suture.Service: it blocks, compacting on each tick,
// until ctx is canceled.
func (c *RetentionCompactor) Serve(ctx context.Context) error {
	if c.retentionDays <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.compactOnce(ctx)
		}
	}
}

func (c *RetentionCompactor) compactOnce(ctx context.Context) {
	cutoff := c.now().AddDate(0, 0, -c.retentionDays)
	deleted, err := c.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("audit: retention compaction failed")
		return
	}
	if deleted > 0 {
		metrics.AuditCompactionDeleted.Add(float64(deleted))
		logging.Info().Int64("deleted", deleted).Int("retention_days", c.retentionDays).Msg("audit: retention compaction complete")
	}
}
