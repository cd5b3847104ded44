// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry implements the device-side Health & Screenshot
// Collector (spec §4.8): periodic resource samples (which double as the
// session heartbeat, per spec §4.3) and periodic/on-demand JPEG captures,
// uploaded to object storage and announced over the wire protocol.
package telemetry

import (
	"context"
	"time"

	"github.com/signalmast/beacon/internal/logging"
	"github.com/signalmast/beacon/internal/models"
)

// HealthSampler reads the device's current resource utilization.
type HealthSampler interface {
	Sample(ctx context.Context) (models.HealthSample, error)
}

// Screenshot is one capture result. Blank reports that the current page is
// blank or the browser is closed, in which case capture is skipped per
// spec §4.8.
type Screenshot struct {
	JPEG       []byte
	CurrentURL string
	Blank      bool
}

// ScreenshotCapturer takes one screenshot of the device's display surface.
type ScreenshotCapturer interface {
	Capture(ctx context.Context) (Screenshot, error)
}

// Uploader persists a screenshot capture to object storage, keyed by the
// device's stable id, per SPEC_FULL §3 (S3-backed).
type Uploader interface {
	Upload(ctx context.Context, deviceStableID string, shot Screenshot) error
}

// Sender emits the resulting protocol events over the device's session.
type Sender interface {
	SendHealthReport(models.HealthSample)
	SendScreenshotUpload(imageBase64, currentURL string)
}

// Config tunes cadences, per spec §4.8's defaults.
type Config struct {
	HealthInterval       time.Duration // default 60s
	HealthInitialDelay   time.Duration // default 10s
	ScreenshotInterval   time.Duration // default 30s
	ScreenshotInitDelay  time.Duration // default 5s
	PostNavigationDelay  time.Duration // default 3s, per-item-change capture
}

func (c *Config) setDefaults() {
	if c.HealthInterval <= 0 {
		c.HealthInterval = 60 * time.Second
	}
	if c.HealthInitialDelay <= 0 {
		c.HealthInitialDelay = 10 * time.Second
	}
	if c.ScreenshotInterval <= 0 {
		c.ScreenshotInterval = 30 * time.Second
	}
	if c.ScreenshotInitDelay <= 0 {
		c.ScreenshotInitDelay = 5 * time.Second
	}
	if c.PostNavigationDelay <= 0 {
		c.PostNavigationDelay = 3 * time.Second
	}
}

// Collector drives the two independent cadences and on-demand captures.
type Collector struct {
	deviceStableID string
	cfg            Config
	health         HealthSampler
	shots          ScreenshotCapturer
	uploader       Uploader
	sender         Sender

	itemChanged chan struct{}
}

// New constructs a Collector for one device.
func New(deviceStableID string, cfg Config, health HealthSampler, shots ScreenshotCapturer, uploader Uploader, sender Sender) *Collector {
	cfg.setDefaults()
	return &Collector{
		deviceStableID: deviceStableID,
		cfg:            cfg,
		health:         health,
		shots:          shots,
		uploader:       uploader,
		sender:         sender,
		itemChanged:    make(chan struct{}, 1),
	}
}

// NotifyItemChanged schedules a one-off capture ~PostNavigationDelay after
// a playlist item change, per spec §4.8. Non-blocking: a pending
// notification is coalesced if Run hasn't consumed the previous one yet.
func (c *Collector) NotifyItemChanged() {
	select {
	case c.itemChanged <- struct{}{}:
	default:
	}
}

// Run drives both cadences until ctx is canceled.
func (c *Collector) Run(ctx context.Context) {
	go c.runHealth(ctx)
	go c.runScreenshots(ctx)
}

func (c *Collector) runHealth(ctx context.Context) {
	select {
	case <-time.After(c.cfg.HealthInitialDelay):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()
	c.sampleHealth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sampleHealth(ctx)
		}
	}
}

func (c *Collector) sampleHealth(ctx context.Context) {
	sample, err := c.health.Sample(ctx)
	if err != nil {
		logging.Warn().Err(err).Str("device_id", c.deviceStableID).Msg("health sample failed")
		return
	}
	sample.TimestampMs = time.Now().UnixMilli()
	c.sender.SendHealthReport(sample)
}

func (c *Collector) runScreenshots(ctx context.Context) {
	initial := time.After(c.cfg.ScreenshotInitDelay)
initialDelay:
	for {
		select {
		case <-initial:
			break initialDelay
		case <-c.itemChanged:
			select {
			case <-time.After(c.cfg.PostNavigationDelay):
				c.capture(ctx)
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(c.cfg.ScreenshotInterval)
	defer ticker.Stop()
	c.capture(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.capture(ctx)
		case <-c.itemChanged:
			select {
			case <-time.After(c.cfg.PostNavigationDelay):
				c.capture(ctx)
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Collector) capture(ctx context.Context) {
	shot, err := c.shots.Capture(ctx)
	if err != nil {
		logging.Warn().Err(err).Str("device_id", c.deviceStableID).Msg("screenshot capture failed")
		return
	}
	if shot.Blank {
		return
	}
	if c.uploader != nil {
		if err := c.uploader.Upload(ctx, c.deviceStableID, shot); err != nil {
			logging.Warn().Err(err).Str("device_id", c.deviceStableID).Msg("screenshot upload failed")
		}
	}
	c.sender.SendScreenshotUpload(encodeBase64(shot.JPEG), shot.CurrentURL)
}
