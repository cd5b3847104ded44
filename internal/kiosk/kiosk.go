// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kiosk drives the device-side display surface: a headless Chrome
// instance, grounded on chromedp, that internal/rotation.Engine navigates
// and internal/telemetry.Collector periodically screenshots. It also
// synthesizes the remote-control input events (click/type/key/scroll) an
// admin issues over the wire protocol, per spec §4.6/§4.8.
package kiosk

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/signalmast/beacon/internal/telemetry"
)

// Config tunes the underlying browser instance.
type Config struct {
	ViewportWidth  int
	ViewportHeight int
	// RemoteDebuggingURL, if set, attaches to an already-running Chrome
	// instance instead of launching one (useful when the kiosk browser is
	// managed by a separate process/container, per SPEC_FULL §4.14's
	// container-per-display convention).
	RemoteDebuggingURL string
}

// Browser wraps one chromedp browser context for a single device display.
// It implements both internal/rotation.Navigator and
// internal/telemetry.ScreenshotCapturer, the two device-side effects the
// rotation engine and telemetry collector depend on.
type Browser struct {
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	ctx         context.Context
	currentURL  string
}

// New launches (or attaches to) a headless Chrome instance sized per cfg.
func New(cfg Config) (*Browser, error) {
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1920
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 1080
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.RemoteDebuggingURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteDebuggingURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("kiosk", true),
			chromedp.Flag("headless", true),
			chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	ctx, ctxCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(ctx); err != nil {
		ctxCancel()
		allocCancel()
		return nil, fmt.Errorf("kiosk: start browser: %w", err)
	}

	return &Browser{allocCancel: allocCancel, ctxCancel: ctxCancel, ctx: ctx}, nil
}

// Close tears down the browser and its allocator.
func (b *Browser) Close() {
	b.ctxCancel()
	b.allocCancel()
}

// Navigate implements internal/rotation.Navigator.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(b.ctx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("kiosk: navigate %s: %w", url, err)
	}
	b.currentURL = url
	return nil
}

// Capture implements internal/telemetry.ScreenshotCapturer.
func (b *Browser) Capture(ctx context.Context) (telemetry.Screenshot, error) {
	if b.currentURL == "" {
		return telemetry.Screenshot{Blank: true}, nil
	}

	capCtx, cancel := context.WithTimeout(b.ctx, 15*time.Second)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(capCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return telemetry.Screenshot{}, fmt.Errorf("kiosk: capture screenshot: %w", err)
	}
	return telemetry.Screenshot{JPEG: buf, CurrentURL: b.currentURL}, nil
}

// Click synthesizes a mouse click at device-pixel coordinates (x, y).
func (b *Browser) Click(ctx context.Context, x, y int) error {
	runCtx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.MouseClickXY(float64(x), float64(y)))
}

// Type focuses selector (if non-empty) and sends text as keystrokes.
func (b *Browser) Type(ctx context.Context, text, selector string) error {
	runCtx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	if selector != "" {
		return chromedp.Run(runCtx,
			chromedp.Click(selector, chromedp.ByQuery),
			chromedp.SendKeys(selector, text, chromedp.ByQuery),
		)
	}
	return chromedp.Run(runCtx, chromedp.KeyEvent(text))
}

// Key synthesizes a single keypress.
func (b *Browser) Key(ctx context.Context, key string) error {
	runCtx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.KeyEvent(key))
}

// Scroll performs an absolute scroll to (x, y).
func (b *Browser) Scroll(ctx context.Context, x, y int) error {
	runCtx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	expr := fmt.Sprintf("window.scrollTo(%d, %d)", x, y)
	return chromedp.Run(runCtx, chromedp.Evaluate(expr, nil))
}

// Reload refreshes the currently displayed page.
func (b *Browser) Reload(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(b.ctx, 30*time.Second)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Reload())
}
