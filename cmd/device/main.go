// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the device-side player client: it dials the control
// plane's WebSocket endpoint, drives a kiosk browser through the assigned
// playlist, and reports health and screenshots on their independent
// cadences, per spec §4.3/§4.7/§4.8.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalmast/beacon/internal/devicehealth"
	"github.com/signalmast/beacon/internal/kiosk"
	"github.com/signalmast/beacon/internal/logging"
	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/protocol"
	"github.com/signalmast/beacon/internal/rotation"
	"github.com/signalmast/beacon/internal/telemetry"
)

func main() {
	serverURL := flag.String("server", envOr("BEACON_SERVER_URL", "ws://localhost:8080"), "control plane base URL (ws:// or wss://)")
	token := flag.String("token", os.Getenv("BEACON_DEVICE_TOKEN"), "device bearer token")
	deviceID := flag.String("device-id", envOr("BEACON_DEVICE_ID", "unknown"), "stable device id, used only for local logging")
	viewportW := flag.Int("viewport-width", 1920, "kiosk browser viewport width")
	viewportH := flag.Int("viewport-height", 1080, "kiosk browser viewport height")
	remoteDebug := flag.String("remote-debugging-url", os.Getenv("BEACON_CHROME_REMOTE_URL"), "attach to an existing Chrome instance instead of launching one")
	flag.Parse()

	logging.Info().Str("device_id", *deviceID).Str("server", *serverURL).Msg("starting beacon device client")

	if *token == "" {
		fmt.Fprintln(os.Stderr, "beacon-device: missing device token (set BEACON_DEVICE_TOKEN or -token)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	browser, err := kiosk.New(kiosk.Config{
		ViewportWidth:       *viewportW,
		ViewportHeight:      *viewportH,
		RemoteDebuggingURL:  *remoteDebug,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to start kiosk browser")
	}
	defer browser.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := runSession(ctx, *serverURL, *token, *deviceID, browser); err != nil {
			logging.Warn().Err(err).Msg("session ended, reconnecting in 5s")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// runSession dials one WebSocket connection and drives it until it drops or
// ctx is canceled, returning the reason for the caller's reconnect loop.
func runSession(ctx context.Context, serverURL, token, deviceID string, browser *kiosk.Browser) error {
	wsURL, err := buildWSURL(serverURL, token)
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sender := &wsSender{conn: conn}

	engine := rotation.New(browser, func(state models.PlaybackState) { sender.sendPlaybackState(state) })
	go engine.Run(sessionCtx)

	collector := telemetry.New(deviceID, telemetry.Config{}, devicehealth.New(), browser, nil, sender)
	collector.Run(sessionCtx)

	register, err := protocol.Marshal(protocol.EventDeviceRegister, protocol.RegisterPayload{Token: token})
	if err == nil {
		sender.send(register)
	}

	h := &deviceHandlers{engine: engine, collector: collector, sender: sender, browser: browser}

	conn.SetReadLimit(256 * 1024)
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		h.handle(sessionCtx, env)
	}
}

func buildWSURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("role", "device")
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// deviceHandlers dispatches every Server -> Device event, per spec §4.4's
// event catalog, onto the rotation engine, the kiosk browser, or the
// telemetry collector as appropriate.
type deviceHandlers struct {
	engine    *rotation.Engine
	collector *telemetry.Collector
	sender    *wsSender
	browser   *kiosk.Browser
}

func (h *deviceHandlers) handle(ctx context.Context, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventContentUpdate:
		var payload protocol.ContentUpdatePayload
		if err := protocol.Decode(env, &payload); err != nil {
			h.reportError("malformed content:update", err)
			return
		}
		if payload.Broadcast {
			if len(payload.Items) > 0 {
				h.engine.StartBroadcast(payload.Items[0].URL)
			} else {
				h.engine.EndBroadcast()
			}
		} else {
			h.engine.Load(payload.PlaylistID, payload.Items)
		}
		h.collector.NotifyItemChanged()

	case protocol.EventConfigUpdate:
		// Viewport/kiosk-mode changes require a process restart to take
		// effect against the already-launched browser; acknowledging the
		// patch and relying on device:restart to apply it is consistent
		// with how SPEC_FULL §4.14's restart orchestration is wired.
		logging.Info().Str("event", env.Event).Msg("received config update, apply on next restart")

	case protocol.EventDisplayNavigate:
		var payload protocol.NavigatePayload
		if err := protocol.Decode(env, &payload); err != nil {
			h.reportError("malformed display:navigate", err)
			return
		}
		if err := h.browser.Navigate(ctx, payload.URL); err != nil {
			h.reportError("navigate failed", err)
		}
		h.collector.NotifyItemChanged()

	case protocol.EventDisplayRefresh:
		if err := h.browser.Reload(ctx); err != nil {
			h.reportError("reload failed", err)
		}

	case protocol.EventScreenshotRequest:
		shot, err := h.browser.Capture(ctx)
		if err != nil {
			h.reportError("on-demand screenshot failed", err)
			return
		}
		if shot.Blank {
			return
		}
		h.sender.SendScreenshotUpload(telemetryEncodeBase64(shot.JPEG), shot.CurrentURL)

	case protocol.EventDeviceRestart:
		logging.Warn().Msg("received device:restart; exiting for supervisor restart")
		os.Exit(0)

	case protocol.EventRemoteClick:
		var payload protocol.ClickPayload
		if err := protocol.Decode(env, &payload); err != nil {
			return
		}
		if err := h.browser.Click(ctx, payload.X, payload.Y); err != nil {
			h.reportError("remote click failed", err)
		}

	case protocol.EventRemoteType:
		var payload protocol.TypePayload
		if err := protocol.Decode(env, &payload); err != nil {
			return
		}
		if err := h.browser.Type(ctx, payload.Text, payload.Selector); err != nil {
			h.reportError("remote type failed", err)
		}

	case protocol.EventRemoteKey:
		var payload protocol.KeyPayload
		if err := protocol.Decode(env, &payload); err != nil {
			return
		}
		if err := h.browser.Key(ctx, payload.Key); err != nil {
			h.reportError("remote key failed", err)
		}

	case protocol.EventRemoteScroll:
		var payload protocol.ScrollPayload
		if err := protocol.Decode(env, &payload); err != nil {
			return
		}
		if err := h.browser.Scroll(ctx, payload.X, payload.Y); err != nil {
			h.reportError("remote scroll failed", err)
		}

	case protocol.EventPlaylistPause:
		h.engine.Pause()

	case protocol.EventPlaylistResume:
		h.engine.Resume()

	case protocol.EventPlaylistNext:
		h.engine.Next(respectConstraints(env))

	case protocol.EventPlaylistPrevious:
		h.engine.Previous(respectConstraints(env))

	case protocol.EventScreencastStart:
		h.sender.startScreencast(ctx, h.browser)

	case protocol.EventScreencastStop:
		h.sender.stopScreencast()

	default:
		logging.Warn().Str("event", env.Event).Msg("unrecognized server event")
	}
}

func respectConstraints(env protocol.Envelope) bool {
	var payload protocol.PlaylistControlPayload
	if err := protocol.Decode(env, &payload); err != nil || payload.RespectConstraints == nil {
		return true
	}
	return *payload.RespectConstraints
}

func (h *deviceHandlers) reportError(message string, err error) {
	logging.Warn().Err(err).Msg(message)
	report, encErr := protocol.Marshal(protocol.EventErrorReport, protocol.ErrorReportPayload{
		Message: message,
		Context: err.Error(),
	})
	if encErr == nil {
		h.sender.send(report)
	}
}

// wsSender implements internal/telemetry.Sender and the playback emitter,
// serializing every outbound write through one mutex since
// *websocket.Conn forbids concurrent writers.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn

	screencastMu   sync.Mutex
	screencastStop context.CancelFunc
}

func (s *wsSender) send(env protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(env); err != nil {
		logging.Warn().Err(err).Msg("write failed")
	}
}

func (s *wsSender) SendHealthReport(sample models.HealthSample) {
	env, err := protocol.Marshal(protocol.EventHealthReport, sample)
	if err != nil {
		return
	}
	s.send(env)
}

func (s *wsSender) SendScreenshotUpload(imageBase64, currentURL string) {
	env, err := protocol.Marshal(protocol.EventScreenshotUpload, protocol.ScreenshotUploadPayload{
		Image:      imageBase64,
		CurrentURL: currentURL,
	})
	if err != nil {
		return
	}
	s.send(env)
}

func (s *wsSender) sendPlaybackState(state models.PlaybackState) {
	env, err := protocol.Marshal(protocol.EventPlaybackStateUpdate, state)
	if err != nil {
		return
	}
	s.send(env)
}

// screencastFrameInterval caps the device's outbound frame rate for a live
// screencast session, independent of the server-side per-subscriber
// throttling in internal/screencast.
const screencastFrameInterval = 500 * time.Millisecond

func (s *wsSender) startScreencast(ctx context.Context, browser *kiosk.Browser) {
	s.screencastMu.Lock()
	defer s.screencastMu.Unlock()
	if s.screencastStop != nil {
		return
	}
	castCtx, cancel := context.WithCancel(ctx)
	s.screencastStop = cancel

	go func() {
		ticker := time.NewTicker(screencastFrameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-castCtx.Done():
				return
			case <-ticker.C:
				shot, err := browser.Capture(castCtx)
				if err != nil || shot.Blank {
					continue
				}
				env, err := protocol.Marshal(protocol.EventScreencastFrame, protocol.ScreencastFramePayload{
					Data: telemetryEncodeBase64(shot.JPEG),
					Metadata: protocol.ScreencastFrameMetadata{
						TimestampMs: time.Now().UnixMilli(),
					},
				})
				if err != nil {
					continue
				}
				s.send(env)
			}
		}
	}()
}

func (s *wsSender) stopScreencast() {
	s.screencastMu.Lock()
	defer s.screencastMu.Unlock()
	if s.screencastStop != nil {
		s.screencastStop()
		s.screencastStop = nil
	}
}

// telemetryEncodeBase64 mirrors internal/telemetry's unexported base64
// encoding helper; duplicated here since cmd/device builds its own upload
// envelopes directly (on-demand screenshot, screencast frames) rather than
// going through Collector.capture.
func telemetryEncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
