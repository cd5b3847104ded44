// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/signalmast/beacon/internal/logging"
)

// reloadDebounce absorbs the burst of fsnotify events a single atomic
// file replace (the common editor/config-management write pattern)
// produces.
const reloadDebounce = 500 * time.Millisecond

// Holder serves a hot-reloadable Settings snapshot. Readers call Get, which
// never blocks and never returns a partially-applied configuration: a
// reload only replaces the pointer after the new file has parsed and
// validated cleanly, so a bad edit leaves the last-good settings in place.
type Holder struct {
	path     string
	current  atomic.Pointer[Settings]
	epoch    atomic.Uint64
	watcher  *fsnotify.Watcher
	listener chan *Settings
}

// NewHolder loads path once and returns a Holder seeded with the result.
func NewHolder(path string) (*Holder, error) {
	settings, err := Load(path)
	if err != nil {
		return nil, err
	}
	h := &Holder{
		path:     path,
		listener: make(chan *Settings, 1),
	}
	h.current.Store(settings)
	return h, nil
}

// Get returns the current settings snapshot. Safe for concurrent use.
func (h *Holder) Get() *Settings {
	return h.current.Load()
}

// Epoch returns a monotonically increasing counter bumped on every
// successful reload, letting callers cheaply detect whether Get changed.
func (h *Holder) Epoch() uint64 {
	return h.epoch.Load()
}

// Listen returns a channel that receives the new Settings after each
// successful reload. Sends are non-blocking: a listener that falls behind
// observes only the most recent snapshot, never a backlog.
func (h *Holder) Listen() <-chan *Settings {
	return h.listener
}

// Reload re-reads and re-validates the settings file, swapping the current
// snapshot only on success.
func (h *Holder) Reload() error {
	settings, err := Load(h.path)
	if err != nil {
		return err
	}
	h.current.Store(settings)
	h.epoch.Add(1)

	select {
	case h.listener <- settings:
	default:
		select {
		case <-h.listener:
		default:
		}
		h.listener <- settings
	}
	return nil
}

// Watch starts an fsnotify watch on the settings file's parent directory
// (directory-level, not file-level, since editors and config-management
// tools typically replace the file via rename rather than in-place write)
// and reloads on every debounced change. It blocks until ctx is canceled.
func (h *Holder) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	h.watcher = watcher
	defer watcher.Close()

	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Base(h.path)
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := h.Reload(); err != nil {
					logging.Error().Err(err).Str("path", h.path).Msg("config hot-reload failed, keeping last-good settings")
				} else {
					logging.Info().Str("path", h.path).Uint64("epoch", h.Epoch()).Msg("config reloaded")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn().Err(err).Msg("config watcher error")
		}
	}
}
