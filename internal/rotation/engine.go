// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rotation implements the device-side Playlist Rotation Engine
// (spec §4.7): a single-threaded cooperative state machine that selects,
// navigates to, and times out playlist items honoring time-of-day and
// day-of-week constraints, with pause/resume, prev/next, and broadcast
// override save/restore.
//
// All state transitions happen on one goroutine (Run); every other method
// posts a command onto an internal channel and returns, matching the
// "coroutine/async control flow... timers post work back to that task"
// redesign note in spec §9.
package rotation

import (
	"context"
	"time"

	"github.com/signalmast/beacon/internal/logging"
	"github.com/signalmast/beacon/internal/metrics"
	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/playlist"
)

// Navigator performs the one-shot side effect of showing a URL on the
// device's display surface. The production implementation drives a kiosk
// browser; tests substitute a recording fake.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// StateEmitter receives every PlaybackState transition plus the 5-second
// heartbeat, per spec §4.7's emission cadence.
type StateEmitter func(models.PlaybackState)

// heartbeatInterval is the cadence at which a running engine re-emits its
// current state even absent a transition, per spec §4.7.
const heartbeatInterval = 5 * time.Second

// navigationRetryDelay is applied after a navigation or browser-crash
// error before the engine continues with the next item, per spec §4.7's
// "3-10 seconds depending on class" guidance. A single constant is used
// here; a richer implementation could vary it by error class.
const navigationRetryDelay = 5 * time.Second

// idleRecheckInterval is how long the engine waits before re-scanning for
// an eligible item when a full pass finds none, per spec §4.7.
const idleRecheckInterval = time.Minute

// Engine is the rotation state machine for one device. Construct with New
// and drive it by calling Run in its own goroutine.
type Engine struct {
	nav   Navigator
	emit  StateEmitter
	now   func() time.Time
	after func(d time.Duration) <-chan time.Time

	cmds chan func(ctx context.Context)
	done chan struct{}

	// --- state, touched only inside Run's goroutine ---
	playlistID string
	items      []models.PlaylistItem
	index      int
	running    bool
	paused     bool
	pausedAt   time.Time
	// remaining is the time left on the current item's rotation timer,
	// valid while paused or about to be armed after resume/broadcast end.
	remaining     time.Duration
	itemStartedAt time.Time
	gen           uint64 // invalidates timer/retry callbacks from a stale item selection

	broadcast *savedState
}

// savedState is the DeviceBroadcastState counterpart held in memory by the
// engine while a broadcast override is active, per spec §3/§4.7.
type savedState struct {
	playlistID string
	items      []models.PlaylistItem
	index      int
	elapsed    time.Duration
}

// New constructs an Engine. emit may be nil (state is dropped, useful in
// tests that only assert navigation).
func New(nav Navigator, emit StateEmitter) *Engine {
	if emit == nil {
		emit = func(models.PlaybackState) {}
	}
	return &Engine{
		nav:   nav,
		emit:  emit,
		now:   time.Now,
		after: time.After,
		cmds:  make(chan func(ctx context.Context), 32),
		done:  make(chan struct{}),
	}
}

// Run drives the engine's single goroutine until ctx is canceled. Every
// other public method of Engine is safe to call from other goroutines; they merely
// enqueue a closure that Run executes serially.
func (e *Engine) Run(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	defer close(e.done)

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.cmds:
			fn(ctx)
		case <-heartbeat.C:
			if e.running && !e.paused {
				e.emitState()
			}
		}
	}
}

// post enqueues fn to run on the engine goroutine, blocking only if the
// command buffer is full (it is sized generously for this single-device
// workload).
func (e *Engine) post(fn func(ctx context.Context)) {
	e.cmds <- fn
}

// Load applies an incoming content:update, per spec §4.7's loading
// semantics: it restarts only when necessary to preserve the currently
// playing item across cosmetic playlist edits.
func (e *Engine) Load(playlistID string, items []models.PlaylistItem) {
	e.post(func(ctx context.Context) { e.handleLoad(ctx, playlistID, items) })
}

func (e *Engine) handleLoad(ctx context.Context, playlistID string, items []models.PlaylistItem) {
	newItems := playlist.Normalize(items)

	if e.running {
		metrics.RotationReloadsTotal.Inc()
	}

	if !e.running {
		e.playlistID = playlistID
		e.items = newItems
		e.index = 0
		e.running = true
		e.selectAndArm(ctx, 0)
		return
	}

	restart := true
	if len(e.items) == 1 && len(newItems) == 1 &&
		e.items[0].ID == newItems[0].ID && e.items[0].DurationSeconds == newItems[0].DurationSeconds {
		restart = false
	} else if cur, ok := e.currentItem(); ok {
		stillPresent, newIdx := indexOfID(newItems, cur.ID)
		singleItemPermanent := len(newItems) == 1 && newItems[0].DurationSeconds == 0
		if stillPresent && !singleItemPermanent {
			restart = false
			e.index = newIdx
		}
	}

	e.playlistID = playlistID
	e.items = newItems
	if restart {
		e.index = 0
		e.selectAndArm(ctx, 0)
	}
	// Non-restart path: keep the running timer and current navigation;
	// only the backing item list changed.
}

func indexOfID(items []models.PlaylistItem, id string) (bool, int) {
	for i, it := range items {
		if it.ID == id {
			return true, i
		}
	}
	return false, 0
}

func (e *Engine) currentItem() (models.PlaylistItem, bool) {
	if e.index < 0 || e.index >= len(e.items) {
		return models.PlaylistItem{}, false
	}
	return e.items[e.index], true
}

// selectAndArm walks forward from startIndex choosing the first eligible
// item (spec §4.7), navigates to it, and arms its rotation timer. If no
// item is eligible after one full pass, it reports playing-but-idle and
// retries after idleRecheckInterval.
func (e *Engine) selectAndArm(ctx context.Context, startIndex int) {
	e.gen++
	myGen := e.gen

	if len(e.items) == 0 {
		e.emitState()
		return
	}

	idx, ok := e.firstEligibleFrom(startIndex)
	if !ok {
		logging.Warn().Str("playlist_id", e.playlistID).Msg("no eligible playlist item this pass, retrying in 1m")
		e.emitState()
		e.armTimer(ctx, idleRecheckInterval, myGen, func(ctx context.Context) { e.selectAndArm(ctx, e.index) })
		return
	}

	e.index = idx
	item := e.items[idx]
	e.navigateCurrent(ctx, item, myGen)
}

func (e *Engine) navigateCurrent(ctx context.Context, item models.PlaylistItem, myGen uint64) {
	e.itemStartedAt = e.now()
	if e.nav != nil {
		if err := e.nav.Navigate(ctx, item.URL); err != nil {
			logging.Warn().Err(err).Str("item_id", item.ID).Msg("navigation failed, retrying next item shortly")
			e.emitState()
			e.armTimer(ctx, navigationRetryDelay, myGen, func(ctx context.Context) {
				e.selectAndArm(ctx, (e.index+1)%len(e.items))
			})
			return
		}
	}

	seconds, usedDefault := playlist.EffectiveDuration(item, len(e.items))
	if usedDefault {
		logging.Warn().Str("item_id", item.ID).Msg("zero duration on multi-item playlist, using default rotation")
	}
	e.remaining = time.Duration(seconds) * time.Second
	metrics.RotationAdvancesTotal.Inc()
	metrics.RotationItemDuration.Observe(float64(seconds))
	e.emitState()

	if seconds > 0 {
		e.armTimer(ctx, e.remaining, myGen, func(ctx context.Context) { e.onRotate(ctx) })
	}
}

// firstEligibleFrom walks forward from idx (inclusive, wrapping) and
// returns the first item whose day/time constraints admit it now.
func (e *Engine) firstEligibleFrom(idx int) (int, bool) {
	n := len(e.items)
	now := e.now()
	for i := 0; i < n; i++ {
		candidate := (idx + i) % n
		if playlist.Eligible(e.items[candidate], now) {
			return candidate, true
		}
	}
	return 0, false
}

// armTimer schedules fn to run on the engine goroutine after d, unless the
// engine's generation counter has moved on (superseded by a pause, next,
// reload, or broadcast transition) by the time the timer fires.
func (e *Engine) armTimer(ctx context.Context, d time.Duration, gen uint64, fn func(ctx context.Context)) {
	ch := e.after(d)
	go func() {
		select {
		case <-ch:
			e.post(func(ctx context.Context) {
				if e.gen == gen {
					fn(ctx)
				}
			})
		case <-e.done:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) onRotate(ctx context.Context) {
	next := (e.index + 1) % len(e.items)
	e.selectAndArm(ctx, next)
}

// Pause freezes the current item without navigating away, recording the
// remaining duration for later resume, per spec §4.7.
func (e *Engine) Pause() {
	e.post(func(ctx context.Context) { e.handlePause() })
}

func (e *Engine) handlePause() {
	if !e.running || e.paused {
		return
	}
	elapsed := e.now().Sub(e.itemStartedAt)
	if cur, ok := e.currentItem(); ok {
		seconds, _ := playlist.EffectiveDuration(cur, len(e.items))
		total := time.Duration(seconds) * time.Second
		if total > 0 {
			e.remaining = total - elapsed
			if e.remaining < 0 {
				e.remaining = 0
			}
		}
	}
	e.paused = true
	e.pausedAt = e.now()
	e.gen++ // invalidate any pending rotation timer
	e.emitState()
}

// Resume re-arms the rotation timer for the remaining duration recorded at
// pause time, advancing immediately if none remains, per spec §4.7.
func (e *Engine) Resume() {
	e.post(func(ctx context.Context) { e.handleResume(ctx) })
}

func (e *Engine) handleResume(ctx context.Context) {
	if !e.running || !e.paused {
		return
	}
	e.paused = false
	e.itemStartedAt = e.now()
	e.gen++
	myGen := e.gen
	e.emitState()

	if e.remaining <= 0 {
		e.onRotate(ctx)
		return
	}
	e.armTimer(ctx, e.remaining, myGen, func(ctx context.Context) { e.onRotate(ctx) })
}

// Next and Previous navigate immediately, per spec §4.7. When
// respectConstraints is true (the default), ineligible items are skipped;
// otherwise the immediate neighbor is taken regardless of eligibility.
func (e *Engine) Next(respectConstraints bool) {
	e.post(func(ctx context.Context) { e.handleStep(ctx, 1, respectConstraints) })
}

func (e *Engine) Previous(respectConstraints bool) {
	e.post(func(ctx context.Context) { e.handleStep(ctx, -1, respectConstraints) })
}

func (e *Engine) handleStep(ctx context.Context, direction int, respectConstraints bool) {
	if !e.running || len(e.items) == 0 {
		return
	}
	e.paused = false
	n := len(e.items)
	next := ((e.index+direction)%n + n) % n

	if !respectConstraints {
		e.index = next
		item := e.items[e.index]
		e.gen++
		e.navigateCurrent(ctx, item, e.gen)
		return
	}

	if direction > 0 {
		idx, ok := e.firstEligibleFrom(next)
		if !ok {
			idx = next
		}
		e.gen++
		e.navigateCurrent(ctx, e.items[idx], e.gen)
		e.index = idx
		return
	}

	// Previous walks backward skipping ineligible items.
	now := e.now()
	for i := 0; i < n; i++ {
		candidate := ((next-i)%n + n) % n
		if playlist.Eligible(e.items[candidate], now) {
			e.index = candidate
			e.gen++
			e.navigateCurrent(ctx, e.items[candidate], e.gen)
			return
		}
	}
	e.index = next
	e.gen++
	e.navigateCurrent(ctx, e.items[next], e.gen)
}

// StartBroadcast installs a transient single-item override, saving the
// current playlist position so EndBroadcast can restore it exactly, per
// spec §4.7 and §3's DeviceBroadcastState shape.
func (e *Engine) StartBroadcast(url string) {
	e.post(func(ctx context.Context) { e.handleStartBroadcast(ctx, url) })
}

func (e *Engine) handleStartBroadcast(ctx context.Context, url string) {
	elapsed := time.Duration(0)
	if e.running && !e.paused {
		elapsed = e.now().Sub(e.itemStartedAt)
	} else if e.paused {
		if cur, ok := e.currentItem(); ok {
			seconds, _ := playlist.EffectiveDuration(cur, len(e.items))
			elapsed = time.Duration(seconds)*time.Second - e.remaining
		}
	}

	e.broadcast = &savedState{
		playlistID: e.playlistID,
		items:      e.items,
		index:      e.index,
		elapsed:    elapsed,
	}

	e.items = []models.PlaylistItem{{ID: "broadcast", URL: url, DurationSeconds: 0}}
	e.index = 0
	e.playlistID = ""
	e.paused = false
	e.running = true
	e.gen++
	e.navigateCurrent(ctx, e.items[0], e.gen)
}

// EndBroadcast restores the playlist position saved by StartBroadcast,
// resuming from the saved index with the saved elapsed time subtracted
// from that item's effective duration, per spec §4.7's scenario 6.
func (e *Engine) EndBroadcast() {
	e.post(func(ctx context.Context) { e.handleEndBroadcast(ctx) })
}

func (e *Engine) handleEndBroadcast(ctx context.Context) {
	saved := e.broadcast
	if saved == nil {
		return
	}
	e.broadcast = nil
	e.playlistID = saved.playlistID
	e.items = saved.items
	e.index = saved.index
	e.paused = false
	e.gen++
	myGen := e.gen

	if saved.index < 0 || saved.index >= len(e.items) {
		e.selectAndArm(ctx, 0)
		return
	}
	item := e.items[saved.index]
	seconds, _ := playlist.EffectiveDuration(item, len(e.items))
	total := time.Duration(seconds) * time.Second
	remaining := total - saved.elapsed
	if remaining < 0 {
		remaining = 0
	}

	e.itemStartedAt = e.now()
	if e.nav != nil {
		_ = e.nav.Navigate(ctx, item.URL)
	}
	e.remaining = remaining
	e.emitState()
	if total > 0 {
		e.armTimer(ctx, remaining, myGen, func(ctx context.Context) { e.onRotate(ctx) })
	}
}

// State synchronously snapshots the current PlaybackState, for callers
// that need it outside the emit cadence (e.g. a status HTTP handler).
func (e *Engine) State() models.PlaybackState {
	result := make(chan models.PlaybackState, 1)
	e.post(func(ctx context.Context) { result <- e.snapshot() })
	return <-result
}

func (e *Engine) emitState() {
	e.emit(e.snapshot())
}

func (e *Engine) snapshot() models.PlaybackState {
	state := models.PlaybackState{
		IsPlaying:      e.running,
		IsPaused:       e.paused,
		IsBroadcasting: e.broadcast != nil,
		CurrentIndex:   e.index,
		PlaylistID:     e.playlistID,
		TotalItems:     len(e.items),
	}
	if cur, ok := e.currentItem(); ok {
		state.CurrentItemID = cur.ID
		state.CurrentURL = cur.URL
	}
	if e.paused {
		state.TimeRemainingMs = e.remaining.Milliseconds()
	} else if e.running {
		if cur, ok := e.currentItem(); ok {
			seconds, _ := playlist.EffectiveDuration(cur, len(e.items))
			total := time.Duration(seconds) * time.Second
			elapsed := e.now().Sub(e.itemStartedAt)
			remaining := total - elapsed
			if remaining < 0 {
				remaining = 0
			}
			state.TimeRemainingMs = remaining.Milliseconds()
		}
	}
	return state
}
