// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/playlist"
)

// recordingNav is a Navigator fake recording every URL it was asked to
// show, optionally failing a configured set of URLs once.
type recordingNav struct {
	visited []string
	failing map[string]bool
}

func (n *recordingNav) Navigate(_ context.Context, url string) error {
	n.visited = append(n.visited, url)
	if n.failing[url] {
		delete(n.failing, url)
		return assert.AnError
	}
	return nil
}

// newTestEngine builds an Engine whose clock is fully controlled by the
// test: now() returns a settable instant and after() never fires on its
// own, so tests exercise state transitions synchronously by calling the
// unexported handle* methods directly (white-box, same package).
func newTestEngine(nav Navigator) (*Engine, *[]models.PlaybackState, *time.Time) {
	var states []models.PlaybackState
	now := time.Date(2026, 7, 6, 12, 0, 0, 0, time.UTC) // a Monday
	clock := &now

	e := New(nav, func(s models.PlaybackState) { states = append(states, s) })
	e.now = func() time.Time { return *clock }
	e.after = func(time.Duration) <-chan time.Time { return make(chan time.Time) }
	return e, &states, clock
}

func items3() []models.PlaylistItem {
	return []models.PlaylistItem{
		{ID: "a", URL: "https://x/a", DurationSeconds: 5, OrderIndex: 1},
		{ID: "b", URL: "https://x/b", DurationSeconds: 5, OrderIndex: 2},
		{ID: "c", URL: "https://x/c", DurationSeconds: 5, OrderIndex: 3},
	}
}

func TestLoadStartsRotationAndNavigates(t *testing.T) {
	nav := &recordingNav{}
	e, states, _ := newTestEngine(nav)

	e.handleLoad(context.Background(), "pl-1", items3())

	require.Equal(t, []string{"https://x/a"}, nav.visited)
	require.NotEmpty(t, *states)
	last := (*states)[len(*states)-1]
	assert.True(t, last.IsPlaying)
	assert.Equal(t, "a", last.CurrentItemID)
	assert.Equal(t, 3, last.TotalItems)
}

func TestReDeliveringSamePayloadDoesNotRestart(t *testing.T) {
	nav := &recordingNav{}
	e, _, _ := newTestEngine(nav)

	e.handleLoad(context.Background(), "pl-1", items3())
	require.Len(t, nav.visited, 1)

	// Re-delivering the identical payload must not restart the currently
	// valid execution (stability test, spec §8).
	e.handleLoad(context.Background(), "pl-1", items3())
	assert.Len(t, nav.visited, 1, "re-delivering an unchanged playlist must not re-navigate")
}

func TestPeripheralEditDoesNotRestartCurrentItem(t *testing.T) {
	nav := &recordingNav{}
	e, _, _ := newTestEngine(nav)
	e.handleLoad(context.Background(), "pl-1", items3())
	require.Equal(t, 0, e.index)

	edited := items3()
	edited[2].URL = "https://x/c-renamed"
	e.handleLoad(context.Background(), "pl-1", edited)

	assert.Len(t, nav.visited, 1, "currently playing item unchanged, must not re-navigate")
	assert.Equal(t, 0, e.index)
}

func TestSingleItemZeroDurationNeverRearms(t *testing.T) {
	nav := &recordingNav{}
	e, states, _ := newTestEngine(nav)
	e.handleLoad(context.Background(), "pl-1", []models.PlaylistItem{
		{ID: "only", URL: "https://x/only", DurationSeconds: 0, OrderIndex: 1},
	})

	last := (*states)[len(*states)-1]
	assert.Equal(t, int64(0), last.TimeRemainingMs)
	assert.True(t, last.IsPlaying)
}

func TestMultiItemZeroDurationUsesDefaultRotation(t *testing.T) {
	nav := &recordingNav{}
	e, _, _ := newTestEngine(nav)
	e.handleLoad(context.Background(), "pl-1", []models.PlaylistItem{
		{ID: "a", URL: "https://x/a", DurationSeconds: 0, OrderIndex: 1},
		{ID: "b", URL: "https://x/b", DurationSeconds: 5, OrderIndex: 2},
	})
	assert.Equal(t, 15*time.Second, e.remaining)
}

func TestPauseResumePreservesRemaining(t *testing.T) {
	nav := &recordingNav{}
	e, _, clock := newTestEngine(nav)
	e.handleLoad(context.Background(), "pl-1", items3())

	*clock = clock.Add(2 * time.Second)
	e.handlePause()
	require.True(t, e.paused)
	assert.InDelta(t, float64(3*time.Second), float64(e.remaining), float64(50*time.Millisecond))

	*clock = clock.Add(8 * time.Second) // time passes while paused
	e.handleResume(context.Background())
	assert.False(t, e.paused)
	assert.Equal(t, "a", (*nav).visited[0])
	assert.InDelta(t, float64(3*time.Second), float64(e.remaining), float64(50*time.Millisecond))
}

func TestNextAndPreviousWrapAround(t *testing.T) {
	nav := &recordingNav{}
	e, _, _ := newTestEngine(nav)
	e.handleLoad(context.Background(), "pl-1", items3())

	e.handleStep(context.Background(), 1, true)
	assert.Equal(t, 1, e.index)
	e.handleStep(context.Background(), 1, true)
	assert.Equal(t, 2, e.index)
	e.handleStep(context.Background(), 1, true)
	assert.Equal(t, 0, e.index, "next from the last item wraps to the first")

	e.handleStep(context.Background(), -1, true)
	assert.Equal(t, 2, e.index, "previous from the first item wraps to the last")
}

func TestDayOfWeekSkip(t *testing.T) {
	nav := &recordingNav{}
	e, _, clock := newTestEngine(nav)
	// clock starts on a Monday (weekday 1).
	items := []models.PlaylistItem{
		{ID: "weekday", URL: "https://x/weekday", DurationSeconds: 5, OrderIndex: 1, DaysOfWeek: []int{1, 2, 3, 4, 5}},
		{ID: "weekend", URL: "https://x/weekend", DurationSeconds: 5, OrderIndex: 2, DaysOfWeek: []int{0, 6}},
	}
	e.handleLoad(context.Background(), "pl-1", items)
	assert.Equal(t, "weekday", e.items[e.index].ID)

	// Move the clock to Sunday and reselect from scratch.
	*clock = clock.AddDate(0, 0, 6)
	require.Equal(t, time.Sunday, clock.Weekday())
	e.running = false
	e.handleLoad(context.Background(), "pl-1", items)
	assert.Equal(t, "weekend", e.items[e.index].ID)
}

func TestTimeWindowBoundaries(t *testing.T) {
	item := models.PlaylistItem{ID: "x", TimeWindowStart: "09:00", TimeWindowEnd: "17:00"}
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 17, 0, 0, 0, time.UTC)

	assert.True(t, playlist.Eligible(item, start))
	assert.False(t, playlist.Eligible(item, end))
}

func TestBroadcastSaveAndRestore(t *testing.T) {
	nav := &recordingNav{}
	e, _, clock := newTestEngine(nav)
	e.handleLoad(context.Background(), "pl-1", items3())
	e.handleStep(context.Background(), 1, true) // index 1: "b"
	e.handleStep(context.Background(), 1, true) // index 2: "c"
	require.Equal(t, 2, e.index)

	*clock = clock.Add(3 * time.Second) // 3s elapsed on a 5s item

	e.handleStartBroadcast(context.Background(), "https://broadcast.example/x")
	assert.True(t, e.snapshot().IsBroadcasting)
	assert.Equal(t, "https://broadcast.example/x", nav.visited[len(nav.visited)-1])

	*clock = clock.Add(60 * time.Second) // broadcast runs a while
	e.handleEndBroadcast(context.Background())

	assert.False(t, e.snapshot().IsBroadcasting)
	assert.Equal(t, 2, e.index)
	assert.InDelta(t, float64(2*time.Second), float64(e.remaining), float64(200*time.Millisecond))
}

func TestNoEligibleItemReportsIdle(t *testing.T) {
	nav := &recordingNav{}
	e, states, _ := newTestEngine(nav)
	items := []models.PlaylistItem{
		{ID: "never", URL: "https://x/never", DurationSeconds: 5, OrderIndex: 1, DaysOfWeek: []int{3}}, // Wednesday only, clock is Monday
	}
	e.handleLoad(context.Background(), "pl-1", items)

	last := (*states)[len(*states)-1]
	assert.True(t, last.IsPlaying, "reported as playing but idle per spec §4.7")
	assert.Empty(t, nav.visited)
}
