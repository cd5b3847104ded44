// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDeleteStore struct {
	fakeStore
	calls      int
	lastCutoff time.Time
}

func (s *countingDeleteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.calls++
	s.lastCutoff = cutoff
	return 0, nil
}

func TestRetentionCompactorTicksUntilCanceled(t *testing.T) {
	store := &countingDeleteStore{}
	c := NewRetentionCompactor(store, 30, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	require.Eventually(t, func() bool { return store.calls >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRetentionCompactorDisabledWhenRetentionDaysZero(t *testing.T) {
	store := &countingDeleteStore{}
	c := NewRetentionCompactor(store, 0, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, store.calls)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRetentionCompactorUsesInjectableClockForCutoff(t *testing.T) {
	fixed := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	store := &countingDeleteStore{}
	c := NewRetentionCompactor(store, 7, time.Hour)
	c.now = func() time.Time { return fixed }

	c.compactOnce(context.Background())
	assert.Equal(t, fixed.AddDate(0, 0, -7), store.lastCutoff)
}
