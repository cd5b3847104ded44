// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalmast/beacon/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (f *fakeStore) Insert(_ context.Context, entry models.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeStore) Query(context.Context, Filter) ([]models.LogEntry, error) { return nil, nil }
func (f *fakeStore) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func TestRecorderPersistsEntriesAsynchronously(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, RecorderConfig{BufferSize: 10})
	defer r.Close()

	r.Record(context.Background(), models.LogEntry{Message: "device connected", Level: models.LogLevelInfo})

	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, time.Millisecond)
}

func TestRecorderCloseFlushesBufferedEntries(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, RecorderConfig{BufferSize: 10})

	for i := 0; i < 5; i++ {
		r.Record(context.Background(), models.LogEntry{Message: "entry", Level: models.LogLevelInfo})
	}
	r.Close()

	assert.Equal(t, 5, store.count())
}

func TestRecorderDropsOldestWhenBufferFull(t *testing.T) {
	blockingStore := &blockingInsertStore{release: make(chan struct{})}
	r := NewRecorder(blockingStore, RecorderConfig{BufferSize: 1})

	r.Record(context.Background(), models.LogEntry{Message: "in-flight"})
	require.Eventually(t, func() bool { return blockingStore.started() }, time.Second, time.Millisecond)

	r.Record(context.Background(), models.LogEntry{Message: "first-queued"})
	r.Record(context.Background(), models.LogEntry{Message: "second-queued"})

	close(blockingStore.release)
	r.Close()

	require.Equal(t, 2, blockingStore.count())
	assert.Equal(t, "in-flight", blockingStore.entries[0].Message)
	assert.Equal(t, "second-queued", blockingStore.entries[1].Message)
}

type blockingInsertStore struct {
	mu       sync.Mutex
	entries  []models.LogEntry
	release  chan struct{}
	begun    bool
	beginMu  sync.Mutex
}

func (s *blockingInsertStore) Insert(_ context.Context, entry models.LogEntry) error {
	s.beginMu.Lock()
	first := !s.begun
	s.begun = true
	s.beginMu.Unlock()
	if first {
		<-s.release
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

func (s *blockingInsertStore) Query(context.Context, Filter) ([]models.LogEntry, error) { return nil, nil }
func (s *blockingInsertStore) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (s *blockingInsertStore) Close() error { return nil }

func (s *blockingInsertStore) started() bool {
	s.beginMu.Lock()
	defer s.beginMu.Unlock()
	return s.begun
}

func (s *blockingInsertStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
