// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"sync"

	"github.com/signalmast/beacon/internal/logging"
	"github.com/signalmast/beacon/internal/metrics"
	"github.com/signalmast/beacon/internal/models"
)

// RecorderConfig tunes the async write buffer.
type RecorderConfig struct {
	BufferSize int
}

// DefaultRecorderConfig returns the default buffer size.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{BufferSize: 1000}
}

// Recorder satisfies internal/hub.AuditRecorder: Record enqueues onto a
// buffered channel and returns immediately, so a slow or momentarily
// unavailable sqlite write never blocks the Hub's dispatch path. A full
// buffer drops the oldest queued entry rather than the caller blocking,
// matching the Hub's own "closes on a full control queue, drops on a full
// stream queue" backpressure philosophy — audit entries favor availability
// of the hot path over completeness of the log.
type Recorder struct {
	store   Store
	entries chan models.LogEntry
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewRecorder starts the async writer goroutine. Callers must call Close to
// flush and stop it.
func NewRecorder(store Store, cfg RecorderConfig) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultRecorderConfig().BufferSize
	}
	r := &Recorder{
		store:   store,
		entries: make(chan models.LogEntry, cfg.BufferSize),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record implements internal/hub.AuditRecorder.
func (r *Recorder) Record(ctx context.Context, entry models.LogEntry) {
	select {
	case r.entries <- entry:
	default:
		select {
		case <-r.entries:
			metrics.AuditEntriesDropped.Inc()
		default:
		}
		select {
		case r.entries <- entry:
		default:
			metrics.AuditEntriesDropped.Inc()
			logging.Warn().Str("message", entry.Message).Msg("audit buffer full, dropping entry")
		}
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case entry, ok := <-r.entries:
			if !ok {
				return
			}
			if err := r.store.Insert(context.Background(), entry); err != nil {
				logging.Error().Err(err).Msg("audit: failed to persist entry")
			} else {
				metrics.AuditEntriesRecorded.Inc()
			}
		case <-r.done:
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case entry := <-r.entries:
			if err := r.store.Insert(context.Background(), entry); err != nil {
				logging.Error().Err(err).Msg("audit: failed to persist entry during drain")
			} else {
				metrics.AuditEntriesRecorded.Inc()
			}
		default:
			return
		}
	}
}

// Close stops the writer goroutine after flushing any buffered entries.
func (r *Recorder) Close() {
	close(r.done)
	r.wg.Wait()
}
