// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit implements the Observability / Audit Log (spec §4.9): an
// append-only event log keyed by device, with a retention compactor that
// deletes rows older than a configured window. Events are buffered and
// written asynchronously so a slow disk never blocks the Hub's hot path.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalmast/beacon/internal/models"
)

// Filter narrows a Query call, per spec §4.9's "retrieval is by filter
// (deviceId, level, time range, limit)".
type Filter struct {
	DeviceID string
	Level    models.LogLevel
	Since    *time.Time
	Until    *time.Time
	Limit    int
}

// Store is the persistence contract the Recorder and RetentionCompactor
// depend on.
type Store interface {
	Insert(ctx context.Context, entry models.LogEntry) error
	Query(ctx context.Context, filter Filter) ([]models.LogEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// SQLiteStore is the sqlite-backed Store, grounded on the pure-Go
// modernc.org/sqlite driver and the mandatory-PRAGMA DSN pattern.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if absent) a sqlite database at path and ensures the
// audit_log table exists.
func Open(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: ping sqlite: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS audit_log (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp       TEXT NOT NULL,
		level           TEXT NOT NULL,
		message         TEXT NOT NULL,
		device_id       TEXT,
		source          TEXT,
		stack_trace     TEXT,
		additional_data TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_log_device ON audit_log(device_id);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Insert appends one log entry.
func (s *SQLiteStore) Insert(ctx context.Context, entry models.LogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (timestamp, level, message, device_id, source, stack_trace, additional_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC().Format(time.RFC3339Nano), string(entry.Level), entry.Message,
		entry.DeviceID, entry.Source, entry.StackTrace, entry.AdditionalData)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Query returns entries matching filter, most recent first.
func (s *SQLiteStore) Query(ctx context.Context, filter Filter) ([]models.LogEntry, error) {
	query := `SELECT id, timestamp, level, message, device_id, source, stack_trace, additional_data FROM audit_log WHERE 1=1`
	var args []interface{}

	if filter.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, filter.DeviceID)
	}
	if filter.Level != "" {
		query += " AND level = ?"
		args = append(args, string(filter.Level))
	}
	if filter.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if filter.Until != nil {
		query += " AND timestamp <= ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		var ts string
		var deviceID, source, stackTrace, additionalData sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Level, &e.Message, &deviceID, &source, &stackTrace, &additionalData); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("audit: parse timestamp: %w", err)
		}
		e.DeviceID = deviceID.String
		e.Source = source.String
		e.StackTrace = stackTrace.String
		e.AdditionalData = additionalData.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan removes entries older than cutoff, returning the count
// deleted, per spec §4.9's retention compactor.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("audit: delete older than: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
