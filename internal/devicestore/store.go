// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package devicestore implements the Device Record Store (spec §4.6):
// persistent device identity, opaque bcrypt-hashed tokens, device
// configuration, and the Postgres-backed playlist tables it owns per
// SPEC_FULL §3. It exposes the narrow contract the Hub depends on
// (internal/hub.DeviceResolver) plus the CRUD surface the admin REST
// gateway translates into.
package devicestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/playlist"
)

// ErrNotFound is returned when a device, playlist, or item lookup finds no
// matching row.
var ErrNotFound = errors.New("devicestore: not found")

// Store is a pgx-backed implementation of the Device Record Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-configured pgx pool. Callers are responsible for
// running the schema migration (see Schema) before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Schema is the DDL for the entity shapes in spec §3. Migration tooling
// beyond applying this once is out of scope per spec §1's non-goals.
const Schema = `
CREATE TABLE IF NOT EXISTS devices (
	id                   TEXT PRIMARY KEY,
	stable_device_id     TEXT UNIQUE NOT NULL,
	display_name         TEXT NOT NULL,
	token_hash           TEXT NOT NULL,
	viewport_w           INTEGER NOT NULL DEFAULT 1920,
	viewport_h           INTEGER NOT NULL DEFAULT 1080,
	kiosk_mode           BOOLEAN NOT NULL DEFAULT TRUE,
	assigned_playlist_id TEXT,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS playlists (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS playlist_items (
	id                TEXT PRIMARY KEY,
	playlist_id       TEXT NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
	content_id        TEXT,
	url               TEXT NOT NULL,
	duration_seconds  INTEGER NOT NULL DEFAULT 0,
	order_index       INTEGER NOT NULL,
	time_window_start TEXT,
	time_window_end   TEXT,
	days_of_week      INTEGER[]
);
`

// CreateDevice inserts a new device record. The plaintext token is
// generated once here and returned to the caller (the admin REST gateway);
// only its bcrypt hash is persisted, per spec §3's "token is shown once"
// lifecycle rule.
func (s *Store) CreateDevice(ctx context.Context, displayName, stableDeviceID string, viewportW, viewportH int, kioskMode bool) (*models.DeviceRecord, string, error) {
	token := uuid.NewString() + "-" + uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("devicestore: hash token: %w", err)
	}

	rec := &models.DeviceRecord{
		ID:             uuid.NewString(),
		StableDeviceID: stableDeviceID,
		DisplayName:    displayName,
		TokenHash:      string(hash),
		ViewportW:      viewportW,
		ViewportH:      viewportH,
		KioskMode:      kioskMode,
		CreatedAt:      time.Now().UTC(),
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO devices (id, stable_device_id, display_name, token_hash, viewport_w, viewport_h, kiosk_mode, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.StableDeviceID, rec.DisplayName, rec.TokenHash, rec.ViewportW, rec.ViewportH, rec.KioskMode, rec.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("devicestore: create device: %w", err)
	}
	return rec, token, nil
}

// RotateToken replaces a device's token hash, returning the new plaintext
// exactly once.
func (s *Store) RotateToken(ctx context.Context, deviceID string) (string, error) {
	token := uuid.NewString() + "-" + uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("devicestore: hash token: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE devices SET token_hash=$1 WHERE id=$2`, string(hash), deviceID)
	if err != nil {
		return "", fmt.Errorf("devicestore: rotate token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrNotFound
	}
	return token, nil
}

// DeleteDevice removes a device record. Cascading the live session
// disconnect and license count decrement is the caller's responsibility
// (internal/api's device-delete handler calls Hub.DisconnectDevice, whose
// deregister step decrements the license count), per spec §3's "deletion
// cascades" lifecycle note.
func (s *Store) DeleteDevice(ctx context.Context, deviceID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM devices WHERE id=$1`, deviceID)
	if err != nil {
		return fmt.Errorf("devicestore: delete device: %w", err)
	}
	return nil
}

// ResolveToken implements internal/hub.DeviceResolver. Since tokens are
// stored salted-hashed, resolution scans device rows comparing bcrypt
// hashes; this is acceptable because device connects are rare relative to
// steady-state traffic and the device population is small (display
// endpoints, not end users).
func (s *Store) ResolveToken(ctx context.Context, token string) (string, error) {
	rows, err := s.pool.Query(ctx, `SELECT stable_device_id, token_hash FROM devices`)
	if err != nil {
		return "", fmt.Errorf("devicestore: resolve token: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stableID, hash string
		if err := rows.Scan(&stableID, &hash); err != nil {
			return "", err
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil {
			return stableID, nil
		}
	}
	return "", ErrNotFound
}

// GetByStableID fetches a device record by its immutable stable id.
func (s *Store) GetByStableID(ctx context.Context, stableDeviceID string) (*models.DeviceRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, stable_device_id, display_name, viewport_w, viewport_h, kiosk_mode, assigned_playlist_id, created_at
		FROM devices WHERE stable_device_id=$1`, stableDeviceID)
	return scanDevice(row)
}

// ListDevices returns every device record, ordered by stable id, for the
// admin REST gateway's list endpoint.
func (s *Store) ListDevices(ctx context.Context) ([]*models.DeviceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, stable_device_id, display_name, viewport_w, viewport_h, kiosk_mode, assigned_playlist_id, created_at
		FROM devices ORDER BY stable_device_id`)
	if err != nil {
		return nil, fmt.Errorf("devicestore: list devices: %w", err)
	}
	defer rows.Close()

	var out []*models.DeviceRecord
	for rows.Next() {
		rec, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListPlaylists returns every playlist (with items) for the admin REST
// gateway's list endpoint.
func (s *Store) ListPlaylists(ctx context.Context) ([]*models.Playlist, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM playlists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("devicestore: list playlists: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	out := make([]*models.Playlist, 0, len(ids))
	for _, id := range ids {
		pl, err := s.GetPlaylist(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, nil
}

func scanDevice(row pgx.Row) (*models.DeviceRecord, error) {
	var rec models.DeviceRecord
	var assigned *string
	if err := row.Scan(&rec.ID, &rec.StableDeviceID, &rec.DisplayName, &rec.ViewportW, &rec.ViewportH, &rec.KioskMode, &assigned, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.AssignedPlaylistID = assigned
	return &rec, nil
}

// UpdateConfig applies a partial config:update patch, per spec §4.6.
func (s *Store) UpdateConfig(ctx context.Context, stableDeviceID string, patch models.DeviceConfigPatch) error {
	if patch.DisplayWidth != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE devices SET viewport_w=$1 WHERE stable_device_id=$2`, *patch.DisplayWidth, stableDeviceID); err != nil {
			return err
		}
	}
	if patch.DisplayHeight != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE devices SET viewport_h=$1 WHERE stable_device_id=$2`, *patch.DisplayHeight, stableDeviceID); err != nil {
			return err
		}
	}
	if patch.KioskMode != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE devices SET kiosk_mode=$1 WHERE stable_device_id=$2`, *patch.KioskMode, stableDeviceID); err != nil {
			return err
		}
	}
	return nil
}

// AssignPlaylist sets a device's assigned playlist.
func (s *Store) AssignPlaylist(ctx context.Context, stableDeviceID, playlistID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE devices SET assigned_playlist_id=$1 WHERE stable_device_id=$2`, playlistID, stableDeviceID)
	return err
}

// AssignedPlaylist implements internal/hub.DeviceResolver: it resolves the
// device's assigned playlist, normalized per spec §3's orderIndex/id
// ordering invariant.
func (s *Store) AssignedPlaylist(ctx context.Context, stableDeviceID string) (*models.Playlist, error) {
	rec, err := s.GetByStableID(ctx, stableDeviceID)
	if err != nil {
		return nil, err
	}
	if rec.AssignedPlaylistID == nil {
		return nil, nil
	}
	return s.GetPlaylist(ctx, *rec.AssignedPlaylistID)
}

// GetPlaylist fetches a playlist and its items, normalized.
func (s *Store) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, is_active FROM playlists WHERE id=$1`, playlistID)
	var pl models.Playlist
	if err := row.Scan(&pl.ID, &pl.Name, &pl.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, playlist_id, COALESCE(content_id,''), url, duration_seconds, order_index,
		       COALESCE(time_window_start,''), COALESCE(time_window_end,''), days_of_week
		FROM playlist_items WHERE playlist_id=$1`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.PlaylistItem
	for rows.Next() {
		var item models.PlaylistItem
		if err := rows.Scan(&item.ID, &item.PlaylistID, &item.ContentID, &item.URL, &item.DurationSeconds,
			&item.OrderIndex, &item.TimeWindowStart, &item.TimeWindowEnd, &item.DaysOfWeek); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	pl.Items = playlist.Normalize(items)
	return &pl, nil
}

// PutPlaylist upserts a playlist and replaces its items wholesale, inside a
// transaction so devices never observe a partial interleave, per spec §5's
// "playlist updates delivered to one device are atomic" guarantee (which
// starts here, at the write, before the Hub ever reads it).
func (s *Store) PutPlaylist(ctx context.Context, pl *models.Playlist) error {
	if err := playlist.Validate(pl.Items); err != nil {
		return fmt.Errorf("devicestore: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO playlists (id, name, is_active) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, is_active=EXCLUDED.is_active`,
		pl.ID, pl.Name, pl.IsActive); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM playlist_items WHERE playlist_id=$1`, pl.ID); err != nil {
		return err
	}
	for _, item := range pl.Items {
		var start, end *string
		if item.TimeWindowStart != "" {
			start = &item.TimeWindowStart
		}
		if item.TimeWindowEnd != "" {
			end = &item.TimeWindowEnd
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO playlist_items (id, playlist_id, content_id, url, duration_seconds, order_index, time_window_start, time_window_end, days_of_week)
			VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9)`,
			item.ID, pl.ID, item.ContentID, item.URL, item.DurationSeconds, item.OrderIndex, start, end, item.DaysOfWeek); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
