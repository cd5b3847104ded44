// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package license

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/signalmast/beacon/internal/models"
)

// ErrNotFound is returned by Store lookups that find no matching row.
var ErrNotFound = errors.New("license: not found")

const (
	licenseKeyPrefix       = "license:id:"
	licenseByKeyHashPrefix = "license:keyhash:"
	graceWindowKeyPrefix   = "license:grace:"
	deviceAssignmentPrefix = "license:deviceassign:"
)

// Store persists License rows and their grace-window state durably, per
// spec §4.2 ("Grace-window state is persisted so restarts do not reset
// it."). BadgerStore is the only implementation; it is the same embedded,
// durable key-value engine the teacher uses for session storage.
type Store interface {
	GetByID(ctx context.Context, id string) (*models.License, error)
	GetByKeyHash(ctx context.Context, keyHash string) (*models.License, error)
	Put(ctx context.Context, lic *models.License) error
	// ListActive returns every License row with IsActive set, for
	// determining the currently-effective license.
	ListActive(ctx context.Context) ([]*models.License, error)

	GetGraceWindow(ctx context.Context, licenseID string) (*models.GraceWindow, error)
	PutGraceWindow(ctx context.Context, gw *models.GraceWindow) error
	DeleteGraceWindow(ctx context.Context, licenseID string) error
	// ListGraceWindows returns every currently persisted grace window, for
	// the periodic sweep that expires them once their bounded duration
	// elapses.
	ListGraceWindows(ctx context.Context) ([]*models.GraceWindow, error)

	// Device-to-license assignment lets UnregisterDevice decrement the
	// same license a device was counted against, even if the effective
	// license changes between registration and disconnect.
	AssignDevice(ctx context.Context, deviceID, licenseID string) error
	GetDeviceLicense(ctx context.Context, deviceID string) (string, error)
	UnassignDevice(ctx context.Context, deviceID string) error
}

// BadgerStore is a Store backed by an embedded BadgerDB instance.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an already-opened BadgerDB handle.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) GetByID(_ context.Context, id string) (*models.License, error) {
	var lic models.License
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(licenseKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &lic)
		})
	})
	if err != nil {
		return nil, err
	}
	return &lic, nil
}

func (s *BadgerStore) GetByKeyHash(_ context.Context, keyHash string) (*models.License, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(licenseByKeyHashPrefix + keyHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(context.Background(), id)
}

func (s *BadgerStore) Put(_ context.Context, lic *models.License) error {
	data, err := json.Marshal(lic)
	if err != nil {
		return fmt.Errorf("license: marshal row: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(licenseKeyPrefix+lic.ID), data); err != nil {
			return err
		}
		return txn.Set([]byte(licenseByKeyHashPrefix+lic.KeyHash), []byte(lic.ID))
	})
}

func (s *BadgerStore) ListActive(_ context.Context) ([]*models.License, error) {
	var out []*models.License
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(licenseKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var lic models.License
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &lic)
			}); err != nil {
				return err
			}
			if lic.IsActive {
				out = append(out, &lic)
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) GetGraceWindow(_ context.Context, licenseID string) (*models.GraceWindow, error) {
	var gw models.GraceWindow
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(graceWindowKeyPrefix + licenseID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &gw)
		})
	})
	if err != nil {
		return nil, err
	}
	return &gw, nil
}

func (s *BadgerStore) PutGraceWindow(_ context.Context, gw *models.GraceWindow) error {
	data, err := json.Marshal(gw)
	if err != nil {
		return fmt.Errorf("license: marshal grace window: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(graceWindowKeyPrefix+gw.LicenseID), data)
	})
}

func (s *BadgerStore) DeleteGraceWindow(_ context.Context, licenseID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(graceWindowKeyPrefix + licenseID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *BadgerStore) ListGraceWindows(_ context.Context) ([]*models.GraceWindow, error) {
	var out []*models.GraceWindow
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(graceWindowKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var gw models.GraceWindow
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &gw)
			}); err != nil {
				return err
			}
			out = append(out, &gw)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) AssignDevice(_ context.Context, deviceID, licenseID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(deviceAssignmentPrefix+deviceID), []byte(licenseID))
	})
}

func (s *BadgerStore) GetDeviceLicense(_ context.Context, deviceID string) (string, error) {
	var licenseID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(deviceAssignmentPrefix + deviceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			licenseID = string(val)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return licenseID, nil
}

func (s *BadgerStore) UnassignDevice(_ context.Context, deviceID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(deviceAssignmentPrefix + deviceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
