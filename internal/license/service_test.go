// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package license

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalmast/beacon/internal/licensecodec"
	"github.com/signalmast/beacon/internal/models"
)

// memStore is an in-memory Store fake for unit testing Service without a
// real Badger instance.
type memStore struct {
	mu       sync.Mutex
	byID     map[string]*models.License
	byHash   map[string]*models.License
	grace    map[string]*models.GraceWindow
	assigned map[string]string // deviceID -> licenseID
}

func newMemStore() *memStore {
	return &memStore{
		byID:     make(map[string]*models.License),
		byHash:   make(map[string]*models.License),
		grace:    make(map[string]*models.GraceWindow),
		assigned: make(map[string]string),
	}
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lic, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return lic, nil
}

func (m *memStore) GetByKeyHash(_ context.Context, keyHash string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lic, ok := m.byHash[keyHash]
	if !ok {
		return nil, ErrNotFound
	}
	return lic, nil
}

func (m *memStore) Put(_ context.Context, lic *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[lic.ID] = lic
	m.byHash[lic.KeyHash] = lic
	return nil
}

func (m *memStore) ListActive(_ context.Context) ([]*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.License
	for _, lic := range m.byID {
		if lic.IsActive {
			out = append(out, lic)
		}
	}
	return out, nil
}

func (m *memStore) GetGraceWindow(_ context.Context, licenseID string) (*models.GraceWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gw, ok := m.grace[licenseID]
	if !ok {
		return nil, ErrNotFound
	}
	return gw, nil
}

func (m *memStore) PutGraceWindow(_ context.Context, gw *models.GraceWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grace[gw.LicenseID] = gw
	return nil
}

func (m *memStore) DeleteGraceWindow(_ context.Context, licenseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grace, licenseID)
	return nil
}

func (m *memStore) ListGraceWindows(_ context.Context) ([]*models.GraceWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.GraceWindow, 0, len(m.grace))
	for _, gw := range m.grace {
		out = append(out, gw)
	}
	return out, nil
}

func (m *memStore) AssignDevice(_ context.Context, deviceID, licenseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigned[deviceID] = licenseID
	return nil
}

func (m *memStore) GetDeviceLicense(_ context.Context, deviceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.assigned[deviceID]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *memStore) UnassignDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assigned, deviceID)
	return nil
}

// memCounter is an in-memory Counter fake.
type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemCounter() *memCounter {
	return &memCounter{counts: make(map[string]int64)}
}

func (c *memCounter) Increment(_ context.Context, licenseID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[licenseID]++
	return c.counts[licenseID], nil
}

func (c *memCounter) Decrement(_ context.Context, licenseID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[licenseID]--
	if c.counts[licenseID] < 0 {
		c.counts[licenseID] = 0
	}
	return c.counts[licenseID], nil
}

func (c *memCounter) Get(_ context.Context, licenseID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[licenseID], nil
}

func (c *memCounter) Set(_ context.Context, licenseID string, value int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[licenseID] = value
	return nil
}

const testSecret = "test-installation-secret"

func mustEncodeKey(t *testing.T, devices int, tier string) string {
	t.Helper()
	key, err := licensecodec.Encode(models.LicenseTokenV2Payload{
		Tier:    tier,
		Devices: devices,
		Company: "Acme",
	}, []byte(testSecret))
	require.NoError(t, err)
	return key
}

func newTestService() (*Service, *memStore, *memCounter) {
	store := newMemStore()
	counter := newMemCounter()
	svc := New(store, counter, []byte(testSecret))
	return svc, store, counter
}

func TestActivateIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	key := mustEncodeKey(t, 5, "PRO")

	first, err := svc.Activate(context.Background(), key)
	require.NoError(t, err)

	second, err := svc.Activate(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestRegisterDeviceAdmitsWithinCap(t *testing.T) {
	svc, _, _ := newTestService()
	key := mustEncodeKey(t, 2, "PRO")
	_, err := svc.Activate(context.Background(), key)
	require.NoError(t, err)

	require.NoError(t, svc.RegisterDevice(context.Background(), "dev-1"))
	require.NoError(t, svc.RegisterDevice(context.Background(), "dev-2"))
}

func TestRegisterDeviceGrantsGraceBeyondCap(t *testing.T) {
	svc, _, _ := newTestService()
	key := mustEncodeKey(t, 1, "PRO")
	_, err := svc.Activate(context.Background(), key)
	require.NoError(t, err)

	require.NoError(t, svc.RegisterDevice(context.Background(), "dev-1"))
	// Second device exceeds the cap of 1 but should be admitted under grace.
	require.NoError(t, svc.RegisterDevice(context.Background(), "dev-2"))
}

func TestRegisterDeviceDeniedAfterGraceExpires(t *testing.T) {
	svc, store, _ := newTestService()
	key := mustEncodeKey(t, 1, "PRO")
	lic, err := svc.Activate(context.Background(), key)
	require.NoError(t, err)

	require.NoError(t, svc.RegisterDevice(context.Background(), "dev-1"))
	require.NoError(t, svc.RegisterDevice(context.Background(), "dev-2")) // starts grace

	gw, err := store.GetGraceWindow(context.Background(), lic.ID)
	require.NoError(t, err)
	gw.EndsAt = time.Now().Add(-time.Minute) // force grace to have elapsed
	require.NoError(t, store.PutGraceWindow(context.Background(), gw))

	err = svc.RegisterDevice(context.Background(), "dev-3")
	assert.Error(t, err)
}

func TestUnregisterDeviceDecrementsAssignedLicense(t *testing.T) {
	svc, _, counter := newTestService()
	key := mustEncodeKey(t, 5, "PRO")
	lic, err := svc.Activate(context.Background(), key)
	require.NoError(t, err)

	require.NoError(t, svc.RegisterDevice(context.Background(), "dev-1"))
	n, err := counter.Get(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	svc.UnregisterDevice(context.Background(), "dev-1")
	n, err = counter.Get(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRevokeInvokesOnRevoked(t *testing.T) {
	svc, store, _ := newTestService()
	key := mustEncodeKey(t, 5, "PRO")
	lic, err := svc.Activate(context.Background(), key)
	require.NoError(t, err)

	var revokedID string
	svc.OnRevoked = func(licenseID string) { revokedID = licenseID }

	require.NoError(t, svc.Revoke(context.Background(), lic.ID))
	assert.Equal(t, lic.ID, revokedID)

	got, err := store.GetByID(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestValidateUsesImplicitFreeTierWhenNoLicenseActivated(t *testing.T) {
	svc, _, _ := newTestService()
	decision, err := svc.Validate(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
}

func TestActivateRejectsExpiredKey(t *testing.T) {
	svc, _, _ := newTestService()
	key, err := licensecodec.Encode(models.LicenseTokenV2Payload{
		Tier:    "PRO",
		Devices: 5,
		Expires: "2000-01-01",
	}, []byte(testSecret))
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), key)
	assert.Error(t, err)
}
