// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package licensecodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalmast/beacon/internal/models"
)

var testSecret = []byte("installation-secret-used-only-in-tests")

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := models.LicenseTokenV2Payload{
		Tier:    "PRO-10",
		Devices: 10,
		Company: "Acme Signage",
		Issued:  "2026-01-01",
	}

	key, err := Encode(payload, testSecret)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "LK-2-"))
	assert.LessOrEqual(t, len(key), 512)

	decoded, err := Decode(key, testSecret)
	require.NoError(t, err)
	decoded.V = payload.V // V is forced to 2 by Encode regardless of caller input
	assert.Equal(t, payload.Tier, decoded.Tier)
	assert.Equal(t, payload.Devices, decoded.Devices)
	assert.Equal(t, payload.Company, decoded.Company)
}

func TestDecodeWrongSecret(t *testing.T) {
	key, err := Encode(models.LicenseTokenV2Payload{Tier: "PRO-5", Devices: 5}, testSecret)
	require.NoError(t, err)

	_, err = Decode(key, []byte("a-completely-different-secret"))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecodeBitFlipInvalidatesSignature(t *testing.T) {
	key, err := Encode(models.LicenseTokenV2Payload{Tier: "PRO-5", Devices: 5}, testSecret)
	require.NoError(t, err)

	flipped := []byte(key)
	// Flip one bit in the encoded body region (after "LK-2-", before the
	// trailing signature segment).
	idx := strings.Index(key, "-2-") + 3
	flipped[idx] ^= 0x01

	_, err = Decode(string(flipped), testSecret)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecodeMalformedKey(t *testing.T) {
	cases := []string{"", "not-a-key", "LK-2-onlytwoparts", "XX-2-body-SIG"}
	for _, c := range cases {
		_, err := Decode(c, testSecret)
		assert.Error(t, err)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	_, err := Decode("LK-9-somebody-ABCD1234", testSecret)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeV1LegacyKey(t *testing.T) {
	payload, err := Decode("LK-1-PRO-8-RANDOM123-CK01", testSecret)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.V)
	assert.Equal(t, "PRO-8", payload.Tier)
	assert.Equal(t, 8, payload.Devices)
}

func TestDecodeV1FreeTierDefault(t *testing.T) {
	payload, err := Decode("LK-1-FREE-RANDOM123-CK01", testSecret)
	require.NoError(t, err)
	assert.Equal(t, models.FreeTierDefaultMaxDevices, payload.Devices)
}
