// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package licensecodec encodes and decodes the self-describing V2 license
// key, and decodes legacy V1 keys for backward compatibility, per spec §4.1.
//
// A V2 key has the form:
//
//	LK-2-<body>-<SIG8>
//
// where body is brotli-compressed, base64url-encoded JSON, and SIG8 is the
// first 8 uppercase hex characters of HMAC-SHA256(body, installationSecret).
// Brotli is used instead of stdlib gzip to exercise the same generic
// byte-compressor role gzip would play, per the "use as many third-party
// deps as possible" mandate (grounded in snapetech-plexTuner, which already
// carries andybalholm/brotli in this corpus).
package licensecodec

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/goccy/go-json"

	"github.com/signalmast/beacon/internal/models"
)

// Sentinel errors per spec §4.1 failure modes. All are non-fatal and are
// surfaced to the caller rather than panicking.
var (
	ErrMalformedKey      = errors.New("licensecodec: malformed key")
	ErrInvalidSignature  = errors.New("licensecodec: invalid signature")
	ErrUnsupportedVersion = errors.New("licensecodec: unsupported version")
)

const (
	keyPrefix  = "LK"
	v2Version  = "2"
	v1Version  = "1"
	sigHexLen  = 8
	maxKeyBytes = 512
)

// Encode serializes payload to compact JSON, brotli-compresses it,
// base64url-encodes the result, and appends a truncated HMAC-SHA256
// signature keyed by installationSecret. The result matches
// `LK-2-<b64url>-<SIG8>`.
func Encode(payload models.LicenseTokenV2Payload, installationSecret []byte) (string, error) {
	payload.V = 2
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("licensecodec: marshal payload: %w", err)
	}

	var compressed bytes.Buffer
	bw := brotli.NewWriterLevel(&compressed, brotli.BestCompression)
	if _, err := bw.Write(raw); err != nil {
		return "", fmt.Errorf("licensecodec: compress payload: %w", err)
	}
	if err := bw.Close(); err != nil {
		return "", fmt.Errorf("licensecodec: flush compressor: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(compressed.Bytes())
	sig := sign(body, installationSecret)

	key := strings.Join([]string{keyPrefix, v2Version, body, sig}, "-")
	if len(key) > maxKeyBytes {
		return "", fmt.Errorf("licensecodec: encoded key exceeds %d bytes", maxKeyBytes)
	}
	return key, nil
}

func sign(body string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(body))
	digest := mac.Sum(nil)
	return strings.ToUpper(hex.EncodeToString(digest))[:sigHexLen]
}

// Decode recognizes both V2 keys and legacy V1 keys
// (`LK-1-<TIER>-<RANDOM>-<CKSUM4>`).
//
// V1 keys carry no explicit device count; Decode returns a payload with
// Tier populated and Devices derived from the tier string by
// deriveV1MaxDevices (zero when the tier embeds no cap), per spec §4.2.
func Decode(key string, installationSecret []byte) (models.LicenseTokenV2Payload, error) {
	var payload models.LicenseTokenV2Payload

	if len(key) == 0 || len(key) > maxKeyBytes || !strings.HasPrefix(key, keyPrefix+"-") {
		return payload, ErrMalformedKey
	}

	// The body of either version may itself contain "-" (V2's base64url
	// alphabet includes it; V1's tier string can be "PRO-N"), so the
	// version tag is peeled off the front and the remaining segments are
	// parsed from the right, where the field widths are fixed.
	rest := strings.TrimPrefix(key, keyPrefix+"-")
	version, remainder, ok := cutOnce(rest, "-")
	if !ok {
		return payload, ErrMalformedKey
	}

	switch version {
	case v2Version:
		// remainder = <body>-<SIG8>; SIG8 is fixed-width hex and never
		// contains "-", so the last dash unambiguously separates it.
		idx := strings.LastIndex(remainder, "-")
		if idx < 0 {
			return payload, ErrMalformedKey
		}
		return decodeV2(remainder[:idx], remainder[idx+1:], installationSecret)
	case v1Version:
		// remainder = <TIER>-<RANDOM>-<CKSUM4>; split from the right twice
		// so a tier string like "PRO-10" is kept intact.
		lastDash := strings.LastIndex(remainder, "-")
		if lastDash < 0 {
			return payload, ErrMalformedKey
		}
		cksum := remainder[lastDash+1:]
		rest2 := remainder[:lastDash]
		secondDash := strings.LastIndex(rest2, "-")
		if secondDash < 0 {
			return payload, ErrMalformedKey
		}
		tier := rest2[:secondDash]
		return decodeV1(tier, cksum)
	default:
		return payload, ErrUnsupportedVersion
	}
}

// cutOnce splits s at the first occurrence of sep, mirroring strings.Cut
// (available since Go 1.18, reimplemented here for clarity at call sites
// that need the boolean in a switch).
func cutOnce(s, sep string) (before, after string, found bool) {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

func decodeV2(body, sig string, secret []byte) (models.LicenseTokenV2Payload, error) {
	var payload models.LicenseTokenV2Payload

	expected := sign(body, secret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToUpper(sig))) {
		return payload, ErrInvalidSignature
	}

	compressed, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return payload, ErrMalformedKey
	}

	raw, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return payload, ErrMalformedKey
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, ErrMalformedKey
	}
	return payload, nil
}

// decodeV1 builds a minimal payload from the already-extracted tier and
// checksum segments of a legacy `LK-1-<TIER>-<RANDOM>-<CKSUM4>` key. V1's
// checksum is a lightweight structural guard, not a cryptographic
// signature: V1 keys predate installation-bound secrets.
func decodeV1(tier, checksum string) (models.LicenseTokenV2Payload, error) {
	var payload models.LicenseTokenV2Payload

	if tier == "" || len(checksum) != 4 {
		return payload, ErrMalformedKey
	}

	payload.V = 1
	payload.Tier = tier
	payload.Devices = deriveV1MaxDevices(tier)
	return payload, nil
}

// deriveV1MaxDevices implements the "PRO-N -> N, FREE -> default" rule from
// spec §4.2 for keys that embed the cap directly in the tier string
// (e.g. "PRO-10"). It returns 0 when the tier does not embed a cap; the
// License Service's Activate stores that 0 as the license's MaxDevices and
// consults no other source for the cap.
func deriveV1MaxDevices(tier string) int {
	upper := strings.ToUpper(tier)
	if upper == "FREE" {
		return models.FreeTierDefaultMaxDevices
	}
	if strings.HasPrefix(upper, "PRO-") {
		n, err := strconv.Atoi(strings.TrimPrefix(upper, "PRO-"))
		if err == nil && n > 0 {
			return n
		}
	}
	return 0
}
