// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import "encoding/base64"

// encodeBase64 renders a JPEG capture as the inline payload carried by the
// screenshot:upload event's image field. The image is sent inline whether
// or not an object-storage Uploader is configured; no object key is sent.
func encodeBase64(jpeg []byte) string {
	return base64.StdEncoding.EncodeToString(jpeg)
}
