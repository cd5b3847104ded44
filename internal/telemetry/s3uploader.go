// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/signalmast/beacon/internal/models"
)

// S3Uploader implements Uploader against an S3-compatible bucket, per
// SPEC_FULL §3's binding of Screenshot capture to object storage.
type S3Uploader struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

// NewS3Uploader constructs an S3Uploader. prefix is prepended to every
// object key, e.g. "screenshots".
func NewS3Uploader(client *s3.Client, bucket, prefix string) *S3Uploader {
	return &S3Uploader{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		prefix:  prefix,
	}
}

// Upload writes one capture to "<prefix>/<deviceStableID>/<unixNanoTime>.jpg"
// and also overwrites "<prefix>/<deviceStableID>/latest.jpg", a fixed key
// the Admin REST Gateway's screenshot endpoint can retrieve synchronously
// without listing the bucket.
func (u *S3Uploader) Upload(ctx context.Context, deviceStableID string, shot Screenshot) error {
	contentType := "image/jpeg"
	timestamped := fmt.Sprintf("%s/%s/%d.jpg", u.prefix, deviceStableID, time.Now().UnixNano())
	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &timestamped,
		Body:        bytes.NewReader(shot.JPEG),
		ContentType: &contentType,
	}); err != nil {
		return err
	}

	latest := u.latestKey(deviceStableID)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &latest,
		Body:        bytes.NewReader(shot.JPEG),
		ContentType: &contentType,
	})
	return err
}

func (u *S3Uploader) latestKey(deviceStableID string) string {
	return fmt.Sprintf("%s/%s/latest.jpg", u.prefix, deviceStableID)
}

// Store implements internal/dispatch.ScreenshotSink: it decodes the
// base64-carried JPEG from a device's screenshot:upload event and writes
// it through Upload. cmd/device builds its Collector without an Uploader,
// so device captures reach object storage only through this server-side
// path.
func (u *S3Uploader) Store(ctx context.Context, shot models.Screenshot) error {
	jpeg, err := base64.StdEncoding.DecodeString(shot.ImageJPEGBase)
	if err != nil {
		return fmt.Errorf("telemetry: decode screenshot upload: %w", err)
	}
	return u.Upload(ctx, shot.DeviceStableID, Screenshot{JPEG: jpeg, CurrentURL: shot.CurrentURL})
}

// PresignLatest returns a time-limited GET URL for a device's most recent
// screenshot.
func (u *S3Uploader) PresignLatest(ctx context.Context, deviceStableID string, expires time.Duration) (string, error) {
	key := u.latestKey(deviceStableID)
	req, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &u.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
