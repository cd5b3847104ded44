// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apierrors defines the error taxonomy shared by the hub, the
// license service, and the admin REST gateway, per spec §7.
//
// Each kind carries a stable Code used both as the websocket close reason
// and as the admin REST error body's "code" field, so a single taxonomy
// backs both transports.
package apierrors

import "fmt"

// Code identifies one error kind in the taxonomy.
type Code string

const (
	CodeAuthFailed    Code = "auth_failed"
	CodeLicenseDenied Code = "license_denied"
	CodeLicenseGrace  Code = "license_grace"
	CodeMalformed     Code = "malformed"
	CodeDeviceOffline Code = "device_offline"
	CodeTransient     Code = "transient"
	CodeFatal         Code = "fatal"
	CodeSuperseded    Code = "superseded"
	CodeIdle          Code = "idle"
)

// Error is a taxonomy-classified error. Retryable indicates whether the
// core itself may retry the operation; per spec §7 the core never retries
// DeviceOffline or AuthFailed automatically, and Transient is meant for the
// client to retry with backoff, not the server.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a taxonomy error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AuthFailed reports a missing or invalid device/admin token.
func AuthFailed(msg string) *Error { return New(CodeAuthFailed, msg) }

// LicenseDenied reports that the License Service refused admission.
func LicenseDenied(reason string) *Error { return New(CodeLicenseDenied, reason) }

// Malformed reports an unparseable frame or payload.
func Malformed(msg string) *Error { return New(CodeMalformed, msg) }

// DeviceOffline reports that a routed command has no live session to reach.
func DeviceOffline(deviceID string) *Error {
	return New(CodeDeviceOffline, fmt.Sprintf("device %s is not connected", deviceID))
}

// Transient reports a write timeout or a full control queue; the session
// is closed and the client is expected to reconnect with backoff.
func Transient(msg string) *Error {
	return &Error{Code: CodeTransient, Message: msg, Retryable: true}
}

// Fatal reports an invariant violation; only the offending session closes,
// the process continues.
func Fatal(msg string) *Error { return New(CodeFatal, msg) }

// Is reports whether err carries the given taxonomy code, for use with
// errors.Is-style checks at call sites that only care about the code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
