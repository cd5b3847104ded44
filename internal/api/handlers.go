// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/signalmast/beacon/internal/apierrors"
	"github.com/signalmast/beacon/internal/hub"
	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/protocol"
)

type handlers struct {
	deps Deps
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var apiErr *apierrors.Error
	if errors.As(err, &apiErr) {
		status := http.StatusInternalServerError
		switch apiErr.Code {
		case apierrors.CodeAuthFailed:
			status = http.StatusUnauthorized
		case apierrors.CodeLicenseDenied, apierrors.CodeLicenseGrace:
			status = http.StatusForbidden
		case apierrors.CodeMalformed:
			status = http.StatusBadRequest
		case apierrors.CodeDeviceOffline:
			status = http.StatusConflict
		case apierrors.CodeTransient:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": apiErr.Message, "code": string(apiErr.Code)})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createDeviceRequest struct {
	DisplayName    string `json:"displayName"`
	StableDeviceID string `json:"stableDeviceId"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`
	KioskMode      bool   `json:"kioskMode"`
}

type createDeviceResponse struct {
	Device *models.DeviceRecord `json:"device"`
	Token  string                `json:"token"`
}

func (h *handlers) createDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.Malformed("invalid request body"))
		return
	}
	if req.ViewportWidth <= 0 {
		req.ViewportWidth = 1920
	}
	if req.ViewportHeight <= 0 {
		req.ViewportHeight = 1080
	}

	rec, token, err := h.deps.Devices.CreateDevice(r.Context(), req.DisplayName, req.StableDeviceID, req.ViewportWidth, req.ViewportHeight, req.KioskMode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createDeviceResponse{Device: rec, Token: token})
}

func (h *handlers) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deps.Devices.ListDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *handlers) getDevice(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Devices.GetByStableID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) deleteDevice(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "id")
	rec, err := h.deps.Devices.GetByStableID(r.Context(), stableID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Devices.DeleteDevice(r.Context(), rec.ID); err != nil {
		writeError(w, err)
		return
	}
	h.deps.Hub.DisconnectDevice(stableID, hub.CloseDeviceDeleted)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) rotateToken(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "id")
	rec, err := h.deps.Devices.GetByStableID(r.Context(), stableID)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := h.deps.Devices.RotateToken(r.Context(), rec.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *handlers) getScreenshot(w http.ResponseWriter, r *http.Request) {
	url, err := h.deps.Screenshots.PresignLatest(r.Context(), chi.URLParam(r, "id"), 5*time.Minute)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *handlers) listPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.deps.Devices.ListPlaylists(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (h *handlers) getPlaylist(w http.ResponseWriter, r *http.Request) {
	pl, err := h.deps.Devices.GetPlaylist(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (h *handlers) putPlaylist(w http.ResponseWriter, r *http.Request) {
	var pl models.Playlist
	if err := json.NewDecoder(r.Body).Decode(&pl); err != nil {
		writeError(w, apierrors.Malformed("invalid request body"))
		return
	}
	pl.ID = chi.URLParam(r, "id")

	if err := h.deps.Devices.PutPlaylist(r.Context(), &pl); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (h *handlers) assignPlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "id")
	deviceID := chi.URLParam(r, "deviceId")

	if err := h.deps.Devices.AssignPlaylist(r.Context(), deviceID, playlistID); err != nil {
		writeError(w, err)
		return
	}

	pl, err := h.deps.Devices.GetPlaylist(r.Context(), playlistID)
	if err != nil {
		writeError(w, err)
		return
	}
	env, err := protocol.Marshal(protocol.EventContentUpdate, protocol.ContentUpdatePayload{
		PlaylistID: pl.ID,
		Items:      pl.Items,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	// A device that is currently offline simply receives the assignment
	// on its next connect (internal/hub.AcceptDevice pushes the current
	// assignment then), so an apierrors.DeviceOffline result here is not
	// itself an error worth surfacing to the caller.
	_ = h.deps.Hub.RouteToDevice(deviceID, env, hub.QueueControl)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) activateLicense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.Malformed("invalid request body"))
		return
	}
	lic, err := h.deps.License.Activate(r.Context(), req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lic)
}

func (h *handlers) revokeLicense(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.License.Revoke(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type broadcastRequest struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"durationSeconds"`
}

func (h *handlers) startBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.Malformed("invalid request body"))
		return
	}
	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := h.deps.Broadcast.Start(r.Context(), chi.URLParam(r, "id"), req.URL, duration); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) endBroadcast(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Broadcast.End(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// playlistControlEvents maps a REST action segment to its wire command
// event, per SPEC_FULL §4.11's "simply translate to the corresponding
// playlist:* events" note.
var playlistControlEvents = map[string]string{
	"pause":    protocol.EventPlaylistPause,
	"resume":   protocol.EventPlaylistResume,
	"next":     protocol.EventPlaylistNext,
	"previous": protocol.EventPlaylistPrevious,
}

func (h *handlers) playlistControl(w http.ResponseWriter, r *http.Request) {
	event, ok := playlistControlEvents[chi.URLParam(r, "action")]
	if !ok {
		writeError(w, apierrors.Malformed("unknown playlist action"))
		return
	}

	env, err := protocol.Marshal(event, protocol.PlaylistControlPayload{})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Hub.RouteToDevice(chi.URLParam(r, "id"), env, hub.QueueControl); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
