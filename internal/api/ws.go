// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalmast/beacon/internal/hub"
	"github.com/signalmast/beacon/internal/logging"
)

// upgrader is shared across connect attempts. It leaves CheckOrigin unset,
// so gorilla/websocket's default applies: a request without an Origin
// header (device firmware) is accepted, and a browser request whose Origin
// host differs from the request host is rejected.
var upgrader = websocket.Upgrader{
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
}

// serveWS upgrades /ws?role=device|admin&token=... to a WebSocket and hands
// the connection to the Session Hub. Devices authenticate with their opaque
// bearer token; admins authenticate with the same JWT the REST gateway
// accepts, per SPEC_FULL §4.10's "single session-establishment path" note.
func (h *handlers) serveWS(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	switch role {
	case "device":
		h.serveDeviceWS(w, r, token)
	case "admin":
		h.serveAdminWS(w, r, token)
	default:
		http.Error(w, "role must be \"device\" or \"admin\"", http.StatusBadRequest)
	}
}

func (h *handlers) serveDeviceWS(w http.ResponseWriter, r *http.Request, token string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("device websocket upgrade failed")
		return
	}

	session, err := h.deps.Hub.AcceptDevice(r.Context(), token, conn)
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"error": err.Error()})
		_ = conn.Close()
		return
	}
	session.Start()
}

func (h *handlers) serveAdminWS(w http.ResponseWriter, r *http.Request, token string) {
	claims, err := h.deps.Authn.ValidateToken(token)
	if err != nil {
		http.Error(w, "unauthorized: invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("admin websocket upgrade failed")
		return
	}

	session := h.deps.Hub.AcceptAdmin(claims.Username, hub.Permission(claims.Role), conn)
	session.Start()
}
