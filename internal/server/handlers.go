// Package server exposes the HTTP handlers: the websocket upgrade plus the
// status and health endpoints.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const serviceName = "roomrelay"

// StatusResponse is the body served by the status endpoint.
type StatusResponse struct {
	Service     string  `json:"service"`
	Status      string  `json:"status"`
	Connections int     `json:"connections"`
	Rooms       int     `json:"rooms"`
	Uptime      float64 `json:"uptime_seconds"`
}

// WebSocketHandler upgrades the request, assigns the connection a fresh
// identity, and hands it to the hub.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		s.logger.Warn("ws.upgrade_failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr)
	if !s.hub.Register(client) {
		s.logger.Warn("ws.hub_stopped", "remote_addr", r.RemoteAddr)
		_ = conn.Close()
	}
}

// StatusHandler reports server identity and live counts as JSON.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	resp := StatusResponse{
		Service:     serviceName,
		Status:      "ok",
		Connections: s.hub.ClientCount(),
		Rooms:       s.registry.RoomCount(),
		Uptime:      time.Since(s.started).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("status.write_failed", "err", err)
	}
}

// HealthHandler provides a simple liveness check.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "roomrelay is running")
}
