// Package server wires HTTP handlers into a ServeMux behind CORS.
package server

import (
	"net/http"

	"github.com/rs/cors"
)

// SetupRoutes returns the relay's HTTP handler: status, health, metrics and
// the websocket endpoint, all behind the configured CORS policy.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.StatusHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/ws", s.WebSocketHandler)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(mux)
}
