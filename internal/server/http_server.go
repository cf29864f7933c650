// Package server constructs the relay, its process-wide room registry, and
// the HTTP server that carries the websocket endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server owns one relay instance: the room registry, the router, the hub,
// and the HTTP handlers in front of them.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics
	registry *Registry
	router   *Router
	hub      *Hub
	origins  *originPolicy
	upgrader websocket.Upgrader
	started  time.Time
}

// New wires a relay from cfg. The hub is not running until StartHub.
func New(cfg Config, logger *slog.Logger) *Server {
	cfg = sanitizeConfig(cfg)
	metrics := NewMetrics()
	registry := NewRegistry(cfg.RoomPolicy, logger, metrics)
	metrics.WatchRooms(registry)
	router := NewRouter(registry, logger, metrics, cfg.AnnounceLeave)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		router:   router,
		hub:      NewHub(cfg, registry, router, metrics, logger),
		origins:  newOriginPolicy(cfg.AllowedOrigins, logger),
		started:  time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// Hub returns the connection lifecycle manager.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Registry returns the room registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the Prometheus collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// StartHub runs the hub loop in its own goroutine. Call it before serving.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.logger.Info("hub.started", "room_policy", s.cfg.RoomPolicy, "announce_leave", s.cfg.AnnounceLeave)
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer listens until the server is shut down. A clean shutdown
// returns nil.
func StartServer(server *http.Server, logger *slog.Logger) error {
	logger.Info("server.listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server, waiting for
// in-flight requests until ctx is done. Hijacked websocket connections are
// not tracked by net/http; the hub closes those.
func ShutdownServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	logger.Info("server.shutdown.start")
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("server.shutdown.complete")
	return nil
}
