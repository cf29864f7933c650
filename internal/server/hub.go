// Package server coordinates connection registration, pump lifecycles, and
// guaranteed room cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ConnState is the lifecycle state of one connection.
type ConnState int

const (
	// StateDisconnected is terminal; it is also reported for unknown ids.
	StateDisconnected ConnState = iota
	// StateConnected means registered but not in any room.
	StateConnected
	// StateJoined means a member of at least one room.
	StateJoined
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateJoined:
		return "JOINED"
	default:
		return "DISCONNECTED"
	}
}

// Hub tracks live connections, starts their pumps, and makes sure every
// connection leaves all rooms exactly once when its transport goes away.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	cfg      Config
	registry *Registry
	router   *Router
	metrics  *Metrics
	logger   *slog.Logger
}

// NewHub creates a hub whose clients dispatch into router.
func NewHub(cfg Config, registry *Registry, router *Router, metrics *Metrics, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		cfg:        sanitizeConfig(cfg),
		registry:   registry,
		router:     router,
		metrics:    metrics,
		logger:     logger.With("component", "hub"),
	}
}

// Register hands client to the hub, which starts its pumps. It returns
// false if the hub has stopped; the caller then owns the connection.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister tears client down. If the hub loop is gone the cleanup runs on
// the calling goroutine, so no exit path can leave the client in a room.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.detach(client)
	}
}

// Run starts the hub's event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("hub.nil_registration")
				continue
			}
			h.attach(client)

		case client := <-h.unregister:
			h.detach(client)
		}
	}
}

func (h *Hub) attach(client *Client) {
	h.mutex.Lock()
	h.clients[client.id] = client
	count := len(h.clients)
	h.mutex.Unlock()

	h.metrics.Connections.Inc()
	client.logger.Info("client.registered", "clients", count)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// detach removes client and its room memberships. Only the first call for
// a client has any effect.
func (h *Hub) detach(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client.id]
	if ok {
		delete(h.clients, client.id)
	}
	count := len(h.clients)
	h.mutex.Unlock()

	client.Close()
	if !ok {
		return
	}

	h.router.HandleDisconnect(client.id)
	h.metrics.Connections.Dec()
	client.logger.Info("client.unregistered", "clients", count)
}

// State reports the lifecycle state of the connection with id.
func (h *Hub) State(id string) ConnState {
	h.mutex.RLock()
	_, ok := h.clients[id]
	h.mutex.RUnlock()

	if !ok {
		return StateDisconnected
	}
	if len(h.registry.Rooms(id)) > 0 {
		return StateJoined
	}
	return StateConnected
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// shutdownClients closes every registered connection. Their read pumps
// then unregister through the inline path.
func (h *Hub) shutdownClients() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.Close()
	}
	h.logger.Info("hub.clients_closed", "count", len(clients))
}

// Shutdown stops the hub and waits for all client pumps to finish, or
// until timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("hub.shutdown.start")
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.logger.Info("hub.shutdown.complete")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub.shutdown.timeout", "timeout", timeout)
		return context.DeadlineExceeded
	}
}
