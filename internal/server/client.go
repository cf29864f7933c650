// Package server manages individual websocket connections: identity, read
// and write pumps, rate limiting, and bounded outbound delivery.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	// ErrConnectionClosed is returned by Send once the connection is torn down.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the recipient is not keeping
	// up; the connection is closed as a result.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one websocket session. Its identity is assigned at upgrade time
// and never reused.
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	hub       *Hub
	addr      string
	limiter   *rateLimiter
	logger    *slog.Logger
}

// NewClient wraps conn for hub. conn may be nil in tests that never start
// the pumps.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, cfg.SendBufferSize),
		done:    make(chan struct{}),
		hub:     hub,
		addr:    addr,
		limiter: newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		logger:  hub.logger.With("conn_id", id, "remote_addr", addr),
	}
}

// ID returns the connection identity.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's outbound queue.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send queues payload without blocking. A full queue marks the client as a
// slow consumer and closes it.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.logger.Warn("client.evicted", "reason", "send buffer full", "buffer", cap(c.send))
		c.Close()
		return ErrSendBufferFull
	}
}

// Close signals the write pump to send a close frame and drop the socket.
// It is safe to call more than once and from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("client.read_deadline", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError classifies the error that ended the read loop.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.hub.metrics.Dropped.WithLabelValues("oversized").Inc()
		c.logger.Warn("client.oversized", "limit", c.hub.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.logger.Info("client.closed", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info("client.connection_closed", "err", err)
	case websocket.IsUnexpectedCloseError(err):
		c.logger.Warn("client.unexpected_close", "err", err)
	default:
		c.logger.Warn("client.read_error", "err", err)
	}
}

// allowMessage applies the per-connection rate limit.
func (c *Client) allowMessage() bool {
	if c.limiter.allow() {
		return true
	}
	c.hub.metrics.Dropped.WithLabelValues("rate_limited").Inc()
	c.logger.Warn("client.rate_limited", "burst", c.hub.cfg.RateLimit.Burst, "interval", c.hub.cfg.RateLimit.RefillInterval)
	return false
}

// readPump handles inbound events sequentially. Whatever ends the loop, the
// deferred unregister removes the client from every room.
func (c *Client) readPump() {
	defer c.hub.Unregister(c)

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.allowMessage() {
			continue
		}

		c.hub.router.Dispatch(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-c.send:
		return c.writeTextMessage(message)
	case <-c.done:
		c.writeCloseMessage()
		return false
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection closes the socket, which also unblocks the read pump.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("client.close_error", "err", err)
	}
}

func (c *Client) writeCloseMessage() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("client.close_frame", "err", err)
		}
	}
}

// writeTextMessage writes one event per frame so clients can decode each
// frame as a single JSON document.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("client.write_deadline", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("client.write_error", "err", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("client.write_deadline", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("client.ping_error", "err", err)
		return false
	}
	return true
}
