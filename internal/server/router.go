// Package server translates inbound client events into registry operations
// and builds the outbound payloads, including SYSTEM notifications.
package server

import (
	"encoding/json"
	"log/slog"
)

// Router interprets events read from a connection.
type Router struct {
	registry      *Registry
	logger        *slog.Logger
	metrics       *Metrics
	announceLeave bool
}

// NewRouter creates a Router dispatching into registry. When announceLeave
// is set, connections leaving a room produce a SYSTEM leave notice.
func NewRouter(registry *Registry, logger *slog.Logger, metrics *Metrics, announceLeave bool) *Router {
	return &Router{
		registry:      registry,
		logger:        logger.With("component", "router"),
		metrics:       metrics,
		announceLeave: announceLeave,
	}
}

// Dispatch decodes one raw frame from sender and handles it. Malformed
// frames and unknown events are logged and dropped; nothing is reported
// back to the client.
func (rt *Router) Dispatch(sender Member, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		rt.drop(sender, "invalid_envelope", "err", err)
		return
	}

	switch env.Event {
	case EventJoinRoom:
		var roomID *string
		if err := json.Unmarshal(env.Data, &roomID); err != nil || roomID == nil {
			rt.drop(sender, "invalid_payload", "event", env.Event, "err", err)
			return
		}
		rt.HandleJoin(sender, *roomID)

	case EventChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			rt.drop(sender, "invalid_payload", "event", env.Event, "err", err)
			return
		}
		rt.HandleChat(sender, msg)

	default:
		rt.drop(sender, "unknown_event", "event", env.Event)
	}
}

// HandleJoin adds sender to roomID and notifies the other members. The
// joiner never receives its own notice, repeated joins included.
func (rt *Router) HandleJoin(sender Member, roomID string) {
	result := rt.registry.Join(sender, roomID)
	rt.metrics.Joins.Inc()
	rt.logger.Info("join", "conn_id", sender.ID(), "room", roomID, "added", result.Added)

	for _, left := range result.Left {
		rt.announceDeparture(left)
	}

	rt.metrics.Broadcasts.WithLabelValues("system").Inc()
	rt.registry.Broadcast(roomID, systemMessage(JoinNotice), sender.ID())
}

// HandleChat relays msg to every member of msg.Room, sender included.
// Messages without a room are dropped.
func (rt *Router) HandleChat(sender Member, msg ChatMessage) {
	if msg.Room == "" {
		rt.drop(sender, "missing_room", "from", msg.From)
		return
	}

	payload, err := encodeChatMessage(OutboundMessage{From: msg.From, Body: msg.Body})
	if err != nil {
		rt.drop(sender, "encode_failed", "err", err)
		return
	}

	rt.metrics.Broadcasts.WithLabelValues("chat").Inc()
	delivered := rt.registry.Broadcast(msg.Room, payload, "")
	rt.logger.Debug("chat", "conn_id", sender.ID(), "room", msg.Room, "from", msg.From, "delivered", delivered)
}

// HandleDisconnect removes connID from all rooms. It must run exactly once
// per connection.
func (rt *Router) HandleDisconnect(connID string) {
	left := rt.registry.LeaveAll(connID)
	rt.logger.Info("disconnect", "conn_id", connID, "rooms", left)

	for _, roomID := range left {
		rt.announceDeparture(roomID)
	}
}

func (rt *Router) announceDeparture(roomID string) {
	if !rt.announceLeave {
		return
	}
	rt.metrics.Broadcasts.WithLabelValues("system").Inc()
	rt.registry.Broadcast(roomID, systemMessage(LeaveNotice), "")
}

func (rt *Router) drop(sender Member, reason string, args ...any) {
	rt.metrics.Dropped.WithLabelValues(reason).Inc()
	args = append([]any{"conn_id", sender.ID(), "reason", reason}, args...)
	rt.logger.Warn("message.dropped", args...)
}
