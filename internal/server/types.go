// Package server defines the wire envelope, chat payloads, and utility
// helpers shared by the router, registry, and client logic.
package server

import (
	"encoding/json"
	"strings"
)

// Event names carried in the envelope's "event" field.
const (
	EventJoinRoom    = "join:room"
	EventChatMessage = "chat:message"
)

// SystemSender is the "from" value of messages synthesized by the relay.
const SystemSender = "SISTEMA"

// Fixed SYSTEM message bodies.
const (
	JoinNotice  = "a new user has joined the chat"
	LeaveNotice = "a user has left the chat"
)

// Envelope is the event-tagged frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatMessage is the inbound chat record sent by clients.
type ChatMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
	Room string `json:"room"`
}

// OutboundMessage is what members receive; the target room is stripped.
type OutboundMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// encodeChatMessage wraps msg in a chat:message envelope ready for the wire.
func encodeChatMessage(msg OutboundMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: EventChatMessage, Data: data})
}

// systemMessage builds the encoded SYSTEM payload for body.
func systemMessage(body string) []byte {
	// Marshalling two plain strings cannot fail.
	payload, _ := encodeChatMessage(OutboundMessage{From: SystemSender, Body: body})
	return payload
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
