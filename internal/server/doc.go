// Package server implements the roomrelay core: websocket connections, the
// room registry that multiplexes them, the router that interprets client
// events, and the HTTP surface in front of them.
//
// Clients send event-tagged JSON frames:
//
//	{"event": "join:room", "data": "ABCD"}
//	{"event": "chat:message", "data": {"from": "alice", "body": "hi", "room": "ABCD"}}
//
// and receive {"event": "chat:message", "data": {"from": ..., "body": ...}}.
// All state is in memory and lost on restart.
package server
