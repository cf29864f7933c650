package server_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/server"
)

const readTimeout = 2 * time.Second

// startRelay runs a relay behind an httptest server and returns it with the
// HTTP base URL and the websocket URL.
func startRelay(t *testing.T, customize func(cfg *server.Config)) (*server.Server, string, string) {
	t.Helper()

	cfg := server.NewConfig()
	if customize != nil {
		customize(cfg)
	}

	relay := server.New(*cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	relay.StartHub()
	ts := httptest.NewServer(relay.SetupRoutes())

	t.Cleanup(func() {
		_ = relay.Hub().Shutdown(2 * time.Second)
		ts.Close()
	})

	return relay, ts.URL, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialWithHeader(t *testing.T, wsURL string, header http.Header) (*websocket.Conn, error) {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, err
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, err := dialWithHeader(t, wsURL, nil)
	require.NoError(t, err)
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(server.Envelope{Event: event, Data: raw}))
}

func joinRoom(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	sendEvent(t, conn, server.EventJoinRoom, room)
}

func sendChat(t *testing.T, conn *websocket.Conn, from, body, room string) {
	t.Helper()
	sendEvent(t, conn, server.EventChatMessage, server.ChatMessage{From: from, Body: body, Room: room})
}

// readMessage reads the next chat:message frame.
func readMessage(t *testing.T, conn *websocket.Conn) server.OutboundMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var env server.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, server.EventChatMessage, env.Event)

	var msg server.OutboundMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	return msg
}

// expectNoMessage asserts that nothing arrives within timeout. A timed-out
// gorilla connection cannot be read again, so call it last.
func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
}

// waitForMembers blocks until room has n members.
func waitForMembers(t *testing.T, relay *server.Server, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(relay.Registry().Members(room)) == n
	}, readTimeout, 10*time.Millisecond, "room %q never reached %d members", room, n)
}

var joinNotice = server.OutboundMessage{From: server.SystemSender, Body: server.JoinNotice}
