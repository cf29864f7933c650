package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is an in-memory Member that keeps every payload it receives.
type recorder struct {
	id string

	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recorder) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

// messages decodes every received envelope.
func (r *recorder) messages(t *testing.T) []OutboundMessage {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]OutboundMessage, 0, len(r.payloads))
	for _, raw := range r.payloads {
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		require.Equal(t, EventChatMessage, env.Event)

		var msg OutboundMessage
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		out = append(out, msg)
	}
	return out
}

func newTestRegistry(policy RoomPolicy) (*Registry, *Metrics) {
	metrics := NewMetrics()
	return NewRegistry(policy, testLogger(), metrics), metrics
}

func newTestRouter(policy RoomPolicy, announceLeave bool) (*Router, *Registry, *Metrics) {
	registry, metrics := newTestRegistry(policy)
	return NewRouter(registry, testLogger(), metrics, announceLeave), registry, metrics
}
