package server

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "JOINED", StateJoined.String())
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
}

func TestHubShutdownWithoutClients(t *testing.T) {
	hub := newTestHub(*NewConfig())
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))
	assert.Equal(t, StateDisconnected, hub.State("unknown"))
}

func TestHubRegisterAfterShutdown(t *testing.T) {
	hub := newTestHub(*NewConfig())
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	client := NewClient(nil, hub, "127.0.0.1:1")
	assert.False(t, hub.Register(client))
}

func TestHubUnregisterAfterShutdownCleansRooms(t *testing.T) {
	relay := New(*NewConfig(), testLogger())
	hub := relay.Hub()
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	client := NewClient(nil, hub, "127.0.0.1:1")
	hub.mutex.Lock()
	hub.clients[client.id] = client
	hub.mutex.Unlock()
	hub.metrics.Connections.Inc()
	relay.Registry().Join(client, "R")

	hub.Unregister(client)
	hub.Unregister(client)

	assert.False(t, relay.Registry().HasRoom("R"))
	assert.Equal(t, StateDisconnected, hub.State(client.ID()))
	assert.Zero(t, testutil.ToFloat64(hub.metrics.Connections))
	assert.ErrorIs(t, client.Send([]byte("x")), ErrConnectionClosed)
}

func TestHubIgnoresNilRegistration(t *testing.T) {
	hub := newTestHub(*NewConfig())
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	assert.True(t, hub.Register(nil))
	assert.Zero(t, hub.ClientCount())
}
