package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(cfg Config) *Hub {
	return New(cfg, testLogger()).Hub()
}

func TestNewClient(t *testing.T) {
	hub := newTestHub(*NewConfig())

	a := NewClient(nil, hub, "127.0.0.1:1")
	b := NewClient(nil, hub, "127.0.0.1:2")

	require.NotNil(t, a)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, defaultSendBufferSize, cap(a.GetSendChan()))
}

func TestClientSendQueuesPayload(t *testing.T) {
	client := NewClient(nil, newTestHub(*NewConfig()), "127.0.0.1:1")

	require.NoError(t, client.Send([]byte("one")))
	require.NoError(t, client.Send([]byte("two")))

	assert.Equal(t, []byte("one"), <-client.GetSendChan())
	assert.Equal(t, []byte("two"), <-client.GetSendChan())
}

func TestClientSendAfterClose(t *testing.T) {
	client := NewClient(nil, newTestHub(*NewConfig()), "127.0.0.1:1")

	client.Close()
	client.Close()

	assert.ErrorIs(t, client.Send([]byte("late")), ErrConnectionClosed)
	assert.Empty(t, client.GetSendChan())
}

func TestClientSlowConsumerIsEvicted(t *testing.T) {
	cfg := NewConfig()
	cfg.SendBufferSize = 2
	client := NewClient(nil, newTestHub(*cfg), "127.0.0.1:1")

	require.NoError(t, client.Send([]byte("1")))
	require.NoError(t, client.Send([]byte("2")))

	assert.ErrorIs(t, client.Send([]byte("3")), ErrSendBufferFull)
	select {
	case <-client.Done():
	default:
		t.Fatal("slow consumer was not closed")
	}
	assert.ErrorIs(t, client.Send([]byte("4")), ErrConnectionClosed)
}
