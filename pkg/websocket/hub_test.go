package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_SendToClient(t *testing.T) {
	hub := NewHub()
	client := NewClient("p1", nil)
	hub.AddClient(client)

	assert.True(t, hub.SendToClient("p1", []byte("hello")))
	assert.False(t, hub.SendToClient("p2", []byte("hello")))
	assert.Equal(t, "hello", string(<-client.Send))
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub()
	client := NewClient("p1", nil)
	hub.AddClient(client)

	for i := 0; i < sendBuffer; i++ {
		require.True(t, hub.SendToClient("p1", []byte("x")))
	}
	assert.False(t, hub.SendToClient("p1", []byte("overflow")))
}

func TestHub_ReplaceAndRemove(t *testing.T) {
	hub := NewHub()
	first := NewClient("p1", nil)
	second := NewClient("p1", nil)

	hub.AddClient(first)
	hub.AddClient(second)
	_, open := <-first.Send
	assert.False(t, open, "replaced connection is closed")

	// the stale connection going away must not evict the new one
	hub.RemoveClient(first)
	assert.Equal(t, 1, hub.Connected())
	assert.True(t, hub.SendToClient("p1", []byte("still here")))

	hub.RemoveClient(second)
	assert.Equal(t, 0, hub.Connected())
}
