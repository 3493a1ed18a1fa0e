package websocket

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/krishanu7/battleship-engine/pkg/log"
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks the connected clients of this process by player id. A player
// has at most one connection; a new one replaces the old.
type Hub struct {
	clients map[string]*Client
	mu      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

func (h *Hub) AddClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, exists := h.clients[c.ID]; exists && old != c {
		old.Close()
	}
	h.clients[c.ID] = c
	log.Debug("Client %s connected", c.ID)
}

// RemoveClient forgets c unless it was already replaced by a newer connection.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[c.ID]; exists && current == c {
		delete(h.clients, c.ID)
		log.Debug("Client %s disconnected", c.ID)
	}
	c.Close()
}

// SendToClient delivers message to the player's connection on this process,
// reporting false if the player is not connected here or is not keeping up.
func (h *Hub) SendToClient(playerID string, message []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[playerID]
	if !exists {
		return false
	}
	return client.TrySend(message)
}

func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
