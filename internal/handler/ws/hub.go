package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cognify-ai/cognify/internal/channel"
)

// Client wraps one connection with a write lock: gorilla connections allow
// a single concurrent writer, and both the ping loop and the hub write.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WriteJSON writes an envelope under the client's write lock.
func (c *Client) WriteJSON(deadline time.Duration, ev channel.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(deadline))
	return c.conn.WriteJSON(ev)
}

// Ping sends a ping control frame under the write lock.
func (c *Client) Ping(deadline time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(deadline))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Hub tracks the open connections per user. A user may hold several
// (multiple tabs/devices); replies go to all of them so background chats
// are never starved of their messages.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{users: make(map[string]map[*Client]struct{})}
}

// Add registers a connection and returns its client wrapper.
func (h *Hub) Add(userID string, conn *websocket.Conn) *Client {
	c := &Client{conn: conn}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[userID] == nil {
		h.users[userID] = make(map[*Client]struct{})
	}
	h.users[userID][c] = struct{}{}
	return c
}

// Remove drops a client.
func (h *Hub) Remove(userID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.users[userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
}

// Broadcast delivers an envelope to every connection the user holds.
func (h *Hub) Broadcast(userID string, ev channel.Envelope) {
	h.mu.RLock()
	clients := make([]*Client, 0, 2)
	for c := range h.users[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.WriteJSON(writeTimeout, ev); err != nil {
			// The read loop owns connection teardown.
			continue
		}
	}
}
