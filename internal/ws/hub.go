package ws

import (
	"sync"

	"github.com/Prashantpareek-dev/Royal-Chess/pkg/protocol"
)

// Hub tracks live clients by connection id and delivers events to them.
// It implements the coordinator's Sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Send delivers one event to one connection. Events for connections
// that already went away are dropped.
func (h *Hub) Send(connID string, ev protocol.Event) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		c.enqueue(ev)
	}
}

// Len reports the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
