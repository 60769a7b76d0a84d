// Package events feeds auth activity (logins, logouts, key activations) to
// connected ops dashboards over WebSocket.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event types broadcast by the service.
const (
	TypeLogin        = "login"
	TypeLogout       = "logout"
	TypeKeyActivated = "key_activated"
)

// Event is a single auth activity notification.
type Event struct {
	Type     string    `json:"type"`
	UserID   int64     `json:"user_id,omitempty"`
	Nickname string    `json:"nickname,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, userID int64, nickname, detail string) Event {
	return Event{
		Type:     eventType,
		UserID:   userID,
		Nickname: nickname,
		Detail:   detail,
		At:       time.Now().UTC(),
	}
}

// Hub tracks connected dashboard clients and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends an event to every connected client. Clients that cannot
// keep up lose events rather than stall the auth path.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
