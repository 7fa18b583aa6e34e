package websocket

import (
	"context"
	"log"
	"sync"

	"memories-social/internal/imtypes"
)

// Hub maintains the set of active clients and routes frames to the sockets of a user.
// A user may hold several connections at once.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	done chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub and listens for registrations until ctx is done.
// On exit every remaining client is closed.
func (h *Hub) Run(ctx context.Context) {
	log.Println("WebSocket Hub Run loop started.")
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.UserID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()
			log.Printf("客户端已注册: UserID %s (连接数 %d)", client.UserID, len(set))

		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[client.UserID]; ok {
				if _, found := set[client]; found {
					delete(set, client)
					client.closeSend()
				}
				if len(set) == 0 {
					delete(h.clients, client.UserID)
				}
			}
			h.mu.Unlock()
			log.Printf("客户端已注销: UserID %s", client.UserID)

		case <-ctx.Done():
			h.mu.Lock()
			for userID, set := range h.clients {
				for client := range set {
					client.closeSend()
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			log.Println("WebSocket Hub Run loop stopped.")
			return
		}
	}
}

// DeliverToUser writes env to every socket of userID connected to this hub
// and returns how many sockets accepted it. It never blocks on a slow client.
func (h *Hub) DeliverToUser(userID string, env *imtypes.ServerEnvelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[userID] {
		if client.Send(env) {
			delivered++
		}
	}
	return delivered
}

// Connections reports how many sockets userID holds on this hub.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
