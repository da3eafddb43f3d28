package websocket

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event types sent over WebSocket
const (
	EventConnected    = "connected"
	EventUpdate       = "update"
	EventPurchaseMade = "purchaseMade"
	EventNotification = "notification"
)

// Notification represents a message sent over WebSocket
type Notification struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PurchaseEvent is the payload broadcast to every client after a purchase
type PurchaseEvent struct {
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
}

// Client represents a connected WebSocket client
type Client struct {
	UserID primitive.ObjectID
	Conn   *websocket.Conn

	// Serializes writes: the update pump and broadcasts share the conn.
	writeMu sync.Mutex
}

// WriteJSON sends one frame to the client
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Conn.Close()
			}
			h.mu.Unlock()
		}
	}
}

// PurchaseMade broadcasts a successful purchase to every connected client.
// Implements services.Broadcaster.
func (h *Hub) PurchaseMade(username string, amount float64) {
	h.Broadcast(Notification{
		Type: EventPurchaseMade,
		Data: PurchaseEvent{Username: username, Amount: amount},
	})
}

// Broadcast sends a notification to all connected clients
func (h *Hub) Broadcast(notification Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.WriteJSON(notification)
	}
}

// SendToUser sends a message to every connection of a specific user
func (h *Hub) SendToUser(userID primitive.ObjectID, notification Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := false
	for client := range h.clients {
		if client.UserID == userID {
			if err := client.WriteJSON(notification); err == nil {
				sent = true
			}
		}
	}
	if !sent {
		return fmt.Errorf("user not connected")
	}
	return nil
}
