package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/refnet/refnet_backend/notifier"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades the connection and wires it to the change feed:
// the authenticated user becomes the anchor of a notifier subscription and
// every view row is pushed as an "update" frame. Disconnecting cancels the
// subscription and unregisters the client without touching other observers.
func HandleWebSocket(c echo.Context, hub *Hub, changes *notifier.Notifier, userID primitive.ObjectID) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		UserID: userID,
		Conn:   conn,
	}
	hub.register <- client

	sub := changes.Subscribe(userID)

	client.WriteJSON(Notification{
		Type:    EventConnected,
		Message: "WebSocket connection established",
	})

	// Pump view rows to the client until the subscription is cancelled.
	go func() {
		for row := range sub.Rows() {
			if err := client.WriteJSON(Notification{Type: EventUpdate, Data: row}); err != nil {
				return
			}
		}
	}()

	// Read loop only detects disconnection; clients send nothing we act on.
	go func() {
		defer func() {
			sub.Cancel()
			hub.unregister <- client
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	return nil
}
