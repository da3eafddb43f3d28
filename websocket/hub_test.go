package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func dialTestClient(t *testing.T, hub *Hub, userID primitive.ObjectID) *websocket.Conn {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.register <- &Client{UserID: userID, Conn: conn}
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", want)
}

func readFrame(t *testing.T, conn *websocket.Conn) Notification {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var n Notification
	if err := conn.ReadJSON(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSendToUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	aliceID := primitive.NewObjectID()
	bobID := primitive.NewObjectID()
	alice := dialTestClient(t, hub, aliceID)
	bob := dialTestClient(t, hub, bobID)
	waitForClients(t, hub, 2)

	if err := hub.SendToUser(aliceID, Notification{Type: EventNotification, Message: "hello"}); err != nil {
		t.Fatalf("SendToUser: %v", err)
	}

	frame := readFrame(t, alice)
	if frame.Type != EventNotification || frame.Message != "hello" {
		t.Errorf("frame = %+v, want notification/hello", frame)
	}

	// Bob must not see Alice's frame.
	bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var stray Notification
	if err := bob.ReadJSON(&stray); err == nil {
		t.Errorf("unrelated client received frame %+v", stray)
	}

	if err := hub.SendToUser(primitive.NewObjectID(), Notification{Type: EventNotification}); err == nil {
		t.Error("SendToUser to a disconnected user should fail")
	}
}

func TestPurchaseMadeBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	alice := dialTestClient(t, hub, primitive.NewObjectID())
	bob := dialTestClient(t, hub, primitive.NewObjectID())
	waitForClients(t, hub, 2)

	hub.PurchaseMade("carol", 2000)

	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := readFrame(t, conn)
		if frame.Type != EventPurchaseMade {
			t.Errorf("frame type = %q, want %q", frame.Type, EventPurchaseMade)
		}
		data, ok := frame.Data.(map[string]interface{})
		if !ok || data["username"] != "carol" || data["amount"] != float64(2000) {
			t.Errorf("frame data = %v, want carol / 2000", frame.Data)
		}
	}
}
