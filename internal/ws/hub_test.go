package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockClient creates a client without a real WebSocket connection.
func mockClient(hub *Hub, outletID uuid.UUID) *Client {
	return &Client{
		hub:      hub,
		outletID: outletID,
		send:     make(chan []byte, 256),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	outletID := uuid.New()
	client := mockClient(hub, outletID)

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms[outletID] == nil {
		t.Fatal("outlet room not created")
	}
	if !hub.rooms[outletID][client] {
		t.Fatal("client not registered in outlet room")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	outletID := uuid.New()
	client := mockClient(hub, outletID)

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms[outletID] != nil {
		t.Fatal("outlet room not cleaned up after last client unregistered")
	}
}

func TestBroadcastStaysInOutletRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	outlet1 := uuid.New()
	outlet2 := uuid.New()

	client1 := mockClient(hub, outlet1)
	client2 := mockClient(hub, outlet2)

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	payload := json.RawMessage(`{"order_number":"POS-0042"}`)
	hub.BroadcastToOutlet(outlet1, Event{Type: "order.settled", Payload: payload})

	select {
	case msg := <-client1.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		if received.Type != "order.settled" {
			t.Errorf("type: got %q, want order.settled", received.Type)
		}
		if string(received.Payload) != string(payload) {
			t.Errorf("payload: got %s, want %s", received.Payload, payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client1 did not receive message")
	}

	select {
	case <-client2.send:
		t.Fatal("client2 should not receive another outlet's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastReachesWholeRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	outletID := uuid.New()
	clients := []*Client{
		mockClient(hub, outletID),
		mockClient(hub, outletID),
		mockClient(hub, outletID),
	}
	for _, c := range clients {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToOutlet(outletID, Event{Type: "table.transferred", Payload: json.RawMessage(`{}`)})

	for i, c := range clients {
		select {
		case <-c.send:
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client %d did not receive broadcast", i)
		}
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	outletID := uuid.New()
	slow := &Client{hub: hub, outletID: outletID, send: make(chan []byte)} // unbuffered, never read

	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToOutlet(outletID, Event{Type: "order.settled", Payload: json.RawMessage(`{}`)})
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms[outletID] != nil {
		t.Fatal("slow consumer should have been dropped and the room cleaned up")
	}
}
