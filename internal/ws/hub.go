// Package ws pushes settlement and floor-plan events to connected POS
// terminals. Clients join their outlet's room and receive every event for
// that outlet; there is no cross-outlet traffic.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event is one message broadcast to an outlet's terminals. Types in use:
// "order.settled", "table.transferred".
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outletEvent struct {
	OutletID uuid.UUID
	Event    Event
}

// Hub keeps the active connections grouped into per-outlet rooms and fans
// events out to them.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *outletEvent

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outletEvent, 256),
	}
}

// Run is the hub's main loop. Call as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.outletID] == nil {
				h.rooms[client.outletID] = make(map[*Client]bool)
			}
			h.rooms[client.outletID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.outletID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.outletID)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[event.OutletID]

			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop the connection rather than
					// block every terminal in the room.
					close(client.send)
					delete(h.rooms[event.OutletID], client)
					if len(h.rooms[event.OutletID]) == 0 {
						delete(h.rooms, event.OutletID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToOutlet sends an event to every terminal in the outlet's room.
func (h *Hub) BroadcastToOutlet(outletID uuid.UUID, event Event) {
	h.broadcast <- &outletEvent{OutletID: outletID, Event: event}
}
