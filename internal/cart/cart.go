// Package cart holds the in-memory order state for open POS sessions. A cart
// is exclusively owned by one scope (a table or a direct-sale session) and is
// never persisted: the settlement transaction is the only durable commit
// point.
package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/teranga-pos/api/internal/billing"
)

// Item is one cart line. The ID is ephemeral and local to this cart.
type Item struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int32     `json:"quantity"`
}

func (i Item) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// ProductRef is the catalog data a cart line is created from.
type ProductRef struct {
	ProductID uuid.UUID
	Name      string
	UnitPrice int64
}

// Snapshot is an immutable copy of a cart handed to callers. Checkout flows
// operate on a frozen snapshot so the bill cannot change under an open
// preview.
type Snapshot struct {
	Scope     string    `json:"scope"`
	Items     []Item    `json:"items"`
	Version   int64     `json:"version"`
	Frozen    bool      `json:"frozen"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// Lines converts the snapshot for the totals calculator.
func (s Snapshot) Lines() []billing.Line {
	lines := make([]billing.Line, len(s.Items))
	for i, it := range s.Items {
		lines[i] = billing.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	return lines
}

// Subtotal is Σ line totals; the cart-level invariant checked by tests.
func (s Snapshot) Subtotal() int64 {
	var sum int64
	for _, it := range s.Items {
		sum += it.LineTotal()
	}
	return sum
}

// Scope key constructors. A scope identifies the single owner of a cart
// within an outlet.

func TableScope(tableID uuid.UUID) string {
	return "table:" + tableID.String()
}

func DirectScope(sessionID string) string {
	return "direct:" + sessionID
}

func CollectivityScope(sessionID string) string {
	return "collectivity:" + sessionID
}
