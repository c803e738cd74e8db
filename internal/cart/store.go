package cart

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrVersionConflict means another terminal mutated the cart since the
	// caller last read it. The caller gets the current state back and must
	// re-issue the mutation; stale writes are never applied silently.
	ErrVersionConflict = errors.New("cart version conflict")
	// ErrFrozen means a checkout preview is open for this cart.
	ErrFrozen          = errors.New("cart is frozen by an open checkout")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrScopeOccupied   = errors.New("destination already has an active cart")
)

type cartState struct {
	items     []Item
	version   int64
	frozen    bool
	updatedAt time.Time
}

// Store holds every open cart in the process, keyed by outlet and scope.
// All access is serialized by one mutex; contention is bounded by the number
// of active terminals, which is small.
type Store struct {
	mu    sync.Mutex
	carts map[string]*cartState
}

func NewStore() *Store {
	return &Store{carts: make(map[string]*cartState)}
}

func key(outletID uuid.UUID, scope string) string {
	return outletID.String() + "/" + scope
}

func (s *Store) snapshotLocked(scope string, c *cartState) Snapshot {
	items := make([]Item, len(c.items))
	copy(items, c.items)
	return Snapshot{
		Scope:     scope,
		Items:     items,
		Version:   c.version,
		Frozen:    c.frozen,
		UpdatedAt: c.updatedAt,
	}
}

// Snapshot returns the current cart state, or an empty version-0 snapshot if
// no cart exists for the scope yet.
func (s *Store) Snapshot(outletID uuid.UUID, scope string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[key(outletID, scope)]
	if !ok {
		return Snapshot{Scope: scope}
	}
	return s.snapshotLocked(scope, c)
}

func (s *Store) mutable(outletID uuid.UUID, scope string, version int64) (*cartState, error) {
	k := key(outletID, scope)
	c, ok := s.carts[k]
	if !ok {
		c = &cartState{}
		s.carts[k] = c
	}
	if c.frozen {
		return nil, ErrFrozen
	}
	if c.version != version {
		return nil, ErrVersionConflict
	}
	return c, nil
}

// AddItem appends a new line or, when the product is already in the cart,
// merges by incrementing the existing line's quantity.
func (s *Store) AddItem(outletID uuid.UUID, scope string, version int64, p ProductRef, qty int32) (Snapshot, error) {
	if qty <= 0 {
		return Snapshot{}, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.mutable(outletID, scope, version)
	if err != nil {
		return Snapshot{}, err
	}

	merged := false
	for i := range c.items {
		if c.items[i].ProductID == p.ProductID {
			c.items[i].Quantity += qty
			merged = true
			break
		}
	}
	if !merged {
		c.items = append(c.items, Item{
			ID:        uuid.New(),
			ProductID: p.ProductID,
			Name:      p.Name,
			UnitPrice: p.UnitPrice,
			Quantity:  qty,
		})
	}

	c.version++
	c.updatedAt = time.Now()
	return s.snapshotLocked(scope, c), nil
}

// UpdateQuantity sets a line's quantity. A quantity of zero or less removes
// the line, exactly as RemoveItem would.
func (s *Store) UpdateQuantity(outletID uuid.UUID, scope string, version int64, itemID uuid.UUID, qty int32) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.mutable(outletID, scope, version)
	if err != nil {
		return Snapshot{}, err
	}

	idx := -1
	for i := range c.items {
		if c.items[i].ID == itemID {
			idx = i
			break
		}
	}

	if qty <= 0 {
		// Removal of an absent line is a no-op, not an error.
		if idx >= 0 {
			c.items = append(c.items[:idx], c.items[idx+1:]...)
			c.version++
			c.updatedAt = time.Now()
		}
		return s.snapshotLocked(scope, c), nil
	}

	if idx < 0 {
		return Snapshot{}, ErrItemNotFound
	}
	c.items[idx].Quantity = qty
	c.version++
	c.updatedAt = time.Now()
	return s.snapshotLocked(scope, c), nil
}

// RemoveItem drops a line; no-op if absent.
func (s *Store) RemoveItem(outletID uuid.UUID, scope string, version int64, itemID uuid.UUID) (Snapshot, error) {
	return s.UpdateQuantity(outletID, scope, version, itemID, 0)
}

// Clear empties the cart unconditionally. Used after a successful settlement
// and on service-mode switches; the next customer starts at version 0.
func (s *Store) Clear(outletID uuid.UUID, scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, key(outletID, scope))
}

// Freeze marks the cart read-only and returns the frozen snapshot. The
// checkout flow owns the cart from here until Unfreeze or Clear.
func (s *Store) Freeze(outletID uuid.UUID, scope string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[key(outletID, scope)]
	if !ok || len(c.items) == 0 {
		return Snapshot{}, ErrEmptyCart
	}
	if c.frozen {
		return Snapshot{}, ErrFrozen
	}
	c.frozen = true
	return s.snapshotLocked(scope, c), nil
}

// Unfreeze makes the cart mutable again after a cancelled checkout. The
// contents are untouched.
func (s *Store) Unfreeze(outletID uuid.UUID, scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.carts[key(outletID, scope)]; ok {
		c.frozen = false
	}
}

// Move reassigns a cart to a new scope (table transfer). Fails when the
// destination already has a non-empty cart; the conflict is surfaced, never
// merged over.
func (s *Store) Move(outletID uuid.UUID, srcScope, dstScope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.carts[key(outletID, srcScope)]
	if !ok || len(src.items) == 0 {
		return ErrEmptyCart
	}
	if dst, ok := s.carts[key(outletID, dstScope)]; ok && len(dst.items) > 0 {
		return ErrScopeOccupied
	}

	delete(s.carts, key(outletID, srcScope))
	src.frozen = false
	src.version++
	src.updatedAt = time.Now()
	s.carts[key(outletID, dstScope)] = src
	return nil
}
