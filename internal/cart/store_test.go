package cart_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranga-pos/api/internal/cart"
)

var (
	outletID = uuid.New()
	scope    = cart.TableScope(uuid.New())
)

func product(name string, price int64) cart.ProductRef {
	return cart.ProductRef{ProductID: uuid.New(), Name: name, UnitPrice: price}
}

func TestAddItem_MergesSameProduct(t *testing.T) {
	s := cart.NewStore()
	p := product("Thiof braisé", 4500)

	snap, err := s.AddItem(outletID, scope, 0, p, 1)
	require.NoError(t, err)
	snap, err = s.AddItem(outletID, scope, snap.Version, p, 2)
	require.NoError(t, err)

	require.Len(t, snap.Items, 1)
	assert.Equal(t, int32(3), snap.Items[0].Quantity)
	assert.Equal(t, int64(13500), snap.Items[0].LineTotal())
}

func TestAddItem_DistinctProductsKeepDistinctLines(t *testing.T) {
	s := cart.NewStore()

	snap, err := s.AddItem(outletID, scope, 0, product("Bissap", 500), 2)
	require.NoError(t, err)
	snap, err = s.AddItem(outletID, scope, snap.Version, product("Yassa poulet", 3000), 1)
	require.NoError(t, err)

	assert.Len(t, snap.Items, 2)
}

func TestSubtotalInvariantHoldsAcrossMutations(t *testing.T) {
	s := cart.NewStore()
	p1 := product("Café Touba", 300)
	p2 := product("Pastels", 1200)

	snap, err := s.AddItem(outletID, scope, 0, p1, 3)
	require.NoError(t, err)
	snap, err = s.AddItem(outletID, scope, snap.Version, p2, 2)
	require.NoError(t, err)
	snap, err = s.UpdateQuantity(outletID, scope, snap.Version, snap.Items[0].ID, 5)
	require.NoError(t, err)
	snap, err = s.RemoveItem(outletID, scope, snap.Version, snap.Items[1].ID)
	require.NoError(t, err)

	var sum int64
	for _, it := range snap.Items {
		sum += it.LineTotal()
	}
	assert.Equal(t, sum, snap.Subtotal())
	assert.Equal(t, int64(1500), snap.Subtotal())
}

func TestUpdateQuantityZeroEqualsRemove(t *testing.T) {
	s1 := cart.NewStore()
	s2 := cart.NewStore()
	p := product("Dibi", 2500)

	snapA, err := s1.AddItem(outletID, scope, 0, p, 2)
	require.NoError(t, err)
	snapB, err := s2.AddItem(outletID, scope, 0, p, 2)
	require.NoError(t, err)

	snapA, err = s1.UpdateQuantity(outletID, scope, snapA.Version, snapA.Items[0].ID, 0)
	require.NoError(t, err)
	snapB, err = s2.RemoveItem(outletID, scope, snapB.Version, snapB.Items[0].ID)
	require.NoError(t, err)

	assert.Empty(t, snapA.Items)
	assert.Empty(t, snapB.Items)
	assert.Equal(t, snapA.Version, snapB.Version)
}

func TestRemoveAbsentItemIsNoOp(t *testing.T) {
	s := cart.NewStore()
	snap, err := s.AddItem(outletID, scope, 0, product("Ataya", 200), 1)
	require.NoError(t, err)

	got, err := s.RemoveItem(outletID, scope, snap.Version, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, snap.Version, got.Version)
	assert.Len(t, got.Items, 1)
}

func TestVersionConflictRejectsStaleWrite(t *testing.T) {
	s := cart.NewStore()
	p := product("Fanta", 600)

	snap, err := s.AddItem(outletID, scope, 0, p, 1)
	require.NoError(t, err)

	// Terminal B mutates first.
	_, err = s.AddItem(outletID, scope, snap.Version, p, 1)
	require.NoError(t, err)

	// Terminal A replays its stale version.
	_, err = s.AddItem(outletID, scope, snap.Version, p, 1)
	assert.ErrorIs(t, err, cart.ErrVersionConflict)
}

func TestFreezeBlocksMutations(t *testing.T) {
	s := cart.NewStore()
	p := product("Mafé", 3500)

	snap, err := s.AddItem(outletID, scope, 0, p, 1)
	require.NoError(t, err)

	frozen, err := s.Freeze(outletID, scope)
	require.NoError(t, err)
	assert.True(t, frozen.Frozen)

	_, err = s.AddItem(outletID, scope, snap.Version, p, 1)
	assert.ErrorIs(t, err, cart.ErrFrozen)

	s.Unfreeze(outletID, scope)
	_, err = s.AddItem(outletID, scope, snap.Version, p, 1)
	assert.NoError(t, err)
}

func TestFreezeEmptyCartFails(t *testing.T) {
	s := cart.NewStore()
	_, err := s.Freeze(outletID, scope)
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
}

func TestClearResetsVersion(t *testing.T) {
	s := cart.NewStore()
	_, err := s.AddItem(outletID, scope, 0, product("Nem", 1500), 4)
	require.NoError(t, err)

	s.Clear(outletID, scope)

	snap := s.Snapshot(outletID, scope)
	assert.Empty(t, snap.Items)
	assert.Zero(t, snap.Version)
}

func TestMoveRejectsOccupiedDestination(t *testing.T) {
	s := cart.NewStore()
	src := cart.TableScope(uuid.New())
	dst := cart.TableScope(uuid.New())

	_, err := s.AddItem(outletID, src, 0, product("Soupou kandia", 2800), 1)
	require.NoError(t, err)
	_, err = s.AddItem(outletID, dst, 0, product("Bissap", 500), 1)
	require.NoError(t, err)

	err = s.Move(outletID, src, dst)
	assert.ErrorIs(t, err, cart.ErrScopeOccupied)

	// Source cart must be untouched after the rejected transfer.
	snap := s.Snapshot(outletID, src)
	assert.Len(t, snap.Items, 1)
}

func TestMoveTransfersCart(t *testing.T) {
	s := cart.NewStore()
	src := cart.TableScope(uuid.New())
	dst := cart.TableScope(uuid.New())

	_, err := s.AddItem(outletID, src, 0, product("Thieboudienne", 3000), 2)
	require.NoError(t, err)

	require.NoError(t, s.Move(outletID, src, dst))

	assert.Empty(t, s.Snapshot(outletID, src).Items)
	moved := s.Snapshot(outletID, dst)
	require.Len(t, moved.Items, 1)
	assert.Equal(t, int32(2), moved.Items[0].Quantity)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := cart.NewStore()
	snap, err := s.AddItem(outletID, scope, 0, product("Jus de gingembre", 700), 1)
	require.NoError(t, err)

	snap.Items[0].Quantity = 99

	fresh := s.Snapshot(outletID, scope)
	assert.Equal(t, int32(1), fresh.Items[0].Quantity)
}
