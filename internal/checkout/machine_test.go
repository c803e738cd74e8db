package checkout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranga-pos/api/internal/billing"
	"github.com/teranga-pos/api/internal/cart"
	"github.com/teranga-pos/api/internal/enum"
	"github.com/teranga-pos/api/internal/service"
)

type mockBridge struct {
	settleSingleFn  func(ctx context.Context, draft service.Draft, payments []service.PaymentInput) (*service.Result, error)
	settleSplitFn   func(ctx context.Context, draft service.Draft, parts []service.SplitPart) (*service.Result, error)
	settleRoomFn    func(ctx context.Context, draft service.Draft, roomNumber string, signaturePresent bool, strokeCount int32) (*service.Result, error)
	settleSubsidyFn func(ctx context.Context, draft service.Draft, beneficiaryID uuid.UUID, st billing.SubsidyTotals) (*service.Result, error)
	transferFn      func(ctx context.Context, outletID, srcTableID, dstTableID uuid.UUID) error
}

func (m *mockBridge) SettleSingle(ctx context.Context, draft service.Draft, payments []service.PaymentInput) (*service.Result, error) {
	if m.settleSingleFn != nil {
		return m.settleSingleFn(ctx, draft, payments)
	}
	return &service.Result{}, nil
}

func (m *mockBridge) SettleSplit(ctx context.Context, draft service.Draft, parts []service.SplitPart) (*service.Result, error) {
	if m.settleSplitFn != nil {
		return m.settleSplitFn(ctx, draft, parts)
	}
	return &service.Result{}, nil
}

func (m *mockBridge) SettleRoomCharge(ctx context.Context, draft service.Draft, roomNumber string, signaturePresent bool, strokeCount int32) (*service.Result, error) {
	if m.settleRoomFn != nil {
		return m.settleRoomFn(ctx, draft, roomNumber, signaturePresent, strokeCount)
	}
	return &service.Result{}, nil
}

func (m *mockBridge) SettleSubsidized(ctx context.Context, draft service.Draft, beneficiaryID uuid.UUID, st billing.SubsidyTotals) (*service.Result, error) {
	if m.settleSubsidyFn != nil {
		return m.settleSubsidyFn(ctx, draft, beneficiaryID, st)
	}
	return &service.Result{}, nil
}

func (m *mockBridge) TransferTable(ctx context.Context, outletID, srcTableID, dstTableID uuid.UUID) error {
	if m.transferFn != nil {
		return m.transferFn(ctx, outletID, srcTableID, dstTableID)
	}
	return nil
}

func seededMachine(t *testing.T, bridge Bridge) (*Machine, *cart.Store, uuid.UUID, string) {
	t.Helper()
	carts := cart.NewStore()
	outletID := uuid.New()
	scope := cart.TableScope(uuid.New())

	_, err := carts.AddItem(outletID, scope, 0, cart.ProductRef{
		ProductID: uuid.New(), Name: "Thieboudienne", UnitPrice: 2500,
	}, 2)
	require.NoError(t, err)
	_, err = carts.AddItem(outletID, scope, 1, cart.ProductRef{
		ProductID: uuid.New(), Name: "Bissap", UnitPrice: 500,
	}, 1)
	require.NoError(t, err)

	return NewMachine(carts, bridge), carts, outletID, scope
}

func previewInput(tableID uuid.UUID) PreviewInput {
	return PreviewInput{
		TableID:     tableID,
		ServiceMode: enum.ServiceModeTable,
		Rates: billing.Rates{
			ServiceChargeRate: decimal.NewFromInt(10),
			TaxRate:           decimal.NewFromInt(18),
		},
		CreatedBy:    uuid.New(),
		ReleaseTable: true,
	}
}

func TestOpenPreview_FreezesCartAndComputesBill(t *testing.T) {
	m, carts, outletID, scope := seededMachine(t, &mockBridge{})

	prev, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)

	assert.Equal(t, StateBillPreview, prev.State)
	assert.Equal(t, int64(5500), prev.Totals.Subtotal)
	// 5500 + 550 service + 1089 tax (18% of 6050, half-up)
	assert.Equal(t, int64(7139), prev.Totals.GrandTotal)
	assert.True(t, carts.Snapshot(outletID, scope).Frozen)

	_, err = carts.AddItem(outletID, scope, prev.Cart.Version, cart.ProductRef{
		ProductID: uuid.New(), Name: "Café Touba", UnitPrice: 300,
	}, 1)
	assert.ErrorIs(t, err, cart.ErrFrozen)
}

func TestOpenPreview_EmptyCartRejected(t *testing.T) {
	m := NewMachine(cart.NewStore(), &mockBridge{})
	_, err := m.OpenPreview(uuid.New(), cart.TableScope(uuid.New()), previewInput(uuid.New()))
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
}

func TestOpenPreview_RejectedMidCheckout(t *testing.T) {
	m, _, outletID, scope := seededMachine(t, &mockBridge{})
	_, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)

	_, err = m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_ThawsCartIntact(t *testing.T) {
	m, carts, outletID, scope := seededMachine(t, &mockBridge{})
	_, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)

	require.NoError(t, m.Cancel(outletID, scope))

	snap := carts.Snapshot(outletID, scope)
	assert.False(t, snap.Frozen)
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, StateIdle, m.State(outletID, scope))
}

func TestPay_SuccessClearsCartAndCompletes(t *testing.T) {
	var got service.Draft
	bridge := &mockBridge{
		settleSingleFn: func(ctx context.Context, draft service.Draft, payments []service.PaymentInput) (*service.Result, error) {
			got = draft
			return &service.Result{}, nil
		},
	}
	m, carts, outletID, scope := seededMachine(t, bridge)
	prev, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)

	_, err = m.Pay(context.Background(), outletID, scope, []service.PaymentInput{
		{Method: enum.PaymentMethodCash, Amount: prev.Totals.GrandTotal, AmountReceived: 10000},
	})
	require.NoError(t, err)

	assert.Equal(t, prev.Totals, got.Totals)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, StateCompleted, m.State(outletID, scope))
	assert.True(t, carts.Snapshot(outletID, scope).Empty())

	res, ok := m.Result(outletID, scope)
	assert.True(t, ok)
	assert.NotNil(t, res)
}

func TestPay_RemoteFailureKeepsCart(t *testing.T) {
	bridge := &mockBridge{
		settleSingleFn: func(ctx context.Context, draft service.Draft, payments []service.PaymentInput) (*service.Result, error) {
			return nil, errors.New("connection refused")
		},
	}
	m, carts, outletID, scope := seededMachine(t, bridge)
	prev, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)

	_, err = m.Pay(context.Background(), outletID, scope, []service.PaymentInput{
		{Method: enum.PaymentMethodCard, Amount: prev.Totals.GrandTotal},
	})
	require.Error(t, err)

	// Nothing was committed; the flow is back at the preview with the cart
	// untouched, so a retry or cancel are both possible.
	assert.Equal(t, StateBillPreview, m.State(outletID, scope))
	snap := carts.Snapshot(outletID, scope)
	assert.Len(t, snap.Items, 2)
	assert.True(t, snap.Frozen)

	// Retry succeeds.
	bridge.settleSingleFn = nil
	_, err = m.Pay(context.Background(), outletID, scope, []service.PaymentInput{
		{Method: enum.PaymentMethodCard, Amount: prev.Totals.GrandTotal},
	})
	assert.NoError(t, err)
}

func TestPay_SecondAttemptBlockedWhileBridgeRuns(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var settlements int32
	bridge := &mockBridge{
		settleSingleFn: func(ctx context.Context, draft service.Draft, payments []service.PaymentInput) (*service.Result, error) {
			atomic.AddInt32(&settlements, 1)
			close(entered)
			<-release
			return &service.Result{}, nil
		},
	}
	m, _, outletID, scope := seededMachine(t, bridge)
	prev, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)

	payments := []service.PaymentInput{
		{Method: enum.PaymentMethodCash, Amount: prev.Totals.GrandTotal},
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.Pay(context.Background(), outletID, scope, payments)
		firstDone <- err
	}()

	// Second terminal double-taps pay while the first settlement is still
	// inside the bridge. It must not reach the bridge at all, and cancelling
	// mid-commit is refused too.
	<-entered
	_, err = m.Pay(context.Background(), outletID, scope, payments)
	assert.ErrorIs(t, err, ErrSettlementInFlight)
	assert.ErrorIs(t, m.Cancel(outletID, scope), ErrSettlementInFlight)

	close(release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, int32(1), atomic.LoadInt32(&settlements))
	assert.Equal(t, StateCompleted, m.State(outletID, scope))
}

func TestPay_WithoutPreviewRejected(t *testing.T) {
	m, _, outletID, scope := seededMachine(t, &mockBridge{})
	_, err := m.Pay(context.Background(), outletID, scope, nil)
	assert.ErrorIs(t, err, ErrNoActiveCheckout)
}

func TestPay_AfterCompletionRejected(t *testing.T) {
	m, _, outletID, scope := seededMachine(t, &mockBridge{})
	prev, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)
	_, err = m.Pay(context.Background(), outletID, scope, []service.PaymentInput{
		{Method: enum.PaymentMethodCard, Amount: prev.Totals.GrandTotal},
	})
	require.NoError(t, err)

	_, err = m.Pay(context.Background(), outletID, scope, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPaySplit_MismatchRevertsToPreview(t *testing.T) {
	bridge := &mockBridge{
		settleSplitFn: func(ctx context.Context, draft service.Draft, parts []service.SplitPart) (*service.Result, error) {
			return nil, service.ErrSplitMismatch
		},
	}
	m, carts, outletID, scope := seededMachine(t, bridge)
	_, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)

	_, err = m.PaySplit(context.Background(), outletID, scope, []service.SplitPart{
		{Amount: 100, Method: enum.PaymentMethodCash},
	})
	assert.ErrorIs(t, err, service.ErrSplitMismatch)
	assert.Equal(t, StateBillPreview, m.State(outletID, scope))
	assert.Len(t, carts.Snapshot(outletID, scope).Items, 2)
}

func TestPaySplit_Success(t *testing.T) {
	var gotParts []service.SplitPart
	bridge := &mockBridge{
		settleSplitFn: func(ctx context.Context, draft service.Draft, parts []service.SplitPart) (*service.Result, error) {
			gotParts = parts
			return &service.Result{}, nil
		},
	}
	m, _, outletID, scope := seededMachine(t, bridge)
	prev, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)

	amounts, err := billing.SplitEqual(prev.Totals.GrandTotal, 2)
	require.NoError(t, err)
	parts := make([]service.SplitPart, len(amounts))
	for i, a := range amounts {
		parts[i] = service.SplitPart{Amount: a, Method: enum.PaymentMethodCash}
	}

	_, err = m.PaySplit(context.Background(), outletID, scope, parts)
	require.NoError(t, err)
	assert.Len(t, gotParts, 2)
	assert.Equal(t, StateCompleted, m.State(outletID, scope))
}

func TestChargeRoom_PassesSignatureThrough(t *testing.T) {
	var gotRoom string
	var gotSig bool
	bridge := &mockBridge{
		settleRoomFn: func(ctx context.Context, draft service.Draft, roomNumber string, signaturePresent bool, strokeCount int32) (*service.Result, error) {
			gotRoom, gotSig = roomNumber, signaturePresent
			return &service.Result{}, nil
		},
	}
	m, _, outletID, scope := seededMachine(t, bridge)
	_, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)

	_, err = m.ChargeRoom(context.Background(), outletID, scope, "204", true, 31)
	require.NoError(t, err)
	assert.Equal(t, "204", gotRoom)
	assert.True(t, gotSig)
	assert.Equal(t, StateCompleted, m.State(outletID, scope))
}

func TestPaySubsidized_ComputesCategoryShare(t *testing.T) {
	var gotSt billing.SubsidyTotals
	bridge := &mockBridge{
		settleSubsidyFn: func(ctx context.Context, draft service.Draft, beneficiaryID uuid.UUID, st billing.SubsidyTotals) (*service.Result, error) {
			gotSt = st
			return &service.Result{}, nil
		},
	}
	m, _, outletID, scope := seededMachine(t, bridge)
	prev, err := m.OpenPreview(outletID, scope, previewInput(uuid.Nil))
	require.NoError(t, err)

	_, err = m.PaySubsidized(context.Background(), outletID, scope, uuid.New(), enum.BeneficiaryCategoryStudent)
	require.NoError(t, err)

	assert.Equal(t, prev.Totals.GrandTotal, gotSt.Total)
	assert.Equal(t, prev.Totals.GrandTotal, gotSt.Subsidy+gotSt.ToPay)
}

func TestTransfer_DestinationCartOccupiedRejected(t *testing.T) {
	m, carts, outletID, scope := seededMachine(t, &mockBridge{})
	tableID := uuid.New()
	dstTableID := uuid.New()

	_, err := carts.AddItem(outletID, cart.TableScope(dstTableID), 0, cart.ProductRef{
		ProductID: uuid.New(), Name: "Fataya", UnitPrice: 800,
	}, 1)
	require.NoError(t, err)

	in := previewInput(tableID)
	_, err = m.OpenPreview(outletID, scope, in)
	require.NoError(t, err)

	err = m.Transfer(context.Background(), outletID, scope, dstTableID)
	assert.ErrorIs(t, err, service.ErrDestinationOccupied)
	assert.Equal(t, StateBillPreview, m.State(outletID, scope))
	assert.Len(t, carts.Snapshot(outletID, scope).Items, 2)
}

func TestTransfer_BridgeConflictRevertsToPreview(t *testing.T) {
	bridge := &mockBridge{
		transferFn: func(ctx context.Context, outletID, srcTableID, dstTableID uuid.UUID) error {
			return service.ErrDestinationOccupied
		},
	}
	m, _, outletID, scope := seededMachine(t, bridge)
	_, err := m.OpenPreview(outletID, scope, previewInput(uuid.New()))
	require.NoError(t, err)

	err = m.Transfer(context.Background(), outletID, scope, uuid.New())
	assert.ErrorIs(t, err, service.ErrDestinationOccupied)
	assert.Equal(t, StateBillPreview, m.State(outletID, scope))
}

func TestTransfer_MovesCartToDestinationScope(t *testing.T) {
	var gotSrc, gotDst uuid.UUID
	bridge := &mockBridge{
		transferFn: func(ctx context.Context, outletID, srcTableID, dstTableID uuid.UUID) error {
			gotSrc, gotDst = srcTableID, dstTableID
			return nil
		},
	}
	m, carts, outletID, scope := seededMachine(t, bridge)
	tableID := uuid.New()
	dstTableID := uuid.New()

	_, err := m.OpenPreview(outletID, scope, previewInput(tableID))
	require.NoError(t, err)

	require.NoError(t, m.Transfer(context.Background(), outletID, scope, dstTableID))

	assert.Equal(t, tableID, gotSrc)
	assert.Equal(t, dstTableID, gotDst)
	assert.True(t, carts.Snapshot(outletID, scope).Empty())
	assert.Len(t, carts.Snapshot(outletID, cart.TableScope(dstTableID)).Items, 2)
	assert.Equal(t, StateIdle, m.State(outletID, scope))
}
