// Package checkout drives the settlement flow for one cart scope: preview
// the bill, pick a settlement path, and hand the finalized draft to the
// persistence bridge. Until the bridge commits, everything here is
// in-memory and reversible.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/teranga-pos/api/internal/billing"
	"github.com/teranga-pos/api/internal/cart"
	"github.com/teranga-pos/api/internal/service"
)

// State of a checkout flow.
type State string

const (
	StateIdle          State = "IDLE"
	StateBillPreview   State = "BILL_PREVIEW"
	StatePayment       State = "PAYMENT"
	StateSplitBill     State = "SPLIT_BILL"
	StateTableTransfer State = "TABLE_TRANSFER"
	StateRoomCharge    State = "ROOM_CHARGE"
	StateCompleted     State = "COMPLETED"
)

var (
	ErrInvalidTransition  = errors.New("operation not allowed in the current checkout state")
	ErrNoActiveCheckout   = errors.New("no checkout in progress for this scope")
	ErrSettlementInFlight = errors.New("a settlement attempt is already in progress for this scope")
)

// Bridge is the persistence side of a checkout. Satisfied by
// *service.Settlement.
type Bridge interface {
	SettleSingle(ctx context.Context, draft service.Draft, payments []service.PaymentInput) (*service.Result, error)
	SettleSplit(ctx context.Context, draft service.Draft, parts []service.SplitPart) (*service.Result, error)
	SettleRoomCharge(ctx context.Context, draft service.Draft, roomNumber string, signaturePresent bool, strokeCount int32) (*service.Result, error)
	SettleSubsidized(ctx context.Context, draft service.Draft, beneficiaryID uuid.UUID, st billing.SubsidyTotals) (*service.Result, error)
	TransferTable(ctx context.Context, outletID, srcTableID, dstTableID uuid.UUID) error
}

// PreviewInput carries everything needed to freeze a cart into a draft.
type PreviewInput struct {
	TableID       uuid.UUID // uuid.Nil outside table service
	ServiceMode   string
	DiscountType  string
	DiscountValue decimal.Decimal
	Rates         billing.Rates
	CreatedBy     uuid.UUID
	// ReleaseTable frees the table on settlement. Continuous service
	// leaves it occupied so the next round reuses the seat.
	ReleaseTable bool
}

// Preview is the bill shown before a settlement path is chosen.
type Preview struct {
	Cart   cart.Snapshot  `json:"cart"`
	Totals billing.Totals `json:"totals"`
	State  State          `json:"state"`
}

type flow struct {
	state State
	// settling guards the window where a bridge call runs outside the
	// machine mutex. Exactly one settlement attempt may be in flight.
	settling    bool
	draft       service.Draft
	completedAt time.Time
	result      *service.Result
}

// Machine holds the active checkout flow per cart scope. All transitions
// are serialized under one mutex; the slow work (settlement transactions)
// runs outside it against an immutable draft.
type Machine struct {
	carts  *cart.Store
	bridge Bridge

	mu    sync.Mutex
	flows map[string]*flow
}

func NewMachine(carts *cart.Store, bridge Bridge) *Machine {
	return &Machine{
		carts:  carts,
		bridge: bridge,
		flows:  make(map[string]*flow),
	}
}

func flowKey(outletID uuid.UUID, scope string) string {
	return outletID.String() + "/" + scope
}

// State reports the current checkout state for a scope. Idle when no flow
// exists.
func (m *Machine) State(outletID uuid.UUID, scope string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flows[flowKey(outletID, scope)]; ok {
		return f.state
	}
	return StateIdle
}

// OpenPreview freezes the cart and computes the bill. Only allowed when the
// scope is idle or showing a finished checkout.
func (m *Machine) OpenPreview(outletID uuid.UUID, scope string, in PreviewInput) (Preview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := flowKey(outletID, scope)
	if f, ok := m.flows[key]; ok && f.state != StateCompleted {
		return Preview{}, fmt.Errorf("%w: %s", ErrInvalidTransition, f.state)
	}

	snap, err := m.carts.Freeze(outletID, scope)
	if err != nil {
		return Preview{}, err
	}
	totals := billing.Compute(snap.Lines(), in.Rates)

	m.flows[key] = &flow{
		state: StateBillPreview,
		draft: service.Draft{
			OutletID:      outletID,
			TableID:       in.TableID,
			ServiceMode:   in.ServiceMode,
			Items:         snap.Items,
			Totals:        totals,
			DiscountType:  in.DiscountType,
			DiscountValue: in.DiscountValue,
			CreatedBy:     in.CreatedBy,
			ReleaseTable:  in.ReleaseTable,
		},
	}
	return Preview{Cart: snap, Totals: totals, State: StateBillPreview}, nil
}

// Cancel abandons the checkout and thaws the cart with its contents intact.
// A no-op after completion apart from clearing the finished flow. Refused
// while a settlement attempt is in flight: thawing the cart under a running
// bridge commit could lose it.
func (m *Machine) Cancel(outletID uuid.UUID, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := flowKey(outletID, scope)
	f, ok := m.flows[key]
	if !ok {
		return ErrNoActiveCheckout
	}
	if f.settling {
		return ErrSettlementInFlight
	}
	if f.state != StateCompleted {
		m.carts.Unfreeze(outletID, scope)
	}
	delete(m.flows, key)
	return nil
}

// Pay settles the bill with one or more tenders. Validation failures and
// remote errors return the flow to the bill preview with the cart still
// frozen; nothing has been written, so retrying or cancelling are both safe.
func (m *Machine) Pay(ctx context.Context, outletID uuid.UUID, scope string, payments []service.PaymentInput) (*service.Result, error) {
	draft, err := m.enter(outletID, scope, StatePayment)
	if err != nil {
		return nil, err
	}

	res, err := m.bridge.SettleSingle(ctx, draft, payments)
	if err != nil {
		m.revert(outletID, scope, StateBillPreview)
		return nil, err
	}
	m.complete(outletID, scope, res)
	return res, nil
}

// PaySplit settles the bill across several payers. The bridge rejects parts
// that do not sum to the grand total before writing anything.
func (m *Machine) PaySplit(ctx context.Context, outletID uuid.UUID, scope string, parts []service.SplitPart) (*service.Result, error) {
	draft, err := m.enter(outletID, scope, StateSplitBill)
	if err != nil {
		return nil, err
	}

	res, err := m.bridge.SettleSplit(ctx, draft, parts)
	if err != nil {
		m.revert(outletID, scope, StateBillPreview)
		return nil, err
	}
	m.complete(outletID, scope, res)
	return res, nil
}

// ChargeRoom posts the bill to a guest folio. The signature capture is an
// acceptance record; without it the bridge refuses.
func (m *Machine) ChargeRoom(ctx context.Context, outletID uuid.UUID, scope string, roomNumber string, signaturePresent bool, strokeCount int32) (*service.Result, error) {
	draft, err := m.enter(outletID, scope, StateRoomCharge)
	if err != nil {
		return nil, err
	}

	res, err := m.bridge.SettleRoomCharge(ctx, draft, roomNumber, signaturePresent, strokeCount)
	if err != nil {
		m.revert(outletID, scope, StateBillPreview)
		return nil, err
	}
	m.complete(outletID, scope, res)
	return res, nil
}

// PaySubsidized settles a collectivity bill: the program share by category,
// the remainder against the beneficiary's credit. The authoritative credit
// check happens in the bridge under a row lock.
func (m *Machine) PaySubsidized(ctx context.Context, outletID uuid.UUID, scope string, beneficiaryID uuid.UUID, category string) (*service.Result, error) {
	draft, err := m.enter(outletID, scope, StatePayment)
	if err != nil {
		return nil, err
	}

	st := billing.ComputeSubsidy(draft.Totals.GrandTotal, category)
	res, err := m.bridge.SettleSubsidized(ctx, draft, beneficiaryID, st)
	if err != nil {
		m.revert(outletID, scope, StateBillPreview)
		return nil, err
	}
	m.complete(outletID, scope, res)
	return res, nil
}

// Transfer moves the open order to another table. Both the destination
// table row and the destination cart must be free; either conflict aborts
// the transfer and returns the flow to the bill preview.
func (m *Machine) Transfer(ctx context.Context, outletID uuid.UUID, scope string, dstTableID uuid.UUID) error {
	draft, err := m.enter(outletID, scope, StateTableTransfer)
	if err != nil {
		return err
	}
	if draft.TableID == uuid.Nil {
		m.revert(outletID, scope, StateBillPreview)
		return service.ErrTableNotFound
	}

	dstScope := cart.TableScope(dstTableID)
	if snap := m.carts.Snapshot(outletID, dstScope); !snap.Empty() {
		m.revert(outletID, scope, StateBillPreview)
		return service.ErrDestinationOccupied
	}

	if err := m.bridge.TransferTable(ctx, outletID, draft.TableID, dstTableID); err != nil {
		m.revert(outletID, scope, StateBillPreview)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts.Unfreeze(outletID, scope)
	if err := m.carts.Move(outletID, scope, dstScope); err != nil {
		// The destination cart filled between the check and the move.
		// The table rows already swapped; surface the conflict and keep
		// the cart where it is.
		_, _ = m.carts.Freeze(outletID, scope)
		if f, ok := m.flows[flowKey(outletID, scope)]; ok {
			f.state = StateBillPreview
			f.settling = false
		}
		return err
	}
	delete(m.flows, flowKey(outletID, scope))
	return nil
}

// PreviewTotal returns the grand total of the open bill preview, if one
// exists for the scope.
func (m *Machine) PreviewTotal(outletID uuid.UUID, scope string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[flowKey(outletID, scope)]
	if !ok || f.state == StateCompleted {
		return 0, false
	}
	return f.draft.Totals.GrandTotal, true
}

// Result returns the settlement outcome of a completed flow, if any.
func (m *Machine) Result(outletID uuid.UUID, scope string) (*service.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[flowKey(outletID, scope)]
	if !ok || f.state != StateCompleted {
		return nil, false
	}
	return f.result, true
}

// enter moves the flow from the bill preview into a settlement state and
// hands back a copy of the draft to settle. The mutex is released before the
// bridge call; the settling flag keeps a second attempt from entering until
// the first one completes or reverts.
func (m *Machine) enter(outletID uuid.UUID, scope string, next State) (service.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flows[flowKey(outletID, scope)]
	if !ok {
		return service.Draft{}, ErrNoActiveCheckout
	}
	if f.settling {
		return service.Draft{}, ErrSettlementInFlight
	}
	if f.state != StateBillPreview {
		return service.Draft{}, fmt.Errorf("%w: %s", ErrInvalidTransition, f.state)
	}
	f.state = next
	f.settling = true
	return f.draft, nil
}

// revert returns a failed settlement attempt to an earlier state so the
// operator can retry or cancel.
func (m *Machine) revert(outletID uuid.UUID, scope string, prev State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flows[flowKey(outletID, scope)]; ok {
		f.state = prev
		f.settling = false
	}
}

// complete clears the settled cart and parks the flow in the completed
// state until the next preview replaces it.
func (m *Machine) complete(outletID uuid.UUID, scope string, res *service.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts.Clear(outletID, scope)
	if f, ok := m.flows[flowKey(outletID, scope)]; ok {
		f.state = StateCompleted
		f.settling = false
		f.completedAt = time.Now()
		f.result = res
	}
}
