package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/teranga-pos/api/internal/billing"
	"github.com/teranga-pos/api/internal/cart"
	"github.com/teranga-pos/api/internal/database"
	"github.com/teranga-pos/api/internal/enum"
)

const maxOrderNumberRetries = 3

// Errors returned by the settlement service.
var (
	ErrEmptyDraft          = errors.New("order draft has no items")
	ErrInvalidPayment      = errors.New("invalid payment")
	ErrPaymentMismatch     = errors.New("payments do not sum to the grand total")
	ErrSplitMismatch       = errors.New("split amounts do not sum to the grand total")
	ErrDestinationOccupied = errors.New("destination table already has an active unpaid order")
	ErrTableNotFound       = errors.New("table not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrFolioClosed         = errors.New("room folio is not open")
	ErrSignatureRequired   = errors.New("signature is required for room charges")
	ErrBeneficiaryNotFound = errors.New("beneficiary not found")
	ErrInsufficientCredit  = errors.New("beneficiary credit does not cover the amount to pay")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the DB methods settlements need.
// Satisfied by *database.Queries (and its WithTx variant).
type Store interface {
	NextOrderNumber(ctx context.Context, outletID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateInvoice(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	GetTableForUpdate(ctx context.Context, arg database.GetTableParams) (database.Table, error)
	UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.Table, error)
	GetRoomByNumber(ctx context.Context, arg database.GetRoomByNumberParams) (database.Room, error)
	CreateRoomCharge(ctx context.Context, arg database.CreateRoomChargeParams) (database.RoomCharge, error)
	GetBeneficiaryForUpdate(ctx context.Context, arg database.GetBeneficiaryForUpdateParams) (database.Beneficiary, error)
	DecrementBeneficiaryCredit(ctx context.Context, arg database.DecrementBeneficiaryCreditParams) (database.Beneficiary, error)
}

// NewStore creates a Store from a DBTX (pool or tx).
type NewStore func(db database.DBTX) Store

// Draft is a frozen cart plus its computed totals, ready to be committed.
// Nothing in a draft is durable; the settlement transaction is the only
// commit point, and until it succeeds nothing is final.
type Draft struct {
	OutletID      uuid.UUID
	TableID       uuid.UUID // uuid.Nil for direct-sale and collectivity scopes
	ServiceMode   string
	Items         []cart.Item
	Totals        billing.Totals
	DiscountType  string
	DiscountValue decimal.Decimal
	CreatedBy     uuid.UUID
	// ReleaseTable frees the table after settlement; continuous service
	// keeps it occupied for the next round.
	ReleaseTable bool
}

// PaymentInput is one tendered payment.
type PaymentInput struct {
	Method         string
	Amount         int64
	AmountReceived int64 // cash only
}

// Result is everything a settlement wrote.
type Result struct {
	Order       database.Order
	Items       []database.OrderItem
	Invoices    []database.Invoice
	Payments    []database.Payment
	RoomCharge  *database.RoomCharge
	Beneficiary *database.Beneficiary
}

// Settlement is the persistence bridge: it turns finalized checkout outcomes
// into atomic database writes.
type Settlement struct {
	pool     TxBeginner
	newStore NewStore
}

func NewSettlement(pool TxBeginner, newStore NewStore) *Settlement {
	return &Settlement{pool: pool, newStore: newStore}
}

// SettleSingle commits an order paid in full by one or more tenders at the
// point of sale.
func (s *Settlement) SettleSingle(ctx context.Context, draft Draft, payments []PaymentInput) (*Result, error) {
	if len(draft.Items) == 0 {
		return nil, ErrEmptyDraft
	}
	var sum int64
	for _, p := range payments {
		if p.Amount <= 0 || !isValidTender(p.Method) {
			return nil, ErrInvalidPayment
		}
		if p.Method == enum.PaymentMethodCash && p.AmountReceived < p.Amount {
			return nil, ErrInvalidPayment
		}
		sum += p.Amount
	}
	if sum != draft.Totals.GrandTotal {
		return nil, ErrPaymentMismatch
	}

	return s.withRetry(ctx, func(tx pgx.Tx, store Store) (*Result, error) {
		res, err := s.insertOrder(ctx, store, draft, enum.SettlementSingle)
		if err != nil {
			return nil, err
		}

		inv, err := store.CreateInvoice(ctx, database.CreateInvoiceParams{
			OrderID:       res.Order.ID,
			InvoiceNumber: res.Order.OrderNumber + "-1",
			Amount:        draft.Totals.GrandTotal,
		})
		if err != nil {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
		res.Invoices = append(res.Invoices, inv)

		for _, p := range payments {
			row, err := s.insertPayment(ctx, store, res.Order.ID, inv.ID, p, draft.CreatedBy)
			if err != nil {
				return nil, err
			}
			res.Payments = append(res.Payments, row)
		}

		if err := s.finishTable(ctx, store, draft); err != nil {
			return nil, err
		}
		return res, nil
	})
}

// SplitPart is one sub-bill of a split settlement.
type SplitPart struct {
	Amount int64
	Method string
}

// SettleSplit commits an order divided across several payers. The parts must
// sum back to the original grand total exactly; a mismatch is rejected
// before anything is written.
func (s *Settlement) SettleSplit(ctx context.Context, draft Draft, parts []SplitPart) (*Result, error) {
	if len(draft.Items) == 0 {
		return nil, ErrEmptyDraft
	}
	amounts := make([]int64, len(parts))
	for i, p := range parts {
		if !isValidTender(p.Method) {
			return nil, ErrInvalidPayment
		}
		amounts[i] = p.Amount
	}
	if err := billing.ValidateSplit(amounts, draft.Totals.GrandTotal); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSplitMismatch, err)
	}

	return s.withRetry(ctx, func(tx pgx.Tx, store Store) (*Result, error) {
		res, err := s.insertOrder(ctx, store, draft, enum.SettlementSplit)
		if err != nil {
			return nil, err
		}

		for i, part := range parts {
			inv, err := store.CreateInvoice(ctx, database.CreateInvoiceParams{
				OrderID:       res.Order.ID,
				InvoiceNumber: fmt.Sprintf("%s-%d", res.Order.OrderNumber, i+1),
				Amount:        part.Amount,
			})
			if err != nil {
				return nil, fmt.Errorf("create invoice %d: %w", i+1, err)
			}
			res.Invoices = append(res.Invoices, inv)

			row, err := s.insertPayment(ctx, store, res.Order.ID, inv.ID, PaymentInput{
				Method:         part.Method,
				Amount:         part.Amount,
				AmountReceived: part.Amount,
			}, draft.CreatedBy)
			if err != nil {
				return nil, err
			}
			res.Payments = append(res.Payments, row)
		}

		if err := s.finishTable(ctx, store, draft); err != nil {
			return nil, err
		}
		return res, nil
	})
}

// SettleRoomCharge posts the order to a guest folio instead of collecting
// payment. Requires a successful room lookup and a present signature; the
// signature is an acceptance record, nothing more.
func (s *Settlement) SettleRoomCharge(ctx context.Context, draft Draft, roomNumber string, signaturePresent bool, strokeCount int32) (*Result, error) {
	if len(draft.Items) == 0 {
		return nil, ErrEmptyDraft
	}
	if !signaturePresent {
		return nil, ErrSignatureRequired
	}

	return s.withRetry(ctx, func(tx pgx.Tx, store Store) (*Result, error) {
		room, err := store.GetRoomByNumber(ctx, database.GetRoomByNumberParams{
			OutletID: draft.OutletID,
			Number:   roomNumber,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrRoomNotFound
			}
			return nil, fmt.Errorf("get room: %w", err)
		}
		if !room.FolioOpen {
			return nil, ErrFolioClosed
		}

		res, err := s.insertOrder(ctx, store, draft, enum.SettlementRoomCharge)
		if err != nil {
			return nil, err
		}

		inv, err := store.CreateInvoice(ctx, database.CreateInvoiceParams{
			OrderID:       res.Order.ID,
			InvoiceNumber: res.Order.OrderNumber + "-1",
			Amount:        draft.Totals.GrandTotal,
		})
		if err != nil {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
		res.Invoices = append(res.Invoices, inv)

		rc, err := store.CreateRoomCharge(ctx, database.CreateRoomChargeParams{
			OrderID:          res.Order.ID,
			RoomID:           room.ID,
			Amount:           draft.Totals.GrandTotal,
			SignaturePresent: signaturePresent,
			StrokeCount:      strokeCount,
			PostedBy:         draft.CreatedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("create room charge: %w", err)
		}
		res.RoomCharge = &rc

		row, err := s.insertPayment(ctx, store, res.Order.ID, inv.ID, PaymentInput{
			Method: enum.PaymentMethodRoomCharge,
			Amount: draft.Totals.GrandTotal,
		}, draft.CreatedBy)
		if err != nil {
			return nil, err
		}
		res.Payments = append(res.Payments, row)

		if err := s.finishTable(ctx, store, draft); err != nil {
			return nil, err
		}
		return res, nil
	})
}

// SettleSubsidized commits a collectivity order: the subsidy program covers
// its share, the rest is debited from the beneficiary's credit. The credit
// check runs under a row lock so two concurrent checkouts cannot both pass.
func (s *Settlement) SettleSubsidized(ctx context.Context, draft Draft, beneficiaryID uuid.UUID, st billing.SubsidyTotals) (*Result, error) {
	if len(draft.Items) == 0 {
		return nil, ErrEmptyDraft
	}

	return s.withRetry(ctx, func(tx pgx.Tx, store Store) (*Result, error) {
		ben, err := store.GetBeneficiaryForUpdate(ctx, database.GetBeneficiaryForUpdateParams{
			ID:       beneficiaryID,
			OutletID: draft.OutletID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrBeneficiaryNotFound
			}
			return nil, fmt.Errorf("get beneficiary: %w", err)
		}
		if !st.CreditCovers(ben.CreditBalance) {
			return nil, ErrInsufficientCredit
		}

		res, err := s.insertOrder(ctx, store, draft, enum.SettlementSubsidized)
		if err != nil {
			return nil, err
		}

		inv, err := store.CreateInvoice(ctx, database.CreateInvoiceParams{
			OrderID:       res.Order.ID,
			InvoiceNumber: res.Order.OrderNumber + "-1",
			Amount:        st.Total,
		})
		if err != nil {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
		res.Invoices = append(res.Invoices, inv)

		// Program share and beneficiary share sum to the order total.
		for _, p := range []PaymentInput{
			{Method: enum.PaymentMethodSubsidy, Amount: st.Subsidy},
			{Method: enum.PaymentMethodBeneficiaryCredit, Amount: st.ToPay},
		} {
			if p.Amount == 0 {
				continue
			}
			row, err := s.insertPayment(ctx, store, res.Order.ID, inv.ID, p, draft.CreatedBy)
			if err != nil {
				return nil, err
			}
			res.Payments = append(res.Payments, row)
		}

		if st.ToPay > 0 {
			updated, err := store.DecrementBeneficiaryCredit(ctx, database.DecrementBeneficiaryCreditParams{
				ID:     ben.ID,
				Amount: st.ToPay,
			})
			if err != nil {
				return nil, fmt.Errorf("decrement credit: %w", err)
			}
			res.Beneficiary = &updated
		} else {
			res.Beneficiary = &ben
		}
		return res, nil
	})
}

// TransferTable moves an open, unpaid order's table occupancy from src to
// dst. The conflict with an already occupied destination is surfaced to the
// caller, never silently overwritten.
func (s *Settlement) TransferTable(ctx context.Context, outletID, srcTableID, dstTableID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	src, err := store.GetTableForUpdate(ctx, database.GetTableParams{ID: srcTableID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTableNotFound
		}
		return fmt.Errorf("lock source table: %w", err)
	}
	dst, err := store.GetTableForUpdate(ctx, database.GetTableParams{ID: dstTableID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTableNotFound
		}
		return fmt.Errorf("lock destination table: %w", err)
	}

	if dst.Status == enum.TableStatusOccupied {
		return ErrDestinationOccupied
	}

	if _, err := store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{ID: src.ID, Status: enum.TableStatusFree}); err != nil {
		return fmt.Errorf("release source table: %w", err)
	}
	if _, err := store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{ID: dst.ID, Status: enum.TableStatusOccupied}); err != nil {
		return fmt.Errorf("occupy destination table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// OccupyTable marks a table occupied when its first cart line arrives.
func (s *Settlement) OccupyTable(ctx context.Context, outletID, tableID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if _, err := store.GetTableForUpdate(ctx, database.GetTableParams{ID: tableID, OutletID: outletID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTableNotFound
		}
		return fmt.Errorf("lock table: %w", err)
	}
	if _, err := store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{ID: tableID, Status: enum.TableStatusOccupied}); err != nil {
		return fmt.Errorf("occupy table: %w", err)
	}
	return tx.Commit(ctx)
}

// ReleaseTable frees a table after its cart is cleared without a sale.
func (s *Settlement) ReleaseTable(ctx context.Context, outletID, tableID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if _, err := store.GetTableForUpdate(ctx, database.GetTableParams{ID: tableID, OutletID: outletID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTableNotFound
		}
		return fmt.Errorf("lock table: %w", err)
	}
	if _, err := store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{ID: tableID, Status: enum.TableStatusFree}); err != nil {
		return fmt.Errorf("release table: %w", err)
	}
	return tx.Commit(ctx)
}

// --- Internals ---

// withRetry runs one settlement transaction, retrying on order-number unique
// constraint violations (concurrent transactions can read the same MAX).
func (s *Settlement) withRetry(ctx context.Context, fn func(pgx.Tx, Store) (*Result, error)) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		res, err := s.runTx(ctx, fn)
		if err == nil {
			return res, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *Settlement) runTx(ctx context.Context, fn func(pgx.Tx, Store) (*Result, error)) (*Result, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	res, err := fn(tx, s.newStore(tx))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

func (s *Settlement) insertOrder(ctx context.Context, store Store, draft Draft, kind string) (*Result, error) {
	nextNum, err := store.NextOrderNumber(ctx, draft.OutletID)
	if err != nil {
		return nil, fmt.Errorf("next order number: %w", err)
	}
	orderNumber := fmt.Sprintf("POS-%04d", nextNum)

	tableID := pgtype.UUID{}
	if draft.TableID != uuid.Nil {
		tableID = pgtype.UUID{Bytes: draft.TableID, Valid: true}
	}

	discountType := pgtype.Text{}
	discountValue := pgtype.Numeric{}
	if draft.DiscountType != "" {
		discountType = pgtype.Text{String: draft.DiscountType, Valid: true}
		_ = discountValue.Scan(draft.DiscountValue.String())
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OutletID:       draft.OutletID,
		OrderNumber:    orderNumber,
		TableID:        tableID,
		ServiceMode:    draft.ServiceMode,
		SettlementKind: kind,
		Status:         enum.OrderStatusSettled,
		Subtotal:       draft.Totals.Subtotal,
		DiscountType:   discountType,
		DiscountValue:  discountValue,
		DiscountAmount: draft.Totals.DiscountAmount,
		ServiceCharge:  draft.Totals.ServiceCharge,
		TaxAmount:      draft.Totals.TaxAmount,
		TotalAmount:    draft.Totals.GrandTotal,
		CreatedBy:      draft.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	res := &Result{Order: order}
	for _, it := range draft.Items {
		row, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal(),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		res.Items = append(res.Items, row)
	}
	return res, nil
}

func (s *Settlement) insertPayment(ctx context.Context, store Store, orderID uuid.UUID, invoiceID uuid.UUID, p PaymentInput, processedBy uuid.UUID) (database.Payment, error) {
	received := pgtype.Int8{}
	change := pgtype.Int8{}
	if p.Method == enum.PaymentMethodCash {
		received = pgtype.Int8{Int64: p.AmountReceived, Valid: true}
		change = pgtype.Int8{Int64: p.AmountReceived - p.Amount, Valid: true}
	}

	row, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:        orderID,
		InvoiceID:      pgtype.UUID{Bytes: invoiceID, Valid: true},
		Method:         p.Method,
		Amount:         p.Amount,
		AmountReceived: received,
		ChangeAmount:   change,
		Status:         enum.PaymentStatusCompleted,
		ProcessedBy:    processedBy,
	})
	if err != nil {
		return database.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	return row, nil
}

// finishTable updates the table projection after a settlement. Continuous
// service keeps the table occupied for the next round of the same seats.
func (s *Settlement) finishTable(ctx context.Context, store Store, draft Draft) error {
	if draft.TableID == uuid.Nil || !draft.ReleaseTable {
		return nil
	}
	if _, err := store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{
		ID:     draft.TableID,
		Status: enum.TableStatusFree,
	}); err != nil {
		return fmt.Errorf("release table: %w", err)
	}
	return nil
}

func isValidTender(method string) bool {
	switch method {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodMobileMoney:
		return true
	}
	return false
}

// isOrderNumberConflict checks for a unique constraint violation on the
// per-outlet order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_outlet_id_order_number_key"
	}
	return false
}
