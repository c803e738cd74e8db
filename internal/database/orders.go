package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// NextOrderNumber returns MAX+1 of the per-outlet order sequence. Concurrent
// transactions can read the same value; the unique constraint on
// (outlet_id, order_number) surfaces the race and callers retry.
func (q *Queries) NextOrderNumber(ctx context.Context, outletID uuid.UUID) (int32, error) {
	const query = `SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM '[0-9]+$') AS INT)), 0) + 1
FROM orders WHERE outlet_id = $1`
	var n int32
	err := q.db.QueryRow(ctx, query, outletID).Scan(&n)
	return n, err
}

const orderColumns = `id, outlet_id, order_number, table_id, service_mode, settlement_kind, status,
subtotal, discount_type, discount_value, discount_amount, service_charge, tax_amount, total_amount,
created_by, settled_at, created_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OutletID, &o.OrderNumber, &o.TableID, &o.ServiceMode,
		&o.SettlementKind, &o.Status, &o.Subtotal, &o.DiscountType, &o.DiscountValue,
		&o.DiscountAmount, &o.ServiceCharge, &o.TaxAmount, &o.TotalAmount,
		&o.CreatedBy, &o.SettledAt, &o.CreatedAt)
	return o, err
}

type CreateOrderParams struct {
	OutletID       uuid.UUID
	OrderNumber    string
	TableID        pgtype.UUID
	ServiceMode    string
	SettlementKind string
	Status         string
	Subtotal       int64
	DiscountType   pgtype.Text
	DiscountValue  pgtype.Numeric
	DiscountAmount int64
	ServiceCharge  int64
	TaxAmount      int64
	TotalAmount    int64
	CreatedBy      uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	const query = `INSERT INTO orders (outlet_id, order_number, table_id, service_mode, settlement_kind, status,
subtotal, discount_type, discount_value, discount_amount, service_charge, tax_amount, total_amount,
created_by, settled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, query,
		arg.OutletID, arg.OrderNumber, arg.TableID, arg.ServiceMode, arg.SettlementKind,
		arg.Status, arg.Subtotal, arg.DiscountType, arg.DiscountValue, arg.DiscountAmount,
		arg.ServiceCharge, arg.TaxAmount, arg.TotalAmount, arg.CreatedBy))
}

type GetOrderParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND outlet_id = $2`
	return scanOrder(q.db.QueryRow(ctx, query, arg.ID, arg.OutletID))
}

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Name      string
	UnitPrice int64
	Quantity  int32
	LineTotal int64
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	const query = `INSERT INTO order_items (order_id, product_id, name, unit_price, quantity, line_total)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, product_id, name, unit_price, quantity, line_total`
	var it OrderItem
	err := q.db.QueryRow(ctx, query,
		arg.OrderID, arg.ProductID, arg.Name, arg.UnitPrice, arg.Quantity, arg.LineTotal).
		Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.UnitPrice, &it.Quantity, &it.LineTotal)
	return it, err
}

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	const query = `SELECT id, order_id, product_id, name, unit_price, quantity, line_total
FROM order_items WHERE order_id = $1 ORDER BY name`
	rows, err := q.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.UnitPrice,
			&it.Quantity, &it.LineTotal); err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	return result, rows.Err()
}
