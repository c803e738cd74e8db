package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type CreateInvoiceParams struct {
	OrderID       uuid.UUID
	InvoiceNumber string
	Amount        int64
}

func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	const query = `INSERT INTO invoices (order_id, invoice_number, amount)
VALUES ($1, $2, $3)
RETURNING id, order_id, invoice_number, amount, created_at`
	var inv Invoice
	err := q.db.QueryRow(ctx, query, arg.OrderID, arg.InvoiceNumber, arg.Amount).
		Scan(&inv.ID, &inv.OrderID, &inv.InvoiceNumber, &inv.Amount, &inv.CreatedAt)
	return inv, err
}

func (q *Queries) ListInvoicesByOrder(ctx context.Context, orderID uuid.UUID) ([]Invoice, error) {
	const query = `SELECT id, order_id, invoice_number, amount, created_at
FROM invoices WHERE order_id = $1 ORDER BY invoice_number`
	rows, err := q.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.OrderID, &inv.InvoiceNumber, &inv.Amount, &inv.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

const paymentColumns = `id, order_id, invoice_id, method, amount, amount_received, change_amount, status, processed_by, created_at`

type CreatePaymentParams struct {
	OrderID        uuid.UUID
	InvoiceID      pgtype.UUID
	Method         string
	Amount         int64
	AmountReceived pgtype.Int8
	ChangeAmount   pgtype.Int8
	Status         string
	ProcessedBy    uuid.UUID
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	const query = `INSERT INTO payments (order_id, invoice_id, method, amount, amount_received, change_amount, status, processed_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + paymentColumns
	var p Payment
	err := q.db.QueryRow(ctx, query, arg.OrderID, arg.InvoiceID, arg.Method, arg.Amount,
		arg.AmountReceived, arg.ChangeAmount, arg.Status, arg.ProcessedBy).
		Scan(&p.ID, &p.OrderID, &p.InvoiceID, &p.Method, &p.Amount, &p.AmountReceived,
			&p.ChangeAmount, &p.Status, &p.ProcessedBy, &p.CreatedAt)
	return p, err
}

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at`
	rows, err := q.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.InvoiceID, &p.Method, &p.Amount,
			&p.AmountReceived, &p.ChangeAmount, &p.Status, &p.ProcessedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
