package database

import (
	"context"

	"github.com/google/uuid"
)

func (q *Queries) GetOutlet(ctx context.Context, id uuid.UUID) (Outlet, error) {
	const query = `SELECT id, name, currency, service_charge_rate, tax_rate, receipt_header, receipt_footer, created_at
FROM outlets WHERE id = $1`
	var o Outlet
	err := q.db.QueryRow(ctx, query, id).Scan(&o.ID, &o.Name, &o.Currency,
		&o.ServiceChargeRate, &o.TaxRate, &o.ReceiptHeader, &o.ReceiptFooter, &o.CreatedAt)
	return o, err
}

func (q *Queries) ListCategoriesByOutlet(ctx context.Context, outletID uuid.UUID) ([]Category, error) {
	const query = `SELECT id, outlet_id, name, sort_order, is_active, created_at
FROM categories WHERE outlet_id = $1 AND is_active ORDER BY sort_order, name`
	rows, err := q.db.Query(ctx, query, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.OutletID, &c.Name, &c.SortOrder, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const productColumns = `id, outlet_id, category_id, name, unit_price, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.OutletID, &p.CategoryID, &p.Name, &p.UnitPrice,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) ListProductsByOutlet(ctx context.Context, outletID uuid.UUID) ([]Product, error) {
	const query = `SELECT ` + productColumns + ` FROM products WHERE outlet_id = $1 AND is_active ORDER BY name`
	rows, err := q.db.Query(ctx, query, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

type GetProductParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

func (q *Queries) GetProduct(ctx context.Context, arg GetProductParams) (Product, error) {
	const query = `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND outlet_id = $2 AND is_active`
	return scanProduct(q.db.QueryRow(ctx, query, arg.ID, arg.OutletID))
}
