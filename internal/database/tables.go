package database

import (
	"context"

	"github.com/google/uuid"
)

const tableColumns = `id, outlet_id, number, capacity, status, assigned_staff_id, updated_at`

func scanTable(row interface{ Scan(dest ...any) error }) (Table, error) {
	var t Table
	err := row.Scan(&t.ID, &t.OutletID, &t.Number, &t.Capacity, &t.Status,
		&t.AssignedStaffID, &t.UpdatedAt)
	return t, err
}

func (q *Queries) ListTablesByOutlet(ctx context.Context, outletID uuid.UUID) ([]Table, error) {
	const query = `SELECT ` + tableColumns + ` FROM restaurant_tables WHERE outlet_id = $1 ORDER BY number`
	rows, err := q.db.Query(ctx, query, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

type ListTablesByStaffParams struct {
	OutletID        uuid.UUID
	AssignedStaffID uuid.UUID
}

func (q *Queries) ListTablesByStaff(ctx context.Context, arg ListTablesByStaffParams) ([]Table, error) {
	const query = `SELECT ` + tableColumns + ` FROM restaurant_tables
WHERE outlet_id = $1 AND assigned_staff_id = $2 ORDER BY number`
	rows, err := q.db.Query(ctx, query, arg.OutletID, arg.AssignedStaffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

type GetTableParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

func (q *Queries) GetTable(ctx context.Context, arg GetTableParams) (Table, error) {
	const query = `SELECT ` + tableColumns + ` FROM restaurant_tables WHERE id = $1 AND outlet_id = $2`
	return scanTable(q.db.QueryRow(ctx, query, arg.ID, arg.OutletID))
}

// GetTableForUpdate locks the table row for the duration of the transaction,
// serializing concurrent transfers and settlements for the same table.
func (q *Queries) GetTableForUpdate(ctx context.Context, arg GetTableParams) (Table, error) {
	const query = `SELECT ` + tableColumns + ` FROM restaurant_tables
WHERE id = $1 AND outlet_id = $2 FOR NO KEY UPDATE`
	return scanTable(q.db.QueryRow(ctx, query, arg.ID, arg.OutletID))
}

type UpdateTableStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateTableStatus(ctx context.Context, arg UpdateTableStatusParams) (Table, error) {
	const query = `UPDATE restaurant_tables SET status = $2, updated_at = now()
WHERE id = $1 RETURNING ` + tableColumns
	return scanTable(q.db.QueryRow(ctx, query, arg.ID, arg.Status))
}
