package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const staffColumns = `id, outlet_id, full_name, email, hashed_password, pin, role, is_active, created_at`

func scanStaff(row interface{ Scan(dest ...any) error }) (Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.OutletID, &s.FullName, &s.Email, &s.HashedPassword,
		&s.Pin, &s.Role, &s.IsActive, &s.CreatedAt)
	return s, err
}

func (q *Queries) GetStaffByEmail(ctx context.Context, email string) (Staff, error) {
	const query = `SELECT ` + staffColumns + ` FROM staff WHERE email = $1 AND is_active`
	return scanStaff(q.db.QueryRow(ctx, query, email))
}

func (q *Queries) GetStaffByID(ctx context.Context, id uuid.UUID) (Staff, error) {
	const query = `SELECT ` + staffColumns + ` FROM staff WHERE id = $1 AND is_active`
	return scanStaff(q.db.QueryRow(ctx, query, id))
}

type GetStaffByOutletAndPinParams struct {
	OutletID uuid.UUID
	Pin      pgtype.Text
}

func (q *Queries) GetStaffByOutletAndPin(ctx context.Context, arg GetStaffByOutletAndPinParams) (Staff, error) {
	const query = `SELECT ` + staffColumns + ` FROM staff WHERE outlet_id = $1 AND pin = $2 AND is_active`
	return scanStaff(q.db.QueryRow(ctx, query, arg.OutletID, arg.Pin))
}

func (q *Queries) ListStaffByOutlet(ctx context.Context, outletID uuid.UUID) ([]Staff, error) {
	const query = `SELECT ` + staffColumns + ` FROM staff WHERE outlet_id = $1 AND is_active ORDER BY full_name`
	rows, err := q.db.Query(ctx, query, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
