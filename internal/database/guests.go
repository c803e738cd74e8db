package database

import (
	"context"

	"github.com/google/uuid"
)

// Rooms and beneficiaries are read-mostly projections of the property
// management and collectivity systems; this service only looks them up and,
// for beneficiaries, decrements credit at settlement.

type GetRoomByNumberParams struct {
	OutletID uuid.UUID
	Number   string
}

func (q *Queries) GetRoomByNumber(ctx context.Context, arg GetRoomByNumberParams) (Room, error) {
	const query = `SELECT id, outlet_id, number, guest_name, folio_open
FROM rooms WHERE outlet_id = $1 AND number = $2`
	var r Room
	err := q.db.QueryRow(ctx, query, arg.OutletID, arg.Number).
		Scan(&r.ID, &r.OutletID, &r.Number, &r.GuestName, &r.FolioOpen)
	return r, err
}

type CreateRoomChargeParams struct {
	OrderID          uuid.UUID
	RoomID           uuid.UUID
	Amount           int64
	SignaturePresent bool
	StrokeCount      int32
	PostedBy         uuid.UUID
}

func (q *Queries) CreateRoomCharge(ctx context.Context, arg CreateRoomChargeParams) (RoomCharge, error) {
	const query = `INSERT INTO room_charges (order_id, room_id, amount, signature_present, stroke_count, posted_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, room_id, amount, signature_present, stroke_count, posted_by, created_at`
	var rc RoomCharge
	err := q.db.QueryRow(ctx, query, arg.OrderID, arg.RoomID, arg.Amount,
		arg.SignaturePresent, arg.StrokeCount, arg.PostedBy).
		Scan(&rc.ID, &rc.OrderID, &rc.RoomID, &rc.Amount, &rc.SignaturePresent,
			&rc.StrokeCount, &rc.PostedBy, &rc.CreatedAt)
	return rc, err
}

const beneficiaryColumns = `id, outlet_id, badge_code, full_name, category, credit_balance`

func scanBeneficiary(row interface{ Scan(dest ...any) error }) (Beneficiary, error) {
	var b Beneficiary
	err := row.Scan(&b.ID, &b.OutletID, &b.BadgeCode, &b.FullName, &b.Category, &b.CreditBalance)
	return b, err
}

type GetBeneficiaryByBadgeParams struct {
	OutletID  uuid.UUID
	BadgeCode string
}

func (q *Queries) GetBeneficiaryByBadge(ctx context.Context, arg GetBeneficiaryByBadgeParams) (Beneficiary, error) {
	const query = `SELECT ` + beneficiaryColumns + ` FROM beneficiaries WHERE outlet_id = $1 AND badge_code = $2`
	return scanBeneficiary(q.db.QueryRow(ctx, query, arg.OutletID, arg.BadgeCode))
}

type GetBeneficiaryForUpdateParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

// GetBeneficiaryForUpdate locks the beneficiary row so concurrent subsidized
// checkouts cannot both pass the credit check.
func (q *Queries) GetBeneficiaryForUpdate(ctx context.Context, arg GetBeneficiaryForUpdateParams) (Beneficiary, error) {
	const query = `SELECT ` + beneficiaryColumns + ` FROM beneficiaries
WHERE id = $1 AND outlet_id = $2 FOR NO KEY UPDATE`
	return scanBeneficiary(q.db.QueryRow(ctx, query, arg.ID, arg.OutletID))
}

type DecrementBeneficiaryCreditParams struct {
	ID     uuid.UUID
	Amount int64
}

func (q *Queries) DecrementBeneficiaryCredit(ctx context.Context, arg DecrementBeneficiaryCreditParams) (Beneficiary, error) {
	const query = `UPDATE beneficiaries SET credit_balance = credit_balance - $2
WHERE id = $1 RETURNING ` + beneficiaryColumns
	return scanBeneficiary(q.db.QueryRow(ctx, query, arg.ID, arg.Amount))
}
