package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// All monetary amounts are int64 in minor currency units. Percentage rates
// are NUMERIC columns surfaced as pgtype.Numeric and converted to decimals
// by the billing package.

type Outlet struct {
	ID                uuid.UUID
	Name              string
	Currency          string
	ServiceChargeRate pgtype.Numeric
	TaxRate           pgtype.Numeric
	ReceiptHeader     pgtype.Text
	ReceiptFooter     pgtype.Text
	CreatedAt         time.Time
}

type Staff struct {
	ID             uuid.UUID
	OutletID       uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Pin            pgtype.Text
	Role           string
	IsActive       bool
	CreatedAt      time.Time
}

type Category struct {
	ID        uuid.UUID
	OutletID  uuid.UUID
	Name      string
	SortOrder int32
	IsActive  bool
	CreatedAt time.Time
}

type Product struct {
	ID         uuid.UUID
	OutletID   uuid.UUID
	CategoryID uuid.UUID
	Name       string
	UnitPrice  int64
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Table struct {
	ID              uuid.UUID
	OutletID        uuid.UUID
	Number          int32
	Capacity        int32
	Status          string
	AssignedStaffID pgtype.UUID
	UpdatedAt       time.Time
}

type Room struct {
	ID        uuid.UUID
	OutletID  uuid.UUID
	Number    string
	GuestName string
	FolioOpen bool
}

type Beneficiary struct {
	ID            uuid.UUID
	OutletID      uuid.UUID
	BadgeCode     string
	FullName      string
	Category      string
	CreditBalance int64
}

type Order struct {
	ID             uuid.UUID
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
	SettledAt      pgtype.Timestamptz
	CreatedAt      time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Name      string
	UnitPrice int64
	Quantity  int32
	LineTotal int64
}

type Invoice struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	InvoiceNumber string
	Amount        int64
	CreatedAt     time.Time
}

type Payment struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	InvoiceID      pgtype.UUID
	Method         string
	Amount         int64
	AmountReceived pgtype.Int8
	ChangeAmount   pgtype.Int8
	Status         string
	ProcessedBy    uuid.UUID
	CreatedAt      time.Time
}

type RoomCharge struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	RoomID           uuid.UUID
	Amount           int64
	SignaturePresent bool
	StrokeCount      int32
	PostedBy         uuid.UUID
	CreatedAt        time.Time
}
