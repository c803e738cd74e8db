package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStatusOpen      = "OPEN"
	OrderStatusSettled   = "SETTLED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	TableStatusFree     = "FREE"
	TableStatusOccupied = "OCCUPIED"
	TableStatusReserved = "RESERVED"
)

const (
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// ── Checkout settlement kinds ──

const (
	SettlementSingle     = "SINGLE"
	SettlementSplit      = "SPLIT"
	SettlementRoomCharge = "ROOM_CHARGE"
	SettlementSubsidized = "SUBSIDIZED"
)

// ── Roles and service modes ──

const (
	StaffRoleOwner   = "OWNER"
	StaffRoleManager = "MANAGER"
	StaffRoleCashier = "CASHIER"
	StaffRoleWaiter  = "WAITER"
)

const (
	ServiceModeTable        = "TABLE"
	ServiceModeDirectSale   = "DIRECT_SALE"
	ServiceModeCollectivity = "COLLECTIVITY"
)

// ── Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash        = "CASH"
	PaymentMethodCard        = "CARD"
	PaymentMethodMobileMoney = "MOBILE_MONEY"
	PaymentMethodRoomCharge  = "ROOM_CHARGE"
	// Collectivity settlements book the program share and the beneficiary
	// share as separate payment rows so they still sum to the order total.
	PaymentMethodSubsidy           = "SUBSIDY"
	PaymentMethodBeneficiaryCredit = "BENEFICIARY_CREDIT"
)

const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED_AMOUNT"
)

const (
	BeneficiaryCategoryStudent  = "STUDENT"
	BeneficiaryCategoryStaff    = "STAFF"
	BeneficiaryCategoryExternal = "EXTERNAL"
)
