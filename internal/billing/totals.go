// Package billing holds the pure money math for the POS workflow: order
// totals, split-bill allocation, and beneficiary subsidies.
//
// Amounts are int64 in minor currency units (XOF francs). Percentage rates
// are applied with shopspring/decimal and rounded half-up exactly once, at
// the final multiplication, so rounding never drifts across line items.
package billing

import (
	"github.com/shopspring/decimal"
	"github.com/teranga-pos/api/internal/enum"
)

// Line is one cart line as billing sees it.
type Line struct {
	UnitPrice int64
	Quantity  int32
}

func (l Line) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Rates are the adjustments applied on top of the cart subtotal.
// DiscountValue is a percentage for PERCENTAGE discounts and a minor-unit
// amount for FIXED_AMOUNT discounts. ServiceChargeRate and TaxRate are
// percentages.
type Rates struct {
	DiscountType      string
	DiscountValue     decimal.Decimal
	ServiceChargeRate decimal.Decimal
	TaxRate           decimal.Decimal
}

// Totals is a derived value, recomputed from scratch on every cart change.
// Invariant: GrandTotal = Subtotal - DiscountAmount + ServiceCharge + TaxAmount.
type Totals struct {
	Subtotal       int64 `json:"subtotal"`
	DiscountAmount int64 `json:"discount_amount"`
	ServiceCharge  int64 `json:"service_charge"`
	TaxAmount      int64 `json:"tax_amount"`
	GrandTotal     int64 `json:"grand_total"`
}

// Compute derives order totals from the given lines and rates. It is a pure
// function: same input, same output, no hidden state.
//
// Service charge applies to the discounted subtotal; tax applies to the
// discounted subtotal plus service charge.
func Compute(lines []Line, r Rates) Totals {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.Total()
	}

	var discount int64
	switch r.DiscountType {
	case enum.DiscountTypePercentage:
		discount = applyRate(subtotal, r.DiscountValue)
	case enum.DiscountTypeFixed:
		discount = r.DiscountValue.IntPart()
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}

	base := subtotal - discount
	serviceCharge := applyRate(base, r.ServiceChargeRate)
	tax := applyRate(base+serviceCharge, r.TaxRate)

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		ServiceCharge:  serviceCharge,
		TaxAmount:      tax,
		GrandTotal:     subtotal - discount + serviceCharge + tax,
	}
}

// applyRate multiplies a minor-unit amount by a percentage and rounds
// half-up. This is the only place a fractional amount ever exists.
func applyRate(amount int64, pct decimal.Decimal) int64 {
	if pct.IsZero() || amount == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(pct).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}
