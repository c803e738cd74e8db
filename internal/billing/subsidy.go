package billing

import (
	"github.com/shopspring/decimal"
	"github.com/teranga-pos/api/internal/enum"
)

// Collectivity subsidy percentages by beneficiary category. Students are
// covered at 70%, everyone else at 50%.
var subsidyRates = map[string]decimal.Decimal{
	enum.BeneficiaryCategoryStudent: decimal.NewFromInt(70),
}

var defaultSubsidyRate = decimal.NewFromInt(50)

func SubsidyRate(category string) decimal.Decimal {
	if r, ok := subsidyRates[category]; ok {
		return r
	}
	return defaultSubsidyRate
}

// Subsidy returns the subsidized part of basePrice for the given category,
// rounded half-up to the nearest minor unit.
func Subsidy(basePrice int64, category string) int64 {
	return applyRate(basePrice, SubsidyRate(category))
}

// SubsidyTotals splits an order total between the subsidy program and the
// beneficiary. Invariant: ToPay = Total - Subsidy.
type SubsidyTotals struct {
	Total   int64 `json:"total"`
	Subsidy int64 `json:"subsidy"`
	ToPay   int64 `json:"to_pay"`
}

func ComputeSubsidy(total int64, category string) SubsidyTotals {
	s := Subsidy(total, category)
	return SubsidyTotals{Total: total, Subsidy: s, ToPay: total - s}
}

// CreditCovers reports whether the beneficiary can afford the checkout.
// Callers must block (not merely warn) when this returns false.
func (st SubsidyTotals) CreditCovers(creditBalance int64) bool {
	return st.ToPay <= creditBalance
}
