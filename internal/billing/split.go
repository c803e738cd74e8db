package billing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSplitCount = errors.New("split count must be >= 2")
	ErrSplitMismatch     = errors.New("split amounts do not sum to the grand total")
)

// SplitEqual divides total into n parts whose sum is exactly total. The
// remainder francs go to the first payers: 1000 into 3 is 334, 333, 333.
func SplitEqual(total int64, n int) ([]int64, error) {
	if n < 2 {
		return nil, ErrInvalidSplitCount
	}
	base := total / int64(n)
	rem := total % int64(n)
	parts := make([]int64, n)
	for i := range parts {
		parts[i] = base
		if int64(i) < rem {
			parts[i]++
		}
	}
	return parts, nil
}

// ValidateSplit enforces the split invariant before any settlement is
// allowed: every part non-negative and the parts summing back to total.
func ValidateSplit(parts []int64, total int64) error {
	if len(parts) < 2 {
		return ErrInvalidSplitCount
	}
	var sum int64
	for _, p := range parts {
		if p < 0 {
			return ErrSplitMismatch
		}
		sum += p
	}
	if sum != total {
		return ErrSplitMismatch
	}
	return nil
}

// AllocateAdjustment spreads adjustment across sub-bills in proportion to
// their bases, using largest-remainder rounding so the shares sum exactly to
// adjustment. Used by itemized splits to carry discount, service charge and
// tax onto sub-bills without rounding leakage. A negative adjustment
// (net discount) is handled symmetrically.
func AllocateAdjustment(bases []int64, adjustment int64) []int64 {
	shares := make([]int64, len(bases))
	if len(bases) == 0 || adjustment == 0 {
		return shares
	}

	var totalBase int64
	for _, b := range bases {
		totalBase += b
	}
	if totalBase == 0 {
		// Degenerate: spread equally.
		parts, err := SplitEqual(adjustment, len(bases))
		if err != nil {
			shares[0] = adjustment
			return shares
		}
		return parts
	}

	negative := adjustment < 0
	remaining := adjustment
	if negative {
		remaining = -remaining
	}

	type frac struct {
		idx  int
		part decimal.Decimal
	}
	fracs := make([]frac, len(bases))
	var allocated int64
	for i, b := range bases {
		exact := decimal.NewFromInt(remaining).
			Mul(decimal.NewFromInt(b)).
			Div(decimal.NewFromInt(totalBase))
		floor := exact.Floor()
		shares[i] = floor.IntPart()
		allocated += shares[i]
		fracs[i] = frac{idx: i, part: exact.Sub(floor)}
	}

	// Hand the leftover units to the largest fractional parts, index order
	// breaking ties so the result is deterministic.
	for leftover := remaining - allocated; leftover > 0; leftover-- {
		best := -1
		for _, f := range fracs {
			if best == -1 || f.part.GreaterThan(fracs[best].part) {
				best = f.idx
			}
		}
		shares[best]++
		fracs[best].part = decimal.NewFromInt(-1)
	}

	if negative {
		for i := range shares {
			shares[i] = -shares[i]
		}
	}
	return shares
}
