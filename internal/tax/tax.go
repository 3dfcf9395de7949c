// Package tax computes sale totals.  The calculator is pure: it never
// validates its input and never rounds.  Taxes do not compound, every tax
// is applied to the original subtotal, so the order of the slice does not
// change the result.
package tax

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Contribution returns what a single tax adds on top of subtotal.
func Contribution(subtotal decimal.Decimal, t model.Tax) decimal.Decimal {
	if t.IsPercentage {
		return subtotal.Mul(t.Value).Div(hundred)
	}
	return t.Value
}

// Total returns subtotal plus the contribution of every tax.
func Total(subtotal decimal.Decimal, taxes []model.Tax) decimal.Decimal {
	total := subtotal
	for _, t := range taxes {
		total = total.Add(Contribution(subtotal, t))
	}
	return total
}

// Subtotal returns Σ price × amount over the product lines.
func Subtotal(lines []model.SaleProductLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Amount))))
	}
	return sum
}

// Round is the presentation rounding (two decimals, half away from zero).
func Round(v decimal.Decimal) decimal.Decimal { return v.Round(2) }

// Validate checks a tax before it reaches the calculator.
func Validate(t model.Tax) error {
	if strings.TrimSpace(t.Name) == "" {
		return apperr.Validation("tax name is required")
	}
	if t.Value.IsNegative() {
		return apperr.Validation("tax value must be >= 0")
	}
	return nil
}
