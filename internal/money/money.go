// Package money holds the fixed-point currency conventions shared by the ledger:
// two fractional digits, rounding half away from zero.
package money

import (
	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
)

// Places is the number of fractional digits of a stored currency amount.
const Places = 2

// Round rounds d to the minor currency unit, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Parse reads a decimal string and validates it as a positive amount.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperrors.Validation("invalid amount %q", s)
	}
	if err := ValidatePositive(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidatePositive rejects zero, negative, and sub-cent amounts.
func ValidatePositive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return apperrors.Validation("amount must be greater than 0")
	}
	if !d.Equal(d.Round(Places)) {
		return apperrors.Validation("amount %s has more than %d fractional digits", d.String(), Places)
	}
	return nil
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
