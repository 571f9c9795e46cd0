// Package core holds the ledger's data model: accounts, categories,
// movements, bill reminders, and the delta arithmetic that keeps account
// balances consistent with the movement log.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minAmount is the smallest accepted movement amount (0.01).
var minAmount = decimal.New(1, -2)

// ValidateAmount checks that d is a usable money amount: at least 0.01 and
// with at most two fractional digits. Balances may go negative, amounts
// never do; the sign comes from the movement kind.
func ValidateAmount(d decimal.Decimal) error {
	if d.LessThan(minAmount) {
		return invalid("amount", "must be at least 0.01")
	}
	if d.Exponent() < -2 {
		return invalid("amount", "has more than two decimal places")
	}
	return nil
}

// ParseAmount parses a user-supplied amount string. Both dot (12.34) and
// comma (12,34) decimal separators are accepted.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.Zero, invalid("amount", "is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid("amount", "is not a number")
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ParseBalance parses a user-supplied account balance. Unlike amounts,
// balances may be zero or negative; only the two-decimal scale is enforced.
func ParseBalance(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid("balance", "is not a number")
	}
	if d.Exponent() < -2 {
		return decimal.Zero, invalid("balance", "has more than two decimal places")
	}
	return d, nil
}

// Cents converts a scale-2 decimal to integer cents for storage. Amounts are
// validated to two fractional digits before they reach the store, so the
// shift is exact.
func Cents(d decimal.Decimal) int64 {
	return d.Shift(2).IntPart()
}

// FromCents converts stored integer cents back to a decimal amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
