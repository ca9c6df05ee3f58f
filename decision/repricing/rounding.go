package repricing

import "github.com/shopspring/decimal"

// RoundUp raises price to the next multiple of unit. A non-positive unit disables it.
// Exact multiples are returned unchanged, so the operation is idempotent.
func RoundUp(price, unit decimal.Decimal) decimal.Decimal {
	if !unit.IsPositive() {
		return price
	}
	q, r := price.QuoRem(unit, 0)
	if r.IsPositive() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q.Mul(unit)
}

// Finalize rounds to the nearest whole currency unit, ties to even.
func Finalize(price decimal.Decimal) decimal.Decimal {
	return price.RoundBank(0)
}
