// Package moneyx centralizes decimal arithmetic helpers so that no monetary
// comparison in the risk/drawdown/sizing/pnl/thesis/pricing packages ever
// touches a float64.
package moneyx

import "github.com/shopspring/decimal"

// Display rounds to two fractional digits, the convention used for every
// user-facing money value (equity, P&L, spend totals).
func Display(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Abs returns the absolute value of d.
func Abs(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.Neg()
	}
	return d
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Clamp bounds d to [lo, hi]. If hi < lo, the result is lo when d < lo and
// hi otherwise.
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// PctOf returns part/whole, or zero if whole is zero or negative — the
// pattern used throughout risk checks that are "skipped if equity <= 0".
func PctOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return part.Div(whole)
}

// Zero and common small constants, to avoid re-parsing string literals.
var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	Hundred = decimal.NewFromInt(100)
)
