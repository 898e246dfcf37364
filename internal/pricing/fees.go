// Package pricing implements the fee-aware edge and expected-value formulas
// for prediction-market contracts (spec.md §4.10). Prices are integer cents
// in [1, 99].
package pricing

import "github.com/shopspring/decimal"

// RoundTripFeeCents is the flat round-trip fee per contract, pinned at 14
// cents (spec.md §4.9, §9 open question: one consistent fee-impact
// denominator — the round-trip figure, not a half-fee approximation).
const RoundTripFeeCents = 14

var (
	hundred = decimal.NewFromInt(100)
)

// Edge holds the raw and fee-adjusted edge for one direction.
type Edge struct {
	Raw          decimal.Decimal
	FeeImpact    decimal.Decimal
	FeeAdjusted  decimal.Decimal
}

// YesEdge computes the fee-adjusted edge for a YES contract at priceCents,
// given modelProb (the model's probability the market resolves YES).
func YesEdge(modelProb decimal.Decimal, priceCents int) Edge {
	price := decimal.NewFromInt(int64(priceCents))
	raw := modelProb.Sub(price.Div(hundred))
	feeImpact := decimal.NewFromInt(RoundTripFeeCents).Div(hundred.Sub(price))
	return Edge{Raw: raw, FeeImpact: feeImpact, FeeAdjusted: raw.Sub(feeImpact)}
}

// NoEdge computes the fee-adjusted edge for a NO contract at priceCents
// (price is still the YES price convention; NO costs 100-price).
func NoEdge(modelProb decimal.Decimal, priceCents int) Edge {
	price := decimal.NewFromInt(int64(priceCents))
	raw := decimal.NewFromInt(1).Sub(modelProb).Sub(hundred.Sub(price).Div(hundred))
	feeImpact := decimal.NewFromInt(RoundTripFeeCents).Div(price)
	return Edge{Raw: raw, FeeImpact: feeImpact, FeeAdjusted: raw.Sub(feeImpact)}
}

// ExpectedValueCents computes expected value per contract in cents for a YES
// position: p*(100-price-F_exit) - (1-p)*(price+F_entry). Entry/exit fee
// splits default to half the round-trip fee each when zero.
func ExpectedValueCents(modelProb decimal.Decimal, priceCents int, feeEntryCents, feeExitCents decimal.Decimal) decimal.Decimal {
	if feeEntryCents.IsZero() && feeExitCents.IsZero() {
		half := decimal.NewFromInt(RoundTripFeeCents).Div(decimal.NewFromInt(2))
		feeEntryCents, feeExitCents = half, half
	}
	price := decimal.NewFromInt(int64(priceCents))
	winPayout := hundred.Sub(price).Sub(feeExitCents)
	lossCost := price.Add(feeEntryCents)
	return modelProb.Mul(winPayout).Sub(decimal.NewFromInt(1).Sub(modelProb).Mul(lossCost))
}

// MinEdgeThreshold is the default minimum fee-adjusted edge required for a
// trade recommendation (spec.md §4.10: "default 5%").
var MinEdgeThreshold = decimal.NewFromFloat(0.05)

// Recommend reports whether a YES/NO direction clears the edge bar and has
// positive Kelly sizing.
func Recommend(edge Edge, kellyFraction decimal.Decimal, minEdge decimal.Decimal) bool {
	if minEdge.IsZero() {
		minEdge = MinEdgeThreshold
	}
	return edge.FeeAdjusted.GreaterThanOrEqual(minEdge) && kellyFraction.IsPositive()
}
