// Package sizing implements Kelly-based position sizing combined with
// correlation/sector exposure caps (spec.md §4.5, §4.6).
package sizing

import (
	"github.com/shopspring/decimal"
)

type KellyVariant string

const (
	KellyFull             KellyVariant = "FULL"
	KellyHalf             KellyVariant = "HALF"
	KellyQuarter          KellyVariant = "QUARTER"
	KellyVolatilityAdjusted KellyVariant = "VOLATILITY_ADJUSTED"
)

const defaultMinSampleTrades = 30

// TradeStats summarizes historical performance feeding the Kelly formula.
type TradeStats struct {
	WinRate     decimal.Decimal // p
	AvgWin      decimal.Decimal
	AvgLoss     decimal.Decimal // positive magnitude
	SampleCount int
	RealizedVol decimal.Decimal
}

// KellyResult carries the computed fraction plus a confidence scalar and an
// optional warning when the sample is thin.
type KellyResult struct {
	Fraction   decimal.Decimal
	Confidence decimal.Decimal
	Warning    string
}

// Fraction computes f* = (p*b - (1-p)) / b clamped to [0, maxPositionPct],
// then applies the requested variant. A sample smaller than minSampleTrades
// (0 -> default 30) scales confidence linearly and attaches a warning.
func Fraction(stats TradeStats, variant KellyVariant, maxPositionPct decimal.Decimal, minSampleTrades int) KellyResult {
	if minSampleTrades <= 0 {
		minSampleTrades = defaultMinSampleTrades
	}

	if stats.AvgLoss.IsZero() || stats.SampleCount == 0 {
		return KellyResult{Fraction: decimal.Zero, Confidence: decimal.Zero, Warning: "insufficient trade statistics for Kelly sizing"}
	}

	b := stats.AvgWin.Div(stats.AvgLoss)
	p := stats.WinRate
	fStar := p.Mul(b).Sub(decimal.NewFromInt(1).Sub(p)).Div(b)

	if fStar.IsNegative() {
		fStar = decimal.Zero
	}
	if !maxPositionPct.IsZero() && fStar.GreaterThan(maxPositionPct) {
		fStar = maxPositionPct
	}

	switch variant {
	case KellyHalf:
		fStar = fStar.Mul(decimal.NewFromFloat(0.5))
	case KellyQuarter:
		fStar = fStar.Mul(decimal.NewFromFloat(0.25))
	case KellyVolatilityAdjusted:
		half := fStar.Mul(decimal.NewFromFloat(0.5))
		if stats.RealizedVol.IsPositive() {
			targetVol := decimal.NewFromFloat(0.02)
			ratio := targetVol.Div(stats.RealizedVol)
			cap := decimal.NewFromFloat(2.0)
			if ratio.GreaterThan(cap) {
				ratio = cap
			}
			fStar = half.Mul(ratio)
		} else {
			fStar = half
		}
	}

	res := KellyResult{Fraction: fStar, Confidence: decimal.NewFromInt(1)}
	if stats.SampleCount < minSampleTrades {
		res.Confidence = decimal.NewFromInt(int64(stats.SampleCount)).Div(decimal.NewFromInt(int64(minSampleTrades)))
		res.Fraction = fStar.Mul(res.Confidence)
		res.Warning = "Kelly confidence scaled down: sample below minimum trade count"
	}
	return res
}
