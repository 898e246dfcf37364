package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func pct(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestKellySizingScenario(t *testing.T) {
	stats := TradeStats{
		WinRate:     pct("0.60"),
		AvgWin:      pct("150"),
		AvgLoss:     pct("100"),
		SampleCount: 50,
	}
	res := Fraction(stats, KellyHalf, decimal.Zero, 30)
	// b = 1.5, f* = (0.6*1.5 - 0.4)/1.5 = (0.9-0.4)/1.5 = 0.3333
	// half-Kelly = 0.1667
	if res.Fraction.LessThan(pct("0.16")) || res.Fraction.GreaterThan(pct("0.17")) {
		t.Fatalf("expected half-Kelly ~0.1667, got %s", res.Fraction)
	}
}

func TestKellyThinSampleScalesConfidence(t *testing.T) {
	stats := TradeStats{WinRate: pct("0.60"), AvgWin: pct("150"), AvgLoss: pct("100"), SampleCount: 15}
	res := Fraction(stats, KellyFull, decimal.Zero, 30)
	if res.Warning == "" {
		t.Fatal("expected a warning for thin sample")
	}
	if !res.Confidence.Equal(pct("0.5")) {
		t.Fatalf("expected confidence 0.5 (15/30), got %s", res.Confidence)
	}
}

func TestKellyClampedToMaxPositionPct(t *testing.T) {
	stats := TradeStats{WinRate: pct("0.9"), AvgWin: pct("300"), AvgLoss: pct("50"), SampleCount: 100}
	res := Fraction(stats, KellyFull, pct("0.1"), 30)
	if res.Fraction.GreaterThan(pct("0.1")) {
		t.Fatalf("expected fraction clamped to 0.1, got %s", res.Fraction)
	}
}

func TestKellyNegativeEdgeClampsToZero(t *testing.T) {
	stats := TradeStats{WinRate: pct("0.2"), AvgWin: pct("100"), AvgLoss: pct("100"), SampleCount: 100}
	res := Fraction(stats, KellyFull, decimal.Zero, 30)
	if !res.Fraction.IsZero() {
		t.Fatalf("expected zero fraction for negative edge, got %s", res.Fraction)
	}
}
