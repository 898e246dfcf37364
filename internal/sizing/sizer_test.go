package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
)

func TestSizerKellyScenarioBindsPositionCap(t *testing.T) {
	cfg := Config{MaxTotalRiskPct: pct("0.02"), MaxPositionPct: pct("0.1")}
	sizer := NewSizer(cfg, nil)
	stop := pct("95")
	res := sizer.Size("AAPL", pct("100"), &stop, pct("1000"), nil, pct("0.1667"))
	if res.Shares != 1 {
		t.Fatalf("expected 1 share, got %d (warnings=%v)", res.Shares, res.Warnings)
	}
}

func TestSizerCorrelationBlocksWhenNoHeadroom(t *testing.T) {
	corr := NewCorrelationManager(CorrelationConfig{
		SectorOf:             map[string]string{"AAPL": "tech", "MSFT": "tech"},
		MaxSectorExposurePct: pct("0.01"),
	})
	existing := []broker.Position{{Symbol: "AAPL", Quantity: pct("100"), AvgEntryPrice: pct("100"), CurrentPrice: pct("100")}}
	cfg := Config{MaxTotalRiskPct: pct("1"), MaxPositionPct: pct("1")}
	sizer := NewSizer(cfg, corr)
	res := sizer.Size("MSFT", pct("100"), nil, pct("1000"), existing, pct("1"))
	if res.Shares != 0 {
		t.Fatalf("expected 0 shares when sector headroom saturated, got %d", res.Shares)
	}
}

func TestSizerNeverBelowOneUnlessCorrelationBlocks(t *testing.T) {
	cfg := Config{MaxTotalRiskPct: pct("0.02"), MaxPositionPct: pct("0.1")}
	sizer := NewSizer(cfg, nil)
	res := sizer.Size("AAPL", pct("100"), nil, pct("10000"), nil, pct("0.001"))
	if res.Shares < 1 {
		t.Fatalf("expected at least 1 share absent correlation blocking, got %d", res.Shares)
	}
}
