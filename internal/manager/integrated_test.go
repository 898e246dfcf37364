package manager

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/drawdown"
	"github.com/tradingcore/riskcore/internal/events"
	"github.com/tradingcore/riskcore/internal/risk"
	"github.com/tradingcore/riskcore/internal/sizing"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func newTestManagerWithBus(t *testing.T, equity decimal.Decimal, bus *events.Bus) *Manager {
	t.Helper()
	limits := risk.Limits{
		MaxOrderNotional:    d("1000000"),
		MaxOrderShares:      1000000,
		MaxPositionShares:   1000000,
		MaxPositionNotional: d("1000000"),
		MaxTotalExposure:    d("1000000"),
		MaxConcentrationPct: d("1"),
		MaxDailyLossUSD:     d("5000"),
		MaxWeeklyLossUSD:    d("10000"),
		MaxDrawdownPct:      d("0.5"),
	}
	breaker := risk.NewCircuitBreaker(d("0.9"), d("0.9"), 20)
	engine := risk.NewEngine(limits, breaker, equity)
	sizer := sizing.NewSizer(sizing.Config{
		PositionFraction: d("0.1"),
		MaxTotalRiskPct:  d("0.1"),
		MaxPositionPct:   d("0.5"),
	}, nil)
	protector := drawdown.NewProtector(drawdown.Thresholds{
		Caution: d("0.05"), Warning: d("0.08"), Critical: d("0.12"), Emergency: d("0.15"),
	})
	return New(engine, sizer, protector, nil, nil, bus, nil)
}

func newTestManager(t *testing.T, equity decimal.Decimal) *Manager {
	t.Helper()
	return newTestManagerWithBus(t, equity, nil)
}

func TestEvaluateApprovesUnderNormalConditions(t *testing.T) {
	m := newTestManager(t, d("100000"))
	req := TradeRequest{
		Intent: broker.OrderIntent{
			Symbol: "ACME",
			Side:   broker.SideBuy,
			Type:   broker.OrderTypeMarket,
		},
		Account:     broker.AccountSnapshot{Equity: d("100000")},
		MarketPrice: d("50"),
	}
	got := m.Evaluate(req)
	if got.DrawdownLevel != drawdown.LevelNormal {
		t.Fatalf("expected NORMAL, got %s", got.DrawdownLevel)
	}
	if got.RecommendedShares <= 0 {
		t.Fatalf("expected positive recommended shares, got %d", got.RecommendedShares)
	}
	if got.Action != risk.ActionApprove {
		t.Fatalf("expected APPROVE, got %s: %+v", got.Action, got.Failed)
	}
}

func TestEvaluateAppliesDrawdownSizingMultiplier(t *testing.T) {
	m := newTestManager(t, d("100000"))
	// Force a CRITICAL drawdown: the peak (100000) is the engine's initial
	// equity, so evaluating at 86000 registers a 14% dip.
	req := TradeRequest{
		Intent: broker.OrderIntent{
			Symbol: "ACME",
			Side:   broker.SideBuy,
			Type:   broker.OrderTypeMarket,
		},
		Account:     broker.AccountSnapshot{Equity: d("86000")}, // 14% drawdown -> CRITICAL
		MarketPrice: d("50"),
	}
	got := m.Evaluate(req)
	if got.DrawdownLevel != drawdown.LevelCritical {
		t.Fatalf("expected CRITICAL, got %s", got.DrawdownLevel)
	}
	// Recovery arms this same call (first entry into CRITICAL), so the
	// reduced-sizing factor (0.5 by default) stacks onto the base CRITICAL
	// multiplier (0.25).
	if !got.SizingMultiplier.Equal(d("0.125")) {
		t.Fatalf("expected 0.125x multiplier, got %s", got.SizingMultiplier)
	}
}

func TestEvaluateBlocksNewPositionsInRecovery(t *testing.T) {
	m := newTestManager(t, d("100000"))
	intent := broker.OrderIntent{Symbol: "ACME", Side: broker.SideBuy, Type: broker.OrderTypeMarket}

	// Drive equity down to EMERGENCY, which arms the recovery cooldown.
	m.Evaluate(TradeRequest{Intent: intent, Account: broker.AccountSnapshot{Equity: d("80000")}, MarketPrice: d("50")})

	// A subsequent opening order, even after equity ticks back up, should be
	// blocked while recovery is still in effect.
	got := m.Evaluate(TradeRequest{Intent: intent, Account: broker.AccountSnapshot{Equity: d("90000")}, MarketPrice: d("50")})
	if got.RecommendedShares != 0 {
		t.Fatalf("expected 0 recommended shares during recovery, got %d", got.RecommendedShares)
	}
}

func TestEvaluatePublishesDrawdownLevelChangeOnTransition(t *testing.T) {
	bus := events.NewBus(nil)
	var seen []events.DrawdownLevelChange
	bus.Subscribe(events.KindDrawdownLevelChange, func(ev events.Event) {
		seen = append(seen, ev.Payload.(events.DrawdownLevelChange))
	})

	m := newTestManagerWithBus(t, d("100000"), bus)
	intent := broker.OrderIntent{Symbol: "ACME", Side: broker.SideBuy, Type: broker.OrderTypeMarket}

	m.Evaluate(TradeRequest{Intent: intent, Account: broker.AccountSnapshot{Equity: d("100000")}, MarketPrice: d("50")})
	if len(seen) != 1 || seen[0].New != string(drawdown.LevelNormal) {
		t.Fatalf("expected one NORMAL transition event, got %+v", seen)
	}

	m.Evaluate(TradeRequest{Intent: intent, Account: broker.AccountSnapshot{Equity: d("100000")}, MarketPrice: d("50")})
	if len(seen) != 1 {
		t.Fatalf("expected no new event while level is unchanged, got %d events", len(seen))
	}

	m.Evaluate(TradeRequest{Intent: intent, Account: broker.AccountSnapshot{Equity: d("86000")}, MarketPrice: d("50")})
	if len(seen) != 2 || seen[1].Old != string(drawdown.LevelNormal) || seen[1].New != string(drawdown.LevelCritical) {
		t.Fatalf("expected a NORMAL->CRITICAL transition event, got %+v", seen)
	}
}

func TestEvaluatePublishesLiquidationRequiredOnCriticalWithPositions(t *testing.T) {
	bus := events.NewBus(nil)
	var liq []events.LiquidationRequired
	bus.Subscribe(events.KindLiquidationRequired, func(ev events.Event) {
		liq = append(liq, ev.Payload.(events.LiquidationRequired))
	})

	m := newTestManagerWithBus(t, d("100000"), bus)
	positions := []broker.Position{
		{Symbol: "ACME", Quantity: d("100"), AvgEntryPrice: d("60"), CurrentPrice: d("50")},
	}
	intent := broker.OrderIntent{Symbol: "ACME", Side: broker.SideSell, Type: broker.OrderTypeMarket}

	m.Evaluate(TradeRequest{Intent: intent, Positions: positions, Account: broker.AccountSnapshot{Equity: d("100000")}, MarketPrice: d("50")})
	if len(liq) != 0 {
		t.Fatalf("expected no liquidation event at NORMAL, got %+v", liq)
	}

	m.Evaluate(TradeRequest{Intent: intent, Positions: positions, Account: broker.AccountSnapshot{Equity: d("86000")}, MarketPrice: d("50")})
	if len(liq) != 1 {
		t.Fatalf("expected one liquidation event on CRITICAL transition, got %d", len(liq))
	}
	if liq[0].Level != string(drawdown.LevelCritical) || len(liq[0].Orders) != 1 {
		t.Fatalf("expected CRITICAL liquidation plan with 1 order, got %+v", liq[0])
	}

	m.Evaluate(TradeRequest{Intent: intent, Positions: positions, Account: broker.AccountSnapshot{Equity: d("86000")}, MarketPrice: d("50")})
	if len(liq) != 1 {
		t.Fatalf("expected no new liquidation event while level is unchanged, got %d", len(liq))
	}
}

// TestEvaluateRejectsOnSectorHeadroomExhaustion reproduces the sector-limit
// scenario: equity=1000, an existing AAPL position worth 250, both AAPL and
// MSFT in the technology sector, max_sector_exposure_pct=0.30 (cap = 300).
// Proposing MSFT for a 1000-notional request leaves only 50 of sector
// headroom, so the sizer clamps to 0 shares and Evaluate must REJECT rather
// than silently approve a zero-quantity order.
func TestEvaluateRejectsOnSectorHeadroomExhaustion(t *testing.T) {
	limits := risk.Limits{
		MaxOrderNotional:    d("1000000"),
		MaxOrderShares:      1000000,
		MaxPositionShares:   1000000,
		MaxPositionNotional: d("1000000"),
		MaxTotalExposure:    d("1000000"),
		MaxConcentrationPct: d("1"),
	}
	breaker := risk.NewCircuitBreaker(d("0.9"), d("0.9"), 20)
	engine := risk.NewEngine(limits, breaker, d("1000"))
	corr := sizing.NewCorrelationManager(sizing.CorrelationConfig{
		SectorOf:             map[string]string{"AAPL": "technology", "MSFT": "technology"},
		MaxSectorExposurePct: d("0.30"),
	})
	sizer := sizing.NewSizer(sizing.Config{PositionFraction: d("1")}, corr)
	protector := drawdown.NewProtector(drawdown.Thresholds{
		Caution: d("0.05"), Warning: d("0.08"), Critical: d("0.12"), Emergency: d("0.15"),
	})
	m := New(engine, sizer, protector, corr, nil, nil, nil)

	positions := []broker.Position{
		{Symbol: "AAPL", Quantity: d("2.5"), AvgEntryPrice: d("100"), CurrentPrice: d("100")}, // 250 notional
	}
	req := TradeRequest{
		Intent: broker.OrderIntent{
			Symbol: "MSFT",
			Side:   broker.SideBuy,
			Type:   broker.OrderTypeMarket,
		},
		Positions:   positions,
		Account:     broker.AccountSnapshot{Equity: d("1000")},
		MarketPrice: d("100"), // fraction 1 * equity 1000 / entry 100 = 10 shares requested
	}

	got := m.Evaluate(req)
	if got.Action != risk.ActionReject {
		t.Fatalf("expected REJECT on sector headroom exhaustion, got %s: %+v", got.Action, got.Failed)
	}
	if got.RecommendedShares != 0 {
		t.Fatalf("expected 0 recommended shares, got %d", got.RecommendedShares)
	}
	var sawCode bool
	for _, f := range got.Failed {
		if f.Code == risk.CodeCorrelationHeadroomExhausted {
			sawCode = true
		}
	}
	if !sawCode {
		t.Fatalf("expected CORRELATION_HEADROOM_EXHAUSTED in failed checks, got %+v", got.Failed)
	}
}
