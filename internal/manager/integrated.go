// Package manager implements IntegratedRiskManager, the single entry point
// for "evaluate a trade" (spec.md §2). It is a thin composition over the
// subsystems it exclusively owns: RiskEngine, PositionSizer,
// DrawdownProtector, CorrelationManager, PnLTracker. Every other package in
// this module is built to be called directly; this one exists purely to
// sequence those calls the way spec.md §2's data-flow paragraph describes,
// mirroring the teacher's internal/app.App composition style of a single
// struct owning every subsystem behind a small surface.
package manager

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/drawdown"
	"github.com/tradingcore/riskcore/internal/events"
	"github.com/tradingcore/riskcore/internal/pnl"
	"github.com/tradingcore/riskcore/internal/risk"
	"github.com/tradingcore/riskcore/internal/sizing"
)

// TradeRequest is the caller-supplied description of a desired trade, before
// sizing or risk checks run.
type TradeRequest struct {
	Intent        broker.OrderIntent
	StopLoss      *decimal.Decimal
	KellyFraction decimal.Decimal // 0 if no edge/Kelly model is in play
	Positions     []broker.Position
	Account       broker.AccountSnapshot
	MarketPrice   decimal.Decimal
}

// TradeDecision augments risk.Decision with the sizer/drawdown view that
// produced the recommended quantity.
type TradeDecision struct {
	risk.Decision
	DrawdownLevel     drawdown.Level
	SizingMultiplier  decimal.Decimal
	RecommendedShares int64
	SizingWarnings    []string
}

// Manager is the single IntegratedRiskManager instance for one account.
type Manager struct {
	risk        *risk.Engine
	sizer       *sizing.Sizer
	drawdown    *drawdown.Protector
	correlation *sizing.CorrelationManager
	pnl         *pnl.Tracker
	bus         *events.Bus

	mu        sync.Mutex
	lastLevel drawdown.Level

	logger *slog.Logger
}

func New(riskEngine *risk.Engine, sizer *sizing.Sizer, protector *drawdown.Protector, correlation *sizing.CorrelationManager, pnlTracker *pnl.Tracker, bus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		risk:        riskEngine,
		sizer:       sizer,
		drawdown:    protector,
		correlation: correlation,
		pnl:         pnlTracker,
		bus:         bus,
		logger:      logger.With("component", "integrated_risk_manager"),
	}
}

// Evaluate runs the full data flow from spec.md §2: drawdown level ->
// shares from the sizer (correlation headroom clamp included) -> drawdown
// sizing multiplier -> pre-trade pipeline -> final decision.
func (m *Manager) Evaluate(req TradeRequest) TradeDecision {
	lossSnap := m.risk.LossSnapshot(req.Account.Equity)
	limits := m.risk.Limits()
	lossLimitBreached := breachesLossLimit(lossSnap, limits)

	ddState := m.drawdown.Evaluate(lossSnap.PeakEquity, req.Account.Equity, lossLimitBreached)
	m.publishLevelChange(ddState.Level, req.Positions)

	entry := req.MarketPrice
	if req.Intent.LimitPrice != nil {
		entry = *req.Intent.LimitPrice
	}

	sizeRes := m.sizer.Size(req.Intent.Symbol, entry, req.StopLoss, req.Account.Equity, req.Positions, req.KellyFraction)
	shares := decimal.NewFromInt(sizeRes.Shares).Mul(ddState.SizingMultiplier).IntPart()
	warnings := append([]string(nil), sizeRes.Warnings...)

	if !ddState.NewPositionsAllowed && isOpeningOrder(req.Intent, req.Positions) {
		shares = 0
		warnings = append(warnings, "new positions blocked: drawdown protector at WARNING or above, or in recovery")
	}

	intent := req.Intent
	intent.Quantity = shares

	decision := m.risk.CheckOrder(intent, req.Positions, req.MarketPrice, req.Account.Equity)

	// A correlation/sector headroom block is a hard REJECT, not a silent
	// pass-through of a zero-quantity order: CheckOrder's pipeline has
	// nothing to fail on a 0-share intent, so the sizer's verdict must
	// override the decision directly.
	if sizeRes.BlockedByCorrelation && decision.Action != risk.ActionReject {
		decision.Action = risk.ActionReject
		decision.Failed = append(decision.Failed, risk.CheckResult{Name: "correlation_headroom", Code: risk.CodeCorrelationHeadroomExhausted})
	}

	return TradeDecision{
		Decision:          decision,
		DrawdownLevel:     ddState.Level,
		SizingMultiplier:  ddState.SizingMultiplier,
		RecommendedShares: shares,
		SizingWarnings:    warnings,
	}
}

// RecordFill feeds a confirmed fill into PnLTracker, SpendTracker (buys) and
// the circuit breaker, per spec.md §2's parallel-flow description.
func (m *Manager) RecordFill(intent broker.OrderIntent, fillPrice, slippagePct decimal.Decimal, accountEquity decimal.Decimal) {
	m.risk.RecordFill(intent, fillPrice, slippagePct)
	if m.pnl != nil {
		m.pnl.Update(intent.Symbol, fillPrice, decimal.NewFromInt(intent.Quantity), fillPrice, accountEquity)
	}
}

// RecordReject feeds a broker-rejected submission into the circuit breaker.
func (m *Manager) RecordReject() {
	m.risk.RecordReject()
}

// LiquidationPlan exposes the drawdown protector's liquidation ordering for
// the current level, for callers (e.g. a periodic health monitor) that need
// to act on CRITICAL/EMERGENCY without re-deriving the level themselves.
func (m *Manager) LiquidationPlan(positions []broker.Position) []drawdown.LiquidationOrder {
	return m.drawdown.LiquidationPlan(m.drawdown.CurrentLevel(), positions)
}

// LastObservedLevel returns the most recent drawdown level seen by
// Evaluate, or the zero value if Evaluate has never run.
func (m *Manager) LastObservedLevel() drawdown.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLevel
}

// publishLevelChange emits a DrawdownLevelChange event the first time a
// level is observed and on every subsequent transition, plus a
// LiquidationRequired event when the new level carries a non-empty
// advisory liquidation plan.
func (m *Manager) publishLevelChange(level drawdown.Level, positions []broker.Position) {
	m.mu.Lock()
	prev := m.lastLevel
	changed := prev == "" || prev != level
	m.lastLevel = level
	m.mu.Unlock()

	if !changed || m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{
		Kind:    events.KindDrawdownLevelChange,
		Payload: events.DrawdownLevelChange{Old: string(prev), New: string(level)},
	})

	if plan := m.drawdown.LiquidationPlan(level, positions); len(plan) > 0 {
		m.bus.Publish(events.Event{
			Kind:    events.KindLiquidationRequired,
			Payload: events.LiquidationRequired{Level: string(level), Orders: plan},
		})
	}
}

func breachesLossLimit(snap risk.LossSnapshot, limits risk.Limits) bool {
	if limits.MaxDailyLossUSD.IsPositive() && snap.DailyPnL.IsNegative() && snap.DailyPnL.Abs().GreaterThanOrEqual(limits.MaxDailyLossUSD) {
		return true
	}
	if limits.MaxWeeklyLossUSD.IsPositive() && snap.WeeklyPnL.IsNegative() && snap.WeeklyPnL.Abs().GreaterThanOrEqual(limits.MaxWeeklyLossUSD) {
		return true
	}
	if limits.MaxDrawdownPct.IsPositive() && snap.DrawdownPct.GreaterThanOrEqual(limits.MaxDrawdownPct) {
		return true
	}
	return false
}

func isOpeningOrder(intent broker.OrderIntent, positions []broker.Position) bool {
	for _, p := range positions {
		if p.Symbol != intent.Symbol {
			continue
		}
		if p.IsLong() && intent.Side == broker.SideBuy {
			return false
		}
		if !p.IsLong() && !p.Quantity.IsZero() && intent.Side == broker.SideSell {
			return false
		}
	}
	return true
}
