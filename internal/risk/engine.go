package risk

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
)

// Engine runs the ordered pre-trade check pipeline (spec.md §4.2). It is the
// single-writer owner of SpendTracker/LossTracker/CircuitBreaker and the kill
// switch; readers get a consistent view via CheckOrder's inputs, which are
// supplied fresh by the caller on every invocation.
type Engine struct {
	mu sync.RWMutex

	limits Limits
	dryRun bool

	killSwitch bool

	spend   *SpendTracker
	loss    *LossTracker
	breaker *CircuitBreaker
}

func NewEngine(limits Limits, breaker *CircuitBreaker, initialEquity decimal.Decimal) *Engine {
	return &Engine{
		limits:  limits,
		spend:   NewSpendTracker(),
		loss:    NewLossTracker(initialEquity),
		breaker: breaker,
	}
}

// SetKillSwitch toggles the global halt.
func (e *Engine) SetKillSwitch(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killSwitch = on
}

// KillSwitchActive reports the current kill-switch state.
func (e *Engine) KillSwitchActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.killSwitch
}

// SetDryRun toggles dry-run mode; an APPROVE-eligible order is downgraded to
// DRY_RUN and never contacts the broker.
func (e *Engine) SetDryRun(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dryRun = on
}

// UpdateLimits swaps the active limits snapshot (e.g. after a config reload
// the caller orchestrates explicitly; the engine itself never hot-reloads).
func (e *Engine) UpdateLimits(l Limits) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limits = l
}

// Limits returns the active limits snapshot.
func (e *Engine) Limits() Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits
}

func (e *Engine) snapshotState() (Limits, bool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits, e.dryRun, e.killSwitch
}

// CheckOrder runs the ordered pipeline against a fresh snapshot of positions,
// market price, and account equity. Deterministic and fail-safe: any check
// that cannot be evaluated is treated as a failure (no recovery, no partial
// credit).
func (e *Engine) CheckOrder(intent broker.OrderIntent, positions []broker.Position, marketPrice, accountEquity decimal.Decimal) Decision {
	limits, dryRun, killSwitch := e.snapshotState()

	var d Decision
	pass := func(name string) { d.Passed = append(d.Passed, CheckResult{Name: name}) }
	fail := func(name, code string) {
		d.Failed = append(d.Failed, CheckResult{Name: name, Code: code})
	}
	warn := func(msg string) { d.Warnings = append(d.Warnings, msg) }

	// 1. Kill switch.
	if killSwitch {
		fail("kill_switch", CodeKillSwitchActive)
		d.Action = ActionReject
		return d
	}
	pass("kill_switch")

	// 2. Circuit breaker.
	switch e.breaker.State() {
	case BreakerOpen:
		fail("circuit_breaker", CodeCircuitBreaker)
		d.Action = ActionReject
		return d
	case BreakerHalfOpen:
		warn("circuit breaker half-open: proceeding with caution")
		pass("circuit_breaker")
	default:
		pass("circuit_breaker")
	}

	// 3. Allow/blocklist.
	if ok, code := limits.Allowed(intent.Symbol); !ok {
		fail("symbol_list", code)
	} else {
		pass("symbol_list")
	}

	// Existing position for this symbol, if any.
	var existing *broker.Position
	var grossExposure decimal.Decimal
	for i := range positions {
		grossExposure = grossExposure.Add(positions[i].MarketValue())
		if positions[i].Symbol == intent.Symbol {
			p := positions[i]
			existing = &p
		}
	}

	orderNotional := marketPrice.Mul(decimal.NewFromInt(intent.Quantity))
	if intent.LimitPrice != nil && intent.Type == broker.OrderTypeLimit {
		orderNotional = intent.LimitPrice.Mul(decimal.NewFromInt(intent.Quantity))
	}

	// Without a positive market price the notional, exposure and
	// concentration checks below cannot be evaluated: fail-safe.
	if !marketPrice.IsPositive() {
		fail("market_price", "MARKET_PRICE_UNAVAILABLE")
	}

	// 4. Order notional / order shares.
	if !limits.MaxOrderNotional.IsZero() && orderNotional.GreaterThan(limits.MaxOrderNotional) {
		fail("order_notional", CodeOrderNotionalExceeded)
	} else {
		pass("order_notional")
	}
	if limits.MaxOrderShares > 0 && intent.Quantity > limits.MaxOrderShares {
		fail("order_shares", CodeOrderSharesExceeded)
	} else {
		pass("order_shares")
	}

	// 5. New position shares / notional.
	newQty := decimal.NewFromInt(intent.Quantity)
	if existing != nil {
		if intent.Side == broker.SideBuy {
			newQty = existing.Quantity.Add(newQty)
		} else {
			newQty = existing.Quantity.Sub(newQty)
		}
	} else if intent.Side == broker.SideSell {
		newQty = newQty.Neg()
	}
	newPositionNotional := newQty.Abs().Mul(marketPrice)

	if limits.MaxPositionShares > 0 && newQty.Abs().GreaterThan(decimal.NewFromInt(limits.MaxPositionShares)) {
		fail("position_shares", CodePositionSharesExceeded)
	} else {
		pass("position_shares")
	}
	if !limits.MaxPositionNotional.IsZero() && newPositionNotional.GreaterThan(limits.MaxPositionNotional) {
		fail("position_notional", CodePositionNotionalExceeded)
	} else {
		pass("position_notional")
	}

	// 6. Total exposure.
	buyNotional := decimal.Zero
	if intent.Side == broker.SideBuy {
		buyNotional = orderNotional
	}
	totalExposure := grossExposure.Add(buyNotional)
	if !limits.MaxTotalExposure.IsZero() && totalExposure.GreaterThan(limits.MaxTotalExposure) {
		fail("total_exposure", CodeTotalExposureExceeded)
	} else {
		pass("total_exposure")
	}

	// 7. Concentration (skipped if equity <= 0).
	if accountEquity.IsPositive() {
		concentration := newPositionNotional.Div(accountEquity)
		if !limits.MaxConcentrationPct.IsZero() && concentration.GreaterThan(limits.MaxConcentrationPct) {
			fail("concentration", CodeConcentrationExceeded)
		} else {
			pass("concentration")
		}
	} else {
		pass("concentration")
	}

	// 8. Daily/weekly loss and drawdown.
	e.loss.UpdateEquity(accountEquity)
	lossSnap := e.loss.Snapshot(accountEquity)
	if !limits.MaxDailyLossUSD.IsZero() && lossSnap.DailyPnL.IsNegative() && lossSnap.DailyPnL.Abs().GreaterThan(limits.MaxDailyLossUSD) {
		fail("daily_loss", CodeDailyLossLimit)
	} else {
		pass("daily_loss")
	}
	if !limits.MaxWeeklyLossUSD.IsZero() && lossSnap.WeeklyPnL.IsNegative() && lossSnap.WeeklyPnL.Abs().GreaterThan(limits.MaxWeeklyLossUSD) {
		fail("weekly_loss", CodeWeeklyLossLimit)
	} else {
		pass("weekly_loss")
	}
	if !limits.MaxDrawdownPct.IsZero() && lossSnap.DrawdownPct.GreaterThan(limits.MaxDrawdownPct) {
		fail("drawdown", CodeDrawdownLimit)
	} else {
		pass("drawdown")
	}

	// 9. Spend limits (buys only).
	if intent.Side == broker.SideBuy {
		dailyRemain, weeklyRemain, monthlyRemain := e.spend.Remaining(limits)
		if orderNotional.GreaterThan(dailyRemain) {
			fail("daily_spend", CodeDailySpendLimit)
		} else {
			pass("daily_spend")
		}
		if orderNotional.GreaterThan(weeklyRemain) {
			fail("weekly_spend", CodeWeeklySpendLimit)
		} else {
			pass("weekly_spend")
		}
		if orderNotional.GreaterThan(monthlyRemain) {
			fail("monthly_spend", CodeMonthlySpendLimit)
		} else {
			pass("monthly_spend")
		}
	}

	if len(d.Failed) > 0 {
		d.Action = ActionReject
		return d
	}

	if dryRun {
		d.Action = ActionDryRun
		return d
	}

	requiresApproval := false
	if !limits.ApprovalNotionalThreshold.IsZero() && orderNotional.GreaterThan(limits.ApprovalNotionalThreshold) {
		requiresApproval = true
		d.ApprovalReason = "order notional exceeds approval threshold"
	}
	if !limits.ApprovalLossThreshold.IsZero() && lossSnap.DailyPnL.IsNegative() && lossSnap.DailyPnL.Abs().GreaterThan(limits.ApprovalLossThreshold) {
		requiresApproval = true
		if d.ApprovalReason != "" {
			d.ApprovalReason += "; "
		}
		d.ApprovalReason += "daily loss exceeds approval threshold"
	}
	if requiresApproval {
		d.Action = ActionRequireApproval
		return d
	}

	d.Action = ActionApprove
	return d
}

// RecordFill updates SpendTracker (for buys) and the circuit breaker on a
// successful submission. slippagePct is the realized execution slippage
// relative to the reference price, 0 if unknown.
func (e *Engine) RecordFill(intent broker.OrderIntent, fillPrice decimal.Decimal, slippagePct decimal.Decimal) {
	if intent.Side == broker.SideBuy {
		e.spend.Record(fillPrice.Mul(decimal.NewFromInt(intent.Quantity)))
	}
	e.breaker.RecordSuccess(slippagePct)
}

// RecordReject records a rejection sample against the circuit breaker.
func (e *Engine) RecordReject() {
	e.breaker.RecordFailure()
}

// LossSnapshot exposes the current loss/drawdown view for callers (e.g. the
// drawdown protector) that need it outside of CheckOrder.
func (e *Engine) LossSnapshot(currentEquity decimal.Decimal) LossSnapshot {
	return e.loss.Snapshot(currentEquity)
}
