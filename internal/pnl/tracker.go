// Package pnl implements real-time P&L accounting, streak/velocity
// tracking, and the alert catalog of spec.md §4.8.
package pnl

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/events"
)

// Config carries the tunables for alert thresholds and cooldowns.
type Config struct {
	DailyProfitTarget    decimal.Decimal
	DailyLossLimit       decimal.Decimal
	PositionProfitPct    decimal.Decimal
	PositionProfitUSD    decimal.Decimal
	PositionLossPct      decimal.Decimal
	PositionLossUSD      decimal.Decimal
	LosingStreakLimit    int
	WinningStreakLimit   int
	VelocityThresholdPct decimal.Decimal
	VelocityWindow       time.Duration
	CooldownMinutes      int
}

type positionPnL struct {
	entryPrice decimal.Decimal
	qty        decimal.Decimal
}

type equitySample struct {
	at     time.Time
	equity decimal.Decimal
}

// Tracker accumulates unrealized/realized P&L and emits alerts on the bus.
type Tracker struct {
	mu sync.Mutex

	cfg Config
	bus *events.Bus

	realized      decimal.Decimal
	positions     map[string]positionPnL
	streak        int // signed: positive = win streak, negative = loss streak

	dayStartEquity decimal.Decimal
	peakEquity     decimal.Decimal
	troughEquity   decimal.Decimal
	troughPeak     decimal.Decimal
	milestonesHit  map[string]bool
	dayAnchor      time.Time

	samples []equitySample

	lastAlertAt map[string]time.Time // key = type+"|"+scope

	now func() time.Time
}

func NewTracker(cfg Config, bus *events.Bus, initialEquity decimal.Decimal) *Tracker {
	now := time.Now()
	return &Tracker{
		cfg:            cfg,
		bus:            bus,
		positions:      make(map[string]positionPnL),
		dayStartEquity: initialEquity,
		peakEquity:     initialEquity,
		troughEquity:   initialEquity,
		troughPeak:     initialEquity,
		milestonesHit:  make(map[string]bool),
		dayAnchor:      time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		lastAlertAt:    make(map[string]time.Time),
		now:            time.Now,
	}
}

// Update refreshes unrealized P&L for symbol at currentPrice and records an
// equity sample for velocity computation; it may emit alerts.
func (t *Tracker) Update(symbol string, entryPrice, qty, currentPrice, accountEquity decimal.Decimal) {
	t.mu.Lock()
	t.rollDayLocked(accountEquity)
	t.positions[symbol] = positionPnL{entryPrice: entryPrice, qty: qty}

	t.samples = append(t.samples, equitySample{at: t.now(), equity: accountEquity})
	cutoff := t.now().Add(-t.velocityWindow())
	i := 0
	for i < len(t.samples) && t.samples[i].at.Before(cutoff) {
		i++
	}
	t.samples = t.samples[i:]

	if accountEquity.GreaterThan(t.peakEquity) {
		t.peakEquity = accountEquity
		t.emit(t.mkAlert("NEW_EQUITY_HIGH", events.PriorityLow, accountEquity, decimal.Zero, ""))
	}

	unrealizedPnL := currentPrice.Sub(entryPrice).Mul(qty)
	unrealizedPct := decimal.Zero
	if entryPrice.IsPositive() {
		unrealizedPct = currentPrice.Sub(entryPrice).Div(entryPrice)
		if qty.IsNegative() {
			unrealizedPct = unrealizedPct.Neg()
		}
	}

	if !t.cfg.PositionProfitPct.IsZero() && unrealizedPct.GreaterThanOrEqual(t.cfg.PositionProfitPct) {
		t.emit(t.mkAlert("POSITION_PROFIT", events.PriorityLow, unrealizedPct, t.cfg.PositionProfitPct, symbol))
	}
	if !t.cfg.PositionProfitUSD.IsZero() && unrealizedPnL.GreaterThanOrEqual(t.cfg.PositionProfitUSD) {
		t.emit(t.mkAlert("POSITION_PROFIT_USD", events.PriorityLow, unrealizedPnL, t.cfg.PositionProfitUSD, symbol))
	}
	if !t.cfg.PositionLossPct.IsZero() && unrealizedPct.Neg().GreaterThanOrEqual(t.cfg.PositionLossPct) {
		t.emit(t.mkAlert("POSITION_LOSS", events.PriorityMedium, unrealizedPct, t.cfg.PositionLossPct.Neg(), symbol))
	}
	if !t.cfg.PositionLossUSD.IsZero() && unrealizedPnL.Neg().GreaterThanOrEqual(t.cfg.PositionLossUSD) {
		t.emit(t.mkAlert("POSITION_LOSS_USD", events.PriorityMedium, unrealizedPnL, t.cfg.PositionLossUSD.Neg(), symbol))
	}

	t.checkDrawdownRecoveryLocked(accountEquity)
	t.checkVelocityLocked()
	t.checkDailyTargetsLocked(accountEquity)
	t.mu.Unlock()
}

// RecordTrade accumulates realized P&L and updates the win/loss streak.
// Streaks are signed: a win increments toward +inf, a loss decrements
// toward -inf, and a sign change resets the counter to +-1.
func (t *Tracker) RecordTrade(realizedDelta decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.realized = t.realized.Add(realizedDelta)

	switch {
	case realizedDelta.IsPositive():
		if t.streak >= 0 {
			t.streak++
		} else {
			t.streak = 1
		}
	case realizedDelta.IsNegative():
		if t.streak <= 0 {
			t.streak--
		} else {
			t.streak = -1
		}
	}

	if t.cfg.LosingStreakLimit > 0 && t.streak <= -t.cfg.LosingStreakLimit {
		t.emit(t.mkAlert("LOSING_STREAK", events.PriorityHigh, decimal.NewFromInt(int64(-t.streak)), decimal.NewFromInt(int64(t.cfg.LosingStreakLimit)), ""))
	}
	if t.cfg.WinningStreakLimit > 0 && t.streak >= t.cfg.WinningStreakLimit {
		t.emit(t.mkAlert("WINNING_STREAK", events.PriorityLow, decimal.NewFromInt(int64(t.streak)), decimal.NewFromInt(int64(t.cfg.WinningStreakLimit)), ""))
	}
}

func (t *Tracker) Streak() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streak
}

func (t *Tracker) Realized() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.realized
}

// Snapshot is the data a periodic daily-summary notification is built from.
type Snapshot struct {
	DailyPnL decimal.Decimal
	Realized decimal.Decimal
	Streak   int
}

// DailySummary reports the tracker's view of the current trading day,
// without rolling it — rollDayLocked only runs from Update, so a caller
// invoking this right at the day boundary sees the prior day's anchor.
func (t *Tracker) DailySummary(currentEquity decimal.Decimal) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		DailyPnL: currentEquity.Sub(t.dayStartEquity),
		Realized: t.realized,
		Streak:   t.streak,
	}
}

func (t *Tracker) velocityWindow() time.Duration {
	if t.cfg.VelocityWindow <= 0 {
		return 15 * time.Minute
	}
	return t.cfg.VelocityWindow
}

func (t *Tracker) rollDayLocked(currentEquity decimal.Decimal) {
	now := t.now().UTC()
	anchor := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if anchor.After(t.dayAnchor) {
		t.dayAnchor = anchor
		t.dayStartEquity = currentEquity
	}
}

func (t *Tracker) checkDailyTargetsLocked(accountEquity decimal.Decimal) {
	dailyPnL := accountEquity.Sub(t.dayStartEquity)
	if !t.cfg.DailyProfitTarget.IsZero() && dailyPnL.GreaterThanOrEqual(t.cfg.DailyProfitTarget) {
		t.emit(t.mkAlert("DAILY_PROFIT_TARGET", events.PriorityMedium, dailyPnL, t.cfg.DailyProfitTarget, ""))
	}
	if !t.cfg.DailyLossLimit.IsZero() && dailyPnL.Neg().GreaterThanOrEqual(t.cfg.DailyLossLimit) {
		t.emit(t.mkAlert("DAILY_LOSS_LIMIT", events.PriorityCritical, dailyPnL, t.cfg.DailyLossLimit.Neg(), ""))
	}
}

func (t *Tracker) checkVelocityLocked() {
	if len(t.samples) < 2 || !t.cfg.VelocityThresholdPct.IsPositive() {
		return
	}
	start := t.samples[0]
	end := t.samples[len(t.samples)-1]
	if !start.equity.IsPositive() {
		return
	}
	delta := end.equity.Sub(start.equity).Abs().Div(start.equity)
	if delta.GreaterThanOrEqual(t.cfg.VelocityThresholdPct) {
		t.emit(t.mkAlert("PNL_VELOCITY", events.PriorityHigh, delta, t.cfg.VelocityThresholdPct, ""))
	}
}

// checkDrawdownRecoveryLocked tracks a drawdown episode's trough and emits a
// milestone alert each time recovery from that trough crosses 25/50/75/100%
// of the peak-to-trough distance. A new equity peak or trough resets the
// episode and its milestone set.
func (t *Tracker) checkDrawdownRecoveryLocked(currentEquity decimal.Decimal) {
	if !t.peakEquity.IsPositive() {
		return
	}
	if currentEquity.GreaterThanOrEqual(t.peakEquity) {
		t.troughEquity = t.peakEquity
		t.troughPeak = t.peakEquity
		t.milestonesHit = make(map[string]bool)
		if currentEquity.Equal(t.peakEquity) {
			t.emit(t.mkAlert("BREAKEVEN_FROM_DRAWDOWN", events.PriorityLow, currentEquity, t.peakEquity, ""))
		}
		return
	}
	if currentEquity.LessThan(t.troughEquity) {
		t.troughEquity = currentEquity
		t.troughPeak = t.peakEquity
		t.milestonesHit = make(map[string]bool)
		return
	}

	span := t.troughPeak.Sub(t.troughEquity)
	if !span.IsPositive() {
		return
	}
	recovered := currentEquity.Sub(t.troughEquity).Div(span)
	for _, milestone := range []string{"25", "50", "75", "100"} {
		threshold, _ := decimal.NewFromString(milestone)
		threshold = threshold.Div(decimal.NewFromInt(100))
		if recovered.GreaterThanOrEqual(threshold) && !t.milestonesHit[milestone] {
			t.milestonesHit[milestone] = true
			t.emit(t.mkAlert("RECOVERY_MILESTONE_"+milestone, events.PriorityLow, recovered, threshold, ""))
		}
	}
}

func (t *Tracker) mkAlert(alertType string, priority events.Priority, value, threshold decimal.Decimal, symbol string) events.Alert {
	return events.Alert{
		Type:           alertType,
		Priority:       priority,
		Value:          value.StringFixed(2),
		Threshold:      threshold.StringFixed(2),
		Symbol:         symbol,
		OccurredAtUnix: t.now().Unix(),
	}
}

// emit applies cooldown suppression keyed by (type, scope) before publishing.
// Callers hold t.mu.
func (t *Tracker) emit(alert events.Alert) {
	scope := alert.Symbol
	if scope == "" {
		scope = "portfolio"
	}
	key := fmt.Sprintf("%s|%s", alert.Type, scope)

	cooldown := time.Duration(t.cfg.CooldownMinutes) * time.Minute
	if cooldown <= 0 {
		cooldown = 10 * time.Minute
	}
	if last, ok := t.lastAlertAt[key]; ok && t.now().Sub(last) < cooldown {
		return
	}
	t.lastAlertAt[key] = t.now()

	if t.bus != nil {
		t.bus.Publish(events.Event{Kind: events.KindAlert, Payload: alert})
	}
}
