// Package drawdown implements the multi-level equity-drawdown state machine
// and liquidation-plan ordering described in spec.md §4.4.
package drawdown

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
)

type Level string

const (
	LevelNormal    Level = "NORMAL"
	LevelCaution   Level = "CAUTION"
	LevelWarning   Level = "WARNING"
	LevelCritical  Level = "CRITICAL"
	LevelEmergency Level = "EMERGENCY"
)

// Thresholds are the percentage-drawdown cutpoints that separate levels.
type Thresholds struct {
	Caution   decimal.Decimal
	Warning   decimal.Decimal
	Critical  decimal.Decimal
	Emergency decimal.Decimal

	RecoveryCooldownHours decimal.Decimal
	ReducedSizingPct      decimal.Decimal
	PreserveWinners       bool
}

// State is the protector's assessment for the current equity reading.
type State struct {
	Level              Level
	DrawdownPct        decimal.Decimal
	TradingAllowed     bool
	NewPositionsAllowed bool
	SizingMultiplier   decimal.Decimal
	InRecovery         bool
}

func levelForDrawdown(dd decimal.Decimal, th Thresholds) Level {
	// Boundary rule (spec.md §8): drawdown equal to a threshold takes the
	// higher level.
	switch {
	case dd.GreaterThanOrEqual(th.Emergency):
		return LevelEmergency
	case dd.GreaterThanOrEqual(th.Critical):
		return LevelCritical
	case dd.GreaterThanOrEqual(th.Warning):
		return LevelWarning
	case dd.GreaterThanOrEqual(th.Caution):
		return LevelCaution
	default:
		return LevelNormal
	}
}

func baseMultiplier(l Level) decimal.Decimal {
	switch l {
	case LevelNormal:
		return decimal.NewFromInt(1)
	case LevelCaution, LevelWarning:
		return decimal.NewFromFloat(0.5)
	case LevelCritical:
		return decimal.NewFromFloat(0.25)
	default:
		return decimal.Zero
	}
}

func tradingAllowed(l Level) bool { return l != LevelEmergency }
func newPositionsAllowed(l Level) bool {
	return l == LevelNormal || l == LevelCaution
}

// Protector tracks the level/recovery state machine across successive
// equity/loss-limit evaluations. Not persisted across restarts.
type Protector struct {
	mu sync.Mutex

	thresholds Thresholds

	currentLevel Level
	inRecovery   bool
	recoveryEnd  time.Time
	recoveryPeak decimal.Decimal

	now func() time.Time
}

func NewProtector(th Thresholds) *Protector {
	return &Protector{
		thresholds:   th,
		currentLevel: LevelNormal,
		now:          time.Now,
	}
}

// Evaluate is a pure-ish function of (peakEquity, currentEquity,
// lossLimitBreached): it derives the drawdown level, arms/clears the
// recovery cooldown, and returns the resulting State. A daily/weekly/monthly
// loss-limit breach promotes the level to at least WARNING.
func (p *Protector) Evaluate(peakEquity, currentEquity decimal.Decimal, lossLimitBreached bool) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	var dd decimal.Decimal
	if peakEquity.IsPositive() {
		dd = peakEquity.Sub(currentEquity).Div(peakEquity)
	}
	if currentEquity.IsNegative() {
		// Negative equity forces EMERGENCY immediately (spec.md §3).
		dd = decimal.NewFromInt(1)
	}

	level := levelForDrawdown(dd, p.thresholds)
	if lossLimitBreached && (level == LevelNormal || level == LevelCaution) {
		level = LevelWarning
	}

	// Recovery arms on entry into CRITICAL/EMERGENCY.
	if (level == LevelCritical || level == LevelEmergency) && !p.inRecovery {
		p.inRecovery = true
		p.recoveryPeak = peakEquity
		hours := p.thresholds.RecoveryCooldownHours
		if hours.IsZero() {
			hours = decimal.NewFromInt(24)
		}
		p.recoveryEnd = p.now().Add(time.Duration(hours.InexactFloat64() * float64(time.Hour)))
	}

	if p.inRecovery {
		newPeak := peakEquity.GreaterThan(p.recoveryPeak)
		cooldownExpired := p.now().After(p.recoveryEnd)
		if newPeak || cooldownExpired {
			p.inRecovery = false
		}
	}

	p.currentLevel = level

	mult := baseMultiplier(level)
	if p.inRecovery {
		reduced := p.thresholds.ReducedSizingPct
		if reduced.IsZero() {
			reduced = decimal.NewFromFloat(0.5)
		}
		mult = mult.Mul(reduced)
	}

	allowNew := newPositionsAllowed(level)
	if p.inRecovery {
		allowNew = false
	}

	return State{
		Level:               level,
		DrawdownPct:         dd,
		TradingAllowed:      tradingAllowed(level),
		NewPositionsAllowed: allowNew,
		SizingMultiplier:    mult,
		InRecovery:          p.inRecovery,
	}
}

// CurrentLevel returns the last-evaluated level without recomputing.
func (p *Protector) CurrentLevel() Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLevel
}

// LiquidationOrder is one advisory close recommendation; the protector never
// submits it — the caller decides.
type LiquidationOrder struct {
	Symbol      string
	Side        broker.Side
	Quantity    decimal.Decimal
	MarketValue decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// LiquidationPlan returns a sorted list of advisory closes for WARNING (no
// plan), CRITICAL (target 50% reduction), and EMERGENCY (target 100%).
// Ordering: most-negative unrealized P&L first, ties broken by descending
// absolute market value. If preserve_winners is set and level < EMERGENCY,
// profitable positions are skipped entirely.
func (p *Protector) LiquidationPlan(level Level, positions []broker.Position) []LiquidationOrder {
	if level != LevelCritical && level != LevelEmergency {
		return nil
	}

	target := decimal.NewFromFloat(0.5)
	if level == LevelEmergency {
		target = decimal.NewFromInt(1)
	}

	preserveWinners := p.thresholds.PreserveWinners && level != LevelEmergency

	type candidate struct {
		pos broker.Position
		pnl decimal.Decimal
		mv  decimal.Decimal
	}
	candidates := make([]candidate, 0, len(positions))
	for _, pos := range positions {
		if pos.Quantity.IsZero() {
			continue
		}
		pnl := pos.UnrealizedPnL()
		if preserveWinners && pnl.IsPositive() {
			continue
		}
		candidates = append(candidates, candidate{pos: pos, pnl: pnl, mv: pos.MarketValue()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].pnl.Equal(candidates[j].pnl) {
			return candidates[i].pnl.LessThan(candidates[j].pnl)
		}
		return candidates[i].mv.GreaterThan(candidates[j].mv)
	})

	plan := make([]LiquidationOrder, 0, len(candidates))
	for _, c := range candidates {
		closeQty := c.pos.Quantity.Abs().Mul(target)
		side := broker.SideSell
		if !c.pos.IsLong() {
			side = broker.SideBuy
		}
		plan = append(plan, LiquidationOrder{
			Symbol:        c.pos.Symbol,
			Side:          side,
			Quantity:      closeQty,
			MarketValue:   c.mv,
			UnrealizedPnL: c.pnl,
		})
	}
	return plan
}
