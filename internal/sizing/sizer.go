package sizing

import (
	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
)

// Config carries the position-sizer's tunables (spec.md §4.5).
type Config struct {
	PositionFraction  decimal.Decimal // e.g. Kelly output
	MaxTotalRiskPct   decimal.Decimal
	MaxPositionPct    decimal.Decimal
	DefaultStopPct    decimal.Decimal // default 2% of entry if no stop supplied
	MinSampleTrades   int
}

// Sizer combines Kelly output, risk-per-trade and position caps, and
// correlation headroom into a final share count.
type Sizer struct {
	cfg         Config
	correlation *CorrelationManager
}

func NewSizer(cfg Config, correlation *CorrelationManager) *Sizer {
	if cfg.DefaultStopPct.IsZero() {
		cfg.DefaultStopPct = decimal.NewFromFloat(0.02)
	}
	return &Sizer{cfg: cfg, correlation: correlation}
}

// Result is the sizer's recommendation.
type Result struct {
	Shares               int64
	Warnings             []string
	BlockedByCorrelation bool // true when correlation/sector headroom, not a plain floor, forced Shares to 0
}

// Size computes recommended shares for symbol at entry price, given an
// optional stop loss, account equity, current positions, and Kelly fraction
// (already variant-adjusted by the caller).
func (s *Sizer) Size(symbol string, entry decimal.Decimal, stopLoss *decimal.Decimal, accountEquity decimal.Decimal, positions []broker.Position, kellyFraction decimal.Decimal) Result {
	var warnings []string

	riskPerShare := entry.Mul(s.cfg.DefaultStopPct)
	if stopLoss != nil {
		rps := entry.Sub(*stopLoss).Abs()
		if rps.IsPositive() {
			riskPerShare = rps
		}
	}

	fraction := kellyFraction
	if fraction.IsZero() {
		fraction = s.cfg.PositionFraction
	}

	byCapital := decimal.Zero
	if entry.IsPositive() {
		byCapital = fraction.Mul(accountEquity).Div(entry)
	}

	byRisk := decimal.NewFromInt(1 << 30)
	if riskPerShare.IsPositive() && !s.cfg.MaxTotalRiskPct.IsZero() {
		byRisk = s.cfg.MaxTotalRiskPct.Mul(accountEquity).Div(riskPerShare)
	}

	shares := byCapital
	limitedByRisk := false
	if byRisk.LessThan(shares) {
		shares = byRisk
		limitedByRisk = true
	}

	capByPosition := decimal.NewFromInt(1 << 30)
	if entry.IsPositive() && !s.cfg.MaxPositionPct.IsZero() {
		capByPosition = s.cfg.MaxPositionPct.Mul(accountEquity).Div(entry)
	}
	limitedByPosition := false
	if capByPosition.LessThan(shares) {
		shares = capByPosition
		limitedByPosition = true
		limitedByRisk = false
	}

	if limitedByRisk {
		warnings = append(warnings, "Position limited by risk tolerance")
	} else if limitedByPosition {
		warnings = append(warnings, "Position limited by max_position_pct")
	}

	if shares.IsNegative() {
		shares = decimal.Zero
	}

	correlationClamped := false
	if s.correlation != nil {
		headroomNotional := s.correlation.MaxPositionSize(symbol, positions, accountEquity)
		if entry.IsPositive() {
			headroomShares := headroomNotional.Div(entry)
			if headroomShares.LessThan(shares) {
				shares = headroomShares
				correlationClamped = true
				if headroomShares.IsZero() {
					warnings = append(warnings, "Position blocked: no correlation headroom available")
				} else {
					warnings = append(warnings, "Position reduced by correlation/sector exposure limit")
				}
			}
		}
	}

	sharesInt := shares.Floor().IntPart()
	if sharesInt < 0 {
		sharesInt = 0
	}
	// A positive fractional share that floors to 0 still represents a real,
	// sized position; round it up to the minimum tradeable unit. But a
	// correlation/sector clamp is allowed to floor all the way to 0 — that
	// headroom, however small, is a hard ceiling, not a rounding artifact.
	if sharesInt == 0 && shares.IsPositive() && !correlationClamped {
		sharesInt = 1
	}
	blockedByCorrelation := correlationClamped && sharesInt == 0
	return Result{Shares: sharesInt, Warnings: warnings, BlockedByCorrelation: blockedByCorrelation}
}
