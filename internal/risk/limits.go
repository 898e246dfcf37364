package risk

import "github.com/shopspring/decimal"

// Limits is an immutable snapshot of every numeric ceiling the pre-trade
// pipeline enforces. Built once at startup from configuration; callers that
// want a change must construct a new Limits and swap the engine's reference
// (hot reload is out of scope).
type Limits struct {
	MaxOrderNotional   decimal.Decimal
	MaxOrderShares      int64
	MaxPositionShares   int64
	MaxPositionNotional decimal.Decimal
	MaxTotalExposure    decimal.Decimal
	MaxConcentrationPct decimal.Decimal

	MaxDailyLossUSD   decimal.Decimal
	MaxWeeklyLossUSD  decimal.Decimal
	MaxDrawdownPct    decimal.Decimal

	DailySpendLimit   decimal.Decimal
	WeeklySpendLimit  decimal.Decimal
	MonthlySpendLimit decimal.Decimal

	ApprovalNotionalThreshold decimal.Decimal
	ApprovalLossThreshold     decimal.Decimal

	Allowlist map[string]bool
	Blocklist map[string]bool
}

// Allowed reports whether symbol passes the allow/blocklist gate. An empty
// allowlist means the allowlist is disabled; the blocklist is always active.
func (l Limits) Allowed(symbol string) (allowed bool, code string) {
	if l.Blocklist[symbol] {
		return false, CodeSymbolBlocked
	}
	if len(l.Allowlist) > 0 && !l.Allowlist[symbol] {
		return false, CodeSymbolNotAllowed
	}
	return true, ""
}
