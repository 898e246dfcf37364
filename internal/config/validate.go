package config

import (
	"fmt"
	"strings"
)

// Validate checks high-impact runtime configuration constraints.
func (c Config) Validate() error {
	mode := strings.ToLower(strings.TrimSpace(c.TradingMode))
	if mode != "" && mode != "paper" && mode != "live" {
		return fmt.Errorf("trading_mode must be 'paper' or 'live', got %q", c.TradingMode)
	}
	if c.BuilderSyncInterval <= 0 {
		return fmt.Errorf("builder_sync_interval must be > 0, got %s", c.BuilderSyncInterval)
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be > 0, got %s", c.ScanInterval)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be > 0, got %s", c.HeartbeatInterval)
	}

	if c.Risk.MaxOrderNotional <= 0 {
		return fmt.Errorf("risk.max_order_notional must be > 0, got %f", c.Risk.MaxOrderNotional)
	}
	if c.Risk.MaxDailyLossUSD < 0 {
		return fmt.Errorf("risk.max_daily_loss_usd must be >= 0, got %f", c.Risk.MaxDailyLossUSD)
	}
	if c.Risk.MaxConcentrationPct < 0 || c.Risk.MaxConcentrationPct > 1 {
		return fmt.Errorf("risk.max_concentration_pct must be within [0,1], got %f", c.Risk.MaxConcentrationPct)
	}
	if c.Risk.MaxDrawdownPct < 0 || c.Risk.MaxDrawdownPct > 1 {
		return fmt.Errorf("risk.max_drawdown_pct must be within [0,1], got %f", c.Risk.MaxDrawdownPct)
	}
	if c.Risk.MaxRejectRate < 0 || c.Risk.MaxRejectRate > 1 {
		return fmt.Errorf("risk.max_reject_rate must be within [0,1], got %f", c.Risk.MaxRejectRate)
	}
	if c.Risk.RejectWindowSize <= 0 {
		return fmt.Errorf("risk.reject_window_size must be > 0, got %d", c.Risk.RejectWindowSize)
	}

	if c.Drawdown.Caution <= 0 || c.Drawdown.Warning <= c.Drawdown.Caution ||
		c.Drawdown.Critical <= c.Drawdown.Warning || c.Drawdown.Emergency <= c.Drawdown.Critical {
		return fmt.Errorf("drawdown thresholds must be strictly increasing: caution < warning < critical < emergency")
	}
	if c.Drawdown.ReducedSizingPct < 0 || c.Drawdown.ReducedSizingPct > 1 {
		return fmt.Errorf("drawdown.reduced_sizing_pct must be within [0,1], got %f", c.Drawdown.ReducedSizingPct)
	}

	if c.Sizing.MaxPositionPct <= 0 || c.Sizing.MaxPositionPct > 1 {
		return fmt.Errorf("sizing.max_position_pct must be within (0,1], got %f", c.Sizing.MaxPositionPct)
	}
	if c.Sizing.MinSampleTrades < 0 {
		return fmt.Errorf("sizing.min_sample_trades must be >= 0, got %d", c.Sizing.MinSampleTrades)
	}

	if c.Approval.Capacity <= 0 {
		return fmt.Errorf("approval.capacity must be > 0, got %d", c.Approval.Capacity)
	}
	if c.Approval.TTL <= 0 {
		return fmt.Errorf("approval.ttl must be > 0, got %s", c.Approval.TTL)
	}

	if c.PnL.CooldownMinutes < 0 {
		return fmt.Errorf("pnl.cooldown_minutes must be >= 0, got %d", c.PnL.CooldownMinutes)
	}

	return nil
}
