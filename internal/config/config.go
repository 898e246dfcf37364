// Package config loads and validates the YAML configuration that wires
// every subsystem's tunables at startup (spec.md §9: "replaced by an
// explicit composition at startup with dependency injection; the
// singletons are a convenience, not a requirement"). Shape and loading
// style follow the teacher's flat-struct + yaml.v3 + env-override
// approach; the fields themselves now describe the two-venue risk core
// instead of a single market-making bot.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Equities   EquitiesConfig   `yaml:"equities"`
	Prediction PredictionConfig `yaml:"prediction"`

	ScanInterval      time.Duration `yaml:"scan_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	BuilderSyncInterval time.Duration `yaml:"builder_sync_interval"`
	DryRun            bool          `yaml:"dry_run"`
	TradingMode       string        `yaml:"trading_mode"`
	LogLevel          string        `yaml:"log_level"`
	ThesisStoreDir    string        `yaml:"thesis_store_dir"`
	JournalDir        string        `yaml:"journal_dir"`

	Risk        RiskConfig        `yaml:"risk"`
	Drawdown    DrawdownConfig    `yaml:"drawdown"`
	Sizing      SizingConfig      `yaml:"sizing"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Approval    ApprovalConfig    `yaml:"approval"`
	PnL         PnLConfig         `yaml:"pnl"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Telegram    TelegramConfig    `yaml:"telegram"`
}

// EquitiesConfig carries the U.S. equities broker's static header credentials.
type EquitiesConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyID  string `yaml:"api_key_id"`
	APISecret string `yaml:"api_secret"`
	Paper     bool   `yaml:"paper"`
}

// PredictionConfig carries the prediction-market venue's login/API-key
// credentials.
type PredictionConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// TelegramConfig mirrors the teacher's alert-delivery settings.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// RiskConfig maps onto internal/risk.Limits plus the circuit breaker's
// tunables.
type RiskConfig struct {
	MaxOrderNotional    float64 `yaml:"max_order_notional"`
	MaxOrderShares      int64   `yaml:"max_order_shares"`
	MaxPositionShares   int64   `yaml:"max_position_shares"`
	MaxPositionNotional float64 `yaml:"max_position_notional"`
	MaxTotalExposure    float64 `yaml:"max_total_exposure"`
	MaxConcentrationPct float64 `yaml:"max_concentration_pct"`

	MaxDailyLossUSD  float64 `yaml:"max_daily_loss_usd"`
	MaxWeeklyLossUSD float64 `yaml:"max_weekly_loss_usd"`
	MaxDrawdownPct   float64 `yaml:"max_drawdown_pct"`

	DailySpendLimit   float64 `yaml:"daily_spend_limit"`
	WeeklySpendLimit  float64 `yaml:"weekly_spend_limit"`
	MonthlySpendLimit float64 `yaml:"monthly_spend_limit"`

	ApprovalNotionalThreshold float64 `yaml:"approval_notional_threshold"`
	ApprovalLossThreshold     float64 `yaml:"approval_loss_threshold"`

	Allowlist []string `yaml:"allowlist"`
	Blocklist []string `yaml:"blocklist"`

	MaxRejectRate   float64       `yaml:"max_reject_rate"`
	MaxSlippagePct  float64       `yaml:"max_slippage_pct"`
	RejectWindowSize int          `yaml:"reject_window_size"`
}

// DrawdownConfig maps onto internal/drawdown.Thresholds.
type DrawdownConfig struct {
	Caution               float64 `yaml:"caution"`
	Warning               float64 `yaml:"warning"`
	Critical              float64 `yaml:"critical"`
	Emergency             float64 `yaml:"emergency"`
	RecoveryCooldownHours float64 `yaml:"recovery_cooldown_hours"`
	ReducedSizingPct      float64 `yaml:"reduced_sizing_pct"`
	PreserveWinners       bool    `yaml:"preserve_winners"`
}

// SizingConfig maps onto internal/sizing.Config plus Kelly tunables.
type SizingConfig struct {
	PositionFraction float64 `yaml:"position_fraction"`
	MaxTotalRiskPct  float64 `yaml:"max_total_risk_pct"`
	MaxPositionPct   float64 `yaml:"max_position_pct"`
	DefaultStopPct   float64 `yaml:"default_stop_pct"`
	MinSampleTrades  int     `yaml:"min_sample_trades"`
	KellyVariant     string  `yaml:"kelly_variant"`
}

// CorrelationConfig maps onto internal/sizing.CorrelationConfig.
type CorrelationConfig struct {
	MaxSectorExposurePct        float64 `yaml:"max_sector_exposure_pct"`
	MaxUnknownSectorExposurePct float64 `yaml:"max_unknown_sector_exposure_pct"`
	MaxGroupExposurePct         float64 `yaml:"max_group_exposure_pct"`
	MaxSingleNamePct            float64 `yaml:"max_single_name_pct"`
	MaxPositionsPerSector       int     `yaml:"max_positions_per_sector"`
}

// ApprovalConfig maps onto internal/approval.Workflow's capacity/TTL.
type ApprovalConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// PnLConfig maps onto internal/pnl.Config.
type PnLConfig struct {
	DailyProfitTarget    float64       `yaml:"daily_profit_target"`
	DailyLossLimit       float64       `yaml:"daily_loss_limit"`
	PositionProfitPct    float64       `yaml:"position_profit_pct"`
	PositionProfitUSD    float64       `yaml:"position_profit_usd"`
	PositionLossPct      float64       `yaml:"position_loss_pct"`
	PositionLossUSD      float64       `yaml:"position_loss_usd"`
	LosingStreakLimit    int           `yaml:"losing_streak_limit"`
	WinningStreakLimit   int           `yaml:"winning_streak_limit"`
	VelocityThresholdPct float64       `yaml:"velocity_threshold_pct"`
	VelocityWindow       time.Duration `yaml:"velocity_window"`
	CooldownMinutes      int           `yaml:"cooldown_minutes"`
}

// StrategyConfig maps onto internal/strategy.Config, the single value
// evaluator's filters and invalidation tunables.
type StrategyConfig struct {
	MinLiquidity              float64       `yaml:"min_liquidity"`
	MaxSpreadCents            int           `yaml:"max_spread_cents"`
	MinTimeToClose            time.Duration `yaml:"min_time_to_close"`
	MaxPositionPct            float64       `yaml:"max_position_pct"`
	PerMarketLimit            float64       `yaml:"per_market_limit"`
	MinEdge                   float64       `yaml:"min_edge"`
	InvalidationEdgeThreshold float64       `yaml:"invalidation_edge_threshold"`
	InvalidationPriceMovePct  float64       `yaml:"invalidation_price_move_pct"`
	InvalidationCloseWindow   time.Duration `yaml:"invalidation_close_window"`
}

func Default() Config {
	return Config{
		ScanInterval:        10 * time.Second,
		HeartbeatInterval:   60 * time.Second,
		BuilderSyncInterval: 5 * time.Second,
		DryRun:              true,
		TradingMode:         "paper",
		LogLevel:            "info",
		ThesisStoreDir:      "data/theses",
		JournalDir:          "data/journal",
		Risk: RiskConfig{
			MaxOrderNotional:          10000,
			MaxOrderShares:            10000,
			MaxPositionShares:         50000,
			MaxPositionNotional:       50000,
			MaxTotalExposure:          200000,
			MaxConcentrationPct:       0.25,
			MaxDailyLossUSD:           5000,
			MaxWeeklyLossUSD:          15000,
			MaxDrawdownPct:            0.20,
			ApprovalNotionalThreshold: 25000,
			ApprovalLossThreshold:     2500,
			MaxRejectRate:             0.30,
			MaxSlippagePct:            0.02,
			RejectWindowSize:          10,
		},
		Drawdown: DrawdownConfig{
			Caution:               0.05,
			Warning:               0.08,
			Critical:              0.12,
			Emergency:             0.15,
			RecoveryCooldownHours: 24,
			ReducedSizingPct:      0.5,
			PreserveWinners:       true,
		},
		Sizing: SizingConfig{
			PositionFraction: 0.1,
			MaxTotalRiskPct:  0.02,
			MaxPositionPct:   0.2,
			DefaultStopPct:   0.02,
			MinSampleTrades:  30,
			KellyVariant:     "HALF",
		},
		Correlation: CorrelationConfig{
			MaxSectorExposurePct:        0.35,
			MaxUnknownSectorExposurePct: 0.15,
			MaxGroupExposurePct:         0.25,
			MaxSingleNamePct:            0.10,
			MaxPositionsPerSector:       5,
		},
		Approval: ApprovalConfig{
			Capacity: 50,
			TTL:      15 * time.Minute,
		},
		PnL: PnLConfig{
			DailyProfitTarget:    0.03,
			DailyLossLimit:       0.02,
			PositionProfitPct:    0.05,
			PositionLossPct:      0.05,
			LosingStreakLimit:    3,
			WinningStreakLimit:   5,
			VelocityThresholdPct: 0.03,
			VelocityWindow:       15 * time.Minute,
			CooldownMinutes:      10,
		},
		Strategy: StrategyConfig{
			MaxSpreadCents:            5,
			MinTimeToClose:            time.Hour,
			MaxPositionPct:            0.2,
			MinEdge:                  0.05,
			InvalidationEdgeThreshold: 0.02,
			InvalidationPriceMovePct:  0.15,
			InvalidationCloseWindow:   time.Hour,
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("EQUITIES_API_KEY_ID"); v != "" {
		c.Equities.APIKeyID = v
	}
	if v := os.Getenv("EQUITIES_API_SECRET"); v != "" {
		c.Equities.APISecret = v
	}
	if v := os.Getenv("PREDICTION_API_KEY"); v != "" {
		c.Prediction.APIKey = v
	}
	if v := os.Getenv("PREDICTION_API_SECRET"); v != "" {
		c.Prediction.APISecret = v
	}
	if v := os.Getenv("TRADER_DRY_RUN"); v != "" {
		c.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("TRADER_TRADING_MODE")); v != "" {
		c.TradingMode = strings.ToLower(v)
	}
}
