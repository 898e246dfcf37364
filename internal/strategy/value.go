// Package strategy implements the single in-scope value/mispricing
// evaluator (spec.md §4.11). Given a market snapshot and a model
// probability from a pluggable provider, it filters on liquidity/spread/
// time-to-close, computes fee-adjusted edge in both directions, sizes via
// Kelly, and opens or reuses a thesis.
//
// Per-evaluation flow:
//  1. Reject markets that fail liquidity/spread/time-to-close filters.
//  2. Compute YES edge and NO edge; pick whichever is larger and positive.
//  3. Size via Kelly, capped by max_position_pct of the per-market limit.
//  4. Create a thesis (or reuse the active one for this market) and emit a
//     signal.
//
// While a thesis from this evaluator is ACTIVE, InvalidateIfNeeded re-checks
// the three invalidation triggers on every new snapshot.
package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/pricing"
	"github.com/tradingcore/riskcore/internal/sizing"
	"github.com/tradingcore/riskcore/internal/thesis"
)

// ModelProvider supplies a model probability for a market ticker. Pluggable:
// the evaluator has no opinion on how the probability is produced.
type ModelProvider interface {
	ModelProbability(ctx context.Context, marketTicker string) (decimal.Decimal, error)
}

// MarketSnapshot is the minimal view of a prediction market the evaluator
// needs.
type MarketSnapshot struct {
	Ticker        string
	YesPriceCents int
	BidCents      int
	AskCents      int
	Liquidity     decimal.Decimal
	CloseAt       time.Time
}

// Config carries the evaluator's filters and sizing tunables.
type Config struct {
	MinLiquidity              decimal.Decimal
	MaxSpreadCents            int
	MinTimeToClose            time.Duration
	MaxPositionPct            decimal.Decimal
	PerMarketLimit            decimal.Decimal
	MinEdge                   decimal.Decimal
	InvalidationEdgeThreshold decimal.Decimal
	InvalidationPriceMovePct  decimal.Decimal
	InvalidationCloseWindow   time.Duration
}

// Signal is the evaluator's output: a recommended trade tied to a thesis.
type Signal struct {
	Thesis    thesis.Thesis
	Direction thesis.Direction
	EdgePct   decimal.Decimal
	Contracts int64
}

// Evaluator runs the single value strategy for one market at a time; it
// holds no per-market state beyond what it reads from the thesis tracker.
type Evaluator struct {
	cfg    Config
	model  ModelProvider
	theses *thesis.Tracker
	sizer  *sizing.Sizer
	logger *slog.Logger
}

func NewEvaluator(cfg Config, model ModelProvider, theses *thesis.Tracker, sizer *sizing.Sizer, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{cfg: cfg, model: model, theses: theses, sizer: sizer, logger: logger.With("component", "value_strategy")}
}

func (e *Evaluator) passesFilters(snap MarketSnapshot) bool {
	if e.cfg.MinLiquidity.IsPositive() && snap.Liquidity.LessThan(e.cfg.MinLiquidity) {
		return false
	}
	spread := snap.AskCents - snap.BidCents
	if e.cfg.MaxSpreadCents > 0 && spread > e.cfg.MaxSpreadCents {
		return false
	}
	minToClose := e.cfg.MinTimeToClose
	if minToClose <= 0 {
		minToClose = time.Hour
	}
	if time.Until(snap.CloseAt) < minToClose {
		return false
	}
	return true
}

// Evaluate runs one pass over snap: filters, picks a direction, sizes, and
// opens (or reuses) a thesis. Returns nil, nil if no tradeable edge exists.
func (e *Evaluator) Evaluate(ctx context.Context, snap MarketSnapshot, accountEquity decimal.Decimal) (*Signal, error) {
	if !e.passesFilters(snap) {
		return nil, nil
	}

	modelProb, err := e.model.ModelProbability(ctx, snap.Ticker)
	if err != nil {
		return nil, err
	}

	yesEdge := pricing.YesEdge(modelProb, snap.YesPriceCents)
	noEdge := pricing.NoEdge(modelProb, snap.YesPriceCents)

	direction := thesis.DirectionYes
	edge := yesEdge
	if noEdge.FeeAdjusted.GreaterThan(yesEdge.FeeAdjusted) {
		direction = thesis.DirectionNo
		edge = noEdge
	}

	minEdge := e.cfg.MinEdge
	if minEdge.IsZero() {
		minEdge = pricing.MinEdgeThreshold
	}
	if edge.FeeAdjusted.LessThan(minEdge) {
		return nil, nil
	}

	perMarketCap := e.cfg.PerMarketLimit.Mul(e.cfg.MaxPositionPct)
	entryPrice := decimal.NewFromInt(int64(snap.YesPriceCents))
	sizeRes := e.sizer.Size(snap.Ticker, entryPrice, nil, accountEquity, nil, edge.FeeAdjusted)
	if sizeRes.Shares <= 0 {
		return nil, nil
	}
	notional := decimal.NewFromInt(sizeRes.Shares).Mul(entryPrice)
	if !perMarketCap.IsZero() && notional.GreaterThan(perMarketCap) {
		sizeRes.Shares = perMarketCap.Div(entryPrice).IntPart()
	}
	if sizeRes.Shares <= 0 {
		return nil, nil
	}

	th, reused := e.reuseOrCreateThesis(snap, direction, modelProb, edge)
	if !reused {
		e.logger.Info("opened thesis", "ticker", snap.Ticker, "direction", direction, "edge", edge.FeeAdjusted.StringFixed(4))
	}

	return &Signal{Thesis: th, Direction: direction, EdgePct: edge.FeeAdjusted, Contracts: sizeRes.Shares}, nil
}

func (e *Evaluator) reuseOrCreateThesis(snap MarketSnapshot, direction thesis.Direction, modelProb decimal.Decimal, edge pricing.Edge) (thesis.Thesis, bool) {
	for _, existing := range e.theses.ByMarket(snap.Ticker) {
		if existing.State == thesis.StateActive && existing.Direction == direction {
			return existing, true
		}
	}
	th, err := e.theses.CreateThesis(
		snap.Ticker,
		"value evaluator: fee-adjusted edge exceeds minimum threshold",
		direction,
		decimal.NewFromInt(int64(snap.YesPriceCents)),
		decimal.Zero,
		modelProb,
		decimal.NewFromInt(int64(snap.YesPriceCents)).Div(decimal.NewFromInt(100)),
		snap.YesPriceCents,
		nil,
	)
	if err != nil {
		e.logger.Error("failed to persist new thesis", "ticker", snap.Ticker, "error", err)
	}
	return th, false
}

// InvalidateIfNeeded re-checks the three invalidation triggers for an ACTIVE
// thesis produced by this evaluator: edge decay, adverse price move, and
// imminent market close.
func (e *Evaluator) InvalidateIfNeeded(ctx context.Context, th thesis.Thesis, snap MarketSnapshot) error {
	if th.State != thesis.StateActive {
		return nil
	}

	modelProb, err := e.model.ModelProbability(ctx, snap.Ticker)
	if err != nil {
		return err
	}

	var edge pricing.Edge
	switch th.Direction {
	case thesis.DirectionYes:
		edge = pricing.YesEdge(modelProb, snap.YesPriceCents)
	case thesis.DirectionNo:
		edge = pricing.NoEdge(modelProb, snap.YesPriceCents)
	}
	threshold := e.cfg.InvalidationEdgeThreshold
	if edge.FeeAdjusted.LessThan(threshold) {
		return e.theses.Invalidate(th.ID, "edge decayed below invalidation threshold")
	}

	if th.AvgFillPrice.IsPositive() && !e.cfg.InvalidationPriceMovePct.IsZero() {
		current := decimal.NewFromInt(int64(snap.YesPriceCents))
		move := current.Sub(th.AvgFillPrice).Div(th.AvgFillPrice).Abs()
		adverse := (th.Direction == thesis.DirectionYes && current.LessThan(th.AvgFillPrice)) ||
			(th.Direction == thesis.DirectionNo && current.GreaterThan(th.AvgFillPrice))
		if adverse && move.GreaterThan(e.cfg.InvalidationPriceMovePct) {
			return e.theses.Invalidate(th.ID, "adverse price move exceeded invalidation threshold")
		}
	}

	closeWindow := e.cfg.InvalidationCloseWindow
	if closeWindow <= 0 {
		closeWindow = time.Hour
	}
	if time.Until(snap.CloseAt) < closeWindow {
		return e.theses.Invalidate(th.ID, "market close imminent")
	}
	return nil
}
