// Package paper is the DRY_RUN execution path: a venue-agnostic fill
// simulator that books orders against cached quotes instead of sending
// them to a broker, used whenever the risk engine's decision is DRY_RUN or
// the system is configured for paper trading. Adapted from the teacher's
// paper-trading simulator: same balance/fee/slippage/inventory bookkeeping,
// now keyed on broker.OrderIntent/feed.Quote and decimal arithmetic instead
// of USDC floats and polymarket orderbook levels.
package paper

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/feed"
)

var bpsDivisor = decimal.NewFromInt(10000)

// Config configures the simulated account.
type Config struct {
	InitialCash decimal.Decimal `yaml:"initial_cash"`
	FeeBps      decimal.Decimal `yaml:"fee_bps"`
	SlippageBps decimal.Decimal `yaml:"slippage_bps"`
	AllowShort  *bool           `yaml:"allow_short"`
}

// FillResult is the outcome of a simulated order: either an immediate fill
// or, for an unfilled limit order, a resting order acknowledgment.
type FillResult struct {
	OrderID   string
	TradeID   string
	Symbol    string
	Side      broker.Side
	Status    string
	Filled    bool
	Price     decimal.Decimal
	Quantity  int64
	Notional  decimal.Decimal
	Fee       decimal.Decimal
	Timestamp time.Time
}

// Snapshot is a point-in-time view of the simulated account.
type Snapshot struct {
	InitialCash       decimal.Decimal
	Cash              decimal.Decimal
	FeesPaid          decimal.Decimal
	TotalNotional     decimal.Decimal
	TotalTrades       int
	AllowShort        bool
	InventoryBySymbol map[string]int64
}

// Simulator books fills against cached quotes, tracking cash, fees, and
// per-symbol inventory, independent of any real broker connection.
type Simulator struct {
	mu sync.Mutex

	cfg Config

	sequence      int64
	cash          decimal.Decimal
	feesPaid      decimal.Decimal
	totalNotional decimal.Decimal
	totalTrades   int
	allowShort    bool
	inventory     map[string]int64 // symbol -> signed quantity
}

func NewSimulator(cfg Config) *Simulator {
	initial := cfg.InitialCash
	if !initial.IsPositive() {
		initial = decimal.NewFromInt(1000)
	}
	allowShort := true
	if cfg.AllowShort != nil {
		allowShort = *cfg.AllowShort
	}
	return &Simulator{
		cfg: Config{
			InitialCash: initial,
			FeeBps:      cfg.FeeBps,
			SlippageBps: cfg.SlippageBps,
			AllowShort:  cfg.AllowShort,
		},
		cash:       initial,
		allowShort: allowShort,
		inventory:  make(map[string]int64),
	}
}

func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := make(map[string]int64, len(s.inventory))
	for sym, qty := range s.inventory {
		inv[sym] = qty
	}
	return Snapshot{
		InitialCash:       s.cfg.InitialCash,
		Cash:              s.cash,
		FeesPaid:          s.feesPaid,
		TotalNotional:     s.totalNotional,
		TotalTrades:       s.totalTrades,
		AllowShort:        s.allowShort,
		InventoryBySymbol: inv,
	}
}

// ExecuteMarket fills intent immediately against the quote's crossing side
// (ask for a buy, bid for a sell), with slippage applied away from the
// simulated account.
func (s *Simulator) ExecuteMarket(intent broker.OrderIntent, q feed.Quote) (FillResult, error) {
	var price decimal.Decimal
	switch intent.Side {
	case broker.SideBuy:
		price = q.Ask
	case broker.SideSell:
		price = q.Bid
	default:
		return FillResult{}, fmt.Errorf("unsupported side: %s", intent.Side)
	}
	price = applySlippage(price, intent.Side, s.cfg.SlippageBps)
	return s.fill(intent.Symbol, intent.Side, intent.Quantity, price, true)
}

// ExecuteLimit fills intent only if its limit price crosses the current
// quote; otherwise it returns a resting "open" acknowledgment.
func (s *Simulator) ExecuteLimit(intent broker.OrderIntent, q feed.Quote) (FillResult, error) {
	if intent.LimitPrice == nil {
		return FillResult{}, fmt.Errorf("limit order requires a limit price")
	}
	limit := *intent.LimitPrice

	var fillable bool
	execPrice := limit
	switch intent.Side {
	case broker.SideBuy:
		if !q.Ask.GreaterThan(limit) {
			fillable = true
			execPrice = q.Ask
		}
	case broker.SideSell:
		if !q.Bid.LessThan(limit) {
			fillable = true
			execPrice = q.Bid
		}
	default:
		return FillResult{}, fmt.Errorf("unsupported side: %s", intent.Side)
	}

	if !fillable {
		return s.openOrder(intent.Symbol, intent.Side, limit, intent.Quantity), nil
	}
	execPrice = applySlippage(execPrice, intent.Side, s.cfg.SlippageBps)
	return s.fill(intent.Symbol, intent.Side, intent.Quantity, execPrice, false)
}

func (s *Simulator) openOrder(symbol string, side broker.Side, price decimal.Decimal, quantity int64) FillResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	orderID := fmt.Sprintf("paper-order-%06d", s.sequence)
	return FillResult{
		OrderID:   orderID,
		Symbol:    symbol,
		Side:      side,
		Status:    "LIVE",
		Filled:    false,
		Price:     price,
		Quantity:  quantity,
		Notional:  price.Mul(decimal.NewFromInt(quantity)),
		Timestamp: time.Now().UTC(),
	}
}

func (s *Simulator) fill(symbol string, side broker.Side, quantity int64, price decimal.Decimal, marketOrder bool) (FillResult, error) {
	if quantity <= 0 {
		return FillResult{}, fmt.Errorf("quantity must be positive")
	}
	if !price.IsPositive() {
		return FillResult{}, fmt.Errorf("invalid execution price")
	}

	qty := decimal.NewFromInt(quantity)
	notional := price.Mul(qty)
	fee := notional.Mul(s.cfg.FeeBps).Div(bpsDivisor)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch side {
	case broker.SideBuy:
		if notional.Add(fee).GreaterThan(s.cash) {
			return FillResult{}, fmt.Errorf("insufficient paper cash: need %s have %s", notional.Add(fee), s.cash)
		}
	case broker.SideSell:
		if !s.allowShort {
			current := s.inventory[symbol]
			if current < quantity {
				return FillResult{}, fmt.Errorf("insufficient paper inventory: need %d have %d", quantity, current)
			}
		}
	default:
		return FillResult{}, fmt.Errorf("unsupported side: %s", side)
	}

	s.sequence++
	orderID := fmt.Sprintf("paper-order-%06d", s.sequence)
	s.sequence++
	tradeID := fmt.Sprintf("paper-trade-%06d", s.sequence)

	if side == broker.SideBuy {
		s.cash = s.cash.Sub(notional).Sub(fee)
		s.inventory[symbol] += quantity
	} else {
		s.cash = s.cash.Add(notional).Sub(fee)
		s.inventory[symbol] -= quantity
		if s.inventory[symbol] == 0 {
			delete(s.inventory, symbol)
		}
	}
	s.feesPaid = s.feesPaid.Add(fee)
	s.totalNotional = s.totalNotional.Add(notional)
	s.totalTrades++

	status := "MATCHED"
	if marketOrder {
		status = "FILLED"
	}

	return FillResult{
		OrderID:   orderID,
		TradeID:   tradeID,
		Symbol:    symbol,
		Side:      side,
		Status:    status,
		Filled:    true,
		Price:     price,
		Quantity:  quantity,
		Notional:  notional,
		Fee:       fee,
		Timestamp: time.Now().UTC(),
	}, nil
}

func applySlippage(price decimal.Decimal, side broker.Side, slippageBps decimal.Decimal) decimal.Decimal {
	if !slippageBps.IsPositive() {
		return price
	}
	multiplier := slippageBps.Div(bpsDivisor)
	if side == broker.SideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(multiplier))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(multiplier))
}
