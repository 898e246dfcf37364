// Package broker defines the venue-agnostic domain types and the shared
// gateway contract implemented by internal/broker/equities and
// internal/broker/prediction. It also owns the idempotency map shared
// between REST callers and stream readers.
package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is buy|sell for equities, or combined with Direction for prediction
// markets (yes|no, buy|sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Direction distinguishes YES/NO contracts on the prediction-market venue.
// Zero value DirectionNone applies to equities orders.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionYes  Direction = "yes"
	DirectionNo   Direction = "no"
)

// OrderType enumerates supported order types.
type OrderType string

const (
	OrderTypeMarket       OrderType = "market"
	OrderTypeLimit        OrderType = "limit"
	OrderTypeStop         OrderType = "stop"
	OrderTypeStopLimit    OrderType = "stop_limit"
	OrderTypeTrailingStop OrderType = "trailing_stop"
)

// TimeInForce enumerates supported time-in-force values.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
	TIFOPG TimeInForce = "opg"
	TIFCLS TimeInForce = "cls"
)

// BracketLegs carries optional take-profit/stop-loss child orders attached
// to a parent limit order.
type BracketLegs struct {
	TakeProfitPrice decimal.Decimal
	StopLossPrice   decimal.Decimal
}

// OrderIntent is the caller-supplied description of a desired order, before
// any risk check has run.
type OrderIntent struct {
	Symbol          string
	Side            Side
	Direction       Direction // prediction-market only
	Quantity        int64     // contracts/shares, always positive
	Type            OrderType
	TimeInForce     TimeInForce
	LimitPrice      *decimal.Decimal
	StopPrice       *decimal.Decimal
	ClientOrderKey  string // idempotency key; gateway assigns a UUID if empty
	Bracket         *BracketLegs
}

// Validate enforces the invariants from spec.md §3: limit orders carry a
// non-null limit price, and bracket take-profit sits strictly on the
// profitable side of the parent limit.
func (o OrderIntent) Validate() error {
	if (o.Type == OrderTypeLimit || o.Type == OrderTypeStopLimit) && o.LimitPrice == nil {
		return ErrMissingLimitPrice
	}
	if o.Bracket != nil && o.LimitPrice != nil {
		tp := o.Bracket.TakeProfitPrice
		limit := *o.LimitPrice
		switch o.Side {
		case SideBuy:
			if !tp.GreaterThan(limit) {
				return ErrBracketNotProfitable
			}
		case SideSell:
			if !tp.LessThan(limit) {
				return ErrBracketNotProfitable
			}
		}
	}
	return nil
}

// Position mirrors spec.md §3: symbol, signed quantity, average entry,
// current price, derived market value/unrealized P&L/side.
type Position struct {
	Symbol        string
	Quantity      decimal.Decimal // signed
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
}

// MarketValue is |qty| * current_price.
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Abs().Mul(p.CurrentPrice)
}

// UnrealizedPnL is (current - avg_entry) * qty, sign-correct for shorts.
func (p Position) UnrealizedPnL() decimal.Decimal {
	return p.CurrentPrice.Sub(p.AvgEntryPrice).Mul(p.Quantity)
}

// IsLong reports whether the position is long (qty > 0).
func (p Position) IsLong() bool { return p.Quantity.IsPositive() }

// AccountSnapshot mirrors spec.md §3.
type AccountSnapshot struct {
	Equity              decimal.Decimal
	Cash                decimal.Decimal
	BuyingPower         decimal.Decimal
	PortfolioValue      decimal.Decimal
	DayTradeCount       int
	TradingBlocked      bool
	PatternDayTrader    bool
	AsOf                time.Time
}

// Order is the broker's view of a submitted order, returned by
// Submit/Get/List/Cancel/Replace.
type Order struct {
	BrokerOrderID  string
	ClientOrderKey string
	Symbol         string
	Side           Side
	Direction      Direction
	Quantity       int64
	FilledQuantity int64
	AvgFillPrice   decimal.Decimal
	Status         OrderStatus
	Type           OrderType
	TimeInForce    TimeInForce
	SubmittedAt    time.Time
	UpdatedAt      time.Time
}

// OrderStatus enumerates broker-reported order states.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusPendingCancel   OrderStatus = "pending_cancel"
	OrderStatusExpired         OrderStatus = "expired"
)

// IsTerminal reports whether no further fills can occur.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// Fill is one execution report delivered over a trading-events stream.
type Fill struct {
	BrokerOrderID string
	Symbol        string
	Side          Side
	Direction     Direction
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Timestamp     time.Time
}

// Bar is an OHLCV historical bar. TradeCount/BarCount are populated
// opportunistically by the venue and must be nil-checked (spec.md §9 open
// question).
type Bar struct {
	Timestamp  time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	TradeCount *int
	BarCount   *int
}
