// Package execution maintains an in-memory view of orders, fills, and
// positions built from a venue's trading-events stream, independent of
// (and a fast-path alternative to) asking the REST gateway for its own
// view. Adapted from the teacher's execution tracker: same mutex-guarded
// maps and OnFill callback hook, now carrying the shared broker domain
// types and decimal arithmetic instead of float64/polymarket-specific
// WebSocket event types.
package execution

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
)

// OrderState tracks the lifecycle of a placed order.
type OrderState struct {
	BrokerOrderID string
	Symbol        string
	Side          broker.Side
	Status        broker.OrderStatus
	OrigQuantity  int64
	FilledQty     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tracker monitors orders, fills, and positions built purely from stream
// events (RegisterOrder/ProcessOrderEvent/ProcessFill).
type Tracker struct {
	mu        sync.RWMutex
	orders    map[string]*OrderState // BrokerOrderID -> state
	fills     []broker.Fill
	positions map[string]*broker.Position // symbol -> position

	// OnFill is invoked outside the lock after a fill is recorded, for risk
	// integration (e.g. feeding IntegratedRiskManager.RecordFill).
	OnFill func(broker.Fill)
}

func NewTracker() *Tracker {
	return &Tracker{
		orders:    make(map[string]*OrderState),
		positions: make(map[string]*broker.Position),
	}
}

// RegisterOrder records a newly placed order.
func (t *Tracker) RegisterOrder(o broker.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.orders[o.BrokerOrderID] = &OrderState{
		BrokerOrderID: o.BrokerOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side,
		Status:        o.Status,
		OrigQuantity:  o.Quantity,
		FilledQty:     o.FilledQuantity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ProcessOrderEvent updates order state from a venue order-status event.
func (t *Tracker) ProcessOrderEvent(o broker.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.orders[o.BrokerOrderID]
	if !ok {
		t.orders[o.BrokerOrderID] = &OrderState{
			BrokerOrderID: o.BrokerOrderID,
			Symbol:        o.Symbol,
			Side:          o.Side,
			Status:        o.Status,
			OrigQuantity:  o.Quantity,
			FilledQty:     o.FilledQuantity,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
		return
	}
	st.Status = o.Status
	st.FilledQty = o.FilledQuantity
	st.UpdatedAt = time.Now()
}

// ProcessFill records a fill and updates the aggregated position.
func (t *Tracker) ProcessFill(f broker.Fill) {
	if f.Quantity.IsZero() {
		return
	}

	t.mu.Lock()
	t.fills = append(t.fills, f)
	t.updatePosition(f)
	cb := t.OnFill
	t.mu.Unlock()

	if cb != nil {
		cb(f)
	}
}

// updatePosition adjusts the position for a fill. Caller must hold t.mu.
func (t *Tracker) updatePosition(f broker.Fill) {
	pos, ok := t.positions[f.Symbol]
	if !ok {
		pos = &broker.Position{Symbol: f.Symbol}
		t.positions[f.Symbol] = pos
	}
	pos.CurrentPrice = f.Price

	signedQty := f.Quantity
	if f.Side == broker.SideSell {
		signedQty = signedQty.Neg()
	}

	switch {
	case pos.Quantity.IsZero() || pos.Quantity.Sign() == signedQty.Sign():
		// Opening or adding to the existing direction: blend cost basis.
		totalNotional := pos.AvgEntryPrice.Mul(pos.Quantity.Abs()).Add(f.Price.Mul(f.Quantity))
		pos.Quantity = pos.Quantity.Add(signedQty)
		if !pos.Quantity.IsZero() {
			pos.AvgEntryPrice = totalNotional.Div(pos.Quantity.Abs())
		}
	default:
		// Reducing or flipping direction. Realized P&L on the closed
		// portion is ThesisTracker/PnLTracker's concern; here we only need
		// the resulting net position and its cost basis.
		newQty := pos.Quantity.Add(signedQty)
		switch {
		case newQty.IsZero():
			pos.Quantity = decimal.Zero
			pos.AvgEntryPrice = decimal.Zero
		case newQty.Sign() == pos.Quantity.Sign():
			// Partial close: remaining shares keep their original cost basis.
			pos.Quantity = newQty
		default:
			// Flipped through zero: the new side's cost basis is this fill's price.
			pos.Quantity = newQty
			pos.AvgEntryPrice = f.Price
		}
	}
}

// Position returns a copy of the current position for a symbol, or nil.
func (t *Tracker) Position(symbol string) *broker.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[symbol]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Positions returns a snapshot of all positions.
func (t *Tracker) Positions() []broker.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]broker.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	return out
}

// OpenOrderCount returns the number of orders not yet in a terminal state.
func (t *Tracker) OpenOrderCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, o := range t.orders {
		if !o.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// TotalFills returns the total number of recorded fills.
func (t *Tracker) TotalFills() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.fills)
}

// RecentFills returns the last N fills (most recent first).
func (t *Tracker) RecentFills(limit int) []broker.Fill {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.fills)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]broker.Fill, limit)
	for i := 0; i < limit; i++ {
		out[i] = t.fills[n-1-i]
	}
	return out
}

// ActiveOrders returns a snapshot of every non-terminal order.
func (t *Tracker) ActiveOrders() []OrderState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []OrderState
	for _, o := range t.orders {
		if !o.Status.IsTerminal() {
			out = append(out, *o)
		}
	}
	return out
}
