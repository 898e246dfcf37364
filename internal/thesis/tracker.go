package thesis

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/pricing"
)

var (
	ErrNotFound      = errors.New("thesis: not found")
	ErrAlreadyFilled = errors.New("thesis: draft already has fills")
)

// Tracker owns every thesis and the two secondary indexes (by market, by
// order id). Nothing else mutates this state.
type Tracker struct {
	mu sync.Mutex

	store *Store

	byID     map[string]*Thesis
	byMarket map[string][]string // market ticker -> thesis ids
	byOrder  map[string]string   // order id -> thesis id

	now func() time.Time
}

func NewTracker(store *Store) *Tracker {
	return &Tracker{
		store:    store,
		byID:     make(map[string]*Thesis),
		byMarket: make(map[string][]string),
		byOrder:  make(map[string]string),
		now:      time.Now,
	}
}

// Restore scans the store and rebuilds every index. Call once at startup.
func (t *Tracker) Restore() error {
	all, err := t.store.LoadAll()
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range all {
		th := all[i]
		cp := th
		t.byID[th.ID] = &cp
		t.byMarket[th.MarketTicker] = append(t.byMarket[th.MarketTicker], th.ID)
		for _, oid := range th.OrderIDs {
			t.byOrder[oid] = th.ID
		}
	}
	return nil
}

// CreateThesis returns a new DRAFT thesis with its fee-adjusted edge
// computed up front.
func (t *Tracker) CreateThesis(marketTicker, hypothesis string, direction Direction, entryTarget, exitTarget, modelProb, marketImplied decimal.Decimal, priceCents int, signals []string) (Thesis, error) {
	var edge pricing.Edge
	switch direction {
	case DirectionYes:
		edge = pricing.YesEdge(modelProb, priceCents)
	case DirectionNo:
		edge = pricing.NoEdge(modelProb, priceCents)
	}

	now := t.now()
	th := Thesis{
		ID:                   uuid.NewString(),
		MarketTicker:         marketTicker,
		Hypothesis:           hypothesis,
		Direction:            direction,
		EntryPriceTarget:     entryTarget,
		ExitPriceTarget:      exitTarget,
		ModelProbability:     modelProb,
		MarketImpliedAtEntry: marketImplied,
		FeeAdjustedEdge:      edge.FeeAdjusted,
		Signals:              signals,
		State:                StateDraft,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	t.mu.Lock()
	cp := th
	t.byID[th.ID] = &cp
	t.byMarket[marketTicker] = append(t.byMarket[marketTicker], th.ID)
	t.mu.Unlock()

	if err := t.store.Save(th); err != nil {
		return Thesis{}, err
	}
	return th, nil
}

// LinkOrder records orderID against thesisID in both the order list and the
// reverse index.
func (t *Tracker) LinkOrder(thesisID, orderID string) error {
	t.mu.Lock()
	th, ok := t.byID[thesisID]
	if !ok {
		t.mu.Unlock()
		return ErrNotFound
	}
	th.OrderIDs = append(th.OrderIDs, orderID)
	t.byOrder[orderID] = thesisID
	th.UpdatedAt = t.now()
	snapshot := *th
	t.mu.Unlock()
	return t.store.Save(snapshot)
}

// RecordFill updates filled count and the volume-weighted average fill
// price; the first fill transitions DRAFT -> ACTIVE.
func (t *Tracker) RecordFill(thesisID string, count, price decimal.Decimal) error {
	t.mu.Lock()
	th, ok := t.byID[thesisID]
	if !ok {
		t.mu.Unlock()
		return ErrNotFound
	}

	totalBefore := th.FilledCount
	notionalBefore := th.AvgFillPrice.Mul(totalBefore)
	newTotal := totalBefore.Add(count)
	if newTotal.IsPositive() {
		th.AvgFillPrice = notionalBefore.Add(price.Mul(count)).Div(newTotal)
	}
	th.FilledCount = newTotal

	if th.State == StateDraft {
		th.State = StateActive
	}
	th.UpdatedAt = t.now()
	snapshot := *th
	t.mu.Unlock()
	return t.store.Save(snapshot)
}

// Invalidate marks a DRAFT or ACTIVE thesis INVALIDATED with reason.
func (t *Tracker) Invalidate(thesisID, reason string) error {
	return t.transition(thesisID, StateInvalidated, func(th *Thesis) {
		th.InvalidReason = reason
	})
}

// Expire marks a DRAFT or ACTIVE thesis EXPIRED.
func (t *Tracker) Expire(thesisID string) error {
	return t.transition(thesisID, StateExpired, nil)
}

// Realize computes realized P&L from filled count, average fill price, exit
// price, and the flat round-trip fee, then transitions the thesis to
// REALIZED. Direction determines sign: YES profits as price rises, NO
// profits as price falls.
func (t *Tracker) Realize(thesisID string, exitPrice decimal.Decimal, outcomeCorrect bool) error {
	return t.transition(thesisID, StateRealized, func(th *Thesis) {
		feeCents := decimal.NewFromInt(pricing.RoundTripFeeCents)
		var perContract decimal.Decimal
		switch th.Direction {
		case DirectionYes:
			perContract = exitPrice.Sub(th.AvgFillPrice)
		case DirectionNo:
			perContract = th.AvgFillPrice.Sub(exitPrice)
		}
		th.RealizedPnL = perContract.Mul(th.FilledCount).Sub(feeCents.Mul(th.FilledCount))
		th.ExitPrice = &exitPrice
		th.OutcomeCorrect = &outcomeCorrect
	})
}

func (t *Tracker) transition(thesisID string, newState State, mutate func(*Thesis)) error {
	t.mu.Lock()
	th, ok := t.byID[thesisID]
	if !ok {
		t.mu.Unlock()
		return ErrNotFound
	}
	if mutate != nil {
		mutate(th)
	}
	th.State = newState
	th.UpdatedAt = t.now()
	snapshot := *th
	t.mu.Unlock()
	return t.store.Save(snapshot)
}

// Get returns a copy of the thesis, or ErrNotFound.
func (t *Tracker) Get(thesisID string) (Thesis, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	th, ok := t.byID[thesisID]
	if !ok {
		return Thesis{}, ErrNotFound
	}
	return *th, nil
}

// ByMarket returns every thesis linked to marketTicker.
func (t *Tracker) ByMarket(marketTicker string) []Thesis {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.byMarket[marketTicker]
	out := make([]Thesis, 0, len(ids))
	for _, id := range ids {
		if th, ok := t.byID[id]; ok {
			out = append(out, *th)
		}
	}
	return out
}

// ByOrder returns the thesis an order id is linked to, if any.
func (t *Tracker) ByOrder(orderID string) (Thesis, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byOrder[orderID]
	if !ok {
		return Thesis{}, false
	}
	th, ok := t.byID[id]
	if !ok {
		return Thesis{}, false
	}
	return *th, true
}

// ThesisForOrder returns the thesis an order id is linked to, if any. It is
// the first-class query form of the order->thesis reverse index.
func (t *Tracker) ThesisForOrder(orderID string) (Thesis, bool) {
	return t.ByOrder(orderID)
}

// OrdersForThesis returns the order ids linked to thesisID, in link order.
func (t *Tracker) OrdersForThesis(thesisID string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	th, ok := t.byID[thesisID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]string, len(th.OrderIDs))
	copy(out, th.OrderIDs)
	return out, nil
}

// CleanupOlderThan removes non-ACTIVE theses last updated before cutoff from
// both the index and the store.
func (t *Tracker) CleanupOlderThan(ttl time.Duration) (int, error) {
	cutoff := t.now().Add(-ttl)
	t.mu.Lock()
	var toRemove []string
	for id, th := range t.byID {
		if th.State != StateActive && th.UpdatedAt.Before(cutoff) {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		th := t.byID[id]
		delete(t.byID, id)
		ids := t.byMarket[th.MarketTicker]
		for i, mid := range ids {
			if mid == id {
				t.byMarket[th.MarketTicker] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		for _, oid := range th.OrderIDs {
			delete(t.byOrder, oid)
		}
	}
	t.mu.Unlock()

	for _, id := range toRemove {
		if err := t.store.Delete(id); err != nil {
			return len(toRemove), fmt.Errorf("cleanup delete %s: %w", id, err)
		}
	}
	return len(toRemove), nil
}

// All returns a snapshot copy of every tracked thesis.
func (t *Tracker) All() []Thesis {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Thesis, 0, len(t.byID))
	for _, th := range t.byID {
		out = append(out, *th)
	}
	return out
}
