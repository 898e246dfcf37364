// Package feed maintains an in-memory top-of-book snapshot per symbol,
// built from either venue's quote/orderbook stream, independent of (and a
// fast-path alternative to) asking the REST gateway for its own view.
// Adapted from the teacher's orderbook snapshot cache: same mutex-guarded
// map keyed by instrument, now carrying decimal bid/ask/size instead of
// polymarket's string-encoded orderbook levels, plus sequence-gap
// detection that triggers a REST re-sync instead of trading on stale data.
package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one venue's best-bid/best-offer snapshot for a symbol.
type Quote struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	BidSize   decimal.Decimal
	AskSize   decimal.Decimal
	Sequence  int64
	UpdatedAt time.Time
}

// Mid returns the midpoint of bid and ask.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Spread returns the bid-ask spread.
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// BookSnapshot caches the latest quote per symbol and detects sequence
// gaps so callers can trigger a REST re-sync rather than trade on stale
// data.
type BookSnapshot struct {
	mu     sync.RWMutex
	quotes map[string]Quote

	// onStaleQuote, if set, is invoked (outside the lock) whenever an
	// incoming update's sequence number is not exactly lastSeq+1, signaling
	// the caller should re-fetch the book via REST before trusting it.
	onStaleQuote func(symbol string, gotSeq, wantSeq int64)
}

func NewBookSnapshot() *BookSnapshot {
	return &BookSnapshot{quotes: make(map[string]Quote)}
}

// OnStaleQuote registers the stale-sequence callback.
func (s *BookSnapshot) OnStaleQuote(fn func(symbol string, gotSeq, wantSeq int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStaleQuote = fn
}

// Update records a new quote. A Sequence of 0 skips gap detection (used by
// venues, like the equities REST poller, that don't carry a sequence
// number).
func (s *BookSnapshot) Update(q Quote) {
	s.mu.Lock()
	prev, had := s.quotes[q.Symbol]
	var stale bool
	var wantSeq int64
	if had && q.Sequence != 0 && prev.Sequence != 0 {
		wantSeq = prev.Sequence + 1
		stale = q.Sequence != wantSeq
	}
	s.quotes[q.Symbol] = q
	cb := s.onStaleQuote
	s.mu.Unlock()

	if stale && cb != nil {
		cb(q.Symbol, q.Sequence, wantSeq)
	}
}

// Get returns the cached quote for a symbol.
func (s *BookSnapshot) Get(symbol string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// Mid returns the midpoint price for a symbol, or an error if no quote is
// cached yet.
func (s *BookSnapshot) Mid(symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no quote for %s", symbol)
	}
	return q.Mid(), nil
}

// Depth returns the cached bid/ask size for a symbol.
func (s *BookSnapshot) Depth(symbol string) (bidSize, askSize decimal.Decimal) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return decimal.Zero, decimal.Zero
	}
	return q.BidSize, q.AskSize
}

// Symbols returns all symbols with a cached quote.
func (s *BookSnapshot) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.quotes))
	for id := range s.quotes {
		ids = append(ids, id)
	}
	return ids
}

// Stale reports whether a symbol's quote is older than maxAge.
func (s *BookSnapshot) Stale(symbol string, maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return true
	}
	return time.Since(q.UpdatedAt) > maxAge
}
