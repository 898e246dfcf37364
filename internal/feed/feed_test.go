package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestBookSnapshotUpdate(t *testing.T) {
	snap := NewBookSnapshot()
	snap.Update(Quote{Symbol: "AAPL", Bid: d("0.50"), Ask: d("0.52"), BidSize: d("100"), AskSize: d("150")})

	q, ok := snap.Get("AAPL")
	if !ok {
		t.Fatal("expected quote for AAPL")
	}
	if !q.Bid.Equal(d("0.50")) {
		t.Fatalf("expected best bid 0.50, got %s", q.Bid)
	}
	if !q.Ask.Equal(d("0.52")) {
		t.Fatalf("expected best ask 0.52, got %s", q.Ask)
	}
}

func TestBookSnapshotMid(t *testing.T) {
	snap := NewBookSnapshot()
	snap.Update(Quote{Symbol: "AAPL", Bid: d("0.50"), Ask: d("0.52")})
	mid, err := snap.Mid("AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if !mid.Equal(d("0.51")) {
		t.Fatalf("expected mid 0.51, got %s", mid)
	}
}

func TestBookSnapshotDepth(t *testing.T) {
	snap := NewBookSnapshot()
	snap.Update(Quote{Symbol: "AAPL", Bid: d("0.50"), Ask: d("0.52"), BidSize: d("300"), AskSize: d("400")})
	bidDepth, askDepth := snap.Depth("AAPL")
	if !bidDepth.Equal(d("300")) {
		t.Fatalf("expected bid depth 300, got %s", bidDepth)
	}
	if !askDepth.Equal(d("400")) {
		t.Fatalf("expected ask depth 400, got %s", askDepth)
	}
}

func TestBookSnapshotMissing(t *testing.T) {
	snap := NewBookSnapshot()
	_, err := snap.Mid("nonexistent")
	if err == nil {
		t.Fatal("expected error for missing symbol")
	}
}

func TestBookSnapshotSymbols(t *testing.T) {
	snap := NewBookSnapshot()
	snap.Update(Quote{Symbol: "t1", Bid: d("0.5"), Ask: d("0.6")})
	snap.Update(Quote{Symbol: "t2", Bid: d("0.5"), Ask: d("0.6")})
	ids := snap.Symbols()
	if len(ids) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(ids))
	}
}

func TestBookSnapshotStaleSequenceTriggersCallback(t *testing.T) {
	snap := NewBookSnapshot()
	var gotSymbol string
	var gotSeq, wantSeq int64
	snap.OnStaleQuote(func(symbol string, got, want int64) {
		gotSymbol, gotSeq, wantSeq = symbol, got, want
	})

	snap.Update(Quote{Symbol: "AAPL", Bid: d("0.5"), Ask: d("0.6"), Sequence: 1})
	snap.Update(Quote{Symbol: "AAPL", Bid: d("0.5"), Ask: d("0.6"), Sequence: 5})

	if gotSymbol != "AAPL" {
		t.Fatalf("expected stale callback for AAPL, got %q", gotSymbol)
	}
	if gotSeq != 5 || wantSeq != 2 {
		t.Fatalf("expected got=5 want=2, got got=%d want=%d", gotSeq, wantSeq)
	}
}

func TestBookSnapshotSequentialUpdateNoCallback(t *testing.T) {
	snap := NewBookSnapshot()
	called := false
	snap.OnStaleQuote(func(symbol string, got, want int64) { called = true })

	snap.Update(Quote{Symbol: "AAPL", Bid: d("0.5"), Ask: d("0.6"), Sequence: 1})
	snap.Update(Quote{Symbol: "AAPL", Bid: d("0.5"), Ask: d("0.6"), Sequence: 2})

	if called {
		t.Fatal("expected no stale callback for sequential updates")
	}
}

func TestBookSnapshotStaleByAge(t *testing.T) {
	snap := NewBookSnapshot()
	snap.Update(Quote{Symbol: "AAPL", Bid: d("0.5"), Ask: d("0.6"), UpdatedAt: time.Now().Add(-time.Hour)})
	if !snap.Stale("AAPL", time.Minute) {
		t.Fatal("expected quote to be stale")
	}
	if snap.Stale("missing", time.Minute) != true {
		t.Fatal("expected missing symbol to be reported stale")
	}
}
