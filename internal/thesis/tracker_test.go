package thesis

import (
	"testing"

	"github.com/shopspring/decimal"
)

func amt(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return NewTracker(store)
}

func TestCreateThesisStartsAsDraft(t *testing.T) {
	tr := newTestTracker(t)
	th, err := tr.CreateThesis("MARKET-1", "model thinks YES underpriced", DirectionYes, amt("45"), amt("70"), amt("0.55"), amt("0.45"), 45, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if th.State != StateDraft {
		t.Fatalf("expected DRAFT, got %s", th.State)
	}
	if !th.FeeAdjustedEdge.IsPositive() {
		t.Fatalf("expected positive fee-adjusted edge, got %s", th.FeeAdjustedEdge)
	}
}

func TestRecordFillTransitionsDraftToActiveAndComputesVWAP(t *testing.T) {
	tr := newTestTracker(t)
	th, _ := tr.CreateThesis("MARKET-1", "h", DirectionYes, amt("45"), amt("70"), amt("0.55"), amt("0.45"), 45, nil)

	if err := tr.RecordFill(th.ID, amt("10"), amt("40")); err != nil {
		t.Fatalf("fill 1: %v", err)
	}
	if err := tr.RecordFill(th.ID, amt("20"), amt("46")); err != nil {
		t.Fatalf("fill 2: %v", err)
	}

	got, err := tr.Get(th.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateActive {
		t.Fatalf("expected ACTIVE after first fill, got %s", got.State)
	}
	// VWAP = (10*40 + 20*46) / 30 = (400+920)/30 = 44
	if !got.AvgFillPrice.Equal(amt("44")) {
		t.Fatalf("expected avg_fill_price 44, got %s", got.AvgFillPrice)
	}
}

func TestRealizeComputesPnLAndTransitionsTerminal(t *testing.T) {
	tr := newTestTracker(t)
	th, _ := tr.CreateThesis("MARKET-1", "h", DirectionYes, amt("45"), amt("70"), amt("0.55"), amt("0.45"), 45, nil)
	tr.RecordFill(th.ID, amt("10"), amt("45"))

	if err := tr.Realize(th.ID, amt("70"), true); err != nil {
		t.Fatalf("realize: %v", err)
	}
	got, _ := tr.Get(th.ID)
	if got.State != StateRealized {
		t.Fatalf("expected REALIZED, got %s", got.State)
	}
	// per-contract = 70-45=25, fee 14/contract, pnl=(25-14)*10=110
	if !got.RealizedPnL.Equal(amt("110")) {
		t.Fatalf("expected realized pnl 110, got %s", got.RealizedPnL)
	}
}

func TestRestoreRebuildsIndexesFromDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tr := NewTracker(store)
	th, _ := tr.CreateThesis("MARKET-1", "h", DirectionYes, amt("45"), amt("70"), amt("0.55"), amt("0.45"), 45, nil)
	tr.LinkOrder(th.ID, "order-1")

	store2, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	tr2 := NewTracker(store2)
	if err := tr2.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got, ok := tr2.ByOrder("order-1"); !ok || got.ID != th.ID {
		t.Fatalf("expected order index to survive restore, got %+v ok=%v", got, ok)
	}
	byMarket := tr2.ByMarket("MARKET-1")
	if len(byMarket) != 1 || byMarket[0].ID != th.ID {
		t.Fatalf("expected market index to survive restore, got %+v", byMarket)
	}
}

func TestOrdersForThesisAndThesisForOrder(t *testing.T) {
	tr := newTestTracker(t)
	th, _ := tr.CreateThesis("MARKET-1", "h", DirectionYes, amt("45"), amt("70"), amt("0.55"), amt("0.45"), 45, nil)
	if err := tr.LinkOrder(th.ID, "order-1"); err != nil {
		t.Fatalf("link 1: %v", err)
	}
	if err := tr.LinkOrder(th.ID, "order-2"); err != nil {
		t.Fatalf("link 2: %v", err)
	}

	orders, err := tr.OrdersForThesis(th.ID)
	if err != nil {
		t.Fatalf("orders for thesis: %v", err)
	}
	if len(orders) != 2 || orders[0] != "order-1" || orders[1] != "order-2" {
		t.Fatalf("expected [order-1 order-2], got %v", orders)
	}

	got, ok := tr.ThesisForOrder("order-2")
	if !ok || got.ID != th.ID {
		t.Fatalf("expected thesis for order-2 to resolve to %s, got %+v ok=%v", th.ID, got, ok)
	}

	if _, err := tr.OrdersForThesis("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown thesis id, got %v", err)
	}
}
