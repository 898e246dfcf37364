package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestRegisterAndTrack(t *testing.T) {
	tr := NewTracker()
	tr.RegisterOrder(broker.Order{
		BrokerOrderID: "ord-1", Symbol: "ACME", Side: broker.SideBuy,
		Quantity: 100, Status: broker.OrderStatusNew,
	})

	if tr.OpenOrderCount() != 1 {
		t.Fatalf("expected 1 open order, got %d", tr.OpenOrderCount())
	}

	tr.ProcessOrderEvent(broker.Order{
		BrokerOrderID: "ord-1", Symbol: "ACME", Side: broker.SideBuy,
		Quantity: 100, FilledQuantity: 0, Status: broker.OrderStatusNew,
	})
	if tr.OpenOrderCount() != 1 {
		t.Fatalf("expected 1 open order after update, got %d", tr.OpenOrderCount())
	}

	tr.ProcessOrderEvent(broker.Order{
		BrokerOrderID: "ord-1", Symbol: "ACME", Side: broker.SideBuy,
		Quantity: 100, FilledQuantity: 100, Status: broker.OrderStatusFilled,
	})
	if tr.OpenOrderCount() != 0 {
		t.Fatalf("expected 0 open orders once filled, got %d", tr.OpenOrderCount())
	}
}

func TestFillUpdatesPosition(t *testing.T) {
	tr := NewTracker()
	tr.ProcessFill(broker.Fill{
		Symbol: "ACME", Side: broker.SideBuy, Price: d("50"), Quantity: d("10"), Timestamp: time.Now(),
	})

	pos := tr.Position("ACME")
	if pos == nil {
		t.Fatal("expected position")
	}
	if !pos.Quantity.Equal(d("10")) {
		t.Fatalf("expected quantity 10, got %s", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(d("50")) {
		t.Fatalf("expected avg entry 50, got %s", pos.AvgEntryPrice)
	}
}

func TestFillBlendsCostBasisOnAdd(t *testing.T) {
	tr := NewTracker()
	tr.ProcessFill(broker.Fill{Symbol: "ACME", Side: broker.SideBuy, Price: d("50"), Quantity: d("10")})
	tr.ProcessFill(broker.Fill{Symbol: "ACME", Side: broker.SideBuy, Price: d("60"), Quantity: d("10")})

	pos := tr.Position("ACME")
	// VWAP = (50*10+60*10)/20 = 55
	if !pos.AvgEntryPrice.Equal(d("55")) {
		t.Fatalf("expected blended avg entry 55, got %s", pos.AvgEntryPrice)
	}
}

func TestFillFlipsThroughZero(t *testing.T) {
	tr := NewTracker()
	tr.ProcessFill(broker.Fill{Symbol: "ACME", Side: broker.SideBuy, Price: d("50"), Quantity: d("10")})
	tr.ProcessFill(broker.Fill{Symbol: "ACME", Side: broker.SideSell, Price: d("40"), Quantity: d("15")})

	pos := tr.Position("ACME")
	if !pos.Quantity.Equal(d("-5")) {
		t.Fatalf("expected net short 5, got %s", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(d("40")) {
		t.Fatalf("expected new short cost basis 40, got %s", pos.AvgEntryPrice)
	}
}

func TestOnFillCallbackFiresOutsideLock(t *testing.T) {
	tr := NewTracker()
	var got broker.Fill
	tr.OnFill = func(f broker.Fill) { got = f }

	tr.ProcessFill(broker.Fill{Symbol: "ACME", Side: broker.SideBuy, Price: d("50"), Quantity: d("10")})
	if got.Symbol != "ACME" {
		t.Fatalf("expected OnFill invoked with the fill, got %+v", got)
	}
}

func TestRecentFillsMostRecentFirst(t *testing.T) {
	tr := NewTracker()
	tr.ProcessFill(broker.Fill{Symbol: "A", Side: broker.SideBuy, Price: d("1"), Quantity: d("1")})
	tr.ProcessFill(broker.Fill{Symbol: "B", Side: broker.SideBuy, Price: d("2"), Quantity: d("1")})

	recent := tr.RecentFills(2)
	if len(recent) != 2 || recent[0].Symbol != "B" || recent[1].Symbol != "A" {
		t.Fatalf("expected [B, A] most-recent-first, got %+v", recent)
	}
}
