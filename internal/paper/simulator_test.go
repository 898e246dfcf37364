package paper

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/feed"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func boolPtr(v bool) *bool { return &v }

func sampleQuote() feed.Quote {
	return feed.Quote{Symbol: "ACME", Bid: d("0.50"), Ask: d("0.52"), BidSize: d("500"), AskSize: d("500")}
}

func buyIntent(qty int64) broker.OrderIntent {
	return broker.OrderIntent{Symbol: "ACME", Side: broker.SideBuy, Quantity: qty, Type: broker.OrderTypeMarket}
}

func sellIntent(qty int64) broker.OrderIntent {
	return broker.OrderIntent{Symbol: "ACME", Side: broker.SideSell, Quantity: qty, Type: broker.OrderTypeMarket}
}

func TestExecuteMarketBuyDeductsCashAndFees(t *testing.T) {
	sim := NewSimulator(Config{
		InitialCash: d("1000"),
		FeeBps:      d("10"), // 0.10%
		SlippageBps: d("20"), // 0.20%
	})

	fill, err := sim.ExecuteMarket(buyIntent(100), sampleQuote())
	if err != nil {
		t.Fatalf("ExecuteMarket: %v", err)
	}
	if !fill.Filled {
		t.Fatal("expected market order to be filled")
	}

	snap := sim.Snapshot()
	if snap.Cash.GreaterThan(d("948")) || snap.Cash.LessThan(d("947")) {
		t.Fatalf("expected cash around 947.x after 100 shares at ~0.52 plus slippage/fees, got %s", snap.Cash)
	}
	if !snap.FeesPaid.IsPositive() {
		t.Fatalf("expected positive fee paid, got %s", snap.FeesPaid)
	}
}

func TestExecuteLimitOnlyFillsWhenCrossed(t *testing.T) {
	sim := NewSimulator(Config{
		InitialCash: d("1000"),
		FeeBps:      d("10"),
		SlippageBps: d("0"),
	})

	limitBelowAsk := d("0.51")
	intent := buyIntent(100)
	intent.Type = broker.OrderTypeLimit
	intent.LimitPrice = &limitBelowAsk

	noFill, err := sim.ExecuteLimit(intent, sampleQuote())
	if err != nil {
		t.Fatalf("ExecuteLimit noFill: %v", err)
	}
	if noFill.Filled {
		t.Fatal("expected buy limit below best ask to remain unfilled")
	}
	if noFill.Status != "LIVE" {
		t.Fatalf("expected unfilled order status LIVE, got %s", noFill.Status)
	}
	if !noFill.Price.Equal(d("0.51")) {
		t.Fatalf("expected unfilled order price 0.51, got %s", noFill.Price)
	}
	if noFill.Quantity != 100 {
		t.Fatalf("expected unfilled quantity 100, got %d", noFill.Quantity)
	}

	limitAboveAsk := d("0.53")
	intent2 := buyIntent(100)
	intent2.Type = broker.OrderTypeLimit
	intent2.LimitPrice = &limitAboveAsk

	fill, err := sim.ExecuteLimit(intent2, sampleQuote())
	if err != nil {
		t.Fatalf("ExecuteLimit fill: %v", err)
	}
	if !fill.Filled {
		t.Fatal("expected buy limit above best ask to fill")
	}
}

func TestExecuteMarketRejectsInsufficientCash(t *testing.T) {
	sim := NewSimulator(Config{
		InitialCash: d("10"),
		FeeBps:      d("10"),
	})

	if _, err := sim.ExecuteMarket(buyIntent(100), sampleQuote()); err == nil {
		t.Fatal("expected insufficient cash error for oversized BUY")
	}
}

func TestExecuteMarketRejectsInvalidSide(t *testing.T) {
	sim := NewSimulator(Config{
		InitialCash: d("1000"),
		FeeBps:      d("10"),
	})

	intent := buyIntent(10)
	intent.Side = broker.Side("hold")
	if _, err := sim.ExecuteMarket(intent, sampleQuote()); err == nil {
		t.Fatal("expected invalid side to return error")
	}
}

func TestExecuteMarketSellAllowedByDefault(t *testing.T) {
	sim := NewSimulator(Config{
		InitialCash: d("1000"),
		FeeBps:      d("0"),
		SlippageBps: d("0"),
	})

	if _, err := sim.ExecuteMarket(sellIntent(10), sampleQuote()); err != nil {
		t.Fatalf("expected SELL without inventory to be allowed by default, got: %v", err)
	}
}

func TestExecuteMarketSellRequiresInventoryWhenShortDisabled(t *testing.T) {
	sim := NewSimulator(Config{
		InitialCash: d("1000"),
		FeeBps:      d("0"),
		SlippageBps: d("0"),
		AllowShort:  boolPtr(false),
	})

	if _, err := sim.ExecuteMarket(buyIntent(100), sampleQuote()); err != nil {
		t.Fatalf("buy inventory setup failed: %v", err)
	}

	if _, err := sim.ExecuteMarket(sellIntent(100), sampleQuote()); err != nil {
		t.Fatalf("expected SELL with inventory to succeed: %v", err)
	}

	if _, err := sim.ExecuteMarket(sellIntent(5), sampleQuote()); err == nil {
		t.Fatal("expected SELL without remaining inventory to fail when allow_short=false")
	}
}

func TestSnapshotIncludesInventoryBySymbol(t *testing.T) {
	sim := NewSimulator(Config{
		InitialCash: d("1000"),
		FeeBps:      d("0"),
		SlippageBps: d("0"),
		AllowShort:  boolPtr(false),
	})

	if _, err := sim.ExecuteMarket(buyIntent(100), sampleQuote()); err != nil {
		t.Fatalf("buy inventory setup failed: %v", err)
	}

	snap := sim.Snapshot()
	qty, ok := snap.InventoryBySymbol["ACME"]
	if !ok {
		t.Fatal("expected inventory entry for ACME")
	}
	if qty != 100 {
		t.Fatalf("expected inventory quantity 100, got %d", qty)
	}
}
