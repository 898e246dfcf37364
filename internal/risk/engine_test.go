package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func baseLimits() Limits {
	return Limits{
		MaxOrderNotional:    d("10000"),
		MaxPositionShares:   1000,
		MaxPositionNotional: d("50000"),
		MaxTotalExposure:    d("100000"),
		MaxConcentrationPct: d("0.5"),
	}
}

func newTestEngine(limits Limits, equity decimal.Decimal) *Engine {
	breaker := NewCircuitBreaker(d("0.3"), decimal.Zero, 10)
	return NewEngine(limits, breaker, equity)
}

func TestCheckOrderBoundaryAtMaxOrderNotional(t *testing.T) {
	limits := baseLimits()
	e := newTestEngine(limits, d("100000"))
	intent := broker.OrderIntent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 100, Type: broker.OrderTypeMarket}

	// exactly at the ceiling: 100 * 100 = 10000
	dec := e.CheckOrder(intent, nil, d("100"), d("100000"))
	if dec.Action == ActionReject {
		t.Fatalf("expected order at exactly max_order_notional to pass, got REJECT: %+v", dec.Failed)
	}

	// one share over: 101 * 100 = 10100
	intent.Quantity = 101
	dec = e.CheckOrder(intent, nil, d("100"), d("100000"))
	if dec.Action != ActionReject {
		t.Fatalf("expected order over max_order_notional to REJECT, got %s", dec.Action)
	}
}

func TestCheckOrderKillSwitch(t *testing.T) {
	e := newTestEngine(baseLimits(), d("100000"))
	e.SetKillSwitch(true)
	intent := broker.OrderIntent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 1, Type: broker.OrderTypeMarket}
	dec := e.CheckOrder(intent, nil, d("100"), d("100000"))
	if dec.Action != ActionReject || len(dec.Failed) == 0 || dec.Failed[0].Code != CodeKillSwitchActive {
		t.Fatalf("expected KILL_SWITCH_ACTIVE rejection, got %+v", dec)
	}
}

func TestCheckOrderEmptyAllowlistDisablesGate(t *testing.T) {
	limits := baseLimits()
	limits.Blocklist = map[string]bool{"BADCO": true}
	e := newTestEngine(limits, d("100000"))

	intent := broker.OrderIntent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 1, Type: broker.OrderTypeMarket}
	if dec := e.CheckOrder(intent, nil, d("100"), d("100000")); dec.Action == ActionReject {
		t.Fatalf("expected empty allowlist to not block AAPL, got %+v", dec.Failed)
	}

	blocked := broker.OrderIntent{Symbol: "BADCO", Side: broker.SideBuy, Quantity: 1, Type: broker.OrderTypeMarket}
	dec := e.CheckOrder(blocked, nil, d("100"), d("100000"))
	if dec.Action != ActionReject || dec.Failed[0].Code != CodeSymbolBlocked {
		t.Fatalf("expected SYMBOL_BLOCKED, got %+v", dec)
	}
}

func TestCheckOrderZeroEquitySkipsConcentration(t *testing.T) {
	e := newTestEngine(baseLimits(), d("0"))
	intent := broker.OrderIntent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 10, Type: broker.OrderTypeMarket}
	dec := e.CheckOrder(intent, nil, d("100"), d("0"))
	for _, f := range dec.Failed {
		if f.Code == CodeConcentrationExceeded {
			t.Fatal("concentration check should be skipped at zero equity")
		}
	}
}

func TestCheckOrderDryRunNeverApproves(t *testing.T) {
	e := newTestEngine(baseLimits(), d("100000"))
	e.SetDryRun(true)
	intent := broker.OrderIntent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 1, Type: broker.OrderTypeMarket}
	dec := e.CheckOrder(intent, nil, d("100"), d("100000"))
	if dec.Action != ActionDryRun {
		t.Fatalf("expected DRY_RUN, got %s", dec.Action)
	}
}

func TestCheckOrderRequireApprovalAboveNotionalThreshold(t *testing.T) {
	limits := baseLimits()
	limits.ApprovalNotionalThreshold = d("5000")
	e := newTestEngine(limits, d("100000"))
	intent := broker.OrderIntent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 60, Type: broker.OrderTypeMarket}
	dec := e.CheckOrder(intent, nil, d("100"), d("100000"))
	if dec.Action != ActionRequireApproval {
		t.Fatalf("expected REQUIRE_APPROVAL, got %s (%+v)", dec.Action, dec.Failed)
	}
}

func TestCircuitBreakerTripsAndHalfOpens(t *testing.T) {
	b := NewCircuitBreaker(d("0.3"), decimal.Zero, 10)
	for i := 0; i < 5; i++ {
		b.RecordSuccess(decimal.Zero)
	}
	if b.State() != BreakerClosed {
		t.Fatalf("expected CLOSED after successes, got %s", b.State())
	}
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected OPEN after reject-rate breach, got %s", b.State())
	}
	b.now = func() time.Time { return time.Now().Add(breakerCooldown) }
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected HALF_OPEN after cooldown, got %s", b.State())
	}
}

func TestCheckOrderDeterminism(t *testing.T) {
	limits := baseLimits()
	limits.MaxOrderNotional = d("100")
	e := newTestEngine(limits, d("100000"))
	intent := broker.OrderIntent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 10, Type: broker.OrderTypeMarket}
	first := e.CheckOrder(intent, nil, d("100"), d("100000"))
	second := e.CheckOrder(intent, nil, d("100"), d("100000"))
	if first.Action != ActionReject || second.Action != ActionReject {
		t.Fatalf("expected both calls to REJECT identically, got %s and %s", first.Action, second.Action)
	}
}
