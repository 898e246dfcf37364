package pnl

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/events"
)

func amt(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestAlertCooldownSuppressesSecondEmission(t *testing.T) {
	var alerts []events.Alert
	bus := events.NewBus(nil)
	bus.Subscribe(events.KindAlert, func(e events.Event) {
		alerts = append(alerts, e.Payload.(events.Alert))
	})

	cfg := Config{PositionProfitPct: amt("0.05"), CooldownMinutes: 10}
	tr := NewTracker(cfg, bus, amt("1000"))

	tr.Update("AAPL", amt("100"), amt("10"), amt("106"), amt("1000"))
	tr.Update("AAPL", amt("100"), amt("10"), amt("106"), amt("1000"))

	var profitAlerts int
	for _, a := range alerts {
		if a.Type == "POSITION_PROFIT" {
			profitAlerts++
		}
	}
	if profitAlerts != 1 {
		t.Fatalf("expected exactly one POSITION_PROFIT alert within cooldown, got %d", profitAlerts)
	}
}

func TestStreakSignFlipResets(t *testing.T) {
	tr := NewTracker(Config{}, nil, amt("1000"))
	tr.RecordTrade(amt("10"))
	tr.RecordTrade(amt("10"))
	if tr.Streak() != 2 {
		t.Fatalf("expected streak 2, got %d", tr.Streak())
	}
	tr.RecordTrade(amt("-5"))
	if tr.Streak() != -1 {
		t.Fatalf("expected streak reset to -1 on sign flip, got %d", tr.Streak())
	}
}

func TestLosingStreakAlertFires(t *testing.T) {
	var alerts []events.Alert
	bus := events.NewBus(nil)
	bus.Subscribe(events.KindAlert, func(e events.Event) {
		alerts = append(alerts, e.Payload.(events.Alert))
	})
	tr := NewTracker(Config{LosingStreakLimit: 3}, bus, amt("1000"))
	tr.RecordTrade(amt("-1"))
	tr.RecordTrade(amt("-1"))
	tr.RecordTrade(amt("-1"))

	var found bool
	for _, a := range alerts {
		if a.Type == "LOSING_STREAK" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a LOSING_STREAK alert after 3 consecutive losses")
	}
}

func TestDailySummaryReportsPnLRealizedAndStreak(t *testing.T) {
	bus := events.NewBus(nil)
	tr := NewTracker(Config{}, bus, amt("1000"))
	tr.RecordTrade(amt("50"))
	tr.RecordTrade(amt("25"))

	snap := tr.DailySummary(amt("1075"))
	if !snap.DailyPnL.Equal(amt("75")) {
		t.Fatalf("expected daily PnL 75, got %s", snap.DailyPnL)
	}
	if !snap.Realized.Equal(amt("75")) {
		t.Fatalf("expected realized 75, got %s", snap.Realized)
	}
	if snap.Streak != 2 {
		t.Fatalf("expected streak 2, got %d", snap.Streak)
	}
}
