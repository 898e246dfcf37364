package telegramtmpl

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/events"
)

func TestRenderAlert(t *testing.T) {
	msg := RenderAlert(events.Alert{
		Type:      "daily_loss_limit",
		Priority:  events.PriorityCritical,
		Value:     "5200",
		Threshold: "5000",
		Symbol:    "ACME",
	})
	if !strings.Contains(msg, "CRITICAL Alert") {
		t.Fatalf("expected priority in title, got %q", msg)
	}
	if !strings.Contains(msg, "daily_loss_limit") {
		t.Fatalf("expected alert type, got %q", msg)
	}
	if !strings.Contains(msg, "ACME") {
		t.Fatalf("expected symbol, got %q", msg)
	}
}

func TestRenderAlertOmitsSymbolWhenPortfolioScoped(t *testing.T) {
	msg := RenderAlert(events.Alert{Type: "drawdown", Priority: events.PriorityHigh, Value: "0.1", Threshold: "0.08"})
	if strings.Contains(msg, "Symbol:") {
		t.Fatalf("expected no symbol line for portfolio-scope alert, got %q", msg)
	}
}

func TestRenderDrawdownLevelChange(t *testing.T) {
	msg := RenderDrawdownLevelChange(events.DrawdownLevelChange{Old: "NORMAL", New: "CRITICAL"})
	if !strings.Contains(msg, "NORMAL -> CRITICAL") {
		t.Fatalf("expected transition text, got %q", msg)
	}
}

func TestRenderHealthCheck(t *testing.T) {
	healthy := RenderHealthCheck(events.HealthCheck{Venue: "equities", Healthy: true})
	if !strings.Contains(healthy, "HEALTHY") {
		t.Fatalf("expected healthy status, got %q", healthy)
	}

	unhealthy := RenderHealthCheck(events.HealthCheck{Venue: "prediction", Healthy: false, Err: "timeout"})
	if !strings.Contains(unhealthy, "UNHEALTHY") || !strings.Contains(unhealthy, "timeout") {
		t.Fatalf("expected unhealthy status and error, got %q", unhealthy)
	}
}

func TestRenderAccountSnapshot(t *testing.T) {
	msg := RenderAccountSnapshot(events.AccountSnapshot{
		Venue: "equities",
		Account: broker.AccountSnapshot{
			Equity:      decimal.RequireFromString("10234.5678"),
			Cash:        decimal.RequireFromString("5000.1"),
			BuyingPower: decimal.RequireFromString("20000"),
		},
		Positions: []broker.Position{{Symbol: "ACME"}},
	})
	if !strings.Contains(msg, "Equity: 10234.57") {
		t.Fatalf("expected equity rounded to 2 decimals, got %q", msg)
	}
	if !strings.Contains(msg, "Positions: 1") {
		t.Fatalf("expected position count, got %q", msg)
	}
}

func TestRenderDailySummary(t *testing.T) {
	msg := RenderDailySummary(DailySummary{
		Mode:          "paper",
		TradingHalted: true,
		DrawdownLevel: "WARNING",
		RealizedPnL:   "-120.50",
		Fills:         12,
		Streak:        -3,
	})
	if !strings.Contains(msg, "Mode: PAPER") {
		t.Fatalf("expected uppercased mode, got %q", msg)
	}
	if !strings.Contains(msg, "Status: HALTED") {
		t.Fatalf("expected halted status, got %q", msg)
	}
	if !strings.Contains(msg, "WARNING") {
		t.Fatalf("expected drawdown level, got %q", msg)
	}
}
