// Package telegramtmpl renders event-bus payloads into the HTML text
// Telegram's Bot API expects (parse_mode=HTML). Adapted from the teacher's
// daily/weekly coaching templates: same strings.Builder section-by-section
// idiom, now rendering typed risk/account events instead of Polymarket
// trade-advice copy.
package telegramtmpl

import (
	"fmt"
	"strings"

	"github.com/tradingcore/riskcore/internal/events"
	"github.com/tradingcore/riskcore/internal/moneyx"
)

// RenderAlert renders an events.Alert as an HTML Telegram message.
func RenderAlert(a events.Alert) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>%s Alert</b>\n", strings.ToUpper(string(a.Priority))))
	b.WriteString(fmt.Sprintf("Type: <code>%s</code>\n", a.Type))
	if a.Symbol != "" {
		b.WriteString(fmt.Sprintf("Symbol: <code>%s</code>\n", a.Symbol))
	}
	b.WriteString(fmt.Sprintf("Value: %s\nThreshold: %s\n", a.Value, a.Threshold))
	return strings.TrimSpace(b.String())
}

// RenderDrawdownLevelChange renders a drawdown-level transition.
func RenderDrawdownLevelChange(c events.DrawdownLevelChange) string {
	return fmt.Sprintf("<b>Drawdown Level Changed</b>\n%s -> %s", c.Old, c.New)
}

// RenderAccountSnapshot renders a periodic account-snapshot broadcast.
func RenderAccountSnapshot(s events.AccountSnapshot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>Account Snapshot (%s)</b>\n", s.Venue))
	b.WriteString(fmt.Sprintf("Equity: %s\nCash: %s\nBuying Power: %s\nPositions: %d\n",
		moneyx.Display(s.Account.Equity), moneyx.Display(s.Account.Cash), moneyx.Display(s.Account.BuyingPower), len(s.Positions)))
	return strings.TrimSpace(b.String())
}

// RenderHealthCheck renders a venue health-status change.
func RenderHealthCheck(h events.HealthCheck) string {
	status := "HEALTHY"
	if !h.Healthy {
		status = "UNHEALTHY"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>Venue Health: %s</b>\n%s\n", status, h.Venue))
	if h.Err != "" {
		b.WriteString("Error: " + h.Err + "\n")
	}
	return strings.TrimSpace(b.String())
}

// DailySummary describes the data required to render a daily P&L summary.
type DailySummary struct {
	Mode          string
	TradingHalted bool
	DrawdownLevel string
	RealizedPnL   string
	Fills         int
	Streak        int
}

// RenderDailySummary renders a daily P&L summary message.
func RenderDailySummary(d DailySummary) string {
	status := "ACTIVE"
	if d.TradingHalted {
		status = "HALTED"
	}
	var b strings.Builder
	b.WriteString("<b>Daily Summary</b>\n")
	b.WriteString(fmt.Sprintf("Mode: %s\nStatus: %s\nDrawdown Level: %s\n",
		strings.ToUpper(strings.TrimSpace(d.Mode)), status, d.DrawdownLevel))
	b.WriteString(fmt.Sprintf("Realized P&L: %s\nFills: %d\nStreak: %d\n", d.RealizedPnL, d.Fills, d.Streak))
	return strings.TrimSpace(b.String())
}
