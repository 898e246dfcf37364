// Package notify delivers internal/events.Bus payloads to a Telegram chat
// via the Bot API. It is the one concrete events.Subscriber this module
// ships; any other subscriber (a dashboard, a different chat backend) can
// attach to the same bus without touching this package. Kept from the
// teacher's Telegram notifier: same enabled-iff-credentials-present gate
// and raw HTTP POST to sendMessage; the Polymarket-specific NotifyFill/
// NotifyStopLoss/... helpers are replaced by a single Subscribe call that
// renders each typed event via internal/telegramtmpl.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tradingcore/riskcore/internal/events"
	"github.com/tradingcore/riskcore/internal/telegramtmpl"
)

// Notifier sends rendered event messages to a Telegram chat via the Bot API.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to Telegram API
	logger     *slog.Logger
}

// NewNotifier creates a Notifier. Notifications are enabled only when both
// botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
		logger:     slog.Default().With("component", "notify"),
	}
}

// Enabled reports whether the notifier is active.
func (n *Notifier) Enabled() bool { return n.enabled }

// Send posts a message to the configured Telegram chat.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// Subscribe attaches the notifier to bus, rendering every event kind it
// knows how to display and forwarding the result to the configured chat.
// Subscriber panics/errors are isolated by events.Bus; Send errors here are
// only logged, since there is no caller left to report them to.
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.KindAlert, func(ev events.Event) {
		n.deliver(ev, telegramtmpl.RenderAlert(ev.Payload.(events.Alert)))
	})
	bus.Subscribe(events.KindDrawdownLevelChange, func(ev events.Event) {
		n.deliver(ev, telegramtmpl.RenderDrawdownLevelChange(ev.Payload.(events.DrawdownLevelChange)))
	})
	bus.Subscribe(events.KindHealthCheck, func(ev events.Event) {
		hc := ev.Payload.(events.HealthCheck)
		if hc.Healthy {
			return // only surface unhealthy transitions; Healthy=true floods the chat on every recovery
		}
		n.deliver(ev, telegramtmpl.RenderHealthCheck(hc))
	})
}

func (n *Notifier) deliver(ev events.Event, msg string) {
	if err := n.Send(context.Background(), msg); err != nil {
		n.logger.Error("telegram delivery failed", "kind", ev.Kind, "err", err)
	}
}
