package equities

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 60 * time.Second
	writeTimeout      = 10 * time.Second
)

// Quote, Trade, and BarMsg are the three market-data message shapes tagged
// "q", "t", "b" respectively.
type Quote struct {
	Symbol string  `json:"S"`
	Bid    float64 `json:"bp"`
	Ask    float64 `json:"ap"`
}

type Trade struct {
	Symbol string  `json:"S"`
	Price  float64 `json:"p"`
	Size   float64 `json:"s"`
}

type BarMsg struct {
	Symbol     string  `json:"S"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     float64 `json:"v"`
	TradeCount *int    `json:"n"`
}

// OrderEvent is one trade_updates message from the trading-events stream.
type OrderEvent struct {
	Event         string `json:"event"`
	OrderID       string `json:"order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	FilledQty     string `json:"filled_qty"`
	FilledAvgPx   string `json:"filled_avg_price"`
	ClientOrderID string `json:"client_order_id"`
}

// MarketDataStream subscribes to quotes/trades/bars over the equities
// market-data WebSocket (spec.md §6: auth frame, then {action:"subscribe",
// quotes, trades, bars}).
type MarketDataStream struct {
	url    string
	creds  Credentials
	dialer *websocket.Dialer
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	subMu  sync.Mutex
	quotes map[string]bool
	trades map[string]bool
	bars   map[string]bool

	OnQuote func(Quote)
	OnTrade func(Trade)
	OnBar   func(BarMsg)

	stop chan struct{}
}

// NewMarketDataStream creates a market-data stream reader for url.
func NewMarketDataStream(url string, creds Credentials, logger *slog.Logger) *MarketDataStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketDataStream{
		url:    url,
		creds:  creds,
		dialer: websocket.DefaultDialer,
		logger: logger.With("component", "equities_ws_market"),
		quotes: make(map[string]bool),
		trades: make(map[string]bool),
		bars:   make(map[string]bool),
		stop:   make(chan struct{}),
	}
}

// Subscribe mutates the local subscription set before any dispatch so that a
// later reconnect replay always converges on the current intent.
func (s *MarketDataStream) Subscribe(channel string, symbols ...string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	set := s.setFor(channel)
	for _, sym := range symbols {
		set[sym] = true
	}
	s.sendSubscriptionDiff(channel, symbols, true)
}

// Unsubscribe is the inverse of Subscribe.
func (s *MarketDataStream) Unsubscribe(channel string, symbols ...string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	set := s.setFor(channel)
	for _, sym := range symbols {
		delete(set, sym)
	}
	s.sendSubscriptionDiff(channel, symbols, false)
}

func (s *MarketDataStream) setFor(channel string) map[string]bool {
	switch channel {
	case "quotes":
		return s.quotes
	case "trades":
		return s.trades
	case "bars":
		return s.bars
	default:
		return map[string]bool{}
	}
}

// sendSubscriptionDiff best-effort sends a live subscribe/unsubscribe frame.
// Callers hold subMu. If the connection is down, the mutation to the local
// set above is what drives the next reconnect's replay.
func (s *MarketDataStream) sendSubscriptionDiff(channel string, symbols []string, subscribe bool) {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}
	action := "unsubscribe"
	if subscribe {
		action = "subscribe"
	}
	frame := map[string]any{"action": action, channel: symbols}
	_ = s.writeJSON(conn, frame)
}

func (s *MarketDataStream) writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// Connect runs the reconnect loop until Disconnect is called or ctx is
// cancelled. Backoff starts at 1s, doubles to a 60s cap, and resets to 1s on
// any successful authenticated connection.
func (s *MarketDataStream) Connect(ctx context.Context) error {
	delay := minReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		default:
		}

		err := s.connectOnce(ctx, &delay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-s.stop:
			return nil
		default:
		}

		s.logger.Warn("market data stream disconnected, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *MarketDataStream) connectOnce(ctx context.Context, delay *time.Duration) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := s.writeJSON(conn, map[string]any{"action": "auth", "key": s.creds.KeyID, "secret": s.creds.SecretKey}); err != nil {
		return fmt.Errorf("auth send: %w", err)
	}
	if err := s.waitAuthSuccess(conn); err != nil {
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
	}()

	s.replaySubscriptions(conn)

	// Reconnect delay resets to 1s on any successful authenticated connect.
	*delay = minReconnectDelay
	return s.readLoop(conn)
}

func (s *MarketDataStream) waitAuthSuccess(conn *websocket.Conn) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("auth read: %w", err)
	}
	var frames []map[string]any
	if err := json.Unmarshal(data, &frames); err != nil {
		return fmt.Errorf("auth decode: %w", err)
	}
	for _, f := range frames {
		if f["T"] == "success" || f["msg"] == "authenticated" {
			return nil
		}
		if f["T"] == "error" {
			return fmt.Errorf("auth rejected: %v", f["msg"])
		}
	}
	return nil
}

func (s *MarketDataStream) replaySubscriptions(conn *websocket.Conn) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	frame := map[string]any{
		"action": "subscribe",
		"quotes": keysOf(s.quotes),
		"trades": keysOf(s.trades),
		"bars":   keysOf(s.bars),
	}
	_ = s.writeJSON(conn, frame)
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (s *MarketDataStream) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frames []map[string]any
		if err := json.Unmarshal(data, &frames); err != nil {
			continue
		}
		for _, f := range frames {
			s.dispatch(f)
		}
	}
}

func (s *MarketDataStream) dispatch(f map[string]any) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	switch f["T"] {
	case "q":
		var q Quote
		if json.Unmarshal(raw, &q) == nil && s.OnQuote != nil {
			s.OnQuote(q)
		}
	case "t":
		var t Trade
		if json.Unmarshal(raw, &t) == nil && s.OnTrade != nil {
			s.OnTrade(t)
		}
	case "b":
		var b BarMsg
		if json.Unmarshal(raw, &b) == nil && s.OnBar != nil {
			s.OnBar(b)
		}
	case "error":
		s.logger.Error("market data stream error frame", "frame", f)
	}
}

// Disconnect stops the reconnect loop at its next suspension point.
func (s *MarketDataStream) Disconnect() {
	close(s.stop)
}

// TradingEventStream subscribes to trade_updates over the equities trading
// WebSocket (spec.md §6: auth frame, then {action:"listen",
// data:{streams:["trade_updates"]}}).
type TradingEventStream struct {
	url    string
	creds  Credentials
	dialer *websocket.Dialer
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	OnOrderEvent func(OrderEvent)

	stop chan struct{}
}

// NewTradingEventStream creates a trading-events stream reader for url.
func NewTradingEventStream(url string, creds Credentials, logger *slog.Logger) *TradingEventStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradingEventStream{
		url:    url,
		creds:  creds,
		dialer: websocket.DefaultDialer,
		logger: logger.With("component", "equities_ws_trading"),
		stop:   make(chan struct{}),
	}
}

// Subscribe and Unsubscribe are no-ops for this stream — "listen" is a
// single fixed subscription — but are implemented to satisfy broker.Stream.
func (s *TradingEventStream) Subscribe(channel string, symbols ...string)   {}
func (s *TradingEventStream) Unsubscribe(channel string, symbols ...string) {}

// Connect runs the reconnect loop, identical backoff shape to MarketDataStream.
func (s *TradingEventStream) Connect(ctx context.Context) error {
	delay := minReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		default:
		}

		err := s.connectOnce(ctx, &delay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-s.stop:
			return nil
		default:
		}
		s.logger.Warn("trading event stream disconnected, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *TradingEventStream) connectOnce(ctx context.Context, delay *time.Duration) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(map[string]any{"action": "auth", "key": s.creds.KeyID, "secret": s.creds.SecretKey}); err != nil {
		return fmt.Errorf("auth send: %w", err)
	}
	_, _, err = conn.ReadMessage() // auth ack
	if err != nil {
		return fmt.Errorf("auth read: %w", err)
	}
	*delay = minReconnectDelay

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(map[string]any{"action": "listen", "data": map[string]any{"streams": []string{"trade_updates"}}}); err != nil {
		return fmt.Errorf("listen send: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg struct {
			Stream string     `json:"stream"`
			Data   OrderEvent `json:"data"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Stream == "trade_updates" && s.OnOrderEvent != nil {
			s.OnOrderEvent(msg.Data)
		}
	}
}

// Disconnect stops the reconnect loop at its next suspension point.
func (s *TradingEventStream) Disconnect() {
	close(s.stop)
}
