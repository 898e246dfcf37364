package prediction

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

// DeltaEvent is one orderbook_delta message. Seq is per-channel and
// monotonically increasing.
type DeltaEvent struct {
	Channel    string
	Ticker     string
	Seq        int64
	PriceCents int
	Side       string // "yes" | "no"
	DeltaSize  int64
}

// TradeEvent, FillEvent, OrderEvent mirror the remaining message types.
type TradeEvent struct {
	Ticker     string
	PriceCents int
	Count      int64
	Side       string
}

type FillEvent struct {
	Ticker     string
	OrderID    string
	PriceCents int
	Count      int64
	Side       string
	Action     string
}

type OrderEvent struct {
	Ticker  string
	OrderID string
	Status  string
}

// Stream is the single prediction-market WebSocket connection.
type Stream struct {
	url      string
	bearer   string
	dialer   *websocket.Dialer
	logger   *slog.Logger
	restFlag func(ticker string) // called when a sequence gap demands a REST snapshot refresh

	connMu sync.Mutex
	conn   *websocket.Conn
	nextID int64

	subMu     sync.Mutex
	channels  map[string]bool // "orderbook_delta", "trade", "fill", "order"
	tickers   map[string]bool

	seqMu   sync.Mutex
	lastSeq map[string]int64 // per-channel last seen seq

	OnDelta func(DeltaEvent)
	OnTrade func(TradeEvent)
	OnFill  func(FillEvent)
	OnOrder func(OrderEvent)

	stop chan struct{}
}

// NewStream creates a prediction-market stream reader. onStaleOrderbook is
// invoked (ticker) when a sequence gap is detected, so the caller can refetch
// the REST orderbook snapshot before trusting further deltas (spec.md §9).
func NewStream(url, bearer string, logger *slog.Logger, onStaleOrderbook func(ticker string)) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		url:      url,
		bearer:   bearer,
		dialer:   websocket.DefaultDialer,
		logger:   logger.With("component", "prediction_ws"),
		restFlag: onStaleOrderbook,
		channels: make(map[string]bool),
		tickers:  make(map[string]bool),
		lastSeq:  make(map[string]int64),
		stop:     make(chan struct{}),
	}
}

// Subscribe mutates the local subscription set before any dispatch, so
// reconnect replay converges to current intent.
func (s *Stream) Subscribe(channel string, symbols ...string) {
	s.subMu.Lock()
	s.channels[channel] = true
	for _, sym := range symbols {
		s.tickers[sym] = true
	}
	s.subMu.Unlock()
	s.sendSubscribe()
}

// Unsubscribe removes symbols from the local ticker set; the channel set is
// left unchanged.
func (s *Stream) Unsubscribe(channel string, symbols ...string) {
	s.subMu.Lock()
	for _, sym := range symbols {
		delete(s.tickers, sym)
	}
	s.subMu.Unlock()
	s.sendSubscribe()
}

func (s *Stream) sendSubscribe() {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}
	s.subMu.Lock()
	chans := keysOf(s.channels)
	tickers := keysOf(s.tickers)
	s.subMu.Unlock()

	s.nextID++
	frame := map[string]any{
		"id":  s.nextID,
		"cmd": "subscribe",
		"params": map[string]any{
			"channels":       chans,
			"market_tickers": tickers,
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteJSON(frame)
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Connect runs the reconnect loop: auth via bearer header, replay
// subscriptions on success, 1s->60s doubling backoff reset on success.
func (s *Stream) Connect(ctx context.Context) error {
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
		s.logger.Warn("prediction stream disconnected, reconnecting", "error", err, "delay", delay)
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

func (s *Stream) connectOnce(ctx context.Context, delay *time.Duration) error {
	header := map[string][]string{"Authorization": {"Bearer " + s.bearer}}
	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	*delay = minReconnectDelay // the bearer header authenticated the dial

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
	}()

	s.sendSubscribe()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.dispatch(data)
	}
}

type rawMessage struct {
	Type   string          `json:"type"`
	Seq    int64           `json:"seq"`
	Market string          `json:"market_ticker"`
	Msg    json.RawMessage `json:"msg"`
}

func (s *Stream) dispatch(data []byte) {
	var m rawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}

	switch m.Type {
	case "orderbook_delta":
		if s.checkSeqGap(m.Type, m.Market, m.Seq) {
			s.logger.Warn("sequence gap detected, orderbook unreliable", "ticker", m.Market, "seq", m.Seq)
			if s.restFlag != nil {
				s.restFlag(m.Market)
			}
		}
		var body struct {
			Price int    `json:"price"`
			Side  string `json:"side"`
			Delta int64  `json:"delta"`
		}
		if json.Unmarshal(m.Msg, &body) == nil && s.OnDelta != nil {
			s.OnDelta(DeltaEvent{Channel: "orderbook_delta", Ticker: m.Market, Seq: m.Seq, PriceCents: body.Price, Side: body.Side, DeltaSize: body.Delta})
		}
	case "trade":
		var body struct {
			Price int    `json:"price"`
			Count int64  `json:"count"`
			Side  string `json:"side"`
		}
		if json.Unmarshal(m.Msg, &body) == nil && s.OnTrade != nil {
			s.OnTrade(TradeEvent{Ticker: m.Market, PriceCents: body.Price, Count: body.Count, Side: body.Side})
		}
	case "fill":
		var body struct {
			OrderID string `json:"order_id"`
			Price   int    `json:"price"`
			Count   int64  `json:"count"`
			Side    string `json:"side"`
			Action  string `json:"action"`
		}
		if json.Unmarshal(m.Msg, &body) == nil && s.OnFill != nil {
			s.OnFill(FillEvent{Ticker: m.Market, OrderID: body.OrderID, PriceCents: body.Price, Count: body.Count, Side: body.Side, Action: body.Action})
		}
	case "order":
		var body struct {
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		}
		if json.Unmarshal(m.Msg, &body) == nil && s.OnOrder != nil {
			s.OnOrder(OrderEvent{Ticker: m.Market, OrderID: body.OrderID, Status: body.Status})
		}
	case "error":
		s.logger.Error("prediction stream error frame", "raw", string(data))
	}
}

// checkSeqGap reports whether seq is a gap relative to the last seen seq for
// (channel, ticker): received != last+1, with last > 0. It always advances
// the tracked last-seen value.
func (s *Stream) checkSeqGap(channel, ticker string, seq int64) bool {
	key := channel + ":" + ticker
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	last := s.lastSeq[key]
	gap := last > 0 && seq != last+1
	s.lastSeq[key] = seq
	return gap
}

// Disconnect stops the reconnect loop at its next suspension point.
func (s *Stream) Disconnect() {
	close(s.stop)
}
