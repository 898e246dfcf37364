// Package equities implements the REST and WebSocket clients for the U.S.
// equities venue (spec.md §6): static header-key auth, paper/live hosts, the
// account/positions/orders/market-data/options endpoint set, and two
// independent WebSocket streams.
package equities

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/ratelimit"
)

// Credentials are the two static header fields the venue requires.
type Credentials struct {
	KeyID     string
	SecretKey string
}

// Client is the equities REST client. Every mutating call is routed through
// the shared rate limiter before the HTTP request is issued.
type Client struct {
	http    *resty.Client
	limiter *ratelimit.TokenBucket
	idem    *broker.IdempotencyMap
	retry   broker.RetryPolicy
	logger  *slog.Logger
}

// NewClient builds a client against baseURL (paper or live host — the two
// environments are distinguished only by host) and dataURL (shared across
// environments).
func NewClient(baseURL, dataURL string, creds Credentials, limiter *ratelimit.TokenBucket, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	h := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("APCA-API-KEY-ID", creds.KeyID).
		SetHeader("APCA-API-SECRET-KEY", creds.SecretKey).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    h,
		limiter: limiter,
		idem:    broker.NewIdempotencyMap(),
		retry:   broker.RetryPolicy{MaxAttempts: 3, DefaultRetryAfter: 60 * time.Second},
		logger:  logger.With("component", "equities_rest"),
	}
}

type accountResp struct {
	Equity           string `json:"equity"`
	Cash             string `json:"cash"`
	BuyingPower      string `json:"buying_power"`
	PortfolioValue   string `json:"portfolio_value"`
	DaytradeCount    int    `json:"daytrade_count"`
	TradingBlocked   bool   `json:"trading_blocked"`
	PatternDayTrader bool   `json:"pattern_day_trader"`
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Account fetches GET /v2/account.
func (c *Client) Account(ctx context.Context) (broker.AccountSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return broker.AccountSnapshot{}, err
	}
	var out accountResp
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/v2/account")
	if err != nil {
		return broker.AccountSnapshot{}, &broker.TransientError{Op: "account", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return broker.AccountSnapshot{}, fmt.Errorf("equities: account status %d: %s", resp.StatusCode(), resp.String())
	}
	return broker.AccountSnapshot{
		Equity:           parseDecimal(out.Equity),
		Cash:             parseDecimal(out.Cash),
		BuyingPower:      parseDecimal(out.BuyingPower),
		PortfolioValue:   parseDecimal(out.PortfolioValue),
		DayTradeCount:    out.DaytradeCount,
		TradingBlocked:   out.TradingBlocked,
		PatternDayTrader: out.PatternDayTrader,
		AsOf:             time.Now(),
	}, nil
}

type positionResp struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	CurrentPrice  string `json:"current_price"`
}

// Positions fetches GET /v2/positions.
func (c *Client) Positions(ctx context.Context) ([]broker.Position, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out []positionResp
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/v2/positions")
	if err != nil {
		return nil, &broker.TransientError{Op: "positions", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("equities: positions status %d: %s", resp.StatusCode(), resp.String())
	}
	positions := make([]broker.Position, 0, len(out))
	for _, p := range out {
		positions = append(positions, broker.Position{
			Symbol:        p.Symbol,
			Quantity:      parseDecimal(p.Qty),
			AvgEntryPrice: parseDecimal(p.AvgEntryPrice),
			CurrentPrice:  parseDecimal(p.CurrentPrice),
		})
	}
	return positions, nil
}

type orderReq struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price,omitempty"`
	StopPrice     string `json:"stop_price,omitempty"`
	ClientOrderID string `json:"client_order_id"`
}

type orderResp struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Qty           string `json:"qty"`
	FilledQty     string `json:"filled_qty"`
	FilledAvgPx   string `json:"filled_avg_price"`
	Status        string `json:"status"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	SubmittedAt   string `json:"submitted_at"`
	UpdatedAt     string `json:"updated_at"`
}

func (o orderResp) toOrder() broker.Order {
	qty, _ := strconv.ParseInt(o.Qty, 10, 64)
	filled, _ := strconv.ParseInt(o.FilledQty, 10, 64)
	submitted, _ := time.Parse(time.RFC3339, o.SubmittedAt)
	updated, _ := time.Parse(time.RFC3339, o.UpdatedAt)
	return broker.Order{
		BrokerOrderID:  o.ID,
		ClientOrderKey: o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           broker.Side(o.Side),
		Quantity:       qty,
		FilledQuantity: filled,
		AvgFillPrice:   parseDecimal(o.FilledAvgPx),
		Status:         broker.OrderStatus(o.Status),
		Type:           broker.OrderType(o.Type),
		TimeInForce:    broker.TimeInForce(o.TimeInForce),
		SubmittedAt:    submitted,
		UpdatedAt:      updated,
	}
}

// SubmitOrder implements spec.md §4.1 idempotency: a second submission with
// the same client key short-circuits to GetOrder; a "duplicate submission"
// venue error triggers recovery via ListOrders.
func (c *Client) SubmitOrder(ctx context.Context, intent broker.OrderIntent) (broker.Order, error) {
	if err := intent.Validate(); err != nil {
		return broker.Order{}, err
	}
	key := broker.EnsureKey(intent.ClientOrderKey)

	id, err := c.idem.SubmitOnce(ctx, key, func(ctx context.Context) (string, error) {
		return c.submitRaw(ctx, key, intent)
	})
	if err != nil {
		return broker.Order{}, err
	}
	return c.GetOrder(ctx, id)
}

func (c *Client) submitRaw(ctx context.Context, key string, intent broker.OrderIntent) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body := orderReq{
		Symbol:        intent.Symbol,
		Qty:           strconv.FormatInt(intent.Quantity, 10),
		Side:          string(intent.Side),
		Type:          string(intent.Type),
		TimeInForce:   string(intent.TimeInForce),
		ClientOrderID: key,
	}
	if intent.LimitPrice != nil {
		body.LimitPrice = intent.LimitPrice.String()
	}
	if intent.StopPrice != nil {
		body.StopPrice = intent.StopPrice.String()
	}

	var out orderResp
	var rejection *broker.OrderError
	err := c.retry.Do(ctx, func(attempt int) (int, string, error) {
		resp, herr := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/v2/orders")
		if herr != nil {
			return 0, "", herr
		}
		status := resp.StatusCode()
		if status == http.StatusUnprocessableEntity {
			var env map[string]any
			_ = json.Unmarshal(resp.Body(), &env)
			rejection = &broker.OrderError{Venue: "equities", Code: "422", Message: fmt.Sprintf("%v", env["message"]), Data: env}
			return status, "", rejection
		}
		if status == http.StatusTooManyRequests {
			return status, resp.Header().Get("Retry-After"), fmt.Errorf("rate limited")
		}
		if status >= 500 {
			return status, "", fmt.Errorf("server error %d", status)
		}
		if status >= 400 {
			return status, "", fmt.Errorf("equities: submit order status %d: %s", status, resp.String())
		}
		return status, "", nil
	})
	if rejection != nil {
		return "", rejection
	}
	if err != nil {
		// Duplicate-submission recovery: scan recent orders for the client key.
		if found, ferr := c.recoverClientKey(ctx, key); ferr == nil && found != "" {
			c.idem.Record(key, found)
			return found, nil
		}
		return "", err
	}
	return out.ID, nil
}

func (c *Client) recoverClientKey(ctx context.Context, key string) (string, error) {
	orders, err := c.ListOrders(ctx)
	if err != nil {
		return "", err
	}
	for _, o := range orders {
		if o.ClientOrderKey == key {
			return o.BrokerOrderID, nil
		}
	}
	return "", fmt.Errorf("equities: no order found for client key %s", key)
}

// GetOrder fetches GET /v2/orders/{id}.
func (c *Client) GetOrder(ctx context.Context, brokerOrderID string) (broker.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return broker.Order{}, err
	}
	var out orderResp
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/v2/orders/" + brokerOrderID)
	if err != nil {
		return broker.Order{}, &broker.TransientError{Op: "get_order", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return broker.Order{}, fmt.Errorf("equities: get_order status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.toOrder(), nil
}

// ListOrders fetches GET /v2/orders.
func (c *Client) ListOrders(ctx context.Context) ([]broker.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out []orderResp
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/v2/orders")
	if err != nil {
		return nil, &broker.TransientError{Op: "list_orders", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("equities: list_orders status %d: %s", resp.StatusCode(), resp.String())
	}
	orders := make([]broker.Order, 0, len(out))
	for _, o := range out {
		orders = append(orders, o.toOrder())
	}
	return orders, nil
}

// CancelOrder issues DELETE /v2/orders/{id}.
func (c *Client) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).Delete("/v2/orders/" + brokerOrderID)
	if err != nil {
		return &broker.TransientError{Op: "cancel_order", Err: err}
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("equities: cancel_order status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// ReplaceOrder issues PATCH /v2/orders/{id}.
func (c *Client) ReplaceOrder(ctx context.Context, brokerOrderID string, intent broker.OrderIntent) (broker.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return broker.Order{}, err
	}
	body := orderReq{Qty: strconv.FormatInt(intent.Quantity, 10)}
	if intent.LimitPrice != nil {
		body.LimitPrice = intent.LimitPrice.String()
	}
	var out orderResp
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Patch("/v2/orders/" + brokerOrderID)
	if err != nil {
		return broker.Order{}, &broker.TransientError{Op: "replace_order", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return broker.Order{}, fmt.Errorf("equities: replace_order status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.toOrder(), nil
}

// Snapshot fetches GET /v2/stocks/{symbol}/snapshot/latest.
func (c *Client) Snapshot(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	var out struct {
		LatestTrade struct {
			Price float64 `json:"p"`
		} `json:"latestTrade"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/v2/stocks/" + symbol + "/snapshot/latest")
	if err != nil {
		return decimal.Zero, &broker.TransientError{Op: "snapshot", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("equities: snapshot status %d: %s", resp.StatusCode(), resp.String())
	}
	return decimal.NewFromFloat(out.LatestTrade.Price), nil
}

// Bars fetches GET /v2/stocks/{symbol}/bars/latest-style historical bars.
// trade_count/bar_count are opportunistic per spec.md §9 and are nil-checked
// by callers.
func (c *Client) Bars(ctx context.Context, symbol string, limit int) ([]broker.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out struct {
		Bars []struct {
			T  string  `json:"t"`
			O  float64 `json:"o"`
			H  float64 `json:"h"`
			L  float64 `json:"l"`
			C  float64 `json:"c"`
			V  float64 `json:"v"`
			N  *int    `json:"n"` // trade count, opportunistic
		} `json:"bars"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get("/v2/stocks/" + symbol + "/bars")
	if err != nil {
		return nil, &broker.TransientError{Op: "bars", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("equities: bars status %d: %s", resp.StatusCode(), resp.String())
	}
	bars := make([]broker.Bar, 0, len(out.Bars))
	for _, b := range out.Bars {
		ts, _ := time.Parse(time.RFC3339, b.T)
		bars = append(bars, broker.Bar{
			Timestamp:  ts,
			Open:       decimal.NewFromFloat(b.O),
			High:       decimal.NewFromFloat(b.H),
			Low:        decimal.NewFromFloat(b.L),
			Close:      decimal.NewFromFloat(b.C),
			Volume:     decimal.NewFromFloat(b.V),
			TradeCount: b.N,
		})
	}
	return bars, nil
}

// OptionsContracts fetches GET /v2/options/contracts.
func (c *Client) OptionsContracts(ctx context.Context, underlying string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out struct {
		OptionContracts []struct {
			Symbol string `json:"symbol"`
		} `json:"option_contracts"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("underlying_symbols", underlying).
		SetResult(&out).
		Get("/v2/options/contracts")
	if err != nil {
		return nil, &broker.TransientError{Op: "options_contracts", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("equities: options_contracts status %d: %s", resp.StatusCode(), resp.String())
	}
	symbols := make([]string, 0, len(out.OptionContracts))
	for _, c := range out.OptionContracts {
		symbols = append(symbols, c.Symbol)
	}
	return symbols, nil
}

// OptionsQuoteLatest fetches GET /v1beta1/options/quotes/latest.
func (c *Client) OptionsQuoteLatest(ctx context.Context, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	var out struct {
		Quotes map[string]struct {
			BidPrice float64 `json:"bp"`
			AskPrice float64 `json:"ap"`
		} `json:"quotes"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("symbols", symbol).
		SetResult(&out).
		Get("/v1beta1/options/quotes/latest")
	if err != nil {
		return decimal.Zero, decimal.Zero, &broker.TransientError{Op: "options_quote", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, decimal.Zero, fmt.Errorf("equities: options_quote status %d: %s", resp.StatusCode(), resp.String())
	}
	q := out.Quotes[symbol]
	return decimal.NewFromFloat(q.BidPrice), decimal.NewFromFloat(q.AskPrice), nil
}
