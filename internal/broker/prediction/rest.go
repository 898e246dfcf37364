// Package prediction implements the REST and WebSocket clients for the
// prediction-market venue (spec.md §6): login/API-key auth, integer-cent
// YES/NO prices, and a single sequence-numbered WebSocket stream.
package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/ratelimit"
)

// Credentials supports either API-key header auth or login-derived bearer
// token auth (spec.md §6: "POST /login returning {token, member_id} or
// API-key header auth").
type Credentials struct {
	APIKey   string
	Email    string
	Password string
}

// Client is the prediction-market REST client.
type Client struct {
	http    *resty.Client
	limiter *ratelimit.TokenBucket
	idem    *broker.IdempotencyMap
	retry   broker.RetryPolicy
	logger  *slog.Logger

	creds Credentials

	authMu   sync.Mutex
	token    string
	memberID string
}

// NewClient builds a client against baseURL.
func NewClient(baseURL string, creds Credentials, limiter *ratelimit.TokenBucket, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	h := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	if creds.APIKey != "" {
		h.SetHeader("Authorization", "Bearer "+creds.APIKey)
	}

	return &Client{
		http:    h,
		limiter: limiter,
		idem:    broker.NewIdempotencyMap(),
		retry:   broker.RetryPolicy{MaxAttempts: 3, DefaultRetryAfter: time.Second},
		logger:  logger.With("component", "prediction_rest"),
		creds:   creds,
	}
}

// Login performs POST /login and caches the bearer token for subsequent
// requests.
func (c *Client) Login(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var out struct {
		Token    string `json:"token"`
		MemberID string `json:"member_id"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"email": c.creds.Email, "password": c.creds.Password}).
		SetResult(&out).
		Post("/login")
	if err != nil {
		return &broker.TransientError{Op: "login", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("prediction: login status %d: %s", resp.StatusCode(), resp.String())
	}
	c.authMu.Lock()
	c.token = out.Token
	c.memberID = out.MemberID
	c.authMu.Unlock()
	c.http.SetHeader("Authorization", "Bearer "+out.Token)
	return nil
}

// reauthenticateOnce handles a single 401 retry per spec.md §4.1: a
// persistent 401 after one re-auth attempt surfaces as broker.ErrPersistentAuth.
func (c *Client) reauthenticateOnce(ctx context.Context) error {
	if c.creds.APIKey != "" {
		return broker.ErrPersistentAuth
	}
	return c.Login(ctx)
}

type balanceResp struct {
	Balance string `json:"balance"`
}

// Account fetches GET /portfolio/balance, treating it as a cash/buying-power
// proxy for AccountSnapshot.
func (c *Client) Account(ctx context.Context) (broker.AccountSnapshot, error) {
	return c.account(ctx, false)
}

func (c *Client) account(ctx context.Context, reauthed bool) (broker.AccountSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return broker.AccountSnapshot{}, err
	}
	var out balanceResp
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/portfolio/balance")
	if err != nil {
		return broker.AccountSnapshot{}, &broker.TransientError{Op: "balance", Err: err}
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		if reauthed {
			return broker.AccountSnapshot{}, broker.ErrPersistentAuth
		}
		if aerr := c.reauthenticateOnce(ctx); aerr != nil {
			return broker.AccountSnapshot{}, aerr
		}
		return c.account(ctx, true)
	}
	if resp.StatusCode() != http.StatusOK {
		return broker.AccountSnapshot{}, fmt.Errorf("prediction: balance status %d: %s", resp.StatusCode(), resp.String())
	}
	cash, _ := decimal.NewFromString(out.Balance)
	return broker.AccountSnapshot{Equity: cash, Cash: cash, BuyingPower: cash, PortfolioValue: cash, AsOf: time.Now()}, nil
}

type positionResp struct {
	Ticker   string `json:"ticker"`
	Position int64  `json:"position"` // signed contracts, +yes/-no convention
	AvgPrice int    `json:"avg_price_cents"`
}

// Positions fetches GET /portfolio/positions.
func (c *Client) Positions(ctx context.Context) ([]broker.Position, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out []positionResp
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/portfolio/positions")
	if err != nil {
		return nil, &broker.TransientError{Op: "positions", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("prediction: positions status %d: %s", resp.StatusCode(), resp.String())
	}
	positions := make([]broker.Position, 0, len(out))
	for _, p := range out {
		positions = append(positions, broker.Position{
			Symbol:        p.Ticker,
			Quantity:      decimal.NewFromInt(p.Position),
			AvgEntryPrice: decimal.NewFromInt(int64(p.AvgPrice)).Div(moneyHundred),
		})
	}
	return positions, nil
}

var moneyHundred = decimal.NewFromInt(100)

type orderReq struct {
	Ticker      string `json:"ticker"`
	Side        string `json:"side"`
	Action      string `json:"action"`
	Count       int64  `json:"count"`
	Type        string `json:"type"`
	PriceCents  int    `json:"price,omitempty"`
	ClientOrderID string `json:"client_order_id"`
}

type orderResp struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Ticker        string `json:"ticker"`
	Side          string `json:"side"`
	Count         int64  `json:"count"`
	FilledCount   int64  `json:"filled_count"`
	AvgFillPrice  int    `json:"avg_fill_price"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_time"`
	UpdatedAt     string `json:"updated_time"`
}

func (o orderResp) toOrder() broker.Order {
	created, _ := time.Parse(time.RFC3339, o.CreatedAt)
	updated, _ := time.Parse(time.RFC3339, o.UpdatedAt)
	return broker.Order{
		BrokerOrderID:  o.OrderID,
		ClientOrderKey: o.ClientOrderID,
		Symbol:         o.Ticker,
		Side:           broker.Side(o.Side),
		Quantity:       o.Count,
		FilledQuantity: o.FilledCount,
		AvgFillPrice:   decimal.NewFromInt(int64(o.AvgFillPrice)).Div(moneyHundred),
		Status:         broker.OrderStatus(o.Status),
		SubmittedAt:    created,
		UpdatedAt:      updated,
	}
}

// SubmitOrder posts POST /portfolio/orders, applying the same idempotency
// and retry semantics as the equities client.
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
		Ticker:        intent.Symbol,
		Side:          string(intent.Direction),
		Action:        string(intent.Side),
		Count:         intent.Quantity,
		Type:          string(intent.Type),
		ClientOrderID: key,
	}
	if intent.LimitPrice != nil {
		cents, _ := intent.LimitPrice.Mul(moneyHundred).Round(0).Float64()
		body.PriceCents = int(cents)
	}

	var out orderResp
	var rejection *broker.OrderError
	reauthed := false
	err := c.retry.Do(ctx, func(attempt int) (int, string, error) {
		resp, herr := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/portfolio/orders")
		if herr != nil {
			return 0, "", herr
		}
		status := resp.StatusCode()
		switch {
		case status == http.StatusUnauthorized:
			// A single re-authentication and retry; persistent 401 is fatal.
			if reauthed {
				rejection = &broker.OrderError{Venue: "prediction", Code: "401", Message: "persistent authentication failure"}
				return status, "", broker.ErrPersistentAuth
			}
			reauthed = true
			if aerr := c.reauthenticateOnce(ctx); aerr != nil {
				rejection = &broker.OrderError{Venue: "prediction", Code: "401", Message: aerr.Error()}
				return status, "", aerr
			}
			return 0, "", fmt.Errorf("retrying after re-authentication")
		case status == http.StatusUnprocessableEntity:
			var env map[string]any
			_ = json.Unmarshal(resp.Body(), &env)
			rejection = &broker.OrderError{Venue: "prediction", Code: "422", Message: fmt.Sprintf("%v", env["message"]), Data: env}
			return status, "", rejection
		case status == http.StatusTooManyRequests:
			return status, resp.Header().Get("Retry-After"), fmt.Errorf("rate limited")
		case status >= 500:
			return status, "", fmt.Errorf("server error %d", status)
		case status >= 400:
			return status, "", fmt.Errorf("prediction: submit order status %d: %s", status, resp.String())
		default:
			return status, "", nil
		}
	})
	if rejection != nil {
		return "", rejection
	}
	if err != nil {
		if found, ferr := c.recoverClientKey(ctx, key); ferr == nil && found != "" {
			c.idem.Record(key, found)
			return found, nil
		}
		return "", err
	}
	return out.OrderID, nil
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
	return "", fmt.Errorf("prediction: no order found for client key %s", key)
}

// GetOrder fetches GET /portfolio/orders/{id}.
func (c *Client) GetOrder(ctx context.Context, brokerOrderID string) (broker.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return broker.Order{}, err
	}
	var out orderResp
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/portfolio/orders/" + brokerOrderID)
	if err != nil {
		return broker.Order{}, &broker.TransientError{Op: "get_order", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return broker.Order{}, fmt.Errorf("prediction: get_order status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.toOrder(), nil
}

// ListOrders fetches GET /portfolio/orders.
func (c *Client) ListOrders(ctx context.Context) ([]broker.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out []orderResp
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/portfolio/orders")
	if err != nil {
		return nil, &broker.TransientError{Op: "list_orders", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("prediction: list_orders status %d: %s", resp.StatusCode(), resp.String())
	}
	orders := make([]broker.Order, 0, len(out))
	for _, o := range out {
		orders = append(orders, o.toOrder())
	}
	return orders, nil
}

// CancelOrder issues DELETE /portfolio/orders/{id}.
func (c *Client) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).Delete("/portfolio/orders/" + brokerOrderID)
	if err != nil {
		return &broker.TransientError{Op: "cancel_order", Err: err}
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("prediction: cancel_order status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// ReplaceOrder issues POST /portfolio/orders/{id}/amend.
func (c *Client) ReplaceOrder(ctx context.Context, brokerOrderID string, intent broker.OrderIntent) (broker.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return broker.Order{}, err
	}
	body := map[string]any{"count": intent.Quantity}
	if intent.LimitPrice != nil {
		cents, _ := intent.LimitPrice.Mul(moneyHundred).Round(0).Float64()
		body["price"] = int(cents)
	}
	var out orderResp
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/portfolio/orders/" + brokerOrderID + "/amend")
	if err != nil {
		return broker.Order{}, &broker.TransientError{Op: "replace_order", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return broker.Order{}, fmt.Errorf("prediction: replace_order status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.toOrder(), nil
}

// CancelAllOrders issues DELETE /portfolio/orders (batch).
func (c *Client) CancelAllOrders(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).Delete("/portfolio/orders")
	if err != nil {
		return &broker.TransientError{Op: "cancel_all", Err: err}
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("prediction: cancel_all status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// OrderbookLevel is one price/size level in cents.
type OrderbookLevel struct {
	PriceCents int
	Size       int64
}

// Orderbook is a snapshot from GET /markets/{ticker}/orderbook, used to
// recover from a WebSocket sequence gap (spec.md §4.1/§9).
type Orderbook struct {
	Ticker string
	Yes    []OrderbookLevel
	No     []OrderbookLevel
}

// GetOrderbook fetches GET /markets/{ticker}/orderbook.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (Orderbook, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Orderbook{}, err
	}
	var out struct {
		Orderbook struct {
			Yes [][2]int64 `json:"yes"`
			No  [][2]int64 `json:"no"`
		} `json:"orderbook"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/markets/" + ticker + "/orderbook")
	if err != nil {
		return Orderbook{}, &broker.TransientError{Op: "orderbook", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return Orderbook{}, fmt.Errorf("prediction: orderbook status %d: %s", resp.StatusCode(), resp.String())
	}
	ob := Orderbook{Ticker: ticker}
	for _, lvl := range out.Orderbook.Yes {
		ob.Yes = append(ob.Yes, OrderbookLevel{PriceCents: int(lvl[0]), Size: lvl[1]})
	}
	for _, lvl := range out.Orderbook.No {
		ob.No = append(ob.No, OrderbookLevel{PriceCents: int(lvl[0]), Size: lvl[1]})
	}
	return ob, nil
}

func centsToDecimal(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Div(moneyHundred)
}
