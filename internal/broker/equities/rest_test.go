package equities

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/ratelimit"
)

func contextBG() context.Context { return context.Background() }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewClient(srv.URL, srv.URL, Credentials{KeyID: "k", SecretKey: "s"}, ratelimit.NewTokenBucket(100, 100), nil)
	return c, srv
}

func TestSubmitOrderIdempotentSameKey(t *testing.T) {
	var submitCount int
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			submitCount++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(orderResp{ID: "broker-1", ClientOrderID: "K", Symbol: "AAPL", Side: "buy", Qty: "10", Status: "new"})
			return
		}
	})
	mux.HandleFunc("/v2/orders/broker-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orderResp{ID: "broker-1", ClientOrderID: "K", Symbol: "AAPL", Side: "buy", Qty: "10", Status: "new"})
	})
	c, srv := newTestClient(t, mux.ServeHTTP)
	defer srv.Close()

	intent := broker.OrderIntent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 10, Type: broker.OrderTypeMarket, TimeInForce: broker.TIFDay, ClientOrderKey: "K"}

	o1, err := c.SubmitOrder(contextBG(), intent)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	o2, err := c.SubmitOrder(contextBG(), intent)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if o1.BrokerOrderID != o2.BrokerOrderID {
		t.Fatalf("expected same broker order id, got %q and %q", o1.BrokerOrderID, o2.BrokerOrderID)
	}
	if submitCount != 1 {
		t.Fatalf("expected exactly one POST /v2/orders, got %d", submitCount)
	}
}

func TestSubmitOrderRequiresLimitPrice(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	intent := broker.OrderIntent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 10, Type: broker.OrderTypeLimit, TimeInForce: broker.TIFDay}
	if _, err := c.SubmitOrder(contextBG(), intent); err != broker.ErrMissingLimitPrice {
		t.Fatalf("expected ErrMissingLimitPrice, got %v", err)
	}
}

func TestSubmitOrderRejection422NotRetried(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"message": "insufficient buying power"})
	})
	c, srv := newTestClient(t, mux.ServeHTTP)
	defer srv.Close()

	intent := broker.OrderIntent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: 10, Type: broker.OrderTypeMarket, TimeInForce: broker.TIFDay, ClientOrderKey: "K2"}
	_, err := c.SubmitOrder(contextBG(), intent)
	if err == nil {
		t.Fatal("expected an error")
	}
	var oerr *broker.OrderError
	if !asOrderError(err, &oerr) {
		t.Fatalf("expected *broker.OrderError, got %T: %v", err, err)
	}
	if calls != 1 {
		t.Fatalf("expected 422 to not be retried, got %d calls", calls)
	}
}

func asOrderError(err error, target **broker.OrderError) bool {
	oe, ok := err.(*broker.OrderError)
	if ok {
		*target = oe
	}
	return ok
}
