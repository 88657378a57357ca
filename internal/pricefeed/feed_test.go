package pricefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	finance "github.com/piquette/finance-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDemoFeed(t *testing.T) {
	ctx := context.Background()
	f := NewDemoFeed()

	price, err := f.CurrentPrice(ctx, "USD/JPY")
	if err != nil {
		t.Fatalf("CurrentPrice failed: %v", err)
	}
	if !price.Equal(d("150.00")) {
		t.Errorf("USD/JPY = %s, want 150.00", price)
	}

	f.Set("usd/jpy", d("146.10"))
	price, _ = f.CurrentPrice(ctx, "USD/JPY")
	if !price.Equal(d("146.10")) {
		t.Errorf("after Set USD/JPY = %s, want 146.10", price)
	}

	if _, err := f.CurrentPrice(ctx, "AUD/NZD"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("expected ErrNoPrice, got %v", err)
	}

	// Set on one feed does not leak into DemoPrices.
	if !DemoPrices["USD/JPY"].Equal(d("150.00")) {
		t.Error("DemoPrices modified through a feed")
	}
}

func TestAlphaVantageFeed(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			http.NotFound(w, r)
			return
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Realtime Currency Exchange Rate": {
			"1. From_Currency Code": "USD",
			"3. To_Currency Code": "JPY",
			"5. Exchange Rate": "146.10500000",
			"6. Last Refreshed": "2025-03-11 09:00:01"}}`))
	}))
	defer server.Close()

	f := NewAlphaVantageFeed(AlphaVantageOptions{BaseURL: server.URL, APIKey: "test-key"})
	price, err := f.CurrentPrice(context.Background(), "USD/JPY")
	if err != nil {
		t.Fatalf("CurrentPrice failed: %v", err)
	}
	if !price.Equal(d("146.105")) {
		t.Errorf("price = %s, want 146.105", price)
	}
	if gotQuery["function"] != "CURRENCY_EXCHANGE_RATE" || gotQuery["from_currency"] != "USD" ||
		gotQuery["to_currency"] != "JPY" || gotQuery["apikey"] != "test-key" {
		t.Errorf("unexpected query %v", gotQuery)
	}
}

func TestAlphaVantageFeed_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"api error", http.StatusOK, `{"Error Message": "Invalid API call"}`},
		{"rate limited", http.StatusOK, `{"Note": "Thank you for using Alpha Vantage"}`},
		{"missing rate", http.StatusOK, `{}`},
		{"malformed", http.StatusOK, `{"Realtime Currency Exchange Rate": [}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f := NewAlphaVantageFeed(AlphaVantageOptions{BaseURL: server.URL})
			if _, err := f.CurrentPrice(context.Background(), "USD/JPY"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAlphaVantageFeed_InvalidPair(t *testing.T) {
	f := NewAlphaVantageFeed(AlphaVantageOptions{BaseURL: "http://127.0.0.1:1"})
	if _, err := f.CurrentPrice(context.Background(), "USDJPY"); !errors.Is(err, domain.ErrInvalidPair) {
		t.Errorf("expected ErrInvalidPair, got %v", err)
	}
}

func TestYahooFeed(t *testing.T) {
	var gotSymbol string
	f := &YahooFeed{get: func(symbol string) (*finance.Quote, error) {
		gotSymbol = symbol
		return &finance.Quote{Symbol: symbol, RegularMarketPrice: 146.1}, nil
	}}

	price, err := f.CurrentPrice(context.Background(), "USD/JPY")
	if err != nil {
		t.Fatalf("CurrentPrice failed: %v", err)
	}
	if gotSymbol != "USDJPY=X" {
		t.Errorf("symbol = %q, want USDJPY=X", gotSymbol)
	}
	if !price.Equal(d("146.1")) {
		t.Errorf("price = %s, want 146.1", price)
	}
}

func TestYahooFeed_Errors(t *testing.T) {
	ctx := context.Background()

	failing := &YahooFeed{get: func(string) (*finance.Quote, error) { return nil, errors.New("remote error") }}
	if _, err := failing.CurrentPrice(ctx, "USD/JPY"); err == nil {
		t.Error("expected error from failing quote lookup")
	}

	empty := &YahooFeed{get: func(string) (*finance.Quote, error) { return nil, nil }}
	if _, err := empty.CurrentPrice(ctx, "USD/JPY"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("expected ErrNoPrice for nil quote, got %v", err)
	}

	zero := &YahooFeed{get: func(string) (*finance.Quote, error) { return &finance.Quote{}, nil }}
	if _, err := zero.CurrentPrice(ctx, "USD/JPY"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("expected ErrNoPrice for zero price, got %v", err)
	}
}

type failingFeed struct{ name string }

func (f failingFeed) CurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New(f.name + " down")
}

func (f failingFeed) Name() string { return f.name }

func TestChain(t *testing.T) {
	ctx := context.Background()

	chain := NewChain(zerolog.Nop(), failingFeed{"primary"}, NewDemoFeed())
	price, err := chain.CurrentPrice(ctx, "EUR/USD")
	if err != nil {
		t.Fatalf("CurrentPrice failed: %v", err)
	}
	if !price.Equal(d("1.0850")) {
		t.Errorf("price = %s, want 1.0850", price)
	}
	if chain.Name() != "primary>demo" {
		t.Errorf("Name = %q", chain.Name())
	}

	allDown := NewChain(zerolog.Nop(), failingFeed{"a"}, failingFeed{"b"})
	if _, err := allDown.CurrentPrice(ctx, "EUR/USD"); err == nil {
		t.Error("expected error when every feed fails")
	}

	if _, err := NewChain(zerolog.Nop()).CurrentPrice(ctx, "EUR/USD"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("empty chain: expected ErrNoPrice, got %v", err)
	}
}
