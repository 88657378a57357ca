package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/domain"
)

// DefaultAlphaVantageURL is the public quote API endpoint.
const DefaultAlphaVantageURL = "https://www.alphavantage.co"

// AlphaVantageFeed queries the CURRENCY_EXCHANGE_RATE endpoint of an
// Alpha Vantage compatible quote API.
type AlphaVantageFeed struct {
	client *resty.Client
	apiKey string
}

// AlphaVantageOptions contains configuration for creating an AlphaVantageFeed.
type AlphaVantageOptions struct {
	BaseURL string        // Default: DefaultAlphaVantageURL
	APIKey  string        // sent as the apikey query parameter
	Timeout time.Duration // Default: 10s
}

// NewAlphaVantageFeed creates an HTTP quote feed.
func NewAlphaVantageFeed(opts AlphaVantageOptions) *AlphaVantageFeed {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultAlphaVantageURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)

	return &AlphaVantageFeed{client: client, apiKey: opts.APIKey}
}

type exchangeRateResponse struct {
	Rate struct {
		From      string          `json:"1. From_Currency Code"`
		To        string          `json:"3. To_Currency Code"`
		Price     decimal.Decimal `json:"5. Exchange Rate"`
		Refreshed string          `json:"6. Last Refreshed"`
	} `json:"Realtime Currency Exchange Rate"`
	Note         string `json:"Note"`
	ErrorMessage string `json:"Error Message"`
}

// CurrentPrice implements Feed.
func (f *AlphaVantageFeed) CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	base, quote, err := domain.SplitPair(pair)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function":      "CURRENCY_EXCHANGE_RATE",
			"from_currency": base,
			"to_currency":   quote,
			"apikey":        f.apiKey,
		}).
		Get("/query")
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch %s: %w", pair, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch %s: API error %d: %s", pair, resp.StatusCode(), resp.String())
	}

	var body exchangeRateResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return decimal.Zero, fmt.Errorf("parse %s response: %w", pair, err)
	}
	if body.ErrorMessage != "" {
		return decimal.Zero, fmt.Errorf("fetch %s: %s", pair, body.ErrorMessage)
	}
	if body.Note != "" {
		return decimal.Zero, fmt.Errorf("fetch %s: rate limited: %s", pair, body.Note)
	}
	if err := validPrice(pair, body.Rate.Price); err != nil {
		return decimal.Zero, err
	}
	return body.Rate.Price, nil
}

// Name implements Feed.
func (f *AlphaVantageFeed) Name() string { return "alphavantage" }
