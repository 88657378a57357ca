package pricefeed

import (
	"context"
	"fmt"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/domain"
)

// YahooFeed reads regular market prices of Yahoo Finance currency symbols.
type YahooFeed struct {
	get func(symbol string) (*finance.Quote, error)
}

// NewYahooFeed creates a Yahoo Finance feed.
func NewYahooFeed() *YahooFeed {
	return &YahooFeed{get: quote.Get}
}

// YahooSymbol returns the Yahoo Finance symbol of a pair, "USD/JPY" -> "USDJPY=X".
func YahooSymbol(pair string) (string, error) {
	base, quote, err := domain.SplitPair(pair)
	if err != nil {
		return "", err
	}
	return base + quote + "=X", nil
}

// CurrentPrice implements Feed.
func (f *YahooFeed) CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	symbol, err := YahooSymbol(pair)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	q, err := f.get(symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get quote for %s: %w", symbol, err)
	}
	if q == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}

	price := decimal.NewFromFloat(q.RegularMarketPrice)
	if err := validPrice(pair, price); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// Name implements Feed.
func (f *YahooFeed) Name() string { return "yahoo" }
