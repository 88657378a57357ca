package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// DemoPrices are the fixed quotes served by NewDemoFeed.
var DemoPrices = map[string]decimal.Decimal{
	"USD/JPY": decimal.RequireFromString("150.00"),
	"EUR/USD": decimal.RequireFromString("1.0850"),
	"GBP/USD": decimal.RequireFromString("1.2650"),
	"EUR/JPY": decimal.RequireFromString("162.75"),
}

// DemoFeed serves fixed prices. Prices can be changed with Set.
type DemoFeed struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewDemoFeed creates a feed preloaded with DemoPrices.
func NewDemoFeed() *DemoFeed {
	prices := make(map[string]decimal.Decimal, len(DemoPrices))
	for pair, p := range DemoPrices {
		prices[pair] = p
	}
	return &DemoFeed{prices: prices}
}

// Set replaces the price of pair.
func (f *DemoFeed) Set(pair string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[strings.ToUpper(pair)] = price
}

// CurrentPrice implements Feed.
func (f *DemoFeed) CurrentPrice(_ context.Context, pair string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	price, ok := f.prices[strings.ToUpper(pair)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, pair)
	}
	return price, nil
}

// Name implements Feed.
func (f *DemoFeed) Name() string { return "demo" }
