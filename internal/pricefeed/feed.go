// Package pricefeed provides current market prices for currency pairs.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrNoPrice is returned when a feed has no price for a pair.
	ErrNoPrice = errors.New("no price available")
	// ErrStale is returned when the latest known price is older than the allowed age.
	ErrStale = errors.New("price is stale")
)

// Feed returns the current market price of a currency pair.
type Feed interface {
	CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error)
	Name() string
}

// Chain asks each feed in order and returns the first price obtained.
type Chain struct {
	feeds  []Feed
	logger zerolog.Logger
}

// NewChain creates a feed that falls back through feeds in order.
func NewChain(logger zerolog.Logger, feeds ...Feed) *Chain {
	return &Chain{
		feeds:  feeds,
		logger: logger.With().Str("component", "pricefeed").Logger(),
	}
}

// CurrentPrice returns the first successful price. When every feed fails the
// errors are joined.
func (c *Chain) CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	var errs []error
	for _, f := range c.feeds {
		price, err := f.CurrentPrice(ctx, pair)
		if err == nil {
			return price, nil
		}
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
		c.logger.Debug().Err(err).Str("feed", f.Name()).Str("pair", pair).Msg("feed failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
	}
	if len(errs) == 0 {
		return decimal.Zero, ErrNoPrice
	}
	return decimal.Zero, errors.Join(errs...)
}

// Name returns the names of the chained feeds.
func (c *Chain) Name() string {
	names := make([]string, len(c.feeds))
	for i, f := range c.feeds {
		names[i] = f.Name()
	}
	return strings.Join(names, ">")
}

func validPrice(pair string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: non-positive price %s for %s", ErrNoPrice, price, pair)
	}
	return nil
}
