// Package verification checks recorded signals against the market once their
// verification time arrives and writes the outcome back to the ledger.
package verification

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// PnLPercentPlaces is the rounding applied to pnl percentages.
const PnLPercentPlaces = 6

// ResolveOutcome decides the outcome of a signal at the observed price.
//
//	BUY:  price >= take_profit -> TP_HIT at take_profit
//	      price <= stop_loss   -> SL_HIT at stop_loss
//	SELL: price <= take_profit -> TP_HIT at take_profit
//	      price >= stop_loss   -> SL_HIT at stop_loss
//	otherwise OPEN at the observed price
//
// Exits are booked at the level, not at the observed price. PnL is signed in
// price units; the percentage is relative to the entry price.
func ResolveOutcome(s *domain.Signal, price decimal.Decimal, at time.Time) (domain.Resolution, error) {
	if !s.IsActionable() {
		return domain.Resolution{}, fmt.Errorf("%w: cannot resolve %s signal", domain.ErrInvalidSignal, s.Action)
	}
	if !price.IsPositive() {
		return domain.Resolution{}, fmt.Errorf("%w: non-positive market price %s", domain.ErrInvalidResolution, price)
	}

	r := domain.Resolution{
		Result:      domain.ResultOpen,
		ExitPrice:   price,
		MarketPrice: price,
		CheckedAt:   at,
	}

	switch s.Action {
	case domain.ActionBuy:
		switch {
		case price.GreaterThanOrEqual(s.TakeProfit):
			r.Result, r.ExitPrice = domain.ResultTPHit, s.TakeProfit
		case price.LessThanOrEqual(s.StopLoss):
			r.Result, r.ExitPrice = domain.ResultSLHit, s.StopLoss
		}
	case domain.ActionSell:
		switch {
		case price.LessThanOrEqual(s.TakeProfit):
			r.Result, r.ExitPrice = domain.ResultTPHit, s.TakeProfit
		case price.GreaterThanOrEqual(s.StopLoss):
			r.Result, r.ExitPrice = domain.ResultSLHit, s.StopLoss
		}
	}

	r.PnL, r.PnLPercentage = PnL(s.Action, s.EntryPrice, r.ExitPrice)
	return r, nil
}

// PnL returns the signed profit of a position opened at entry and closed at
// exit, in price units and as a percentage of entry.
func PnL(action domain.Action, entry, exit decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	pnl := exit.Sub(entry)
	if action == domain.ActionSell {
		pnl = entry.Sub(exit)
	}
	if entry.IsZero() {
		return pnl, decimal.Zero
	}
	return pnl, pnl.Mul(hundred).DivRound(entry, PnLPercentPlaces)
}
