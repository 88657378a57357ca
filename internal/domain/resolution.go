package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidResolution is returned when a resolution cannot complete a signal.
var ErrInvalidResolution = errors.New("invalid resolution")

// Resolution holds the result fields written when a signal is checked.
type Resolution struct {
	Result        Result
	ExitPrice     decimal.Decimal // take profit, stop loss, or the observed price when OPEN
	PnL           decimal.Decimal
	PnLPercentage decimal.Decimal
	MarketPrice   decimal.Decimal // price observed at check time
	CheckedAt     time.Time
}

// ValidateTerminal checks that the resolution can complete a signal.
func (r Resolution) ValidateTerminal() error {
	if !r.Result.IsTerminal() {
		return fmt.Errorf("%w: result %q is not terminal", ErrInvalidResolution, r.Result)
	}
	if !r.ExitPrice.IsPositive() {
		return fmt.Errorf("%w: exit price must be positive", ErrInvalidResolution)
	}
	if r.CheckedAt.IsZero() {
		return fmt.Errorf("%w: missing check time", ErrInvalidResolution)
	}
	return nil
}

// Apply writes a terminal resolution onto s and marks it COMPLETED.
func (r Resolution) Apply(s *Signal) {
	at := r.CheckedAt
	s.Status = StatusCompleted
	s.Result = r.Result
	s.ActualExit = decimal.NewNullDecimal(r.ExitPrice)
	s.PnL = decimal.NewNullDecimal(r.PnL)
	s.PnLPercentage = decimal.NewNullDecimal(r.PnLPercentage)
	s.CompletedAt = &at
	s.LastPrice = decimal.NewNullDecimal(r.MarketPrice)
	s.LastCheckedAt = &at
}

// ApplyOpen records an OPEN check onto s and marks it ACTIVE.
// Result fields stay empty.
func (r Resolution) ApplyOpen(s *Signal) {
	at := r.CheckedAt
	s.Status = StatusActive
	s.Result = ResultOpen
	s.LastPrice = decimal.NewNullDecimal(r.MarketPrice)
	s.LastCheckedAt = &at
}
