package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the trading direction of a signal.
type Action string

// Action values.
const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionNone Action = "NONE"
)

// Status is the lifecycle state of a signal.
type Status string

// Status values.
const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

// Result is the outcome of a verification check.
type Result string

// Result values. ResultOpen is never terminal.
const (
	ResultTPHit Result = "TP_HIT"
	ResultSLHit Result = "SL_HIT"
	ResultOpen  Result = "OPEN"
)

// IsTerminal reports whether the result completes a signal.
func (r Result) IsTerminal() bool {
	return r == ResultTPHit || r == ResultSLHit
}

// ErrInvalidSignal is returned when a signal violates its price or action invariants.
var ErrInvalidSignal = errors.New("invalid signal")

// Signal is a trading recommendation derived from analysis text.
// Price levels are zero when absent.
type Signal struct {
	ID           string
	CreatedAt    time.Time
	CurrencyPair string // e.g. "USD/JPY"
	Action       Action
	EntryPrice   decimal.Decimal
	StopLoss     decimal.Decimal
	TakeProfit   decimal.Decimal
	Confidence   float64 // [0, 1]
	Status       Status
	Analysis     string // source text, optional

	// Resolution, set once Status == COMPLETED
	Result        Result
	ActualExit    decimal.NullDecimal
	PnL           decimal.NullDecimal // price units, signed
	PnLPercentage decimal.NullDecimal
	CompletedAt   *time.Time

	// Latest open mark, informational only
	LastPrice     decimal.NullDecimal
	LastCheckedAt *time.Time
}

// NewSignal constructs a validated BUY or SELL signal. The pair is
// normalized to upper-case BASE/QUOTE.
func NewSignal(pair string, action Action, entry, stopLoss, takeProfit decimal.Decimal, confidence float64) (*Signal, error) {
	if norm, err := NormalizePair(pair); err == nil {
		pair = norm
	}
	s := &Signal{
		CurrencyPair: pair,
		Action:       action,
		EntryPrice:   entry,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		Confidence:   confidence,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the action and price-ordering invariants.
//
//	BUY:  stop_loss < entry_price < take_profit
//	SELL: take_profit < entry_price < stop_loss
//	NONE: confidence == 0 and no price levels
//
// CurrencyPair must already be in canonical BASE/QUOTE form.
func (s *Signal) Validate() error {
	if norm, err := NormalizePair(s.CurrencyPair); err != nil || norm != s.CurrencyPair {
		return fmt.Errorf("%w: currency pair %q is not BASE/QUOTE", ErrInvalidSignal, s.CurrencyPair)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidSignal, s.Confidence)
	}

	switch s.Action {
	case ActionNone:
		if s.Confidence != 0 {
			return fmt.Errorf("%w: NONE signal with confidence %v", ErrInvalidSignal, s.Confidence)
		}
		if !s.EntryPrice.IsZero() || !s.StopLoss.IsZero() || !s.TakeProfit.IsZero() {
			return fmt.Errorf("%w: NONE signal with price levels", ErrInvalidSignal)
		}
		return nil
	case ActionBuy, ActionSell:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, s.Action)
	}

	if !s.EntryPrice.IsPositive() || !s.StopLoss.IsPositive() || !s.TakeProfit.IsPositive() {
		return fmt.Errorf("%w: %s signal requires positive entry, stop loss and take profit", ErrInvalidSignal, s.Action)
	}

	if s.Action == ActionBuy {
		if !(s.StopLoss.LessThan(s.EntryPrice) && s.EntryPrice.LessThan(s.TakeProfit)) {
			return fmt.Errorf("%w: BUY requires stop_loss < entry_price < take_profit (got %s / %s / %s)",
				ErrInvalidSignal, s.StopLoss, s.EntryPrice, s.TakeProfit)
		}
		return nil
	}

	if !(s.TakeProfit.LessThan(s.EntryPrice) && s.EntryPrice.LessThan(s.StopLoss)) {
		return fmt.Errorf("%w: SELL requires take_profit < entry_price < stop_loss (got %s / %s / %s)",
			ErrInvalidSignal, s.TakeProfit, s.EntryPrice, s.StopLoss)
	}
	return nil
}

// IsActionable reports whether the signal carries a direction that can be verified.
func (s *Signal) IsActionable() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}

// Clone returns a deep copy.
func (s *Signal) Clone() *Signal {
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.LastCheckedAt != nil {
		t := *s.LastCheckedAt
		c.LastCheckedAt = &t
	}
	return &c
}
