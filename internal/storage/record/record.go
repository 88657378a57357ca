// Package record holds the JSON encoding of signals and tasks shared by the
// key-value and file stores.
package record

import (
	"time"

	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/domain"
)

// Signal is the JSON form of domain.Signal. Decimals encode as strings.
type Signal struct {
	ID            string              `json:"id"`
	CreatedAt     time.Time           `json:"created_at"`
	CurrencyPair  string              `json:"currency_pair"`
	Action        string              `json:"action"`
	EntryPrice    decimal.Decimal     `json:"entry_price"`
	StopLoss      decimal.Decimal     `json:"stop_loss"`
	TakeProfit    decimal.Decimal     `json:"take_profit"`
	Confidence    float64             `json:"confidence"`
	Status        string              `json:"status"`
	Analysis      string              `json:"analysis,omitempty"`
	Result        string              `json:"result,omitempty"`
	ActualExit    decimal.NullDecimal `json:"actual_exit"`
	PnL           decimal.NullDecimal `json:"pnl"`
	PnLPercentage decimal.NullDecimal `json:"pnl_percentage"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	LastPrice     decimal.NullDecimal `json:"last_price"`
	LastCheckedAt *time.Time          `json:"last_checked_at,omitempty"`
}

// FromSignal converts a domain signal to its record.
func FromSignal(s *domain.Signal) Signal {
	return Signal{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt.UTC(),
		CurrencyPair:  s.CurrencyPair,
		Action:        string(s.Action),
		EntryPrice:    s.EntryPrice,
		StopLoss:      s.StopLoss,
		TakeProfit:    s.TakeProfit,
		Confidence:    s.Confidence,
		Status:        string(s.Status),
		Analysis:      s.Analysis,
		Result:        string(s.Result),
		ActualExit:    s.ActualExit,
		PnL:           s.PnL,
		PnLPercentage: s.PnLPercentage,
		CompletedAt:   s.CompletedAt,
		LastPrice:     s.LastPrice,
		LastCheckedAt: s.LastCheckedAt,
	}
}

// Domain converts the record back to a domain signal with UTC timestamps.
func (r Signal) Domain() *domain.Signal {
	return &domain.Signal{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt.UTC(),
		CurrencyPair:  r.CurrencyPair,
		Action:        domain.Action(r.Action),
		EntryPrice:    r.EntryPrice,
		StopLoss:      r.StopLoss,
		TakeProfit:    r.TakeProfit,
		Confidence:    r.Confidence,
		Status:        domain.Status(r.Status),
		Analysis:      r.Analysis,
		Result:        domain.Result(r.Result),
		ActualExit:    r.ActualExit,
		PnL:           r.PnL,
		PnLPercentage: r.PnLPercentage,
		CompletedAt:   utcPtr(r.CompletedAt),
		LastPrice:     r.LastPrice,
		LastCheckedAt: utcPtr(r.LastCheckedAt),
	}
}

// Task is the JSON form of domain.VerificationTask.
type Task struct {
	SignalID      string     `json:"signal_id"`
	VerifyAt      time.Time  `json:"verify_at"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// FromTask converts a verification task to its record.
func FromTask(t *domain.VerificationTask) Task {
	return Task{
		SignalID:      t.SignalID,
		VerifyAt:      t.VerifyAt.UTC(),
		Status:        string(t.Status),
		Attempts:      t.Attempts,
		LastAttemptAt: t.LastAttemptAt,
	}
}

func (r Task) Domain() *domain.VerificationTask {
	return &domain.VerificationTask{
		SignalID:      r.SignalID,
		VerifyAt:      r.VerifyAt.UTC(),
		Status:        domain.TaskStatus(r.Status),
		Attempts:      r.Attempts,
		LastAttemptAt: utcPtr(r.LastAttemptAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
