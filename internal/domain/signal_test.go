package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewSignal_ValidBuy(t *testing.T) {
	s, err := NewSignal("USD/JPY", ActionBuy, d("145.50"), d("145.20"), d("146.00"), 0.8)
	if err != nil {
		t.Fatalf("NewSignal failed: %v", err)
	}
	if s.Action != ActionBuy {
		t.Errorf("Action = %s, want BUY", s.Action)
	}
}

func TestNewSignal_ValidSell(t *testing.T) {
	_, err := NewSignal("USD/JPY", ActionSell, d("145.80"), d("146.10"), d("145.50"), 0.8)
	if err != nil {
		t.Fatalf("NewSignal failed: %v", err)
	}
}

func TestNewSignal_RejectsMisorderedLevels(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		entry  string
		stop   string
		target string
	}{
		{"buy stop above entry", ActionBuy, "145.50", "145.60", "146.00"},
		{"buy target below entry", ActionBuy, "145.50", "145.20", "145.40"},
		{"buy stop equals entry", ActionBuy, "145.50", "145.50", "146.00"},
		{"sell stop below entry", ActionSell, "145.80", "145.70", "145.50"},
		{"sell target above entry", ActionSell, "145.80", "146.10", "145.90"},
		{"buy missing target", ActionBuy, "145.50", "145.20", "0"},
		{"sell missing entry", ActionSell, "0", "146.10", "145.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSignal("USD/JPY", tt.action, d(tt.entry), d(tt.stop), d(tt.target), 0.8)
			if !errors.Is(err, ErrInvalidSignal) {
				t.Errorf("expected ErrInvalidSignal, got %v", err)
			}
		})
	}
}

func TestValidate_None(t *testing.T) {
	s := &Signal{CurrencyPair: "USD/JPY", Action: ActionNone}
	if err := s.Validate(); err != nil {
		t.Errorf("NONE with zero fields should validate, got %v", err)
	}

	s.Confidence = 0.8
	if err := s.Validate(); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("NONE with confidence should be rejected, got %v", err)
	}

	s.Confidence = 0
	s.EntryPrice = d("145.50")
	if err := s.Validate(); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("NONE with price level should be rejected, got %v", err)
	}
}

func TestValidate_ConfidenceRange(t *testing.T) {
	s := &Signal{CurrencyPair: "EUR/USD", Action: ActionBuy, EntryPrice: d("1.1"), StopLoss: d("1.0"), TakeProfit: d("1.2"), Confidence: 1.5}
	if err := s.Validate(); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("expected ErrInvalidSignal for confidence 1.5, got %v", err)
	}
}

func TestValidate_UnknownAction(t *testing.T) {
	s := &Signal{CurrencyPair: "USD/JPY", Action: Action("HOLD")}
	if err := s.Validate(); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("expected ErrInvalidSignal for unknown action, got %v", err)
	}
}

func TestNewSignal_NormalizesPair(t *testing.T) {
	s, err := NewSignal(" usd/jpy ", ActionBuy, d("145.50"), d("145.20"), d("146.00"), 0.8)
	if err != nil {
		t.Fatalf("NewSignal failed: %v", err)
	}
	if s.CurrencyPair != "USD/JPY" {
		t.Errorf("CurrencyPair = %q, want USD/JPY", s.CurrencyPair)
	}
}

func TestValidate_RejectsMalformedPair(t *testing.T) {
	for _, pair := range []string{"", "USD,JPY", "USDJPY", "usd/jpy", "USD/JP", "US1/JPY", "USD/JPY/EUR", "ÜSD/JPY"} {
		s := &Signal{CurrencyPair: pair, Action: ActionBuy, EntryPrice: d("145.50"), StopLoss: d("145.20"), TakeProfit: d("146.00"), Confidence: 0.8}
		if err := s.Validate(); !errors.Is(err, ErrInvalidSignal) {
			t.Errorf("pair %q: expected ErrInvalidSignal, got %v", pair, err)
		}
	}
}

func TestNormalizePair(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"USD/JPY", "USD/JPY", false},
		{"eur/usd", "EUR/USD", false},
		{"  gbp/Usd ", "GBP/USD", false},
		{"USD,JPY", "", true},
		{"USDJPY", "", true},
		{"USD/", "", true},
		{"USD/JPY/EUR", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizePair(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPair) {
				t.Errorf("NormalizePair(%q) error = %v, want ErrInvalidPair", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizePair(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestResolution_Apply(t *testing.T) {
	s, err := NewSignal("USD/JPY", ActionBuy, d("145.50"), d("145.20"), d("146.00"), 0.8)
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	r := Resolution{
		Result:        ResultTPHit,
		ExitPrice:     d("146.00"),
		PnL:           d("0.50"),
		PnLPercentage: d("0.3436"),
		MarketPrice:   d("146.10"),
		CheckedAt:     at,
	}
	if err := r.ValidateTerminal(); err != nil {
		t.Fatalf("ValidateTerminal failed: %v", err)
	}
	r.Apply(s)

	if s.Status != StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", s.Status)
	}
	if !s.ActualExit.Valid || !s.ActualExit.Decimal.Equal(d("146.00")) {
		t.Errorf("ActualExit = %v, want 146.00", s.ActualExit)
	}
	if s.CompletedAt == nil || !s.CompletedAt.Equal(at) {
		t.Errorf("CompletedAt = %v, want %v", s.CompletedAt, at)
	}
}

func TestResolution_OpenIsNotTerminal(t *testing.T) {
	r := Resolution{Result: ResultOpen, ExitPrice: d("145.60"), CheckedAt: time.Now()}
	if err := r.ValidateTerminal(); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution, got %v", err)
	}

	s := &Signal{Action: ActionBuy, Status: StatusPending}
	r.MarketPrice = d("145.60")
	r.ApplyOpen(s)
	if s.Status != StatusActive || s.Result != ResultOpen {
		t.Errorf("got status %s result %s, want ACTIVE/OPEN", s.Status, s.Result)
	}
	if s.PnL.Valid || s.ActualExit.Valid {
		t.Error("OPEN check must not set pnl or actual exit")
	}
}

func TestVerificationTask_IsDue(t *testing.T) {
	verifyAt := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	task := &VerificationTask{SignalID: "s1", VerifyAt: verifyAt, Status: TaskPending}

	if task.IsDue(verifyAt.Add(-time.Second)) {
		t.Error("task must not be due before verify_at")
	}
	if !task.IsDue(verifyAt) {
		t.Error("task must be due at verify_at")
	}

	task.Status = TaskDone
	if task.IsDue(verifyAt.Add(time.Hour)) {
		t.Error("DONE task must never be due")
	}
}
