package verification

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/domain"
)

var checkedAt = time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buy() *domain.Signal {
	return &domain.Signal{
		ID: "buy", CurrencyPair: "USD/JPY", Action: domain.ActionBuy,
		EntryPrice: d("145.50"), StopLoss: d("145.20"), TakeProfit: d("146.00"), Confidence: 0.8,
	}
}

func sell() *domain.Signal {
	return &domain.Signal{
		ID: "sell", CurrencyPair: "USD/JPY", Action: domain.ActionSell,
		EntryPrice: d("145.80"), StopLoss: d("146.10"), TakeProfit: d("145.50"), Confidence: 0.8,
	}
}

func TestResolveOutcome_BuyTakeProfit(t *testing.T) {
	r, err := ResolveOutcome(buy(), d("146.10"), checkedAt)
	if err != nil {
		t.Fatalf("ResolveOutcome failed: %v", err)
	}
	if r.Result != domain.ResultTPHit {
		t.Errorf("Result = %s, want TP_HIT", r.Result)
	}
	if !r.ExitPrice.Equal(d("146.00")) {
		t.Errorf("ExitPrice = %s, want 146.00 (booked at the level)", r.ExitPrice)
	}
	if !r.PnL.Equal(d("0.50")) {
		t.Errorf("PnL = %s, want 0.50", r.PnL)
	}
	if !r.PnLPercentage.Equal(d("0.343643")) {
		t.Errorf("PnLPercentage = %s, want 0.343643", r.PnLPercentage)
	}
	if !r.MarketPrice.Equal(d("146.10")) {
		t.Errorf("MarketPrice = %s, want 146.10", r.MarketPrice)
	}
	if !r.CheckedAt.Equal(checkedAt) {
		t.Errorf("CheckedAt = %v", r.CheckedAt)
	}
}

func TestResolveOutcome_Table(t *testing.T) {
	tests := []struct {
		name   string
		signal *domain.Signal
		price  string
		result domain.Result
		exit   string
		pnl    string
		pnlPct string
	}{
		{"buy at take profit", buy(), "146.00", domain.ResultTPHit, "146.00", "0.50", "0.343643"},
		{"buy stop loss", buy(), "145.10", domain.ResultSLHit, "145.20", "-0.30", "-0.206186"},
		{"buy at stop loss", buy(), "145.20", domain.ResultSLHit, "145.20", "-0.30", "-0.206186"},
		{"buy open above entry", buy(), "145.70", domain.ResultOpen, "145.70", "0.20", "0.137457"},
		{"buy open below entry", buy(), "145.30", domain.ResultOpen, "145.30", "-0.20", "-0.137457"},
		{"sell take profit", sell(), "145.40", domain.ResultTPHit, "145.50", "0.30", "0.205761"},
		{"sell at take profit", sell(), "145.50", domain.ResultTPHit, "145.50", "0.30", "0.205761"},
		{"sell stop loss", sell(), "146.20", domain.ResultSLHit, "146.10", "-0.30", "-0.205761"},
		{"sell open", sell(), "145.90", domain.ResultOpen, "145.90", "-0.10", "-0.068587"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ResolveOutcome(tt.signal, d(tt.price), checkedAt)
			if err != nil {
				t.Fatalf("ResolveOutcome failed: %v", err)
			}
			if r.Result != tt.result {
				t.Errorf("Result = %s, want %s", r.Result, tt.result)
			}
			if !r.ExitPrice.Equal(d(tt.exit)) {
				t.Errorf("ExitPrice = %s, want %s", r.ExitPrice, tt.exit)
			}
			if !r.PnL.Equal(d(tt.pnl)) {
				t.Errorf("PnL = %s, want %s", r.PnL, tt.pnl)
			}
			if !r.PnLPercentage.Equal(d(tt.pnlPct)) {
				t.Errorf("PnLPercentage = %s, want %s", r.PnLPercentage, tt.pnlPct)
			}
		})
	}
}

func TestResolveOutcome_Rejects(t *testing.T) {
	none := &domain.Signal{Action: domain.ActionNone}
	if _, err := ResolveOutcome(none, d("145"), checkedAt); !errors.Is(err, domain.ErrInvalidSignal) {
		t.Errorf("NONE: expected ErrInvalidSignal, got %v", err)
	}
	if _, err := ResolveOutcome(buy(), decimal.Zero, checkedAt); !errors.Is(err, domain.ErrInvalidResolution) {
		t.Errorf("zero price: expected ErrInvalidResolution, got %v", err)
	}
}

func TestAuditSignal(t *testing.T) {
	s := buy()
	r, _ := ResolveOutcome(s, d("146.10"), checkedAt)
	r.Apply(s)

	if divs := AuditSignal(s); len(divs) != 0 {
		t.Errorf("consistent signal reported divergences: %+v", divs)
	}

	s.PnL = decimal.NewNullDecimal(d("0.40"))
	divs := AuditSignal(s)
	if len(divs) != 1 || divs[0].Field != "pnl" {
		t.Errorf("expected one pnl divergence, got %+v", divs)
	}

	report := Audit([]*domain.Signal{s, sell()})
	if report.Checked != 1 {
		t.Errorf("Checked = %d, want 1 (pending signals skipped)", report.Checked)
	}
	if len(report.Divergent["buy"]) != 1 {
		t.Errorf("Divergent = %+v", report.Divergent)
	}
}
