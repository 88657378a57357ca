package notify

import (
	"fmt"
	"strings"

	"fx-signal-lab/internal/domain"
)

// FormatRecorded renders the announcement of a new signal.
func FormatRecorded(s *domain.Signal) (string, string) {
	emoji := "🟢"
	if s.Action == domain.ActionSell {
		emoji = "🔴"
	}

	title := fmt.Sprintf("%s %s Signal: %s", emoji, s.Action, s.CurrencyPair)
	message := fmt.Sprintf("%s %s @ %s\nSL: %s | TP: %s\nConfidence: %.0f%%\nRecorded: %s",
		s.Action, s.CurrencyPair, s.EntryPrice, s.StopLoss, s.TakeProfit,
		s.Confidence*100, s.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	return title, message
}

// FormatCompleted renders the outcome of a completed signal.
func FormatCompleted(s *domain.Signal) (string, string) {
	emoji := "✅"
	if !s.PnL.Decimal.IsPositive() {
		emoji = "❌"
	}

	title := fmt.Sprintf("%s %s %s: %s", emoji, s.CurrencyPair, s.Action, resultLabel(s.Result))

	var b strings.Builder
	fmt.Fprintf(&b, "Entry: %s → Exit: %s\n", s.EntryPrice, s.ActualExit.Decimal)
	fmt.Fprintf(&b, "P&L: %s (%s%%)\n", signed(s.PnL.Decimal.String()), signed(s.PnLPercentage.Decimal.StringFixed(2)))
	fmt.Fprintf(&b, "SL: %s | TP: %s", s.StopLoss, s.TakeProfit)
	if s.CompletedAt != nil {
		fmt.Fprintf(&b, "\nCompleted: %s", s.CompletedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return title, b.String()
}

func resultLabel(r domain.Result) string {
	switch r {
	case domain.ResultTPHit:
		return "take profit hit"
	case domain.ResultSLHit:
		return "stop loss hit"
	default:
		return strings.ToLower(string(r))
	}
}

func signed(s string) string {
	if strings.HasPrefix(s, "-") {
		return s
	}
	return "+" + s
}
