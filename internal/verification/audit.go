package verification

import (
	"fx-signal-lab/internal/domain"
)

// FieldDivergence is a stored value that does not match the value derived
// from the signal's own levels.
type FieldDivergence struct {
	Field    string
	Stored   string
	Expected string
}

// AuditReport summarizes an audit over completed signals.
type AuditReport struct {
	Checked   int
	Divergent map[string][]FieldDivergence // keyed by signal id
}

// AuditSignal re-derives the exit and pnl of a completed signal from its
// result and levels and lists every stored field that disagrees.
func AuditSignal(s *domain.Signal) []FieldDivergence {
	if s.Status != domain.StatusCompleted {
		return nil
	}

	var divs []FieldDivergence
	add := func(field, stored, expected string) {
		divs = append(divs, FieldDivergence{Field: field, Stored: stored, Expected: expected})
	}

	level := s.TakeProfit
	switch s.Result {
	case domain.ResultTPHit:
	case domain.ResultSLHit:
		level = s.StopLoss
	default:
		add("result", string(s.Result), "TP_HIT or SL_HIT")
		return divs
	}

	if !s.ActualExit.Valid || !s.ActualExit.Decimal.Equal(level) {
		add("actual_exit", nullString(s.ActualExit.Valid, s.ActualExit.Decimal.String()), level.String())
	}

	pnl, pct := PnL(s.Action, s.EntryPrice, level)
	if !s.PnL.Valid || !s.PnL.Decimal.Equal(pnl) {
		add("pnl", nullString(s.PnL.Valid, s.PnL.Decimal.String()), pnl.String())
	}
	if !s.PnLPercentage.Valid || !s.PnLPercentage.Decimal.Round(PnLPercentPlaces).Equal(pct) {
		add("pnl_percentage", nullString(s.PnLPercentage.Valid, s.PnLPercentage.Decimal.String()), pct.String())
	}
	if s.CompletedAt == nil {
		add("completed_at", "null", "set")
	}

	return divs
}

// Audit checks every signal and collects the divergent ones.
func Audit(signals []*domain.Signal) *AuditReport {
	report := &AuditReport{Divergent: make(map[string][]FieldDivergence)}
	for _, s := range signals {
		if s.Status != domain.StatusCompleted {
			continue
		}
		report.Checked++
		if divs := AuditSignal(s); len(divs) > 0 {
			report.Divergent[s.ID] = divs
		}
	}
	return report
}

func nullString(valid bool, s string) string {
	if !valid {
		return "null"
	}
	return s
}
