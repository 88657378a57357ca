package reporting

import (
	"fmt"
	"strings"
	"time"

	"fx-signal-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# FX Signal Performance Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Data Summary
	s := r.DataSummary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Signals | %d |\n", s.TotalSignals))
	sb.WriteString(fmt.Sprintf("| Pending | %d |\n", s.PendingSignals))
	sb.WriteString(fmt.Sprintf("| Active (open) | %d |\n", s.ActiveSignals))
	sb.WriteString(fmt.Sprintf("| Completed | %d |\n", s.CompletedSignals))
	sb.WriteString(fmt.Sprintf("| Currency Pairs | %d |\n", s.Pairs))
	sb.WriteString(fmt.Sprintf("| First Signal | %s |\n", formatTime(s.FirstSignalAt)))
	sb.WriteString(fmt.Sprintf("| Last Completion | %s |\n", formatTime(s.LastCompletedAt)))
	sb.WriteString("\n")

	// Overall
	sb.WriteString("## Overall Performance\n\n")
	if r.Overall != nil && r.Overall.TotalTrades > 0 {
		writeStatistics(&sb, r.Overall)
	} else {
		sb.WriteString("No completed signals.\n\n")
	}

	// Per pair
	sb.WriteString("## Performance by Pair\n\n")
	if len(r.PairMetrics) > 0 {
		sb.WriteString("| Pair | Trades | Wins | Losses | WinRate | AvgWin | AvgLoss | EV | EV% | R:R | PF | MaxDD | MaxLoss |\n")
		sb.WriteString("|------|--------|------|--------|---------|--------|---------|----|-----|-----|----|-------|---------|\n")
		for _, m := range r.PairMetrics {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %s | %s | %s | %s | %s | %s | %s | %s | %d |\n",
				m.CurrencyPair, m.TotalTrades, m.WinningTrades, m.LosingTrades,
				m.WinRate.StringFixed(4), m.AverageWin.StringFixed(4), m.AverageLoss.StringFixed(4),
				m.ExpectedValue.StringFixed(4), m.ExpectedValuePercentage.StringFixed(4),
				m.RiskRewardRatio.StringFixed(2), m.ProfitFactor.StringFixed(2),
				m.MaxDrawdown.StringFixed(4), m.MaxConsecutiveLosses))
		}
	} else {
		sb.WriteString("No pair metrics available.\n")
	}
	sb.WriteString("\n")

	// Signals
	sb.WriteString("## Completed Signals\n\n")
	if len(r.Signals) > 0 {
		sb.WriteString("| Completed | Pair | Action | Entry | SL | TP | Result | Exit | PnL | PnL% |\n")
		sb.WriteString("|-----------|------|--------|-------|----|----|--------|------|-----|------|\n")
		for _, row := range r.Signals {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				formatTime(row.CompletedAt), row.CurrencyPair, row.Action,
				row.EntryPrice, row.StopLoss, row.TakeProfit,
				row.Result, row.ActualExit, row.PnL, row.PnLPercentage))
		}
	} else {
		sb.WriteString("No completed signals.\n")
	}
	sb.WriteString("\n")

	// Integrity errors (always shown if present)
	if len(r.IntegrityErrors) > 0 {
		sb.WriteString("## Integrity Errors\n\n")
		for _, err := range r.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func writeStatistics(sb *strings.Builder, m *domain.PerformanceStatistics) {
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", m.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Winning / Losing | %d / %d |\n", m.WinningTrades, m.LosingTrades))
	sb.WriteString(fmt.Sprintf("| Win Rate | %s%% |\n", m.WinRate.Shift(2).StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Average Win | %s |\n", m.AverageWin.StringFixed(4)))
	sb.WriteString(fmt.Sprintf("| Average Loss | %s |\n", m.AverageLoss.StringFixed(4)))
	sb.WriteString(fmt.Sprintf("| Expected Value | %s |\n", m.ExpectedValue.StringFixed(4)))
	sb.WriteString(fmt.Sprintf("| Expected Value %% | %s%% |\n", m.ExpectedValuePercentage.StringFixed(4)))
	sb.WriteString(fmt.Sprintf("| Risk/Reward | %s |\n", m.RiskRewardRatio.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Profit Factor | %s |\n", m.ProfitFactor.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Total PnL | %s |\n", m.TotalPnL.StringFixed(4)))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %s |\n", m.MaxDrawdown.StringFixed(4)))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", m.MaxConsecutiveLosses))
	sb.WriteString("\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
