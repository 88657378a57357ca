package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/analysis"
	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/verification"
)

var hundred = decimal.NewFromInt(100)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		MarginBottom(1)

	panelStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280")).
		Width(22)

	buyStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	sellStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)

	noneStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)
)

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func actionText(a domain.Action) string {
	switch a {
	case domain.ActionBuy:
		return buyStyle.Render(string(a))
	case domain.ActionSell:
		return sellStyle.Render(string(a))
	default:
		return noneStyle.Render(string(a))
	}
}

func renderClassification(w io.Writer, pair string, c analysis.Classification) {
	rows := []string{
		row("Pair", pair),
		row("Action", actionText(c.Action)),
		row("Confidence", fmt.Sprintf("%.2f", c.Confidence)),
	}
	if c.Action != domain.ActionNone {
		rows = append(rows,
			row("Entry", levelText(c.EntryPrice.String(), c.EntryPrice.IsZero())),
			row("Stop loss", levelText(c.StopLoss.String(), c.StopLoss.IsZero())),
			row("Take profit", levelText(c.TakeProfit.String(), c.TakeProfit.IsZero())),
		)
	}
	if c.Indecisive {
		rows = append(rows, row("Note", "indecision keyword"))
	}

	fmt.Fprintln(w, titleStyle.Render("Classification"))
	fmt.Fprintln(w, panelStyle.Render(strings.Join(rows, "\n")))
}

func levelText(v string, missing bool) string {
	if missing {
		return errorStyle.Render("not found")
	}
	return v
}

func renderStatistics(w io.Writer, st *domain.PerformanceStatistics) {
	pair := st.CurrencyPair
	if pair == "" {
		pair = "ALL"
	}

	rows := []string{
		row("Trades", fmt.Sprintf("%d (%d W / %d L)", st.TotalTrades, st.WinningTrades, st.LosingTrades)),
		row("Win rate", st.WinRate.Mul(hundred).StringFixed(2)+"%"),
		row("Average win", st.AverageWin.String()),
		row("Average loss", st.AverageLoss.String()),
		row("Expected value", st.ExpectedValue.String()),
		row("Expected value %", st.ExpectedValuePercentage.String()+"%"),
		row("Risk/reward", st.RiskRewardRatio.String()),
		row("Profit factor", st.ProfitFactor.String()),
		row("Total P&L", st.TotalPnL.String()),
		row("Max drawdown", st.MaxDrawdown.String()),
		row("Max losing streak", fmt.Sprintf("%d", st.MaxConsecutiveLosses)),
	}
	if !st.LastUpdated.IsZero() {
		rows = append(rows, row("Last completion", st.LastUpdated.Format("2006-01-02 15:04 MST")))
	}

	fmt.Fprintln(w, titleStyle.Render("Performance: "+pair))
	fmt.Fprintln(w, panelStyle.Render(strings.Join(rows, "\n")))
}

func renderPass(w io.Writer, r *verification.PassReport) {
	rows := []string{
		row("Due", fmt.Sprintf("%d", r.Due)),
		row("Resolved", fmt.Sprintf("%d", r.Resolved)),
		row("Open", fmt.Sprintf("%d", r.Open)),
		row("Failed", fmt.Sprintf("%d", r.Failed)),
		row("Skipped", fmt.Sprintf("%d", r.Skipped)),
		row("Duration", r.Duration.String()),
	}
	fmt.Fprintln(w, titleStyle.Render("Verification pass"))
	fmt.Fprintln(w, panelStyle.Render(strings.Join(rows, "\n")))

	for _, s := range r.Completed {
		fmt.Fprintf(w, "  %s %s %s %s pnl %s\n", s.ID, s.CurrencyPair, actionText(s.Action), s.Result, s.PnL.Decimal.String())
	}
}

func renderAudit(w io.Writer, a *verification.AuditReport) {
	if len(a.Divergent) == 0 {
		fmt.Fprintf(w, "Audit: %d completed signals consistent\n", a.Checked)
		return
	}
	fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("Audit: %d of %d completed signals diverge", len(a.Divergent), a.Checked)))
	for id, divs := range a.Divergent {
		for _, d := range divs {
			fmt.Fprintf(w, "  %s %s: stored %s, expected %s\n", id, d.Field, d.Stored, d.Expected)
		}
	}
}
