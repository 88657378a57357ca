package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"fx-signal-lab/internal/domain"
)

var signalsHeader = []string{
	"signal_id", "currency_pair", "action", "entry_price", "stop_loss", "take_profit",
	"result", "actual_exit", "pnl", "pnl_percentage", "created_at", "completed_at",
}

var statisticsHeader = []string{
	"currency_pair", "total_trades", "winning_trades", "losing_trades", "win_rate",
	"average_win", "average_loss", "expected_value", "expected_value_percentage",
	"risk_reward_ratio", "profit_factor", "total_pnl", "max_drawdown",
	"max_consecutive_losses", "last_updated",
}

// RenderSignalsCSV renders completed signals as CSV string.
func RenderSignalsCSV(rows []SignalRow) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write(signalsHeader)
	for _, r := range rows {
		_ = w.Write([]string{
			r.SignalID,
			r.CurrencyPair,
			r.Action,
			r.EntryPrice,
			r.StopLoss,
			r.TakeProfit,
			r.Result,
			r.ActualExit,
			r.PnL,
			r.PnLPercentage,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.CompletedAt.UTC().Format(time.RFC3339),
		})
	}

	// strings.Builder writes cannot fail
	w.Flush()
	return sb.String()
}

// RenderStatisticsCSV renders statistics snapshots as CSV string. An empty
// currency pair is written as "ALL".
func RenderStatisticsCSV(stats []*domain.PerformanceStatistics) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write(statisticsHeader)
	for _, m := range stats {
		pair := m.CurrencyPair
		if pair == "" {
			pair = "ALL"
		}
		_ = w.Write([]string{
			pair,
			strconv.Itoa(m.TotalTrades),
			strconv.Itoa(m.WinningTrades),
			strconv.Itoa(m.LosingTrades),
			m.WinRate.StringFixed(6),
			m.AverageWin.StringFixed(6),
			m.AverageLoss.StringFixed(6),
			m.ExpectedValue.StringFixed(6),
			m.ExpectedValuePercentage.StringFixed(6),
			m.RiskRewardRatio.StringFixed(6),
			m.ProfitFactor.StringFixed(6),
			m.TotalPnL.StringFixed(6),
			m.MaxDrawdown.StringFixed(6),
			strconv.Itoa(m.MaxConsecutiveLosses),
			formatTime(m.LastUpdated),
		})
	}

	w.Flush()
	return sb.String()
}
