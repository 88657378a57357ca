// Package metrics aggregates completed signals into performance statistics.
package metrics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/domain"
)

// RatioPlaces is the rounding applied to divided quantities.
const RatioPlaces = 8

// Compute derives statistics from completed signals. Signals that are not
// COMPLETED are ignored. The input slice is not modified.
// Signals are ordered by CompletedAt ASC, ID ASC before computing
// order-dependent metrics (MaxDrawdown, MaxConsecutiveLosses).
func Compute(pair string, signals []*domain.Signal) *domain.PerformanceStatistics {
	stats := &domain.PerformanceStatistics{CurrencyPair: pair}

	completed := completedInOrder(signals)
	n := len(completed)
	if n == 0 {
		return stats
	}

	var (
		grossWin, grossLoss       decimal.Decimal // grossLoss is the absolute sum of pnl <= 0
		grossWinPct, grossLossPct decimal.Decimal
		grossNegative             decimal.Decimal // absolute sum of pnl < 0
	)
	pnls := make([]decimal.Decimal, n)

	for i, s := range completed {
		pnl := s.PnL.Decimal
		pct := s.PnLPercentage.Decimal
		pnls[i] = pnl

		if pnl.IsPositive() {
			stats.WinningTrades++
			grossWin = grossWin.Add(pnl)
			grossWinPct = grossWinPct.Add(pct)
		} else {
			stats.LosingTrades++
			grossLoss = grossLoss.Add(pnl.Abs())
			grossLossPct = grossLossPct.Add(pct.Abs())
			if pnl.IsNegative() {
				grossNegative = grossNegative.Add(pnl.Abs())
			}
		}
		stats.TotalPnL = stats.TotalPnL.Add(pnl)
	}

	stats.TotalTrades = n
	stats.WinRate = ratio(decimal.NewFromInt(int64(stats.WinningTrades)), decimal.NewFromInt(int64(n)))
	lossRate := ratio(decimal.NewFromInt(int64(stats.LosingTrades)), decimal.NewFromInt(int64(n)))

	wins := decimal.NewFromInt(int64(stats.WinningTrades))
	losses := decimal.NewFromInt(int64(stats.LosingTrades))
	stats.AverageWin = ratio(grossWin, wins)
	stats.AverageLoss = ratio(grossLoss, losses)

	stats.ExpectedValue = stats.WinRate.Mul(stats.AverageWin).Sub(lossRate.Mul(stats.AverageLoss))
	stats.ExpectedValuePercentage = stats.WinRate.Mul(ratio(grossWinPct, wins)).
		Sub(lossRate.Mul(ratio(grossLossPct, losses))).
		Round(RatioPlaces)

	stats.RiskRewardRatio = ratio(stats.AverageWin, stats.AverageLoss)
	stats.ProfitFactor = ratio(grossWin, grossNegative)

	stats.MaxDrawdown = computeMaxDrawdown(pnls)
	stats.MaxConsecutiveLosses = computeMaxConsecutiveLosses(pnls)
	stats.LastUpdated = lastCompletion(completed)

	return stats
}

// ForPair restricts signals to one currency pair. An empty pair keeps all.
func ForPair(signals []*domain.Signal, pair string) []*domain.Signal {
	if pair == "" {
		return signals
	}
	var result []*domain.Signal
	for _, s := range signals {
		if s.CurrencyPair == pair {
			result = append(result, s)
		}
	}
	return result
}

func completedInOrder(signals []*domain.Signal) []*domain.Signal {
	result := make([]*domain.Signal, 0, len(signals))
	for _, s := range signals {
		if s.Status == domain.StatusCompleted && s.PnL.Valid {
			result = append(result, s)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		ti, tj := completionTime(result[i]), completionTime(result[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func completionTime(s *domain.Signal) time.Time {
	if s.CompletedAt == nil {
		return time.Time{}
	}
	return *s.CompletedAt
}

func lastCompletion(ordered []*domain.Signal) time.Time {
	var last time.Time
	for _, s := range ordered {
		if t := completionTime(s); t.After(last) {
			last = t
		}
	}
	return last.UTC()
}

// ratio returns num / den, or zero when den is zero.
func ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, RatioPlaces)
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative pnl.
// max_drawdown = MAX(peak_cumulative - trough_cumulative)
// pnls must be in chronological order.
func computeMaxDrawdown(pnls []decimal.Decimal) decimal.Decimal {
	cumulative := decimal.Zero
	peak := decimal.Zero
	maxDrawdown := decimal.Zero

	for _, p := range pnls {
		cumulative = cumulative.Add(p)
		if cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		if drawdown := peak.Sub(cumulative); drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of pnl <= 0.
// pnls must be in chronological order.
func computeMaxConsecutiveLosses(pnls []decimal.Decimal) int {
	maxStreak := 0
	currentStreak := 0

	for _, p := range pnls {
		if !p.IsPositive() {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
