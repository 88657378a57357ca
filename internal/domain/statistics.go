package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceStatistics is the aggregate over all COMPLETED signals.
// It is derived data: recomputing it from the same signal set yields the same value.
type PerformanceStatistics struct {
	CurrencyPair string // empty for all pairs

	// Counts
	TotalTrades   int
	WinningTrades int // pnl > 0
	LosingTrades  int // pnl <= 0

	// Ratios and averages (price units)
	WinRate                 decimal.Decimal
	AverageWin              decimal.Decimal
	AverageLoss             decimal.Decimal // absolute value
	ExpectedValue           decimal.Decimal
	ExpectedValuePercentage decimal.Decimal
	RiskRewardRatio         decimal.Decimal // 0 when no losses
	ProfitFactor            decimal.Decimal // 0 when no negative pnl
	TotalPnL                decimal.Decimal

	// Drawdown
	MaxDrawdown          decimal.Decimal // worst peak-to-trough of cumulative pnl
	MaxConsecutiveLosses int

	LastUpdated time.Time // latest completion time in the set
}

// Equal reports whether two snapshots carry the same values.
func (p *PerformanceStatistics) Equal(o *PerformanceStatistics) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.CurrencyPair == o.CurrencyPair &&
		p.TotalTrades == o.TotalTrades &&
		p.WinningTrades == o.WinningTrades &&
		p.LosingTrades == o.LosingTrades &&
		p.WinRate.Equal(o.WinRate) &&
		p.AverageWin.Equal(o.AverageWin) &&
		p.AverageLoss.Equal(o.AverageLoss) &&
		p.ExpectedValue.Equal(o.ExpectedValue) &&
		p.ExpectedValuePercentage.Equal(o.ExpectedValuePercentage) &&
		p.RiskRewardRatio.Equal(o.RiskRewardRatio) &&
		p.ProfitFactor.Equal(o.ProfitFactor) &&
		p.TotalPnL.Equal(o.TotalPnL) &&
		p.MaxDrawdown.Equal(o.MaxDrawdown) &&
		p.MaxConsecutiveLosses == o.MaxConsecutiveLosses &&
		p.LastUpdated.Equal(o.LastUpdated)
}
