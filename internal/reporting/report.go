package reporting

import (
	"time"

	"fx-signal-lab/internal/domain"
)

// Report is the performance report over the signal ledger.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	// Data Summary
	DataSummary DataSummary

	// Overall statistics across all pairs
	Overall *domain.PerformanceStatistics

	// Per-pair statistics (sorted by currency pair)
	PairMetrics []*domain.PerformanceStatistics

	// Completed signals in completion order
	Signals []SignalRow

	// Stored results that disagree with their own levels
	IntegrityErrors []string
}

// DataSummary contains data description.
type DataSummary struct {
	TotalSignals     int
	PendingSignals   int
	ActiveSignals    int
	CompletedSignals int
	Pairs            int
	FirstSignalAt    time.Time // zero when there are no signals
	LastCompletedAt  time.Time // zero when nothing completed
}

// SignalRow represents one row in the completed signals table.
type SignalRow struct {
	SignalID      string
	CurrencyPair  string
	Action        string
	EntryPrice    string
	StopLoss      string
	TakeProfit    string
	Result        string
	ActualExit    string
	PnL           string
	PnLPercentage string
	CreatedAt     time.Time
	CompletedAt   time.Time
}

func newSignalRow(s *domain.Signal) SignalRow {
	row := SignalRow{
		SignalID:      s.ID,
		CurrencyPair:  s.CurrencyPair,
		Action:        string(s.Action),
		EntryPrice:    s.EntryPrice.String(),
		StopLoss:      s.StopLoss.String(),
		TakeProfit:    s.TakeProfit.String(),
		Result:        string(s.Result),
		ActualExit:    s.ActualExit.Decimal.String(),
		PnL:           s.PnL.Decimal.String(),
		PnLPercentage: s.PnLPercentage.Decimal.String(),
		CreatedAt:     s.CreatedAt,
	}
	if s.CompletedAt != nil {
		row.CompletedAt = *s.CompletedAt
	}
	return row
}
