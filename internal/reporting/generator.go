package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/metrics"
	"fx-signal-lab/internal/storage"
	"fx-signal-lab/internal/verification"
)

// SignalSource is the read side of the signal ledger.
type SignalSource interface {
	List(ctx context.Context, filter storage.SignalFilter) ([]*domain.Signal, error)
	Completed(ctx context.Context, pair string) ([]*domain.Signal, error)
}

// Generator produces reports from the signal ledger.
type Generator struct {
	source SignalSource
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(source SignalSource) *Generator {
	return &Generator{
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete report. Statistics are recomputed from the
// completed signals, never read from a snapshot.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	all, err := g.source.List(ctx, storage.SignalFilter{})
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	completed, err := g.source.Completed(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load completed signals: %w", err)
	}

	overall := metrics.Compute("", completed)

	rows := make([]SignalRow, 0, len(completed))
	for _, s := range completed {
		rows = append(rows, newSignalRow(s))
	}

	return &Report{
		GeneratedAt:     g.now(),
		DataSummary:     generateDataSummary(all, overall),
		Overall:         overall,
		PairMetrics:     generatePairMetrics(completed),
		Signals:         rows,
		IntegrityErrors: generateIntegrityErrors(completed),
	}, nil
}

// generateDataSummary counts signals by status and finds the covered period.
func generateDataSummary(all []*domain.Signal, overall *domain.PerformanceStatistics) DataSummary {
	summary := DataSummary{
		TotalSignals:    len(all),
		LastCompletedAt: overall.LastUpdated,
	}

	pairs := make(map[string]struct{})
	for _, s := range all {
		pairs[s.CurrencyPair] = struct{}{}
		switch s.Status {
		case domain.StatusPending:
			summary.PendingSignals++
		case domain.StatusActive:
			summary.ActiveSignals++
		case domain.StatusCompleted:
			summary.CompletedSignals++
		}
		if summary.FirstSignalAt.IsZero() || s.CreatedAt.Before(summary.FirstSignalAt) {
			summary.FirstSignalAt = s.CreatedAt
		}
	}
	summary.Pairs = len(pairs)

	return summary
}

// generatePairMetrics computes statistics for each pair with completions.
func generatePairMetrics(completed []*domain.Signal) []*domain.PerformanceStatistics {
	byPair := make(map[string][]*domain.Signal)
	for _, s := range completed {
		byPair[s.CurrencyPair] = append(byPair[s.CurrencyPair], s)
	}

	pairs := make([]string, 0, len(byPair))
	for pair := range byPair {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	result := make([]*domain.PerformanceStatistics, 0, len(pairs))
	for _, pair := range pairs {
		result = append(result, metrics.Compute(pair, byPair[pair]))
	}
	return result
}

// generateIntegrityErrors lists completed signals whose stored result fields
// disagree with their levels. Sorted by signal id for deterministic output.
func generateIntegrityErrors(completed []*domain.Signal) []string {
	audit := verification.Audit(completed)

	ids := make([]string, 0, len(audit.Divergent))
	for id := range audit.Divergent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []string
	for _, id := range ids {
		for _, div := range audit.Divergent[id] {
			errs = append(errs, fmt.Sprintf("signal %s: %s stored %s, expected %s", id, div.Field, div.Stored, div.Expected))
		}
	}
	return errs
}
