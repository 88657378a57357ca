package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/observability"
	"fx-signal-lab/internal/storage"
)

// CompletedSource lists completed signals in completion order.
// An empty pair returns every pair.
type CompletedSource interface {
	Completed(ctx context.Context, pair string) ([]*domain.Signal, error)
}

// Aggregator recomputes statistics from the completed signal set and keeps
// the history of snapshots.
type Aggregator struct {
	source  CompletedSource
	store   storage.StatisticsStore
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// AggregatorOptions contains configuration for creating an Aggregator.
type AggregatorOptions struct {
	Source  CompletedSource
	Store   storage.StatisticsStore // optional; snapshots are not kept when nil
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// NewAggregator creates a new statistics aggregator.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	return &Aggregator{
		source:  opts.Source,
		store:   opts.Store,
		metrics: observability.OrDefault(opts.Metrics),
		logger:  opts.Logger.With().Str("component", "aggregator").Logger(),
	}
}

// ComputeStatistics computes statistics for pair from the current completed
// set without persisting them. An empty pair aggregates all pairs.
func (a *Aggregator) ComputeStatistics(ctx context.Context, pair string) (*domain.PerformanceStatistics, error) {
	signals, err := a.source.Completed(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("load completed signals: %w", err)
	}
	return Compute(pair, ForPair(signals, pair)), nil
}

// Recompute computes statistics for pair, saves the snapshot and publishes
// the headline gauges. Saving an unchanged snapshot is a no-op.
func (a *Aggregator) Recompute(ctx context.Context, pair string) (*domain.PerformanceStatistics, error) {
	stats, err := a.ComputeStatistics(ctx, pair)
	if err != nil {
		return nil, err
	}

	saved := false
	if a.store != nil {
		saved, err = a.store.Save(ctx, stats)
		if err != nil {
			return nil, fmt.Errorf("save statistics: %w", err)
		}
	}

	winRate, _ := stats.WinRate.Float64()
	ev, _ := stats.ExpectedValue.Float64()
	a.metrics.RecordStatistics(pair, stats.TotalTrades, winRate, ev)

	a.logger.Info().
		Str("pair", pairName(pair)).
		Int("total_trades", stats.TotalTrades).
		Str("win_rate", stats.WinRate.String()).
		Str("expected_value", stats.ExpectedValue.String()).
		Bool("saved", saved).
		Msg("statistics recomputed")

	return stats, nil
}

// Latest returns the most recent saved snapshot for pair. When nothing has
// been saved yet the statistics are computed from the completed set.
func (a *Aggregator) Latest(ctx context.Context, pair string) (*domain.PerformanceStatistics, error) {
	if a.store != nil {
		stats, err := a.store.Latest(ctx, pair)
		if err == nil {
			return stats, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load statistics: %w", err)
		}
	}
	return a.ComputeStatistics(ctx, pair)
}

// History returns saved snapshots for pair, newest first.
func (a *Aggregator) History(ctx context.Context, pair string, limit int) ([]*domain.PerformanceStatistics, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.History(ctx, pair, limit)
}

func pairName(pair string) string {
	if pair == "" {
		return "all"
	}
	return pair
}
