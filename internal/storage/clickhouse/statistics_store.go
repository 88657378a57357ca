package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/storage"
)

// StatisticsStore implements storage.StatisticsStore using ClickHouse.
// Decimal values are stored as strings to keep them exact.
type StatisticsStore struct {
	conn *Conn
	now  func() time.Time
}

// NewStatisticsStore creates a new StatisticsStore.
func NewStatisticsStore(conn *Conn) *StatisticsStore {
	return &StatisticsStore{conn: conn, now: time.Now}
}

// WithClock sets the clock used for computed_at. For testing.
func (s *StatisticsStore) WithClock(now func() time.Time) *StatisticsStore {
	s.now = now
	return s
}

// Compile-time interface check.
var _ storage.StatisticsStore = (*StatisticsStore)(nil)

const statisticsColumns = `
	currency_pair, computed_at,
	total_trades, winning_trades, losing_trades,
	win_rate, average_win, average_loss,
	expected_value, expected_value_percentage,
	risk_reward_ratio, profit_factor, total_pnl,
	max_drawdown, max_consecutive_losses, last_updated
`

// statisticsRow mirrors one performance_statistics row.
type statisticsRow struct {
	stats      *domain.PerformanceStatistics
	computedAt time.Time
}

// Save appends a snapshot unless it equals the latest one for its pair.
func (s *StatisticsStore) Save(ctx context.Context, st *domain.PerformanceStatistics) (bool, error) {
	if st == nil {
		return false, storage.ErrInvalidInput
	}

	computedAt := s.now().UTC().Truncate(time.Microsecond)

	latest, err := s.latest(ctx, st.CurrencyPair)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return false, err
	default:
		if latest.stats.Equal(st) {
			return false, nil
		}
		// computed_at is part of the sorting key; keep it strictly increasing.
		if !computedAt.After(latest.computedAt) {
			computedAt = latest.computedAt.Add(time.Microsecond)
		}
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO performance_statistics (`+statisticsColumns+`) VALUES (
			?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?,
			?, ?, ?,
			?, ?, ?
		)
	`,
		st.CurrencyPair, computedAt,
		uint32(st.TotalTrades), uint32(st.WinningTrades), uint32(st.LosingTrades),
		st.WinRate.String(), st.AverageWin.String(), st.AverageLoss.String(),
		st.ExpectedValue.String(), st.ExpectedValuePercentage.String(),
		st.RiskRewardRatio.String(), st.ProfitFactor.String(), st.TotalPnL.String(),
		st.MaxDrawdown.String(), uint32(st.MaxConsecutiveLosses), toColumnTime(st.LastUpdated),
	)
	if err != nil {
		return false, fmt.Errorf("insert performance statistics: %w", err)
	}
	return true, nil
}

// Latest retrieves the newest snapshot for pair. Returns ErrNotFound if none.
func (s *StatisticsStore) Latest(ctx context.Context, pair string) (*domain.PerformanceStatistics, error) {
	row, err := s.latest(ctx, pair)
	if err != nil {
		return nil, err
	}
	return row.stats, nil
}

// History retrieves snapshots for pair, newest first.
func (s *StatisticsStore) History(ctx context.Context, pair string, limit int) ([]*domain.PerformanceStatistics, error) {
	query := `
		SELECT ` + statisticsColumns + `
		FROM performance_statistics FINAL
		WHERE currency_pair = ?
		ORDER BY computed_at DESC
	`
	args := []any{pair}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query statistics history: %w", err)
	}
	defer rows.Close()

	var result []*domain.PerformanceStatistics
	for rows.Next() {
		r, err := scanStatistics(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r.stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statistics history: %w", err)
	}
	return result, nil
}

func (s *StatisticsStore) latest(ctx context.Context, pair string) (*statisticsRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+statisticsColumns+`
		FROM performance_statistics FINAL
		WHERE currency_pair = ?
		ORDER BY computed_at DESC
		LIMIT 1
	`, pair)
	if err != nil {
		return nil, fmt.Errorf("query latest statistics: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query latest statistics: %w", err)
		}
		return nil, storage.ErrNotFound
	}
	return scanStatistics(rows)
}

// rowScanner is satisfied by driver.Rows and driver.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatistics(row rowScanner) (*statisticsRow, error) {
	var (
		st                                   domain.PerformanceStatistics
		computedAt, lastUpdated              time.Time
		total, wins, losses, maxConsecLosses uint32
		winRate, avgWin, avgLoss             string
		ev, evPct, rr, pf, totalPnL, maxDD   string
	)

	err := row.Scan(
		&st.CurrencyPair, &computedAt,
		&total, &wins, &losses,
		&winRate, &avgWin, &avgLoss,
		&ev, &evPct,
		&rr, &pf, &totalPnL,
		&maxDD, &maxConsecLosses, &lastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("scan performance statistics: %w", err)
	}

	st.TotalTrades = int(total)
	st.WinningTrades = int(wins)
	st.LosingTrades = int(losses)
	st.MaxConsecutiveLosses = int(maxConsecLosses)
	st.LastUpdated = fromColumnTime(lastUpdated)

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&st.WinRate, winRate},
		{&st.AverageWin, avgWin},
		{&st.AverageLoss, avgLoss},
		{&st.ExpectedValue, ev},
		{&st.ExpectedValuePercentage, evPct},
		{&st.RiskRewardRatio, rr},
		{&st.ProfitFactor, pf},
		{&st.TotalPnL, totalPnL},
		{&st.MaxDrawdown, maxDD},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("parse statistics value %q: %w", f.src, err)
		}
		*f.dst = d
	}

	return &statisticsRow{stats: &st, computedAt: computedAt.UTC()}, nil
}

// DateTime64 cannot hold the zero time.Time; an empty set is stored as the epoch.
func toColumnTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t.UTC()
}

func fromColumnTime(t time.Time) time.Time {
	if t.Unix() == 0 {
		return time.Time{}
	}
	return t.UTC()
}
