package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

const signalColumns = `
	id, created_at, currency_pair, action,
	entry_price::text, stop_loss::text, take_profit::text,
	confidence, status, analysis, result,
	actual_exit::text, pnl::text, pnl_percentage::text, completed_at,
	last_price::text, last_checked_at
`

const taskColumns = `signal_id, verify_at, status, attempts, last_attempt_at`

// Create inserts a signal with its task in one transaction.
func (s *SignalStore) Create(ctx context.Context, sig *domain.Signal, task *domain.VerificationTask) error {
	if sig == nil || sig.ID == "" || task == nil || task.SignalID != sig.ID {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO trading_signals (
			id, created_at, currency_pair, action,
			entry_price, stop_loss, take_profit,
			confidence, status, analysis, result,
			actual_exit, pnl, pnl_percentage, completed_at,
			last_price, last_checked_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17
		)
	`,
		sig.ID, sig.CreatedAt, sig.CurrencyPair, string(sig.Action),
		numericArg(sig.EntryPrice), numericArg(sig.StopLoss), numericArg(sig.TakeProfit),
		sig.Confidence, string(sig.Status), sig.Analysis, string(sig.Result),
		nullNumericArg(sig.ActualExit), nullNumericArg(sig.PnL), nullNumericArg(sig.PnLPercentage), sig.CompletedAt,
		nullNumericArg(sig.LastPrice), sig.LastCheckedAt,
	)
	if err != nil {
		return storeError(err, "insert signal")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO verification_tasks (signal_id, verify_at, status, attempts, last_attempt_at)
		VALUES ($1, $2, $3, $4, $5)
	`, task.SignalID, task.VerifyAt, string(task.Status), task.Attempts, task.LastAttemptAt)
	if err != nil {
		return storeError(err, "insert verification task")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a signal. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(ctx context.Context, id string) (*domain.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM trading_signals WHERE id = $1`

	sig, err := scanSignal(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, storeError(err, "get signal by id")
	}
	return sig, nil
}

// GetTask retrieves the task of a signal. Returns ErrNotFound if not exists.
func (s *SignalStore) GetTask(ctx context.Context, signalID string) (*domain.VerificationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM verification_tasks WHERE signal_id = $1`

	task, err := scanTask(s.pool.QueryRow(ctx, query, signalID))
	if err != nil {
		return nil, storeError(err, "get verification task")
	}
	return task, nil
}

// List retrieves signals matching filter, ordered by created_at DESC, id ASC.
func (s *SignalStore) List(ctx context.Context, filter storage.SignalFilter) ([]*domain.Signal, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.CurrencyPair != "" {
		add("currency_pair = $%d", filter.CurrencyPair)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}

	query := `SELECT ` + signalColumns + ` FROM trading_signals`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// GetCompleted retrieves COMPLETED signals, ordered by completed_at ASC, id ASC.
func (s *SignalStore) GetCompleted(ctx context.Context, pair string) ([]*domain.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM trading_signals
		WHERE status = 'COMPLETED' AND ($1 = '' OR currency_pair = $1)
		ORDER BY completed_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, pair)
	if err != nil {
		return nil, fmt.Errorf("get completed signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// GetDueTasks retrieves PENDING tasks with verify_at <= now.
func (s *SignalStore) GetDueTasks(ctx context.Context, now time.Time, limit int) ([]*domain.VerificationTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM verification_tasks
		WHERE status = 'PENDING' AND verify_at <= $1
		ORDER BY verify_at ASC, signal_id ASC
	`
	args := []any{now}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get due tasks: %w", err)
	}
	defer rows.Close()

	var result []*domain.VerificationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification task: %w", err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification tasks: %w", err)
	}
	return result, nil
}

// MarkOpen records an OPEN check on a signal that is not yet completed.
func (s *SignalStore) MarkOpen(ctx context.Context, id string, r domain.Resolution) error {
	if r.Result != domain.ResultOpen {
		return fmt.Errorf("%w: mark open with result %q", storage.ErrInvalidInput, r.Result)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE trading_signals
		SET status = $2, result = $3, last_price = $4, last_checked_at = $5
		WHERE id = $1 AND status <> 'COMPLETED'
	`, id, string(domain.StatusActive), string(domain.ResultOpen), numericArg(r.MarketPrice), r.CheckedAt)
	if err != nil {
		return fmt.Errorf("mark signal open: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrCompleted(ctx, tx, id)
	}

	if err := recordAttempt(ctx, tx, id, r.CheckedAt, domain.TaskPending); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Complete resolves a signal and marks its task DONE in one transaction.
// The conditional UPDATE makes concurrent completions race on the row lock;
// only the first one sees a non-completed row.
func (s *SignalStore) Complete(ctx context.Context, id string, r domain.Resolution) error {
	if err := r.ValidateTerminal(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE trading_signals
		SET status = $2, result = $3,
			actual_exit = $4, pnl = $5, pnl_percentage = $6, completed_at = $7,
			last_price = $8, last_checked_at = $7
		WHERE id = $1 AND status <> 'COMPLETED'
	`,
		id, string(domain.StatusCompleted), string(r.Result),
		numericArg(r.ExitPrice), numericArg(r.PnL), numericArg(r.PnLPercentage), r.CheckedAt,
		numericArg(r.MarketPrice),
	)
	if err != nil {
		return fmt.Errorf("complete signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrCompleted(ctx, tx, id)
	}

	if err := recordAttempt(ctx, tx, id, r.CheckedAt, domain.TaskDone); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func recordAttempt(ctx context.Context, tx pgx.Tx, id string, at time.Time, status domain.TaskStatus) error {
	_, err := tx.Exec(ctx, `
		UPDATE verification_tasks
		SET status = $2, attempts = attempts + 1, last_attempt_at = $3
		WHERE signal_id = $1
	`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("update verification task: %w", err)
	}
	return nil
}

// missingOrCompleted explains why a conditional update touched no rows.
func missingOrCompleted(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trading_signals WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check signal exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrAlreadyCompleted
}

func scanSignal(row pgx.Row) (*domain.Signal, error) {
	var (
		sig                                domain.Signal
		action, status, result             string
		entry, stop, target                string
		actualExit, pnl, pnlPct, lastPrice *string
	)

	err := row.Scan(
		&sig.ID, &sig.CreatedAt, &sig.CurrencyPair, &action,
		&entry, &stop, &target,
		&sig.Confidence, &status, &sig.Analysis, &result,
		&actualExit, &pnl, &pnlPct, &sig.CompletedAt,
		&lastPrice, &sig.LastCheckedAt,
	)
	if err != nil {
		return nil, err
	}

	sig.Action = domain.Action(action)
	sig.Status = domain.Status(status)
	sig.Result = domain.Result(result)
	sig.CreatedAt = sig.CreatedAt.UTC()
	if sig.CompletedAt != nil {
		t := sig.CompletedAt.UTC()
		sig.CompletedAt = &t
	}
	if sig.LastCheckedAt != nil {
		t := sig.LastCheckedAt.UTC()
		sig.LastCheckedAt = &t
	}

	if sig.EntryPrice, err = parseNumeric(entry); err != nil {
		return nil, err
	}
	if sig.StopLoss, err = parseNumeric(stop); err != nil {
		return nil, err
	}
	if sig.TakeProfit, err = parseNumeric(target); err != nil {
		return nil, err
	}
	if sig.ActualExit, err = parseNullNumeric(actualExit); err != nil {
		return nil, err
	}
	if sig.PnL, err = parseNullNumeric(pnl); err != nil {
		return nil, err
	}
	if sig.PnLPercentage, err = parseNullNumeric(pnlPct); err != nil {
		return nil, err
	}
	if sig.LastPrice, err = parseNullNumeric(lastPrice); err != nil {
		return nil, err
	}

	return &sig, nil
}

func scanSignals(rows pgx.Rows) ([]*domain.Signal, error) {
	var result []*domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		result = append(result, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return result, nil
}

func scanTask(row pgx.Row) (*domain.VerificationTask, error) {
	var (
		task   domain.VerificationTask
		status string
	)
	if err := row.Scan(&task.SignalID, &task.VerifyAt, &status, &task.Attempts, &task.LastAttemptAt); err != nil {
		return nil, err
	}
	task.Status = domain.TaskStatus(status)
	task.VerifyAt = task.VerifyAt.UTC()
	if task.LastAttemptAt != nil {
		t := task.LastAttemptAt.UTC()
		task.LastAttemptAt = &t
	}
	return &task, nil
}
