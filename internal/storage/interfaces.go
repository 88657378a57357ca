package storage

import (
	"context"
	"time"

	"fx-signal-lab/internal/domain"
)

// SignalFilter narrows List results. Zero fields match everything.
type SignalFilter struct {
	CurrencyPair string
	Status       domain.Status
	Action       domain.Action
	Limit        int // 0 means no limit
}

// Matches reports whether s passes the filter, ignoring Limit.
func (f SignalFilter) Matches(s *domain.Signal) bool {
	if f.CurrencyPair != "" && s.CurrencyPair != f.CurrencyPair {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Action != "" && s.Action != f.Action {
		return false
	}
	return true
}

// SignalStore owns signals and their verification tasks.
// A signal and its task are always written together.
type SignalStore interface {
	// Create inserts a signal with its task in one atomic write.
	// Returns ErrDuplicateKey if the signal id exists.
	Create(ctx context.Context, s *domain.Signal, task *domain.VerificationTask) error

	// GetByID retrieves a signal. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Signal, error)

	// GetTask retrieves the task of a signal. Returns ErrNotFound if not exists.
	GetTask(ctx context.Context, signalID string) (*domain.VerificationTask, error)

	// List retrieves signals matching filter, ordered by created_at DESC, id ASC.
	List(ctx context.Context, filter SignalFilter) ([]*domain.Signal, error)

	// GetCompleted retrieves COMPLETED signals, ordered by completed_at ASC, id ASC.
	// An empty pair returns all pairs.
	GetCompleted(ctx context.Context, pair string) ([]*domain.Signal, error)

	// GetDueTasks retrieves PENDING tasks with verify_at <= now,
	// ordered by verify_at ASC, signal_id ASC. limit <= 0 means no limit.
	GetDueTasks(ctx context.Context, now time.Time, limit int) ([]*domain.VerificationTask, error)

	// MarkOpen records an OPEN check: the signal becomes ACTIVE and the task
	// attempt counter increments. Returns ErrAlreadyCompleted if the signal
	// is already COMPLETED.
	MarkOpen(ctx context.Context, id string, r domain.Resolution) error

	// Complete atomically resolves a signal and marks its task DONE.
	// Returns ErrAlreadyCompleted if the signal was completed before.
	Complete(ctx context.Context, id string, r domain.Resolution) error
}

// StatisticsStore keeps a history of statistics snapshots per currency pair.
// The empty pair holds the all-pairs aggregate.
type StatisticsStore interface {
	// Save appends a snapshot. It is a no-op returning false when the
	// snapshot equals the latest one for the same pair.
	Save(ctx context.Context, st *domain.PerformanceStatistics) (bool, error)

	// Latest retrieves the newest snapshot for pair. Returns ErrNotFound if none.
	Latest(ctx context.Context, pair string) (*domain.PerformanceStatistics, error)

	// History retrieves snapshots for pair, newest first. limit <= 0 means no limit.
	History(ctx context.Context, pair string, limit int) ([]*domain.PerformanceStatistics, error)
}
