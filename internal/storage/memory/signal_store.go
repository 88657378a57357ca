package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu      sync.RWMutex
	signals map[string]*domain.Signal           // keyed by id
	tasks   map[string]*domain.VerificationTask // keyed by signal id
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		signals: make(map[string]*domain.Signal),
		tasks:   make(map[string]*domain.VerificationTask),
	}
}

// Create inserts a signal with its task. Returns ErrDuplicateKey if id exists.
func (s *SignalStore) Create(_ context.Context, sig *domain.Signal, task *domain.VerificationTask) error {
	if sig == nil || sig.ID == "" || task == nil || task.SignalID != sig.ID {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.signals[sig.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.signals[sig.ID] = sig.Clone()
	s.tasks[sig.ID] = task.Clone()
	return nil
}

// GetByID retrieves a signal. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(_ context.Context, id string) (*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, exists := s.signals[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return sig.Clone(), nil
}

// GetTask retrieves the task of a signal. Returns ErrNotFound if not exists.
func (s *SignalStore) GetTask(_ context.Context, signalID string) (*domain.VerificationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tasks[signalID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// List retrieves signals matching filter, newest first.
func (s *SignalStore) List(_ context.Context, filter storage.SignalFilter) ([]*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Signal
	for _, sig := range s.signals {
		if filter.Matches(sig) {
			result = append(result, sig.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// GetCompleted retrieves COMPLETED signals in completion order.
func (s *SignalStore) GetCompleted(_ context.Context, pair string) ([]*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Signal
	for _, sig := range s.signals {
		if sig.Status != domain.StatusCompleted {
			continue
		}
		if pair != "" && sig.CurrencyPair != pair {
			continue
		}
		result = append(result, sig.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		ci, cj := result[i].CompletedAt, result[j].CompletedAt
		if !ci.Equal(*cj) {
			return ci.Before(*cj)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// GetDueTasks retrieves PENDING tasks with verify_at <= now.
func (s *SignalStore) GetDueTasks(_ context.Context, now time.Time, limit int) ([]*domain.VerificationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VerificationTask
	for _, t := range s.tasks {
		if t.IsDue(now) {
			result = append(result, t.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].VerifyAt.Equal(result[j].VerifyAt) {
			return result[i].VerifyAt.Before(result[j].VerifyAt)
		}
		return result[i].SignalID < result[j].SignalID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkOpen records an OPEN check on a signal that is not yet completed.
func (s *SignalStore) MarkOpen(_ context.Context, id string, r domain.Resolution) error {
	if r.Result != domain.ResultOpen {
		return fmt.Errorf("%w: mark open with result %q", storage.ErrInvalidInput, r.Result)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sig, task, err := s.lookup(id)
	if err != nil {
		return err
	}
	if sig.Status == domain.StatusCompleted || task.Status == domain.TaskDone {
		return storage.ErrAlreadyCompleted
	}

	r.ApplyOpen(sig)
	recordAttempt(task, r.CheckedAt)
	return nil
}

// Complete resolves a signal and marks its task DONE in one step.
func (s *SignalStore) Complete(_ context.Context, id string, r domain.Resolution) error {
	if err := r.ValidateTerminal(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sig, task, err := s.lookup(id)
	if err != nil {
		return err
	}
	if sig.Status == domain.StatusCompleted || task.Status == domain.TaskDone {
		return storage.ErrAlreadyCompleted
	}

	r.Apply(sig)
	recordAttempt(task, r.CheckedAt)
	task.Status = domain.TaskDone
	return nil
}

// Snapshot returns copies of every signal and task, ordered by signal id.
func (s *SignalStore) Snapshot() ([]*domain.Signal, []*domain.VerificationTask) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.signals))
	for id := range s.signals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sigs := make([]*domain.Signal, 0, len(ids))
	tasks := make([]*domain.VerificationTask, 0, len(ids))
	for _, id := range ids {
		sigs = append(sigs, s.signals[id].Clone())
		tasks = append(tasks, s.tasks[id].Clone())
	}
	return sigs, tasks
}

// lookup must be called with mu held.
func (s *SignalStore) lookup(id string) (*domain.Signal, *domain.VerificationTask, error) {
	sig, ok := s.signals[id]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	task, ok := s.tasks[id]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	return sig, task, nil
}

func recordAttempt(task *domain.VerificationTask, at time.Time) {
	task.Attempts++
	task.LastAttemptAt = &at
}

var _ storage.SignalStore = (*SignalStore)(nil)
