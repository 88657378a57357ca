package memory

import (
	"context"
	"sync"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/storage"
)

// StatisticsStore is an in-memory implementation of storage.StatisticsStore.
type StatisticsStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.PerformanceStatistics // keyed by pair, oldest first
}

// NewStatisticsStore creates a new in-memory statistics store.
func NewStatisticsStore() *StatisticsStore {
	return &StatisticsStore{
		data: make(map[string][]*domain.PerformanceStatistics),
	}
}

// Save appends a snapshot unless it equals the latest for its pair.
func (s *StatisticsStore) Save(_ context.Context, st *domain.PerformanceStatistics) (bool, error) {
	if st == nil {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.data[st.CurrencyPair]
	if n := len(history); n > 0 && history[n-1].Equal(st) {
		return false, nil
	}

	copy := *st
	s.data[st.CurrencyPair] = append(history, &copy)
	return true, nil
}

// Latest retrieves the newest snapshot for pair. Returns ErrNotFound if none.
func (s *StatisticsStore) Latest(_ context.Context, pair string) (*domain.PerformanceStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[pair]
	if len(history) == 0 {
		return nil, storage.ErrNotFound
	}

	copy := *history[len(history)-1]
	return &copy, nil
}

// History retrieves snapshots for pair, newest first.
func (s *StatisticsStore) History(_ context.Context, pair string, limit int) ([]*domain.PerformanceStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[pair]
	result := make([]*domain.PerformanceStatistics, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		copy := *history[i]
		result = append(result, &copy)
	}
	return result, nil
}

var _ storage.StatisticsStore = (*StatisticsStore)(nil)
