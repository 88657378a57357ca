package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/storage"
	"fx-signal-lab/internal/storage/record"
)

// maxTxRetries bounds optimistic-lock retries when a watched key changes.
const maxTxRetries = 5

// SignalStore implements storage.SignalStore on Redis.
// Writes that depend on current state run under WATCH/MULTI.
type SignalStore struct {
	client *goredis.Client
	keys   keyspace
}

// NewSignalStore creates a store using prefix for every key.
// An empty prefix falls back to DefaultKeyPrefix.
func NewSignalStore(client *goredis.Client, prefix string) *SignalStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &SignalStore{client: client, keys: keyspace(prefix)}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// Create inserts a signal with its task. Returns ErrDuplicateKey if id exists.
func (s *SignalStore) Create(ctx context.Context, sig *domain.Signal, task *domain.VerificationTask) error {
	if sig == nil || sig.ID == "" || task == nil || task.SignalID != sig.ID {
		return storage.ErrInvalidInput
	}

	sigData, err := json.Marshal(record.FromSignal(sig))
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	taskData, err := json.Marshal(record.FromTask(task))
	if err != nil {
		return fmt.Errorf("encode verification task: %w", err)
	}

	sigKey := s.keys.signal(sig.ID)
	return s.watch(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, sigKey).Result()
		if err != nil {
			return fmt.Errorf("check signal exists: %w", err)
		}
		if n > 0 {
			return storage.ErrDuplicateKey
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, sigKey, sigData, 0)
			pipe.Set(ctx, s.keys.task(sig.ID), taskData, 0)
			pipe.ZAdd(ctx, s.keys.signals(), goredis.Z{Score: score(sig.CreatedAt), Member: sig.ID})
			if task.Status == domain.TaskPending {
				pipe.ZAdd(ctx, s.keys.due(), goredis.Z{Score: score(task.VerifyAt), Member: sig.ID})
			}
			if sig.Status == domain.StatusCompleted && sig.CompletedAt != nil {
				pipe.ZAdd(ctx, s.keys.completed(), goredis.Z{Score: score(*sig.CompletedAt), Member: sig.ID})
			}
			return nil
		})
		return err
	}, sigKey)
}

// GetByID retrieves a signal. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(ctx context.Context, id string) (*domain.Signal, error) {
	return getSignal(ctx, s.client, s.keys.signal(id))
}

// GetTask retrieves the task of a signal. Returns ErrNotFound if not exists.
func (s *SignalStore) GetTask(ctx context.Context, signalID string) (*domain.VerificationTask, error) {
	return getTask(ctx, s.client, s.keys.task(signalID))
}

// List retrieves signals matching filter, ordered by created_at DESC, id ASC.
func (s *SignalStore) List(ctx context.Context, filter storage.SignalFilter) ([]*domain.Signal, error) {
	ids, err := s.client.ZRange(ctx, s.keys.signals(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list signal ids: %w", err)
	}

	signals, err := s.loadSignals(ctx, ids)
	if err != nil {
		return nil, err
	}

	var result []*domain.Signal
	for _, sig := range signals {
		if filter.Matches(sig) {
			result = append(result, sig)
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

// GetCompleted retrieves COMPLETED signals, ordered by completed_at ASC, id ASC.
func (s *SignalStore) GetCompleted(ctx context.Context, pair string) ([]*domain.Signal, error) {
	ids, err := s.client.ZRange(ctx, s.keys.completed(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list completed ids: %w", err)
	}

	signals, err := s.loadSignals(ctx, ids)
	if err != nil {
		return nil, err
	}

	var result []*domain.Signal
	for _, sig := range signals {
		if sig.Status != domain.StatusCompleted || sig.CompletedAt == nil {
			continue
		}
		if pair != "" && sig.CurrencyPair != pair {
			continue
		}
		result = append(result, sig)
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
func (s *SignalStore) GetDueTasks(ctx context.Context, now time.Time, limit int) ([]*domain.VerificationTask, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keys.due(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due task ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keys.task(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load due tasks: %w", err)
	}

	var result []*domain.VerificationTask
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		task, err := decodeTask([]byte(raw))
		if err != nil {
			return nil, err
		}
		// Scores are millisecond-truncated; re-check the exact time.
		if task.IsDue(now) {
			result = append(result, task)
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
func (s *SignalStore) MarkOpen(ctx context.Context, id string, r domain.Resolution) error {
	if r.Result != domain.ResultOpen {
		return fmt.Errorf("%w: mark open with result %q", storage.ErrInvalidInput, r.Result)
	}
	return s.update(ctx, id, func(sig *domain.Signal, task *domain.VerificationTask) {
		r.ApplyOpen(sig)
		recordAttempt(task, r.CheckedAt)
	})
}

// Complete resolves a signal and marks its task DONE in one MULTI block.
// A concurrent writer invalidates the WATCH and the loser re-reads a
// COMPLETED signal, so only one completion is ever applied.
func (s *SignalStore) Complete(ctx context.Context, id string, r domain.Resolution) error {
	if err := r.ValidateTerminal(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return s.update(ctx, id, func(sig *domain.Signal, task *domain.VerificationTask) {
		r.Apply(sig)
		recordAttempt(task, r.CheckedAt)
		task.Status = domain.TaskDone
	})
}

// update loads a signal and its task under WATCH, applies fn and writes both
// back with their index entries. Completed signals are never modified.
func (s *SignalStore) update(ctx context.Context, id string, fn func(*domain.Signal, *domain.VerificationTask)) error {
	sigKey, taskKey := s.keys.signal(id), s.keys.task(id)

	return s.watch(ctx, func(tx *goredis.Tx) error {
		sig, err := getSignal(ctx, tx, sigKey)
		if err != nil {
			return err
		}
		task, err := getTask(ctx, tx, taskKey)
		if err != nil {
			return err
		}
		if sig.Status == domain.StatusCompleted || task.Status == domain.TaskDone {
			return storage.ErrAlreadyCompleted
		}

		fn(sig, task)

		sigData, err := json.Marshal(record.FromSignal(sig))
		if err != nil {
			return fmt.Errorf("encode signal: %w", err)
		}
		taskData, err := json.Marshal(record.FromTask(task))
		if err != nil {
			return fmt.Errorf("encode verification task: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, sigKey, sigData, 0)
			pipe.Set(ctx, taskKey, taskData, 0)
			if task.Status == domain.TaskDone {
				pipe.ZRem(ctx, s.keys.due(), id)
			}
			if sig.Status == domain.StatusCompleted {
				pipe.ZAdd(ctx, s.keys.completed(), goredis.Z{Score: score(*sig.CompletedAt), Member: id})
			}
			return nil
		})
		return err
	}, sigKey, taskKey)
}

// watch runs fn in an optimistic transaction, retrying when a watched key
// changed before EXEC.
func (s *SignalStore) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %v: too many conflicts", keys)
}

func (s *SignalStore) loadSignals(ctx context.Context, ids []string) ([]*domain.Signal, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keys.signal(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}

	result := make([]*domain.Signal, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		sig, err := decodeSignal([]byte(raw))
		if err != nil {
			return nil, err
		}
		result = append(result, sig)
	}
	return result, nil
}

// getter is satisfied by *goredis.Client and *goredis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func recordAttempt(task *domain.VerificationTask, at time.Time) {
	task.Attempts++
	task.LastAttemptAt = &at
}

func getSignal(ctx context.Context, c getter, key string) (*domain.Signal, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get signal: %w", err)
	}
	return decodeSignal(data)
}

func getTask(ctx context.Context, c getter, key string) (*domain.VerificationTask, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get verification task: %w", err)
	}
	return decodeTask(data)
}

func decodeSignal(data []byte) (*domain.Signal, error) {
	var rec record.Signal
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode signal: %w", err)
	}
	return rec.Domain(), nil
}

func decodeTask(data []byte) (*domain.VerificationTask, error) {
	var rec record.Task
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode verification task: %w", err)
	}
	return rec.Domain(), nil
}

// score orders sorted-set members by millisecond timestamp.
func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
