// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/storage"
)

// Base is the creation time used by fixtures.
var Base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// NewBuySignal returns a PENDING BUY signal and its task, created offset after Base.
func NewBuySignal(id, pair string, offset time.Duration) (*domain.Signal, *domain.VerificationTask) {
	created := Base.Add(offset)
	s := &domain.Signal{
		ID:           id,
		CreatedAt:    created,
		CurrencyPair: pair,
		Action:       domain.ActionBuy,
		EntryPrice:   decimal.RequireFromString("145.50"),
		StopLoss:     decimal.RequireFromString("145.20"),
		TakeProfit:   decimal.RequireFromString("146.00"),
		Confidence:   0.8,
		Status:       domain.StatusPending,
		Analysis:     "fixture " + id,
	}
	task := &domain.VerificationTask{
		SignalID: id,
		VerifyAt: created.Add(24 * time.Hour),
		Status:   domain.TaskPending,
	}
	return s, task
}

// TPHit is the take-profit resolution of a fixture BUY signal.
func TPHit(at time.Time) domain.Resolution {
	return domain.Resolution{
		Result:        domain.ResultTPHit,
		ExitPrice:     decimal.RequireFromString("146.00"),
		PnL:           decimal.RequireFromString("0.50"),
		PnLPercentage: decimal.RequireFromString("0.3436"),
		MarketPrice:   decimal.RequireFromString("146.10"),
		CheckedAt:     at,
	}
}

// SLHit is the stop-loss resolution of a fixture BUY signal.
func SLHit(at time.Time) domain.Resolution {
	return domain.Resolution{
		Result:        domain.ResultSLHit,
		ExitPrice:     decimal.RequireFromString("145.20"),
		PnL:           decimal.RequireFromString("-0.30"),
		PnLPercentage: decimal.RequireFromString("-0.2062"),
		MarketPrice:   decimal.RequireFromString("145.10"),
		CheckedAt:     at,
	}
}

// SignalStoreTests runs the shared SignalStore behaviour against a fresh
// store returned by newStore for each subtest.
func SignalStoreTests(t *testing.T, newStore func(t *testing.T) storage.SignalStore) {
	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sig, task := NewBuySignal("sig-1", "USD/JPY", 0)
		require.NoError(t, store.Create(ctx, sig, task))

		got, err := store.GetByID(ctx, "sig-1")
		require.NoError(t, err)
		assert.Equal(t, "USD/JPY", got.CurrencyPair)
		assert.Equal(t, domain.ActionBuy, got.Action)
		assert.True(t, got.EntryPrice.Equal(sig.EntryPrice), "entry %s", got.EntryPrice)
		assert.True(t, got.StopLoss.Equal(sig.StopLoss), "stop %s", got.StopLoss)
		assert.True(t, got.TakeProfit.Equal(sig.TakeProfit), "target %s", got.TakeProfit)
		assert.InDelta(t, 0.8, got.Confidence, 1e-9)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.True(t, got.CreatedAt.Equal(sig.CreatedAt))
		assert.Equal(t, sig.Analysis, got.Analysis)
		assert.False(t, got.PnL.Valid)
		assert.Nil(t, got.CompletedAt)

		gotTask, err := store.GetTask(ctx, "sig-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskPending, gotTask.Status)
		assert.True(t, gotTask.VerifyAt.Equal(task.VerifyAt))
		assert.Equal(t, 0, gotTask.Attempts)
	})

	t.Run("duplicate id", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sig, task := NewBuySignal("sig-1", "USD/JPY", 0)
		require.NoError(t, store.Create(ctx, sig, task))

		err := store.Create(ctx, sig, task)
		assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "got %v", err)
	})

	t.Run("not found", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.GetByID(ctx, "missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)

		_, err = store.GetTask(ctx, "missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)

		err = store.Complete(ctx, "missing", TPHit(Base))
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("list filters and orders", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i, pair := range []string{"USD/JPY", "EUR/USD", "USD/JPY"} {
			sig, task := NewBuySignal(fmt.Sprintf("sig-%d", i), pair, time.Duration(i)*time.Minute)
			require.NoError(t, store.Create(ctx, sig, task))
		}

		all, err := store.List(ctx, storage.SignalFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "sig-2", all[0].ID, "newest first")

		jpy, err := store.List(ctx, storage.SignalFilter{CurrencyPair: "USD/JPY"})
		require.NoError(t, err)
		require.Len(t, jpy, 2)
		assert.Equal(t, "sig-2", jpy[0].ID)
		assert.Equal(t, "sig-0", jpy[1].ID)

		limited, err := store.List(ctx, storage.SignalFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		completed, err := store.List(ctx, storage.SignalFilter{Status: domain.StatusCompleted})
		require.NoError(t, err)
		assert.Empty(t, completed)
	})

	t.Run("due tasks", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		early, earlyTask := NewBuySignal("early", "USD/JPY", 0)
		late, lateTask := NewBuySignal("late", "USD/JPY", time.Hour)
		require.NoError(t, store.Create(ctx, late, lateTask))
		require.NoError(t, store.Create(ctx, early, earlyTask))

		due, err := store.GetDueTasks(ctx, earlyTask.VerifyAt.Add(-time.Second), 0)
		require.NoError(t, err)
		assert.Empty(t, due, "nothing is due before verify_at")

		due, err = store.GetDueTasks(ctx, earlyTask.VerifyAt, 0)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "early", due[0].SignalID)

		due, err = store.GetDueTasks(ctx, lateTask.VerifyAt.Add(time.Minute), 0)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "early", due[0].SignalID)
		assert.Equal(t, "late", due[1].SignalID)

		due, err = store.GetDueTasks(ctx, lateTask.VerifyAt.Add(time.Minute), 1)
		require.NoError(t, err)
		assert.Len(t, due, 1)
	})

	t.Run("mark open", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sig, task := NewBuySignal("sig-1", "USD/JPY", 0)
		require.NoError(t, store.Create(ctx, sig, task))

		checked := task.VerifyAt.Add(time.Minute)
		open := domain.Resolution{
			Result:      domain.ResultOpen,
			ExitPrice:   decimal.RequireFromString("145.60"),
			MarketPrice: decimal.RequireFromString("145.60"),
			CheckedAt:   checked,
		}
		require.NoError(t, store.MarkOpen(ctx, "sig-1", open))

		got, err := store.GetByID(ctx, "sig-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, got.Status)
		assert.Equal(t, domain.ResultOpen, got.Result)
		assert.False(t, got.PnL.Valid, "open check must not set pnl")
		require.True(t, got.LastPrice.Valid)
		assert.True(t, got.LastPrice.Decimal.Equal(decimal.RequireFromString("145.60")))

		gotTask, err := store.GetTask(ctx, "sig-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskPending, gotTask.Status, "open signal stays scheduled")
		assert.Equal(t, 1, gotTask.Attempts)
		require.NotNil(t, gotTask.LastAttemptAt)
		assert.True(t, gotTask.LastAttemptAt.Equal(checked))

		due, err := store.GetDueTasks(ctx, checked, 0)
		require.NoError(t, err)
		assert.Len(t, due, 1)
	})

	t.Run("complete once", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sig, task := NewBuySignal("sig-1", "USD/JPY", 0)
		require.NoError(t, store.Create(ctx, sig, task))

		first := task.VerifyAt.Add(time.Minute)
		require.NoError(t, store.Complete(ctx, "sig-1", TPHit(first)))

		err := store.Complete(ctx, "sig-1", SLHit(first.Add(time.Minute)))
		assert.True(t, errors.Is(err, storage.ErrAlreadyCompleted), "got %v", err)

		err = store.MarkOpen(ctx, "sig-1", domain.Resolution{Result: domain.ResultOpen, MarketPrice: decimal.RequireFromString("145.60"), CheckedAt: first})
		assert.True(t, errors.Is(err, storage.ErrAlreadyCompleted), "got %v", err)

		got, err := store.GetByID(ctx, "sig-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, got.Status)
		assert.Equal(t, domain.ResultTPHit, got.Result, "first completion wins")
		require.True(t, got.ActualExit.Valid)
		assert.True(t, got.ActualExit.Decimal.Equal(decimal.RequireFromString("146.00")))
		require.True(t, got.PnL.Valid)
		assert.True(t, got.PnL.Decimal.Equal(decimal.RequireFromString("0.50")))
		require.NotNil(t, got.CompletedAt)
		assert.True(t, got.CompletedAt.Equal(first))

		gotTask, err := store.GetTask(ctx, "sig-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskDone, gotTask.Status)

		due, err := store.GetDueTasks(ctx, first.Add(48*time.Hour), 0)
		require.NoError(t, err)
		assert.Empty(t, due, "DONE tasks are never due")
	})

	t.Run("complete rejects open result", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sig, task := NewBuySignal("sig-1", "USD/JPY", 0)
		require.NoError(t, store.Create(ctx, sig, task))

		err := store.Complete(ctx, "sig-1", domain.Resolution{Result: domain.ResultOpen, ExitPrice: decimal.RequireFromString("145.60"), CheckedAt: Base})
		assert.True(t, errors.Is(err, storage.ErrInvalidInput), "got %v", err)
	})

	t.Run("concurrent completion has one winner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sig, task := NewBuySignal("sig-1", "USD/JPY", 0)
		require.NoError(t, store.Create(ctx, sig, task))

		const workers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r := TPHit(task.VerifyAt.Add(time.Duration(i) * time.Second))
				err := store.Complete(ctx, "sig-1", r)
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				if !errors.Is(err, storage.ErrAlreadyCompleted) {
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
	})

	t.Run("completed in completion order", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		a, aTask := NewBuySignal("a", "USD/JPY", 0)
		b, bTask := NewBuySignal("b", "EUR/USD", time.Minute)
		c, cTask := NewBuySignal("c", "USD/JPY", 2*time.Minute)
		require.NoError(t, store.Create(ctx, a, aTask))
		require.NoError(t, store.Create(ctx, b, bTask))
		require.NoError(t, store.Create(ctx, c, cTask))

		at := Base.Add(30 * time.Hour)
		require.NoError(t, store.Complete(ctx, "b", TPHit(at)))
		require.NoError(t, store.Complete(ctx, "a", SLHit(at.Add(time.Hour))))

		all, err := store.GetCompleted(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "b", all[0].ID)
		assert.Equal(t, "a", all[1].ID)

		jpy, err := store.GetCompleted(ctx, "USD/JPY")
		require.NoError(t, err)
		require.Len(t, jpy, 1)
		assert.Equal(t, "a", jpy[0].ID)
	})
}

// Snapshot returns a statistics fixture for pair with the given trade count.
func Snapshot(pair string, trades int, updated time.Time) *domain.PerformanceStatistics {
	return &domain.PerformanceStatistics{
		CurrencyPair:            pair,
		TotalTrades:             trades,
		WinningTrades:           trades / 2,
		LosingTrades:            trades - trades/2,
		WinRate:                 decimal.RequireFromString("0.5"),
		AverageWin:              decimal.RequireFromString("0.4"),
		AverageLoss:             decimal.RequireFromString("0.15"),
		ExpectedValue:           decimal.RequireFromString("0.125"),
		ExpectedValuePercentage: decimal.RequireFromString("0.0859"),
		RiskRewardRatio:         decimal.RequireFromString("2.6667"),
		ProfitFactor:            decimal.RequireFromString("2.6667"),
		TotalPnL:                decimal.RequireFromString("0.5"),
		MaxDrawdown:             decimal.RequireFromString("0.2"),
		MaxConsecutiveLosses:    1,
		LastUpdated:             updated,
	}
}

// StatisticsStoreTests runs the shared StatisticsStore behaviour.
func StatisticsStoreTests(t *testing.T, newStore func(t *testing.T) storage.StatisticsStore) {
	t.Run("latest not found", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Latest(context.Background(), "USD/JPY")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("save and latest", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		saved, err := store.Save(ctx, Snapshot("", 4, Base))
		require.NoError(t, err)
		assert.True(t, saved)

		saved, err = store.Save(ctx, Snapshot("", 6, Base.Add(time.Hour)))
		require.NoError(t, err)
		assert.True(t, saved)

		got, err := store.Latest(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 6, got.TotalTrades)
		assert.True(t, got.ExpectedValue.Equal(decimal.RequireFromString("0.125")))
		assert.True(t, got.LastUpdated.Equal(Base.Add(time.Hour)))
	})

	t.Run("identical snapshot is a no-op", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Save(ctx, Snapshot("", 4, Base))
		require.NoError(t, err)

		saved, err := store.Save(ctx, Snapshot("", 4, Base))
		require.NoError(t, err)
		assert.False(t, saved)

		history, err := store.History(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("history per pair newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := 1; i <= 3; i++ {
			_, err := store.Save(ctx, Snapshot("USD/JPY", i, Base.Add(time.Duration(i)*time.Hour)))
			require.NoError(t, err)
		}
		_, err := store.Save(ctx, Snapshot("EUR/USD", 9, Base))
		require.NoError(t, err)

		history, err := store.History(ctx, "USD/JPY", 2)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, 3, history[0].TotalTrades)
		assert.Equal(t, 2, history[1].TotalTrades)

		eur, err := store.Latest(ctx, "EUR/USD")
		require.NoError(t, err)
		assert.Equal(t, 9, eur.TotalTrades)
	})
}
