// Package ledger is the durable record of emitted signals and their outcomes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/observability"
	"fx-signal-lab/internal/storage"
)

// DefaultVerifyAfter is the delay between recording a signal and checking it.
const DefaultVerifyAfter = 24 * time.Hour

// Announcer is told about every newly recorded signal.
type Announcer interface {
	NotifyRecorded(ctx context.Context, s *domain.Signal) error
}

// Ledger records signals together with their verification task and applies
// outcomes to them. Completion is first-writer-wins.
type Ledger struct {
	store       storage.SignalStore
	verifyAfter time.Duration
	now         func() time.Time
	newID       func() string
	announcer   Announcer
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// Options contains configuration for creating a Ledger.
type Options struct {
	Store       storage.SignalStore
	VerifyAfter time.Duration // Default: 24h
	Now         func() time.Time
	NewID       func() string // Default: random UUID
	Announcer   Announcer     // optional
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
}

// New creates a Ledger.
func New(opts Options) *Ledger {
	verifyAfter := opts.VerifyAfter
	if verifyAfter <= 0 {
		verifyAfter = DefaultVerifyAfter
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Ledger{
		store:       opts.Store,
		verifyAfter: verifyAfter,
		now:         now,
		newID:       newID,
		announcer:   opts.Announcer,
		metrics:     observability.OrDefault(opts.Metrics),
		logger:      opts.Logger.With().Str("component", "ledger").Logger(),
	}
}

// VerifyAfter returns the configured verification delay.
func (l *Ledger) VerifyAfter() time.Duration {
	return l.verifyAfter
}

// Record persists a BUY or SELL signal with status PENDING and schedules its
// verification at created_at + verify delay. The returned copy carries the
// assigned id and creation time; the argument is not modified.
// The currency pair is normalized to upper-case BASE/QUOTE. NONE signals,
// malformed pairs and signals violating the price ordering return ErrInvalidSignal.
func (l *Ledger) Record(ctx context.Context, s *domain.Signal) (*domain.Signal, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil signal", domain.ErrInvalidSignal)
	}
	if !s.IsActionable() {
		l.metrics.RecordRejected()
		return nil, fmt.Errorf("%w: only BUY or SELL signals are recorded, got %s", domain.ErrInvalidSignal, s.Action)
	}
	pair, err := domain.NormalizePair(s.CurrencyPair)
	if err != nil {
		l.metrics.RecordRejected()
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignal, err)
	}
	s = s.Clone()
	s.CurrencyPair = pair
	if err := s.Validate(); err != nil {
		l.metrics.RecordRejected()
		return nil, err
	}

	rec := &domain.Signal{
		ID:           l.newID(),
		CreatedAt:    l.now().UTC(),
		CurrencyPair: s.CurrencyPair,
		Action:       s.Action,
		EntryPrice:   s.EntryPrice,
		StopLoss:     s.StopLoss,
		TakeProfit:   s.TakeProfit,
		Confidence:   s.Confidence,
		Status:       domain.StatusPending,
		Analysis:     s.Analysis,
	}
	task := &domain.VerificationTask{
		SignalID: rec.ID,
		VerifyAt: rec.CreatedAt.Add(l.verifyAfter),
		Status:   domain.TaskPending,
	}

	if err := l.store.Create(ctx, rec, task); err != nil {
		return nil, fmt.Errorf("record signal: %w", err)
	}

	l.metrics.RecordSignal(rec.CurrencyPair, string(rec.Action))
	l.logger.Info().
		Str("signal_id", rec.ID).
		Str("pair", rec.CurrencyPair).
		Str("action", string(rec.Action)).
		Time("verify_at", task.VerifyAt).
		Msg("signal recorded")

	if l.announcer != nil {
		if err := l.announcer.NotifyRecorded(ctx, rec.Clone()); err != nil {
			l.logger.Warn().Err(err).Str("signal_id", rec.ID).Msg("announce recorded signal failed")
		}
	}

	return rec, nil
}

// Get returns a recorded signal. Returns storage.ErrNotFound if unknown.
func (l *Ledger) Get(ctx context.Context, id string) (*domain.Signal, error) {
	return l.store.GetByID(ctx, id)
}

// Task returns the verification task of a signal.
func (l *Ledger) Task(ctx context.Context, id string) (*domain.VerificationTask, error) {
	return l.store.GetTask(ctx, id)
}

// List returns recorded signals matching filter, newest first.
func (l *Ledger) List(ctx context.Context, filter storage.SignalFilter) ([]*domain.Signal, error) {
	return l.store.List(ctx, filter)
}

// Pending returns signals that are not yet completed, newest first.
func (l *Ledger) Pending(ctx context.Context) ([]*domain.Signal, error) {
	all, err := l.store.List(ctx, storage.SignalFilter{})
	if err != nil {
		return nil, err
	}
	var result []*domain.Signal
	for _, s := range all {
		if s.Status != domain.StatusCompleted {
			result = append(result, s)
		}
	}
	return result, nil
}

// Completed returns completed signals in completion order. An empty pair
// returns every pair.
func (l *Ledger) Completed(ctx context.Context, pair string) ([]*domain.Signal, error) {
	return l.store.GetCompleted(ctx, pair)
}

// DueTasks returns tasks whose verification time has arrived.
func (l *Ledger) DueTasks(ctx context.Context, now time.Time) ([]*domain.VerificationTask, error) {
	return l.store.GetDueTasks(ctx, now, 0)
}

// UpdateResult completes a signal with a terminal resolution. It reports
// false without error when the signal was already completed, leaving the
// first resolution in place.
func (l *Ledger) UpdateResult(ctx context.Context, id string, r domain.Resolution) (bool, error) {
	err := l.store.Complete(ctx, id, r)
	if errors.Is(err, storage.ErrAlreadyCompleted) {
		l.metrics.RecordDuplicateCompletion()
		l.logger.Debug().Str("signal_id", id).Msg("signal already completed, keeping first result")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update result %s: %w", id, err)
	}
	return true, nil
}

// MarkOpen records a non-terminal check. A completed signal is left untouched.
func (l *Ledger) MarkOpen(ctx context.Context, id string, r domain.Resolution) error {
	err := l.store.MarkOpen(ctx, id, r)
	if errors.Is(err, storage.ErrAlreadyCompleted) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark open %s: %w", id, err)
	}
	return nil
}
