package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/ledger"
	"fx-signal-lab/internal/observability"
)

// DefaultPollInterval is the delay between verification passes.
const DefaultPollInterval = time.Minute

// PriceSource returns the current market price of a currency pair.
type PriceSource interface {
	CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error)
	Name() string
}

// Notifier is told once about every signal this verifier completed.
type Notifier interface {
	NotifyCompleted(ctx context.Context, s *domain.Signal) error
}

// StatisticsUpdater recomputes statistics after signals complete.
// An empty pair recomputes the all-pairs aggregate.
type StatisticsUpdater interface {
	Recompute(ctx context.Context, pair string) (*domain.PerformanceStatistics, error)
}

// PassReport summarizes one verification pass.
type PassReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Due       int // tasks due at StartedAt
	Resolved  int // completed by this pass
	Open      int // checked, neither level reached
	Failed    int // price or storage errors; retried next pass
	Skipped   int // already completed elsewhere
	Completed []*domain.Signal
}

// Status is a snapshot of the verifier loop for health reporting.
type Status struct {
	Running    bool
	Passes     int
	LastPassAt time.Time
	LastReport *PassReport
}

// Verifier resolves due signals. Passes never overlap.
type Verifier struct {
	ledger    *ledger.Ledger
	prices    PriceSource
	notifier  Notifier
	stats     StatisticsUpdater
	interval  time.Duration
	batchSize int
	now       func() time.Time
	metrics   *observability.Metrics
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	passes  int
	last    *PassReport
}

// Options contains configuration for creating a Verifier.
type Options struct {
	Ledger       *ledger.Ledger
	Prices       PriceSource
	Notifier     Notifier          // optional
	Statistics   StatisticsUpdater // optional
	PollInterval time.Duration     // Default: 1m
	BatchSize    int               // max tasks per pass, 0 = all
	Now          func() time.Time
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
}

// New creates a Verifier.
func New(opts Options) *Verifier {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Verifier{
		ledger:    opts.Ledger,
		prices:    opts.Prices,
		notifier:  opts.Notifier,
		stats:     opts.Statistics,
		interval:  interval,
		batchSize: opts.BatchSize,
		now:       now,
		metrics:   observability.OrDefault(opts.Metrics),
		logger:    opts.Logger.With().Str("component", "verifier").Logger(),
	}
}

// ErrPassInProgress is returned by RunOnce while another pass is running.
var ErrPassInProgress = errors.New("verification pass already running")

// Run executes a pass immediately and then every poll interval until ctx is
// cancelled.
func (v *Verifier) Run(ctx context.Context) error {
	v.logger.Info().Dur("interval", v.interval).Msg("starting verification loop")

	v.runScheduled(ctx)

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			v.logger.Info().Msg("verification loop stopped")
			return ctx.Err()
		case <-ticker.C:
			v.runScheduled(ctx)
		}
	}
}

func (v *Verifier) runScheduled(ctx context.Context) {
	if _, err := v.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrPassInProgress) {
			v.logger.Debug().Msg("verification pass already running, skipping")
			return
		}
		if ctx.Err() == nil {
			v.logger.Error().Err(err).Msg("verification pass failed")
		}
	}
}

// RunOnce checks every task due now. Tasks whose verify_at lies in the future
// are not touched. A price lookup failure leaves the task pending for the
// next pass.
func (v *Verifier) RunOnce(ctx context.Context) (*PassReport, error) {
	v.mu.Lock()
	if v.running {
		v.mu.Unlock()
		return nil, ErrPassInProgress
	}
	v.running = true
	v.mu.Unlock()

	begin := time.Now()
	report := &PassReport{StartedAt: v.now().UTC()}
	defer func() {
		report.Duration = time.Since(begin)
		v.mu.Lock()
		v.running = false
		v.passes++
		v.last = report
		v.mu.Unlock()
	}()

	tasks, err := v.ledger.DueTasks(ctx, report.StartedAt)
	if err != nil {
		v.metrics.RecordPassError()
		return report, fmt.Errorf("load due tasks: %w", err)
	}
	if v.batchSize > 0 && len(tasks) > v.batchSize {
		tasks = tasks[:v.batchSize]
	}
	report.Due = len(tasks)

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		v.verifyTask(ctx, task, report)
	}

	if len(report.Completed) > 0 {
		v.recompute(ctx, report.Completed)
	}

	v.metrics.RecordPass(report.Due, report.Failed, time.Since(begin), report.StartedAt)
	v.logger.Info().
		Int("due", report.Due).
		Int("resolved", report.Resolved).
		Int("open", report.Open).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("verification pass complete")

	return report, ctx.Err()
}

func (v *Verifier) verifyTask(ctx context.Context, task *domain.VerificationTask, report *PassReport) {
	log := v.logger.With().Str("signal_id", task.SignalID).Logger()

	if !task.IsDue(report.StartedAt) {
		report.Skipped++
		return
	}

	sig, err := v.ledger.Get(ctx, task.SignalID)
	if err != nil {
		report.Failed++
		log.Error().Err(err).Msg("load signal failed")
		return
	}
	if sig.Status == domain.StatusCompleted {
		report.Skipped++
		return
	}

	start := time.Now()
	price, err := v.prices.CurrentPrice(ctx, sig.CurrencyPair)
	v.metrics.RecordPriceFetch(v.prices.Name(), time.Since(start), err)
	if err != nil {
		report.Failed++
		log.Warn().Err(err).Str("pair", sig.CurrencyPair).Str("feed", v.prices.Name()).
			Msg("price fetch failed, will retry next pass")
		return
	}

	checkedAt := v.now().UTC()
	res, err := ResolveOutcome(sig, price, checkedAt)
	if err != nil {
		report.Failed++
		log.Error().Err(err).Msg("resolve outcome failed")
		return
	}
	v.metrics.RecordVerification(string(res.Result))

	if !res.Result.IsTerminal() {
		if err := v.ledger.MarkOpen(ctx, sig.ID, res); err != nil {
			report.Failed++
			log.Error().Err(err).Msg("record open check failed")
			return
		}
		report.Open++
		log.Debug().Str("price", price.String()).Msg("signal still open")
		return
	}

	updated, err := v.ledger.UpdateResult(ctx, sig.ID, res)
	if err != nil {
		report.Failed++
		log.Error().Err(err).Msg("complete signal failed")
		return
	}
	if !updated {
		report.Skipped++
		return
	}

	res.Apply(sig)
	report.Resolved++
	report.Completed = append(report.Completed, sig)
	log.Info().
		Str("pair", sig.CurrencyPair).
		Str("result", string(res.Result)).
		Str("exit", res.ExitPrice.String()).
		Str("pnl", res.PnL.String()).
		Msg("signal completed")

	if v.notifier != nil {
		if err := v.notifier.NotifyCompleted(ctx, sig.Clone()); err != nil {
			log.Warn().Err(err).Msg("completion notification failed")
		}
	}
}

// recompute refreshes the all-pairs statistics and those of every pair that
// had a completion in this pass.
func (v *Verifier) recompute(ctx context.Context, completed []*domain.Signal) {
	if v.stats == nil {
		return
	}

	pairs := []string{""}
	seen := map[string]bool{}
	for _, s := range completed {
		if !seen[s.CurrencyPair] {
			seen[s.CurrencyPair] = true
			pairs = append(pairs, s.CurrencyPair)
		}
	}

	for _, pair := range pairs {
		if _, err := v.stats.Recompute(ctx, pair); err != nil {
			v.logger.Error().Err(err).Str("pair", pair).Msg("statistics recompute failed")
		}
	}
}

// Status returns a snapshot of the loop state.
func (v *Verifier) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := Status{Running: v.running, Passes: v.passes, LastReport: v.last}
	if v.last != nil {
		st.LastPassAt = v.last.StartedAt
	}
	return st
}

// Interval returns the poll interval.
func (v *Verifier) Interval() time.Duration {
	return v.interval
}
