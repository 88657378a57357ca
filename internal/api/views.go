package api

import (
	"time"

	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/analysis"
	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/verification"
)

// SignalView is the JSON form of a signal. Decimals are strings.
type SignalView struct {
	ID            string              `json:"id"`
	CreatedAt     time.Time           `json:"created_at"`
	CurrencyPair  string              `json:"currency_pair"`
	Action        string              `json:"action"`
	EntryPrice    decimal.Decimal     `json:"entry_price"`
	StopLoss      decimal.Decimal     `json:"stop_loss"`
	TakeProfit    decimal.Decimal     `json:"take_profit"`
	Confidence    float64             `json:"confidence"`
	Status        string              `json:"status"`
	Result        *string             `json:"result"`
	ActualExit    decimal.NullDecimal `json:"actual_exit"`
	PnL           decimal.NullDecimal `json:"pnl"`
	PnLPercentage decimal.NullDecimal `json:"pnl_percentage"`
	CompletedAt   *time.Time          `json:"completed_at"`
	LastPrice     decimal.NullDecimal `json:"last_price,omitempty"`
	LastCheckedAt *time.Time          `json:"last_checked_at,omitempty"`
	Analysis      string              `json:"analysis,omitempty"`
}

func newSignalView(s *domain.Signal) SignalView {
	v := SignalView{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		CurrencyPair:  s.CurrencyPair,
		Action:        string(s.Action),
		EntryPrice:    s.EntryPrice,
		StopLoss:      s.StopLoss,
		TakeProfit:    s.TakeProfit,
		Confidence:    s.Confidence,
		Status:        string(s.Status),
		ActualExit:    s.ActualExit,
		PnL:           s.PnL,
		PnLPercentage: s.PnLPercentage,
		CompletedAt:   s.CompletedAt,
		LastPrice:     s.LastPrice,
		LastCheckedAt: s.LastCheckedAt,
		Analysis:      s.Analysis,
	}
	if s.Result != "" {
		r := string(s.Result)
		v.Result = &r
	}
	return v
}

// TaskView is the JSON form of a verification task.
type TaskView struct {
	VerifyAt      time.Time  `json:"verify_at"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
}

func newTaskView(t *domain.VerificationTask) *TaskView {
	if t == nil {
		return nil
	}
	return &TaskView{
		VerifyAt:      t.VerifyAt,
		Status:        string(t.Status),
		Attempts:      t.Attempts,
		LastAttemptAt: t.LastAttemptAt,
	}
}

// ClassificationView is the JSON form of a classifier result.
type ClassificationView struct {
	Action     string          `json:"action"`
	Confidence float64         `json:"confidence"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Indecisive bool            `json:"indecisive"`
}

func newClassificationView(c analysis.Classification) ClassificationView {
	return ClassificationView{
		Action:     string(c.Action),
		Confidence: c.Confidence,
		EntryPrice: c.EntryPrice,
		StopLoss:   c.StopLoss,
		TakeProfit: c.TakeProfit,
		Indecisive: c.Indecisive,
	}
}

// StatisticsView is the JSON form of a statistics snapshot.
type StatisticsView struct {
	CurrencyPair            string          `json:"currency_pair"`
	TotalTrades             int             `json:"total_trades"`
	WinningTrades           int             `json:"winning_trades"`
	LosingTrades            int             `json:"losing_trades"`
	WinRate                 decimal.Decimal `json:"win_rate"`
	AverageWin              decimal.Decimal `json:"average_win"`
	AverageLoss             decimal.Decimal `json:"average_loss"`
	ExpectedValue           decimal.Decimal `json:"expected_value"`
	ExpectedValuePercentage decimal.Decimal `json:"expected_value_percentage"`
	RiskRewardRatio         decimal.Decimal `json:"risk_reward_ratio"`
	ProfitFactor            decimal.Decimal `json:"profit_factor"`
	TotalPnL                decimal.Decimal `json:"total_pnl"`
	MaxDrawdown             decimal.Decimal `json:"max_drawdown"`
	MaxConsecutiveLosses    int             `json:"max_consecutive_losses"`
	LastUpdated             *time.Time      `json:"last_updated"`
}

func newStatisticsView(st *domain.PerformanceStatistics) StatisticsView {
	v := StatisticsView{
		CurrencyPair:            st.CurrencyPair,
		TotalTrades:             st.TotalTrades,
		WinningTrades:           st.WinningTrades,
		LosingTrades:            st.LosingTrades,
		WinRate:                 st.WinRate,
		AverageWin:              st.AverageWin,
		AverageLoss:             st.AverageLoss,
		ExpectedValue:           st.ExpectedValue,
		ExpectedValuePercentage: st.ExpectedValuePercentage,
		RiskRewardRatio:         st.RiskRewardRatio,
		ProfitFactor:            st.ProfitFactor,
		TotalPnL:                st.TotalPnL,
		MaxDrawdown:             st.MaxDrawdown,
		MaxConsecutiveLosses:    st.MaxConsecutiveLosses,
	}
	if !st.LastUpdated.IsZero() {
		t := st.LastUpdated
		v.LastUpdated = &t
	}
	return v
}

// PassView is the JSON form of a verification pass report.
type PassView struct {
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Due        int       `json:"due"`
	Resolved   int       `json:"resolved"`
	Open       int       `json:"open"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
}

func newPassView(r *verification.PassReport) *PassView {
	if r == nil {
		return nil
	}
	return &PassView{
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Due:        r.Due,
		Resolved:   r.Resolved,
		Open:       r.Open,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
	}
}
