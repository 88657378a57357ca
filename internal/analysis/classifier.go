package analysis

import (
	"strings"

	"github.com/shopspring/decimal"

	"fx-signal-lab/internal/domain"
)

// DirectionalConfidence is assigned to every BUY or SELL classification.
const DirectionalConfidence = 0.8

// Keyword sets. Bullish is checked before bearish, so text matching both
// classifies as BUY.
var (
	bullishKeywords = []string{
		"強い上昇", "ブレイクアウト", "買いエントリー", "上昇トレンド", "買いシグナル",
		"strong uptrend", "breakout", "buy entry", "uptrend", "buy signal",
	}
	bearishKeywords = []string{
		"下落トレンド", "売りシグナル", "売りエントリー", "下降",
		"downtrend", "sell signal", "sell entry", "bearish reversal",
	}
	indecisionKeywords = []string{
		"様子見", "不明瞭", "レンジ",
		"wait and see", "unclear", "range-bound", "sideways",
	}
)

// Classification is the classifier output for one text.
type Classification struct {
	Action     domain.Action
	Confidence float64
	EntryPrice decimal.Decimal // zero when not found
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Indecisive bool // an indecision keyword decided NONE
}

// Classify decides the action from keyword presence and, for BUY/SELL, fills
// the price levels. It never fails: missing levels stay zero.
func Classify(text string) Classification {
	lower := strings.ToLower(text)

	var c Classification
	switch {
	case containsAny(lower, bullishKeywords):
		c.Action = domain.ActionBuy
	case containsAny(lower, bearishKeywords):
		c.Action = domain.ActionSell
	case containsAny(lower, indecisionKeywords):
		return Classification{Action: domain.ActionNone, Indecisive: true}
	default:
		return Classification{Action: domain.ActionNone}
	}

	c.Confidence = DirectionalConfidence

	levels := ExtractPriceLevels(text)
	c.EntryPrice = levels.Entry.Decimal
	c.StopLoss = levels.StopLoss.Decimal
	c.TakeProfit = levels.TakeProfit.Decimal
	return c
}

// Signal converts the classification into an unpersisted signal.
func (c Classification) Signal(pair string) *domain.Signal {
	return &domain.Signal{
		CurrencyPair: pair,
		Action:       c.Action,
		EntryPrice:   c.EntryPrice,
		StopLoss:     c.StopLoss,
		TakeProfit:   c.TakeProfit,
		Confidence:   c.Confidence,
	}
}

// Analyze classifies text for a currency pair and keeps the text on the signal.
func Analyze(pair, text string) *domain.Signal {
	s := Classify(text).Signal(pair)
	s.Analysis = text
	return s
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
