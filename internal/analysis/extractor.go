// Package analysis turns free-form chart commentary into trading signals.
// Keyword lists and price patterns are matched literally; nothing here tries
// to interpret the prose beyond that.
package analysis

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// PriceLevels holds the levels found in a text. A field is invalid when no
// pattern matched it.
type PriceLevels struct {
	Entry      decimal.NullDecimal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
}

// number matches an unsigned decimal such as 145.50 or 1.0850.
const number = `(\d+(?:\.\d+)?)`

// Patterns are tried in order per field; the first pattern that matches wins,
// and within a pattern the first occurrence in the text wins.
var (
	entryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)entry(?:\s*price)?\s*[:：=]\s*` + number),
		regexp.MustCompile(`エントリー(?:価格|ポイント)?\s*(?:[:：=]|は)\s*` + number),
		regexp.MustCompile(number + `\s*(?:円)?\s*(?:付近)?で`),
		regexp.MustCompile(`(?i)(?:entry|enter|buy|sell)\s+(?:at|@)\s*` + number),
	}

	stopLossPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:stop[\s_-]?loss|\bSL\b|\bstop\b)(?:\s*price)?\s*[:：=]?\s*(?:at\s+)?` + number),
		regexp.MustCompile(`(?:ストップロス|ストップ|損切り|損切)(?:ライン|価格)?\s*(?:[:：=]|は)\s*` + number),
		regexp.MustCompile(number + `\s*(?:円)?\s*(?:を|が)?\s*(?:損切り|損切|ストップ)`),
	}

	takeProfitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:take[\s_-]?profit|target|\bTP\b)(?:\s*price)?\s*[:：=]?\s*(?:at\s+)?` + number),
		regexp.MustCompile(`(?:利益確定|利確|目標|ターゲット)(?:価格|値)?\s*(?:[:：=]|は)\s*` + number),
		regexp.MustCompile(number + `\s*(?:円)?\s*(?:を|が)?\s*(?:目標|ターゲット|利確)`),
	}
)

// ExtractPriceLevels scans text once per field, independently.
func ExtractPriceLevels(text string) PriceLevels {
	return PriceLevels{
		Entry:      firstMatch(text, entryPatterns),
		StopLoss:   firstMatch(text, stopLossPatterns),
		TakeProfit: firstMatch(text, takeProfitPatterns),
	}
}

// firstMatch returns the number captured by the first matching pattern.
func firstMatch(text string, patterns []*regexp.Regexp) decimal.NullDecimal {
	for _, p := range patterns {
		m := p.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		v, err := decimal.NewFromString(m[1])
		if err != nil {
			continue
		}
		return decimal.NewNullDecimal(v)
	}
	return decimal.NullDecimal{}
}
