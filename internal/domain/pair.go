package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPair is returned for currency pairs not in BASE/QUOTE form.
var ErrInvalidPair = errors.New("invalid currency pair")

// SplitPair splits a pair such as "usd/jpy" into upper-case base and quote
// ISO codes. Both sides must be three ASCII letters.
func SplitPair(pair string) (string, string, error) {
	base, quote, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(pair)), "/")
	if !ok || !isCurrencyCode(base) || !isCurrencyCode(quote) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	return base, quote, nil
}

// NormalizePair returns pair in canonical "BASE/QUOTE" form.
func NormalizePair(pair string) (string, error) {
	base, quote, err := SplitPair(pair)
	if err != nil {
		return "", err
	}
	return base + "/" + quote, nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
