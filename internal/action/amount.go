// Package action validates extracted candidates against the closed action
// taxonomy and normalizes their parameters.
package action

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount indicates an amount that could not be normalized to a
// non-negative number.
var ErrInvalidAmount = errors.New("invalid amount")

// Shorthand multipliers accepted after the numeric part. "tr" is the
// Vietnamese triệu (million).
var multipliers = map[string]int64{
	"k":  1_000,
	"tr": 1_000_000,
	"m":  1_000_000,
	"b":  1_000_000_000,
}

// ParseAmount normalizes user- and LLM-supplied amount spellings to a
// decimal: "120k" -> 120000, "1.5m" -> 1500000, "52,000" -> 52000,
// "1.234.567,89" -> 1234567.89. The result must be non-negative.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	// Strip currency symbols and spacing
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', '₫', ' ', '_', ' ':
			return -1
		}
		return r
	}, s)

	multiplier := int64(1)
	for _, suffix := range []string{"tr", "k", "m", "b"} {
		if strings.HasSuffix(s, suffix) {
			multiplier = multipliers[suffix]
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}

	s = normalizeSeparators(s)
	if s == "" || s == "-" || s == "." {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, raw)
	}

	if multiplier != 1 {
		d = d.Mul(decimal.NewFromInt(multiplier))
	}
	return d, nil
}

// normalizeSeparators resolves locale-dependent thousands and decimal
// separators. When both "," and "." appear, the rightmost one is the decimal
// separator. A lone separator repeated, or followed by exactly three digits
// at the end of an integer-looking number, is treated as a thousands grouping.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// European: 1.234.567,89
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// US: 1,234,567.89
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if isThousandsGrouping(s, ',') {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
		// A single dot stays a decimal point: "52.5" is far more common in
		// model output than a bare European "52.000".
	}
	return s
}

// isThousandsGrouping reports whether every group after the first separator
// occurrence has exactly three digits, e.g. "52,000" or "1,234,567".
func isThousandsGrouping(s string, sep rune) bool {
	groups := strings.Split(s, string(sep))
	if len(groups) < 2 {
		return false
	}
	for i, g := range groups {
		if i == 0 {
			if g == "" || len(g) > 3 {
				return false
			}
			continue
		}
		if len(g) != 3 {
			return false
		}
	}
	return true
}
