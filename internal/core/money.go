// Package core provides amount parsing and formatting utilities.
//
// Lead spend is tracked in whole currency units. Form input may carry
// thousands separators, which are stripped before parsing.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a non-negative integer string to an amount.
//
// Spaces, non-breaking spaces and underscores are accepted as thousands
// separators. Signs, fractions and empty input are rejected.
//
// Examples:
//   ParseAmount("1500") -> 1500, nil
//   ParseAmount("1 500") -> 1500, nil
//   ParseAmount("-1") -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	return parseNonNegative(s, ErrInvalidAmount)
}

// ParseLeadsCount parses a non-negative lead count.
func ParseLeadsCount(s string) (int64, error) {
	return parseNonNegative(s, ErrInvalidLeads)
}

func parseNonNegative(s string, invalid error) (int64, error) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '_' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return 0, invalid
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, invalid
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, invalid
	}
	return v, nil
}

// FormatAmount renders an amount with space thousands grouping,
// e.g. 1234567 -> "1 234 567".
func FormatAmount(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
