// Package utils holds small formatting and calendar helpers shared by the
// CLI, the API and the analytics services.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatINR formats an amount in Indian Rupee grouping (₹12,34,567.89):
// the last three digits, then groups of two.
func FormatINR(amount float64) string {
	negative := amount < 0
	paise := int64(math.Round(math.Abs(amount) * 100))

	formatted := fmt.Sprintf("%s.%02d", groupIndian(paise/100), paise%100)
	if negative && paise != 0 {
		return "-₹" + formatted
	}
	return "₹" + formatted
}

// FormatINRCompact formats an amount in lakhs/crores notation,
// e.g. 1500000 → "₹15 L", 25000000 → "₹2.5 Cr".
func FormatINRCompact(amount float64) string {
	prefix := "₹"
	if amount < 0 {
		prefix = "-₹"
	}
	amount = math.Abs(amount)

	switch {
	case amount >= 1e7:
		return prefix + trimDecimals(amount/1e7) + " Cr"
	case amount >= 1e5:
		return prefix + trimDecimals(amount/1e5) + " L"
	default:
		return fmt.Sprintf("%s%.2f", prefix, amount)
	}
}

// FormatPct formats a percentage with an explicit sign: 2.45 → "+2.45%".
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatFraction formats a fraction as a percentage: 0.1834 → "18.34%".
func FormatFraction(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

func groupIndian(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	head, tail := s[:len(s)-3], s[len(s)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(groups, ",") + "," + tail
}

func trimDecimals(n float64) string {
	s := fmt.Sprintf("%.2f", n)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
