package service

import (
	"math"
	"strconv"
	"strings"
)

// formatNumber renders a float the way report text has always shown it: the
// shortest representation that round-trips, with at least one fractional digit.
func formatNumber(x float64) string {
	if x != 0 && math.Abs(x) < 1e-4 {
		return formatExponent(x)
	}
	s := strconv.FormatFloat(x, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// formatExponent renders very small magnitudes as "5e-05".
func formatExponent(x float64) string {
	s := strconv.FormatFloat(x, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if len(digits) < 2 {
		digits = strings.Repeat("0", 2-len(digits)) + digits
	}
	return mantissa + "e" + sign + digits
}

// formatScore prefixes non-negative T- and Z-scores with "+".
func formatScore(x float64) string {
	if x >= 0 {
		return "+" + formatNumber(x)
	}
	return formatNumber(x)
}

// roundTo rounds to the given number of decimal places using the correctly
// rounded decimal expansion of x, so 1.023-1.070 becomes -0.047.
func roundTo(x float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	if r == 0 {
		// drop negative zero
		return 0
	}
	return r
}
