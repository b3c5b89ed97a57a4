package recipes

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount reads an ingredient amount. Decimal commas are accepted, as are
// simple fractions ("1/2") and a leading number followed by text ("2 grandes",
// "1/2 taza"). Anything else, including empty input, is 0.
func ParseAmount(s string) float64 {
	if v, ok := parseNumber(s); ok {
		return v
	}
	if v, ok := parseLeadingNumber(s); ok {
		return v
	}
	return 0
}

// parseNumber only succeeds when the whole string is a number or fraction.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, false
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			return 0, false
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil || d == 0 {
			return 0, false
		}
		return finite(n / d)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(v)
}

func parseLeadingNumber(s string) (float64, bool) {
	v, _, ok := splitLeadingNumber(s)
	return v, ok
}

// splitLeadingNumber reads the number or fraction that starts s and returns
// it with the text after it, untouched.
func splitLeadingNumber(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	end := numberPrefix(s)
	if end == 0 {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s[:end], ",", "."), 64)
	if err != nil {
		return 0, "", false
	}
	if end < len(s) && s[end] == '/' {
		if dend := end + 1 + numberPrefix(s[end+1:]); dend > end+1 {
			d, err := strconv.ParseFloat(strings.ReplaceAll(s[end+1:dend], ",", "."), 64)
			if err == nil && d != 0 {
				v, end = v/d, dend
			}
		}
	}
	v, ok := finite(v)
	return v, s[end:], ok
}

// numberPrefix is the length of the decimal number at the start of s. Either
// a dot or a comma marks the decimals.
func numberPrefix(s string) int {
	end, seenSep := 0, false
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
		case (c == '.' || c == ',') && !seenSep:
			seenSep = true
		case c == '-' && end == 0:
		default:
			return end
		}
		end++
	}
	return end
}

func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatAmount renders v with at most two decimals and no trailing zeros.
func FormatAmount(v float64) string {
	v = math.Round(v*100) / 100
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
