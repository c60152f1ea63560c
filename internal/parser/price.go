package parser

import (
	"strconv"
	"strings"
)

// NormalizePrice converts noisy currency text such as "1 234,56 ₽" into a
// number. Comma and period are both separators; the last one is the decimal
// point only when at most two digits follow it. Anything unparseable is 0.
func NormalizePrice(text string) float64 {
	if text == "" {
		return 0
	}

	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}

	cleaned := b.String()
	parts := strings.Split(cleaned, ".")
	if len(parts) > 1 {
		last := parts[len(parts)-1]
		head := strings.Join(parts[:len(parts)-1], "")
		if len(last) <= 2 {
			cleaned = head + "." + last
		} else {
			cleaned = head + last
		}
	}

	if cleaned == "" || cleaned == "." {
		return 0
	}

	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}
