package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"comma decimal with spaces and currency", "1 234,56 ₽", 1234.56},
		{"period decimal", "99.90", 99.9},
		{"single fractional digit", "12,5", 12.5},
		{"thousands only", "12.345", 12345},
		{"single comma before three digits", "1,234", 1234},
		{"single period before three digits", "1.234", 1234},
		{"several thousands groups", "1.234.567", 1234567},
		{"thousands and decimal", "1.234.567,89", 1234567.89},
		{"narrow no-break spaces", "2\u202f499\u00a0₽", 2499},
		{"plain integer", "759", 759},
		{"empty", "", 0},
		{"no digits", "₽", 0},
		{"only separators", ".,.", 0},
		{"trailing separator", "450.", 450},
		{"text around", "цена: 1 099 ₽ с WB Кошельком", 1099},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, NormalizePrice(tt.input), 0.0001)
		})
	}
}

func TestNormalizePriceSingleSeparatorTwoDigits(t *testing.T) {
	for _, sep := range []string{",", "."} {
		for _, tc := range []struct {
			text string
			want float64
		}{
			{"0" + sep + "99", 0.99},
			{"15" + sep + "5", 15.5},
			{"3000" + sep + "01", 3000.01},
		} {
			assert.InDelta(t, tc.want, NormalizePrice(tc.text), 0.0001, tc.text)
		}
	}
}
