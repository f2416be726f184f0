package utils

import "testing"

func TestFormatINR(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "₹0.00"},
		{100, "₹100.00"},
		{1000, "₹1,000.00"},
		{123456, "₹1,23,456.00"},
		{1234567, "₹12,34,567.00"},
		{12345678, "₹1,23,45,678.00"},
		{2847.50, "₹2,847.50"},
		{-1234.56, "-₹1,234.56"},
		{200000, "₹2,00,000.00"},
		{-0.001, "₹0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatINR(tt.input)
			if result != tt.expected {
				t.Errorf("FormatINR(%f) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatINRCompact(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{500, "₹500.00"},
		{100000, "₹1 L"},
		{1500000, "₹15 L"},
		{10000000, "₹1 Cr"},
		{25000000, "₹2.5 Cr"},
		{-250000, "-₹2.5 L"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatINRCompact(tt.input)
			if result != tt.expected {
				t.Errorf("FormatINRCompact(%f) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatPct(t *testing.T) {
	if got := FormatPct(2.456); got != "+2.46%" {
		t.Errorf("FormatPct(2.456) = %s", got)
	}
	if got := FormatPct(-1.5); got != "-1.50%" {
		t.Errorf("FormatPct(-1.5) = %s", got)
	}
	if got := FormatFraction(0.1834); got != "18.34%" {
		t.Errorf("FormatFraction(0.1834) = %s", got)
	}
}
