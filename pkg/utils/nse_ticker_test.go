package utils

import "testing"

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"RELIANCE", "RELIANCE"},
		{" reliance.ns ", "RELIANCE.NS"},
		{"$TCS", "TCS"},
		{"infy.bo", "INFY.BO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeSymbol(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToYFinanceTicker(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"RELIANCE", "RELIANCE.NS"},
		{"RELIANCE.NS", "RELIANCE.NS"},
		{"INFY.BO", "INFY.BO"},
		{"NIFTY 50", "^NSEI"},
		{"nifty", "^NSEI"},
		{"^NSEI", "^NSEI"},
		{"SENSEX", "^BSESN"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToYFinanceTicker(tt.input)
			if result != tt.expected {
				t.Errorf("ToYFinanceTicker(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestBaseTicker(t *testing.T) {
	if got := BaseTicker("tcs.ns"); got != "TCS" {
		t.Errorf("BaseTicker(tcs.ns) = %q", got)
	}
	if got := BaseTicker("INFY"); got != "INFY" {
		t.Errorf("BaseTicker(INFY) = %q", got)
	}
}

func TestCalendarWindow(t *testing.T) {
	if got := CalendarWindow(252); got != 395 {
		t.Errorf("CalendarWindow(252) = %d, want 395", got)
	}
	if got := CalendarWindow(0); got != 0 {
		t.Errorf("CalendarWindow(0) = %d, want 0", got)
	}
}
