package helpers

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatPriceUS(t *testing.T) {
	tests := []struct {
		in     string
		escape bool
		want   string
	}{
		{"148.5", false, "148.50"},
		{"1234.567", false, "1,234.57"},
		{"65000.5", true, "65,000\\.50"},
		{"250000.4", false, "250,000"},
		{"0.123", false, "0.123000"},
		{"0.000001234", false, "0.00000123"},
		{"-1.5", true, "\\-1\\.50"},
		{"0", false, "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := FormatPriceUS(decimal.RequireFromString(tt.in), tt.escape); got != tt.want {
				t.Errorf("FormatPriceUS(%s) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(decimal.RequireFromString("-1.0000"), false); got != "-1.00%" {
		t.Errorf("got %q", got)
	}
	if got := FormatPercent(decimal.RequireFromString("2.3456"), true); got != "\\+2\\.35%" {
		t.Errorf("got %q", got)
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	if got := EscapeMarkdownV2(`BRK.B (note) \ok!`); got != `BRK\.B \(note\) \\ok\!` {
		t.Errorf("got %q", got)
	}
}

func TestFormatVolume(t *testing.T) {
	if got := FormatVolume(decimal.RequireFromString("73488997.6")); got != "73,488,997" {
		t.Errorf("got %q", got)
	}
}
