package domain

import (
	"math/big"
	"testing"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int: " + s)
	}
	return v
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c string
		want    string
	}{
		{"exact", "1000", "3000", "10000", "300"},
		{"truncates", "10", "1", "3", "3"},
		{"zero divisor", "10", "10", "0", "0"},
		{"large", "300000000", "1000000000000000000", "468400", "640478223740392826643"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MulDiv(bi(tt.a), bi(tt.b), bi(tt.c))
			if got.Cmp(bi(tt.want)) != 0 {
				t.Errorf("MulDiv(%s, %s, %s) = %s, want %s", tt.a, tt.b, tt.c, got, tt.want)
			}
		})
	}
}

func TestRescale(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		from, to uint8
		want     string
	}{
		{"same", "123", 6, 6, "123"},
		{"up", "123", 6, 18, "123000000000000"},
		{"down truncates", "1234567", 8, 6, "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rescale(bi(tt.value), tt.from, tt.to)
			if got.Cmp(bi(tt.want)) != 0 {
				t.Errorf("Rescale(%s, %d, %d) = %s, want %s", tt.value, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestAssetValue(t *testing.T) {
	// 400 tokens with 18 decimals at $1 (6 decimals) = 400e6
	got := AssetValue(bi("400000000000000000000"), bi("1000000"), 18)
	if got.Cmp(bi("400000000")) != 0 {
		t.Errorf("AssetValue = %s, want 400000000", got)
	}
}

func TestWithinTolerance(t *testing.T) {
	tests := []struct {
		name      string
		actual    string
		expected  string
		divisions int
		want      bool
	}{
		{"exact", "1000000", "1000000", 3, true},
		{"rounding slack only", "997", "1000", 3, true},
		{"beyond slack", "995", "1000", 3, false},
		{"10 bps under", "999000", "1000000", 0, true},
		{"11 bps under", "998900", "1000000", 0, false},
		{"10 bps over", "1001000", "1000000", 0, true},
		{"11 bps over", "1001100", "1000000", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinTolerance(bi(tt.actual), bi(tt.expected), tt.divisions); got != tt.want {
				t.Errorf("WithinTolerance(%s, %s, %d) = %v, want %v", tt.actual, tt.expected, tt.divisions, got, tt.want)
			}
		})
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		decimals uint8
		want     string
	}{
		{"usdc", bi("1500000"), 6, "1.5"},
		{"whole", bi("1000000000000000000"), 18, "1"},
		{"zero decimals", bi("42"), 0, "42"},
		{"nil", nil, 6, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatUnits(tt.amount, tt.decimals); got != tt.want {
				t.Errorf("FormatUnits = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		decimals uint8
		want     string
	}{
		{"integer", "1000", 6, "1000000000"},
		{"fraction", "0.4684", 6, "468400"},
		{"truncates", "1.23456789", 6, "1234567"},
		{"empty", "", 6, "0"},
		{"invalid", "abc", 6, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseUnits(tt.value, tt.decimals)
			if got.Cmp(bi(tt.want)) != 0 {
				t.Errorf("ParseUnits(%q, %d) = %s, want %s", tt.value, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(bi("2000"), bi("1000"), 6).String(); got != "2" {
		t.Errorf("Ratio = %s, want 2", got)
	}
	if got := Ratio(bi("1"), bi("0"), 6); !got.IsZero() {
		t.Errorf("Ratio by zero = %s, want 0", got)
	}
}
