package currency

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToLowestUnit(t *testing.T) {
	tests := []struct {
		amount string
		code   string
		want   int64
	}{
		{"12.345", "GBP", 1235},
		{"12.344", "GBP", 1234},
		{"-12.345", "GBP", -1235},
		{"0.1", "usd", 10},
		{"0.00000001", "BTC", 1},
		{"1500", "JPY", 1500},
		{"1.2345", "KWD", 1235},
		{"5", "XXX", 500},
	}

	for _, tt := range tests {
		t.Run(tt.amount+"_"+tt.code, func(t *testing.T) {
			got := ToLowestUnit(decimal.RequireFromString(tt.amount), tt.code)
			if got != tt.want {
				t.Errorf("ToLowestUnit(%s, %s) = %d, want %d", tt.amount, tt.code, got, tt.want)
			}
		})
	}
}

func TestFromLowestUnit(t *testing.T) {
	tests := []struct {
		v    int64
		code string
		want string
	}{
		{1235, "GBP", "12.35"},
		{-5, "EUR", "-0.05"},
		{0, "GBP", "0.00"},
		{123456789, "BTC", "1.23456789"},
		{1500, "JPY", "1500"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FromLowestUnit(tt.v, tt.code); got != tt.want {
				t.Errorf("FromLowestUnit(%d, %s) = %q, want %q", tt.v, tt.code, got, tt.want)
			}
		})
	}
}

func TestRoundTripWithinTolerance(t *testing.T) {
	amounts := []string{"0", "0.01", "19.99", "-250.505", "1000000.125", "3.14159"}
	codes := []string{"GBP", "BTC", "JPY", "KWD"}

	for _, code := range codes {
		tolerance := decimal.New(1, -Scale(code))
		for _, a := range amounts {
			in := decimal.RequireFromString(a)
			back := decimal.RequireFromString(FromLowestUnit(ToLowestUnit(in, code), code))
			if back.Sub(in).Abs().GreaterThan(tolerance) {
				t.Errorf("%s %s: round trip gave %s", code, a, back)
			}
		}
	}
}

func TestParseToLowestUnit(t *testing.T) {
	got, err := ParseToLowestUnit(" -42.10 ", "GBP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != -4210 {
		t.Errorf("got %d, want -4210", got)
	}

	if _, err := ParseToLowestUnit("twelve", "GBP"); err == nil {
		t.Error("expected error for non-numeric input")
	}
}

func TestTable_Extensible(t *testing.T) {
	table := Table{"ETH": 18}
	if got := table.Scale("eth"); got != 18 {
		t.Errorf("Scale(eth) = %d, want 18", got)
	}
	if got := table.Scale("GBP"); got != DefaultScale {
		t.Errorf("Scale(GBP) = %d, want %d", got, DefaultScale)
	}
}
