// Package currency converts between decimal amounts and integer amounts in a
// currency's lowest common unit (cents, satoshi, ...).
package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultScale is used for any currency missing from the table.
const DefaultScale int32 = 2

// Table maps an upper-case currency code to its number of decimal places.
type Table map[string]int32

// Default follows ISO 4217 minor units for the exceptions and adds BTC in
// satoshi.
var Default = Table{
	"BTC": 8,
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

// Scale returns the decimal places for code.
func (t Table) Scale(code string) int32 {
	if s, ok := t[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return s
	}
	return DefaultScale
}

// ToLowestUnit converts amount to an integer count of the lowest unit,
// rounding half away from zero (12.345 -> 1235 at scale 2).
func (t Table) ToLowestUnit(amount decimal.Decimal, code string) int64 {
	return amount.Shift(t.Scale(code)).Round(0).IntPart()
}

// FromLowestUnit renders v with exactly Scale(code) decimal places.
func (t Table) FromLowestUnit(v int64, code string) string {
	return t.Decimal(v, code).StringFixed(t.Scale(code))
}

// Decimal converts v back to a decimal amount.
func (t Table) Decimal(v int64, code string) decimal.Decimal {
	return decimal.New(v, -t.Scale(code))
}

// Scale returns the decimal places for code in the Default table.
func Scale(code string) int32 {
	return Default.Scale(code)
}

// ToLowestUnit converts with the Default table.
func ToLowestUnit(amount decimal.Decimal, code string) int64 {
	return Default.ToLowestUnit(amount, code)
}

// FromLowestUnit renders with the Default table.
func FromLowestUnit(v int64, code string) string {
	return Default.FromLowestUnit(v, code)
}

// Decimal converts with the Default table.
func Decimal(v int64, code string) decimal.Decimal {
	return Default.Decimal(v, code)
}

// ParseToLowestUnit parses a decimal string such as "-12.30".
func ParseToLowestUnit(s, code string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("ParseToLowestUnit: parsing %q: %w", s, err)
	}
	return ToLowestUnit(d, code), nil
}
