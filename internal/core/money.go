// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents. Parsing and display go through
// shopspring/decimal so no float rounding happens between the two.
package core

import (
	"bytes"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	dateLayout   = "2006-01-02"
	usDateLayout = "1/2/2006"
)

// maxCents keeps parsed values well inside int64 after summing.
var maxCents = decimal.New(1, 15)

// ParseAmount converts a decimal string to signed cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half away from zero on the third decimal place. Zero is a valid
// result here; callers that need a non-zero amount check it themselves.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234
//	ParseAmount("-12,34") -> -1234
//	ParseAmount("12.345") -> 1235
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return FromDecimal(d)
}

// FromDecimal rounds d to cents.
func FromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(2).Round(0)
	if cents.Abs().GreaterThanOrEqual(maxCents) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Units builds a Money from whole currency units.
func Units(n int64) Money {
	return Money{Cents: n * 100}
}

// Decimal returns the exact decimal value in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats with exactly two decimals, e.g. "-12.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Display prefixes the currency symbol after the sign: "-$12.50".
func (m Money) Display(symbol string) string {
	if m.IsNegative() {
		return "-" + symbol + m.Abs().String()
	}
	return symbol + m.String()
}

// Float returns the value as float64 for display purposes only.
func (m Money) Float() float64 {
	return m.Decimal().InexactFloat64()
}

// MarshalJSON writes a bare JSON number such as -20.5.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts numbers and quoted numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return ErrInvalidAmount
	}
	v, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseDate reads YYYY-MM-DD, falling back to the en-US M/D/YYYY form
// that older ledgers were saved with.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, usDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, ErrInvalidDate
}

// String formats as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// USString formats as M/D/YYYY.
func (d Date) USString() string {
	return d.Format(usDateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
