package core

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in cents. Decimal text goes through shopspring/decimal
// so parsing never touches float64.
type Money struct {
	Cents int64
}

var (
	maxMoney = decimal.New(1<<62, -2)
	minMoney = maxMoney.Neg()
)

// ParseMoney parses a decimal amount using either dot (12.34) or comma
// (12,34) as separator and rounds half away from zero to cents.
//
//	ParseMoney("12.345") -> 1235
//	ParseMoney("-0,5")   -> -50
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ValidationError("parse money", "amount is required")
	}
	if strings.Count(s, ",") > 1 || (strings.Contains(s, ",") && strings.Contains(s, ".")) {
		return Money{}, ValidationError("parse money", "invalid amount %q", s)
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ValidationError("parse money", "invalid amount %q", s)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d to cents.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	d = d.Round(2)
	if d.GreaterThan(maxMoney) || d.LessThan(minMoney) {
		return Money{}, ValidationError("parse money", "amount %s out of range", d.String())
	}
	return Money{Cents: d.Shift(2).IntPart()}, nil
}

// MustMoney parses s and panics on failure. Test and fixture use only.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the exact decimal value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats with two fraction digits, e.g. "-12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Float64 is for ratios and spreadsheet cells, never for arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }
func (m Money) IsZero() bool      { return m.Cents == 0 }

func (m Money) Abs() Money {
	if m.Cents < 0 {
		return m.Neg()
	}
	return m
}

// Validate requires a strictly positive amount.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ValidationError("validate amount", "amount must be greater than zero")
	}
	return nil
}

// Percent returns m / of * 100, or 0 when of is zero.
func (m Money) Percent(of Money) float64 {
	if of.Cents == 0 {
		return 0
	}
	return float64(m.Cents) / float64(of.Cents) * 100
}

// MarshalJSON encodes as a JSON number with two fraction digits.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a decimal string.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = Money{}
		return nil
	}
	parsed, err := ParseMoney(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
