// Package money provides fixed-precision currency amounts for the AR ledger.
//
// Amounts carry exactly two fractional digits. Accumulation is exact decimal
// arithmetic; the 0.01 epsilon exists only for boundary comparisons such as
// paid-status qualification, never for sums.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every amount carries.
const Scale = 2

// ErrArithmetic indicates an operation would lose precision below Scale.
var ErrArithmetic = errors.New("money: precision loss below scale")

var epsilon = decimal.New(1, -Scale) // 0.01

// Money is an immutable currency amount with two fractional digits.
type Money struct {
	d decimal.Decimal
}

// Zero returns the zero amount.
func Zero() Money {
	return Money{d: decimal.Zero}
}

// FromDecimal converts a decimal into Money, failing when the value carries
// precision below Scale.
func FromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Truncate(Scale)) {
		return Money{}, fmt.Errorf("%w: %s", ErrArithmetic, d.String())
	}
	return Money{d: d}, nil
}

// Parse reads a decimal string such as "450.00".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for statically known literals; it panics on error.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -Scale)}
}

// Add returns m + o. Exact at fixed scale.
func (m Money) Add(o Money) Money {
	return Money{d: m.d.Add(o.d)}
}

// Sub returns m - o. Exact at fixed scale.
func (m Money) Sub(o Money) Money {
	return Money{d: m.d.Sub(o.d)}
}

// MulScalar returns m scaled by an integer factor.
func (m Money) MulScalar(n int64) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(n))}
}

// Mul returns m scaled by an arbitrary decimal factor and fails when the
// product cannot be represented at Scale without rounding.
func (m Money) Mul(factor decimal.Decimal) (Money, error) {
	return FromDecimal(m.d.Mul(factor))
}

// Cmp compares two amounts: -1 if m < o, 0 if equal, +1 if m > o.
func (m Money) Cmp(o Money) int {
	return m.d.Cmp(o.d)
}

// Equal reports exact equality.
func (m Money) Equal(o Money) bool {
	return m.d.Equal(o.d)
}

// LessThan reports m < o.
func (m Money) LessThan(o Money) bool {
	return m.d.LessThan(o.d)
}

// GreaterThan reports m > o.
func (m Money) GreaterThan(o Money) bool {
	return m.d.GreaterThan(o.d)
}

// IsNegative reports m < 0.
func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// IsPositive reports m > 0.
func (m Money) IsPositive() bool {
	return m.d.IsPositive()
}

// IsZero reports whether the amount is effectively zero, absorbing sub-cent
// residue within the display epsilon.
func (m Money) IsZero() bool {
	return m.d.Abs().LessThan(epsilon)
}

// Covers reports whether m settles target, treating a shortfall smaller than
// the epsilon as settled. Used for paid-status qualification only.
func (m Money) Covers(target Money) bool {
	return target.d.Sub(m.d).LessThan(epsilon)
}

// Min returns the smaller of the two amounts.
func Min(a, b Money) Money {
	if a.d.LessThan(b.d) {
		return a
	}
	return b
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// Float64 returns the closest float, for metrics and display only.
func (m Money) Float64() float64 {
	return m.d.InexactFloat64()
}

// String renders the amount with exactly Scale fractional digits.
func (m Money) String() string {
	return m.d.StringFixed(Scale)
}

// MarshalJSON encodes the amount as a fixed-scale JSON string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or bare number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer for numeric columns.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner for numeric columns.
func (m *Money) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("money: scan: %w", err)
	}
	parsed, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
