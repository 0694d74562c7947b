package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsSubCentPrecision(t *testing.T) {
	_, err := Parse("10.005")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrArithmetic)

	m, err := Parse("10.00")
	require.NoError(t, err)
	require.Equal(t, "10.00", m.String())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("ten dollars")
	require.Error(t, err)
}

func TestAddSubExact(t *testing.T) {
	a := MustParse("0.10")
	sum := Zero()
	for i := 0; i < 10; i++ {
		sum = sum.Add(a)
	}
	require.True(t, sum.Equal(MustParse("1.00")))

	require.True(t, MustParse("500.00").Sub(MustParse("499.99")).Equal(MustParse("0.01")))
}

func TestMulPrecisionGuard(t *testing.T) {
	m := MustParse("10.01")
	_, err := m.Mul(decimal.RequireFromString("0.5"))
	require.ErrorIs(t, err, ErrArithmetic)

	doubled, err := m.Mul(decimal.NewFromInt(2))
	require.NoError(t, err)
	require.Equal(t, "20.02", doubled.String())
}

func TestIsZeroEpsilon(t *testing.T) {
	require.True(t, Zero().IsZero())
	require.True(t, FromCents(0).IsZero())
	require.False(t, MustParse("0.01").IsZero())
	require.False(t, MustParse("-0.01").IsZero())
}

func TestCovers(t *testing.T) {
	require.True(t, MustParse("500.00").Covers(MustParse("500.00")))
	require.True(t, MustParse("500.00").Covers(MustParse("499.99")))
	require.False(t, MustParse("499.98").Covers(MustParse("500.00")))
}

func TestMin(t *testing.T) {
	require.Equal(t, "150.00", Min(MustParse("150.00"), MustParse("300.00")).String())
	require.Equal(t, "150.00", Min(MustParse("300.00"), MustParse("150.00")).String())
}

func TestJSONRoundTrip(t *testing.T) {
	m := MustParse("1234.56")
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.Equal(t, `"1234.56"`, string(raw))

	var back Money
	require.NoError(t, json.Unmarshal(raw, &back))
	require.True(t, m.Equal(back))

	require.NoError(t, json.Unmarshal([]byte(`40.50`), &back))
	require.Equal(t, "40.50", back.String())

	require.Error(t, json.Unmarshal([]byte(`"12.345"`), &back))
}

func TestScan(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan("250.75"))
	require.Equal(t, "250.75", m.String())

	require.Error(t, m.Scan("0.001"))
}
