package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

func TestDeriveStatusUnpaid(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, 14)

	status := DeriveStatus(money.Zero(), money.MustParse("200.00"), due, now)
	require.Equal(t, StatusUnpaid, status)
}

func TestDeriveStatusOverdue(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, -1)

	status := DeriveStatus(money.Zero(), money.MustParse("200.00"), due, now)
	require.Equal(t, StatusOverdue, status)
}

func TestDeriveStatusPartialBeatsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, -30)

	status := DeriveStatus(money.MustParse("50.00"), money.MustParse("200.00"), due, now)
	require.Equal(t, StatusPartial, status)
}

func TestDeriveStatusPaid(t *testing.T) {
	now := time.Now()

	status := DeriveStatus(money.MustParse("500.00"), money.MustParse("500.00"), now, now)
	require.Equal(t, StatusPaid, status)

	// A full cent short is not paid.
	status = DeriveStatus(money.MustParse("499.99"), money.MustParse("500.00"), now, now)
	require.Equal(t, StatusPartial, status)
}

func TestDeriveStatusDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, -5)
	paid := money.MustParse("75.00")
	total := money.MustParse("300.00")

	first := DeriveStatus(paid, total, due, now)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, DeriveStatus(paid, total, due, now))
	}
}

func TestAmountDue(t *testing.T) {
	inv := Invoice{Total: money.MustParse("300.00"), AmountPaid: money.MustParse("120.50")}
	require.Equal(t, "179.50", inv.AmountDue().String())
}

func TestComputeAging(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	invoices := []Invoice{
		{Total: money.MustParse("100.00"), AmountPaid: money.Zero(), DueAt: asOf.AddDate(0, 0, 5)},
		{Total: money.MustParse("200.00"), AmountPaid: money.Zero(), DueAt: asOf.AddDate(0, 0, -20)},
		{Total: money.MustParse("300.00"), AmountPaid: money.MustParse("100.00"), DueAt: asOf.AddDate(0, 0, -50)},
		{Total: money.MustParse("400.00"), AmountPaid: money.MustParse("400.00"), DueAt: asOf.AddDate(0, 0, -80)},
	}

	bucket := ComputeAging(invoices, asOf)
	require.Equal(t, "100.00", bucket.Current.String())
	require.Equal(t, "200.00", bucket.Bucket30.String())
	require.Equal(t, "200.00", bucket.Bucket60.String())
	require.Equal(t, "0.00", bucket.Bucket90.String())
	require.Equal(t, "500.00", bucket.Total().String())
}
