package allocation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/money"
)

func dues(pairs ...any) []InvoiceDue {
	out := make([]InvoiceDue, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, InvoiceDue{
			InvoiceID: int64(pairs[i].(int)),
			AmountDue: money.MustParse(pairs[i+1].(string)),
		})
	}
	return out
}

func TestAutoAllocateExactPayoff(t *testing.T) {
	proposal, err := AutoAllocate(money.MustParse("500.00"), dues(1, "500.00"))
	require.NoError(t, err)
	require.Len(t, proposal.Entries, 1)
	require.Equal(t, "500.00", proposal.Entries[0].Amount.String())
	require.Equal(t, "0.00", proposal.Remainder.String())
}

func TestAutoAllocateSplitAcrossTwoInvoices(t *testing.T) {
	proposal, err := AutoAllocate(money.MustParse("450.00"), dues(1, "300.00", 2, "200.00"))
	require.NoError(t, err)
	require.Len(t, proposal.Entries, 2)
	require.Equal(t, int64(1), proposal.Entries[0].InvoiceID)
	require.Equal(t, "300.00", proposal.Entries[0].Amount.String())
	require.Equal(t, int64(2), proposal.Entries[1].InvoiceID)
	require.Equal(t, "150.00", proposal.Entries[1].Amount.String())
	require.Equal(t, "0.00", proposal.Remainder.String())
}

func TestAutoAllocateReportsRemainder(t *testing.T) {
	proposal, err := AutoAllocate(money.MustParse("100.00"), dues(1, "40.00"))
	require.NoError(t, err)
	require.Len(t, proposal.Entries, 1)
	require.Equal(t, "40.00", proposal.Entries[0].Amount.String())
	require.Equal(t, "60.00", proposal.Remainder.String())
}

func TestAutoAllocateDropsUnreachedInvoices(t *testing.T) {
	proposal, err := AutoAllocate(money.MustParse("300.00"), dues(1, "300.00", 2, "200.00", 3, "100.00"))
	require.NoError(t, err)
	require.Len(t, proposal.Entries, 1)
	require.Equal(t, "0.00", proposal.Remainder.String())
}

func TestAutoAllocateSkipsSettledInvoices(t *testing.T) {
	proposal, err := AutoAllocate(money.MustParse("50.00"), dues(1, "0.00", 2, "80.00"))
	require.NoError(t, err)
	require.Len(t, proposal.Entries, 1)
	require.Equal(t, int64(2), proposal.Entries[0].InvoiceID)
}

func TestAutoAllocateDeterministic(t *testing.T) {
	input := dues(3, "120.00", 7, "75.50", 9, "410.00")
	amount := money.MustParse("333.33")

	first, err := AutoAllocate(amount, input)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := AutoAllocate(amount, input)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestAutoAllocateConservation(t *testing.T) {
	proposal, err := AutoAllocate(money.MustParse("777.77"), dues(1, "123.45", 2, "234.56", 3, "1000.00"))
	require.NoError(t, err)
	require.True(t, proposal.AllocatedTotal().Add(proposal.Remainder).Equal(money.MustParse("777.77")))
}

func TestAutoAllocateRejectsNonPositiveAmount(t *testing.T) {
	_, err := AutoAllocate(money.Zero(), dues(1, "100.00"))
	require.Error(t, err)
}

func TestValidateManualRejectsNegative(t *testing.T) {
	_, err := ValidateManual(money.MustParse("100.00"),
		[]Entry{{InvoiceID: 1, Amount: money.MustParse("-1.00")}},
		map[int64]money.Money{1: money.MustParse("100.00")})
	require.Error(t, err)
}

func TestValidateManualExceedsPayment(t *testing.T) {
	_, err := ValidateManual(money.MustParse("100.00"),
		[]Entry{
			{InvoiceID: 1, Amount: money.MustParse("80.00")},
			{InvoiceID: 2, Amount: money.MustParse("30.00")},
		},
		map[int64]money.Money{1: money.MustParse("100.00"), 2: money.MustParse("100.00")})
	require.ErrorIs(t, err, ErrAllocationExceedsPayment)

	var exceeds *AllocationExceedsPaymentError
	require.True(t, errors.As(err, &exceeds))
	require.Equal(t, "110.00", exceeds.Allocated.String())
}

func TestValidateManualOverAllocationPerInvoice(t *testing.T) {
	_, err := ValidateManual(money.MustParse("200.00"),
		[]Entry{{InvoiceID: 1, Amount: money.MustParse("150.00")}},
		map[int64]money.Money{1: money.MustParse("100.00")})
	require.ErrorIs(t, err, ledger.ErrOverAllocation)

	var over *ledger.OverAllocationError
	require.True(t, errors.As(err, &over))
	require.Equal(t, int64(1), over.InvoiceID)
	require.False(t, over.StaleRead)
}

func TestValidateManualUnknownInvoice(t *testing.T) {
	_, err := ValidateManual(money.MustParse("50.00"),
		[]Entry{{InvoiceID: 99, Amount: money.MustParse("50.00")}},
		map[int64]money.Money{})
	require.ErrorIs(t, err, ledger.ErrInvoiceNotFound)
}

func TestValidateManualUnderallocationAdvisory(t *testing.T) {
	report, err := ValidateManual(money.MustParse("100.00"),
		[]Entry{{InvoiceID: 1, Amount: money.MustParse("40.00")}},
		map[int64]money.Money{1: money.MustParse("60.00")})
	require.NoError(t, err)
	require.True(t, report.Underallocated)
	require.Equal(t, "60.00", report.Remainder.String())
}

func TestValidateManualAggregatesDuplicateInvoices(t *testing.T) {
	report, err := ValidateManual(money.MustParse("100.00"),
		[]Entry{
			{InvoiceID: 1, Amount: money.MustParse("30.00")},
			{InvoiceID: 1, Amount: money.MustParse("20.00")},
		},
		map[int64]money.Money{1: money.MustParse("50.00")})
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	require.Equal(t, "50.00", report.Entries[0].Amount.String())
	require.False(t, report.Underallocated)
}

func TestValidateManualFiltersZeroEntries(t *testing.T) {
	report, err := ValidateManual(money.MustParse("100.00"),
		[]Entry{
			{InvoiceID: 1, Amount: money.Zero()},
			{InvoiceID: 2, Amount: money.MustParse("100.00")},
		},
		map[int64]money.Money{2: money.MustParse("150.00")})
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	require.Equal(t, int64(2), report.Entries[0].InvoiceID)
}
