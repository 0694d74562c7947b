package payment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

func validHeader() HeaderInput {
	return HeaderInput{
		CustomerID: 42,
		Amount:     "450.00",
		PaidAt:     "2026-03-01",
		Method:     "BANK_TRANSFER",
		Reference:  "wire-9921",
	}
}

func TestNewDraftValid(t *testing.T) {
	draft, err := NewDraft(validHeader())
	require.NoError(t, err)
	require.Equal(t, int64(42), draft.CustomerID)
	require.Equal(t, "450.00", draft.Amount.String())
	require.Equal(t, MethodBankTransfer, draft.Method)
	require.Equal(t, 2026, draft.PaidAt.Year())
}

func TestNewDraftCollectsAllFieldErrors(t *testing.T) {
	_, err := NewDraft(HeaderInput{
		CustomerID: 0,
		Amount:     "-10",
		PaidAt:     "yesterday",
		Method:     "BARTER",
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidHeader)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "customerId")
	require.Contains(t, verr.Fields, "amount")
	require.Contains(t, verr.Fields, "paymentDate")
	require.Contains(t, verr.Fields, "paymentMethod")
}

func TestNewDraftRejectsSubCentAmount(t *testing.T) {
	header := validHeader()
	header.Amount = "10.005"
	_, err := NewDraft(header)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "amount")
}

func TestNewDraftRejectsZeroAmount(t *testing.T) {
	header := validHeader()
	header.Amount = "0.00"
	_, err := NewDraft(header)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "amount")
}

func TestAddAllocationCandidateGuardsCumulativeOverflow(t *testing.T) {
	draft, err := NewDraft(validHeader())
	require.NoError(t, err)

	require.NoError(t, draft.AddAllocationCandidate(1, money.MustParse("300.00")))
	require.NoError(t, draft.AddAllocationCandidate(2, money.MustParse("150.00")))

	err = draft.AddAllocationCandidate(3, money.MustParse("0.01"))
	require.ErrorIs(t, err, ErrAllocationOverflow)

	var overflow *AllocationOverflowError
	require.True(t, errors.As(err, &overflow))
	require.Equal(t, int64(3), overflow.InvoiceID)
	require.Equal(t, "0.00", overflow.Available.String())

	require.Len(t, draft.Candidates(), 2)
	require.Equal(t, "0.00", draft.Unallocated().String())
}

func TestAddAllocationCandidateRejectsNegative(t *testing.T) {
	draft, err := NewDraft(validHeader())
	require.NoError(t, err)
	require.Error(t, draft.AddAllocationCandidate(1, money.MustParse("-5.00")))
}

func TestDraftUnallocatedRemainder(t *testing.T) {
	draft, err := NewDraft(validHeader())
	require.NoError(t, err)
	require.NoError(t, draft.AddAllocationCandidate(1, money.MustParse("100.00")))
	require.Equal(t, "350.00", draft.Unallocated().String())
}

func TestPaymentAllocatedTotals(t *testing.T) {
	p := Payment{
		Amount: money.MustParse("500.00"),
		Allocations: []Allocation{
			{InvoiceID: 1, Amount: money.MustParse("300.00")},
			{InvoiceID: 2, Amount: money.MustParse("150.00")},
		},
	}
	require.Equal(t, "450.00", p.AllocatedTotal().String())
	require.Equal(t, "50.00", p.Unallocated().String())
}
