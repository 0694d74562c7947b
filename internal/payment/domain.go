// Package payment owns the payment header, its validation boundary, and the
// allocation candidates proposed against it before commit.
package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

// Method enumerates accepted payment methods.
type Method string

const (
	MethodCash         Method = "CASH"
	MethodCheque       Method = "CHEQUE"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodCreditCard   Method = "CREDIT_CARD"
	MethodOther        Method = "OTHER"
)

// Status enumerates payment lifecycle states. A payment persisted together
// with its allocations is COMPLETED.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Payment model. Amount is fixed at creation; allocations are owned by the
// payment and never outlive it.
type Payment struct {
	ID         int64
	Number     string
	CustomerID int64
	Amount     money.Money
	PaidAt     time.Time
	Method     Method
	Reference  string
	Notes      string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Allocations []Allocation
}

// Allocation binds part of a payment's amount to one invoice. Immutable once
// persisted; corrections happen by reversal.
type Allocation struct {
	ID        int64
	PaymentID int64
	InvoiceID int64
	Amount    money.Money
	CreatedAt time.Time
}

// AllocatedTotal sums the payment's persisted allocations.
func (p Payment) AllocatedTotal() money.Money {
	total := money.Zero()
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// Unallocated returns the portion of the payment not applied to any invoice.
func (p Payment) Unallocated() money.Money {
	return p.Amount.Sub(p.AllocatedTotal())
}

// ErrAllocationOverflow is the category for cumulative candidates exceeding
// the payment amount while a draft is being built.
var ErrAllocationOverflow = errors.New("payment: allocations exceed payment amount")

// AllocationOverflowError reports the overflowing candidate.
type AllocationOverflowError struct {
	InvoiceID int64
	Attempted money.Money
	Available money.Money
}

func (e *AllocationOverflowError) Error() string {
	return fmt.Sprintf("payment: allocating %s to invoice %d exceeds remaining payment amount %s",
		e.Attempted, e.InvoiceID, e.Available)
}

// Is lets errors.Is(err, ErrAllocationOverflow) match.
func (e *AllocationOverflowError) Is(target error) bool {
	return target == ErrAllocationOverflow
}
