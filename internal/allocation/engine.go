// Package allocation turns a payment amount and a set of target invoices
// into an invariant-respecting list of allocations. Pure and deterministic;
// it never touches persisted state.
package allocation

import (
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/money"
)

// InvoiceDue is the slice of invoice state the engine needs.
type InvoiceDue struct {
	InvoiceID int64
	AmountDue money.Money
}

// Entry binds an amount to one invoice.
type Entry struct {
	InvoiceID int64       `json:"invoiceId"`
	Amount    money.Money `json:"amount"`
}

// Proposal is the outcome of an allocation run: strictly-positive entries
// plus the remainder left unapplied. The remainder is reported, never
// silently discarded and never forced onto an invoice beyond its due amount.
type Proposal struct {
	Entries   []Entry
	Remainder money.Money
}

// AllocatedTotal sums the proposal's entries.
func (p Proposal) AllocatedTotal() money.Money {
	total := money.Zero()
	for _, e := range p.Entries {
		total = total.Add(e.Amount)
	}
	return total
}

// ErrAllocationExceedsPayment is the category for manual entries summing to
// more than the payment amount. A hard error: it would imply paying invoices
// with money the customer did not send.
var ErrAllocationExceedsPayment = errors.New("allocation: entries exceed payment amount")

// AllocationExceedsPaymentError carries the offending totals.
type AllocationExceedsPaymentError struct {
	Allocated money.Money
	Payment   money.Money
}

func (e *AllocationExceedsPaymentError) Error() string {
	return fmt.Sprintf("allocation: entries total %s exceeds payment amount %s", e.Allocated, e.Payment)
}

// Is lets errors.Is(err, ErrAllocationExceedsPayment) match.
func (e *AllocationExceedsPaymentError) Is(target error) bool {
	return target == ErrAllocationExceedsPayment
}

// AutoAllocate distributes amount across invoices greedily in the order
// given, which callers supply oldest first (ascending invoice ID when no
// created date exists). Invoices not reached once the amount is exhausted
// are dropped; zero allocations are never emitted.
func AutoAllocate(amount money.Money, invoices []InvoiceDue) (Proposal, error) {
	if !amount.IsPositive() {
		return Proposal{}, fmt.Errorf("allocation: amount must be positive, got %s", amount)
	}

	remaining := amount
	var entries []Entry
	for _, inv := range invoices {
		if remaining.IsZero() {
			break
		}
		if !inv.AmountDue.IsPositive() {
			continue
		}
		alloc := money.Min(remaining, inv.AmountDue)
		entries = append(entries, Entry{InvoiceID: inv.InvoiceID, Amount: alloc})
		remaining = remaining.Sub(alloc)
	}
	return Proposal{Entries: entries, Remainder: remaining}, nil
}

// ManualReport is the validated outcome of caller-supplied entries. Entries
// targeting the same invoice are aggregated. Underallocated is advisory, not
// an error: the remainder is simply unapplied.
type ManualReport struct {
	Entries        []Entry
	Remainder      money.Money
	Underallocated bool
}

// ValidateManual checks caller-supplied entries against the payment amount
// and each target invoice's current amount due. The per-invoice check is a
// fail-fast copy of the ledger's own commit-time guard.
func ValidateManual(paymentAmount money.Money, entries []Entry, dues map[int64]money.Money) (ManualReport, error) {
	total := money.Zero()
	perInvoice := map[int64]money.Money{}
	var order []int64

	for _, e := range entries {
		if e.Amount.IsNegative() {
			return ManualReport{}, fmt.Errorf("allocation: negative amount %s for invoice %d", e.Amount, e.InvoiceID)
		}
		if e.Amount.IsZero() {
			// Zero candidates are filtered, not persisted.
			continue
		}
		if _, seen := perInvoice[e.InvoiceID]; !seen {
			order = append(order, e.InvoiceID)
		}
		perInvoice[e.InvoiceID] = perInvoice[e.InvoiceID].Add(e.Amount)
		total = total.Add(e.Amount)
	}

	if total.GreaterThan(paymentAmount) {
		return ManualReport{}, &AllocationExceedsPaymentError{Allocated: total, Payment: paymentAmount}
	}

	aggregated := make([]Entry, 0, len(order))
	for _, invoiceID := range order {
		amount := perInvoice[invoiceID]
		due, ok := dues[invoiceID]
		if !ok {
			return ManualReport{}, fmt.Errorf("%w: invoice %d", ledger.ErrInvoiceNotFound, invoiceID)
		}
		if amount.GreaterThan(due) {
			return ManualReport{}, &ledger.OverAllocationError{
				InvoiceID: invoiceID,
				Requested: amount,
				Due:       due,
			}
		}
		aggregated = append(aggregated, Entry{InvoiceID: invoiceID, Amount: amount})
	}

	remainder := paymentAmount.Sub(total)
	return ManualReport{
		Entries:        aggregated,
		Remainder:      remainder,
		Underallocated: remainder.IsPositive(),
	}, nil
}
