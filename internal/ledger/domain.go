// Package ledger owns invoice balances and the single mutation point used by
// settlement.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

// InvoiceStatus enumerates invoice settlement states.
type InvoiceStatus string

const (
	StatusUnpaid  InvoiceStatus = "UNPAID"
	StatusPartial InvoiceStatus = "PARTIAL"
	StatusPaid    InvoiceStatus = "PAID"
	StatusOverdue InvoiceStatus = "OVERDUE"
)

// Invoice model. AmountDue is always derived from Total and AmountPaid.
type Invoice struct {
	ID         int64
	Number     string
	CustomerID int64
	Total      money.Money
	AmountPaid money.Money
	Status     InvoiceStatus
	DueAt      time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AmountDue returns Total minus AmountPaid.
func (i Invoice) AmountDue() money.Money {
	return i.Total.Sub(i.AmountPaid)
}

// ErrInvoiceNotFound indicates the target invoice does not exist.
var ErrInvoiceNotFound = errors.New("ledger: invoice not found")

// ErrOverAllocation is the category matched by errors.Is for any
// OverAllocationError value.
var ErrOverAllocation = errors.New("ledger: allocation exceeds amount due")

// OverAllocationError reports an allocation exceeding an invoice's amount
// due. StaleRead marks the conditional-update case where the due amount
// changed between the caller's read and the write, so the caller should
// refresh and resubmit.
type OverAllocationError struct {
	InvoiceID int64
	Requested money.Money
	Due       money.Money
	StaleRead bool
}

func (e *OverAllocationError) Error() string {
	if e.StaleRead {
		return fmt.Sprintf("ledger: allocation %s exceeds amount due on invoice %d (stale read)", e.Requested, e.InvoiceID)
	}
	return fmt.Sprintf("ledger: allocation %s exceeds amount due %s on invoice %d", e.Requested, e.Due, e.InvoiceID)
}

// Is lets errors.Is(err, ErrOverAllocation) match.
func (e *OverAllocationError) Is(target error) bool {
	return target == ErrOverAllocation
}

// DeriveStatus computes the invoice status from its amounts and due date.
// A partially paid invoice past its due date stays PARTIAL, not OVERDUE;
// overdue only qualifies invoices nothing has been paid on. Pure function.
func DeriveStatus(amountPaid, total money.Money, dueAt, now time.Time) InvoiceStatus {
	if amountPaid.Covers(total) {
		return StatusPaid
	}
	if amountPaid.IsPositive() {
		return StatusPartial
	}
	if now.After(dueAt) {
		return StatusOverdue
	}
	return StatusUnpaid
}

// AgingBucket summarises outstanding amounts by days overdue.
type AgingBucket struct {
	Current   money.Money
	Bucket30  money.Money
	Bucket60  money.Money
	Bucket90  money.Money
	Bucket120 money.Money
}

// Total sums all buckets.
func (b AgingBucket) Total() money.Money {
	return b.Current.Add(b.Bucket30).Add(b.Bucket60).Add(b.Bucket90).Add(b.Bucket120)
}

// ComputeAging groups open invoices into aging buckets by amount due.
func ComputeAging(invoices []Invoice, asOf time.Time) AgingBucket {
	bucket := AgingBucket{
		Current:   money.Zero(),
		Bucket30:  money.Zero(),
		Bucket60:  money.Zero(),
		Bucket90:  money.Zero(),
		Bucket120: money.Zero(),
	}
	for _, inv := range invoices {
		due := inv.AmountDue()
		if !due.IsPositive() {
			continue
		}
		days := int(asOf.Sub(inv.DueAt).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current = bucket.Current.Add(due)
		case days <= 30:
			bucket.Bucket30 = bucket.Bucket30.Add(due)
		case days <= 60:
			bucket.Bucket60 = bucket.Bucket60.Add(due)
		case days <= 90:
			bucket.Bucket90 = bucket.Bucket90.Add(due)
		default:
			bucket.Bucket120 = bucket.Bucket120.Add(due)
		}
	}
	return bucket
}
