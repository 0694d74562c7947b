// Package settlement coordinates the atomic act of recording a payment
// together with its allocations and the resulting invoice updates.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/allocation"
	"github.com/meridian-erp/meridian-erp/internal/customers"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/payment"
)

// ErrDuplicateSettlement indicates the idempotency key was already consumed
// by a committed settlement.
var ErrDuplicateSettlement = errors.New("settlement: already processed")

// ErrPaymentNotFound indicates the requested payment does not exist.
var ErrPaymentNotFound = errors.New("settlement: payment not found")

// LedgerPort is the invoice state settlement reads outside the transaction.
type LedgerPort interface {
	GetInvoice(ctx context.Context, id int64) (*ledger.Invoice, error)
	ListOpenInvoices(ctx context.Context, customerID int64) ([]ledger.Invoice, error)
	VerifyAllocationInvariant(ctx context.Context, invoiceID int64) error
}

// Repository defines payment persistence plus the settlement transaction
// boundary.
type Repository interface {
	GetPayment(ctx context.Context, id int64) (*payment.Payment, error)
	ListPayments(ctx context.Context, customerID int64) ([]payment.Payment, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository exposes the operations that must commit together.
type TxRepository interface {
	GeneratePaymentNumber(ctx context.Context) (string, error)
	CreatePayment(ctx context.Context, p payment.Payment) (int64, error)
	CreateAllocation(ctx context.Context, paymentID, invoiceID int64, amount money.Money) error
	ApplyPayment(ctx context.Context, invoiceID int64, amount money.Money) (*ledger.Invoice, error)
	SetInvoiceStatus(ctx context.Context, invoiceID int64, status ledger.InvoiceStatus) error
}

// IdempotencyPort persists processed settlement keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service handles settlement business logic.
type Service struct {
	logger      *slog.Logger
	repo        Repository
	invoices    LedgerPort
	customers   customers.Directory
	idempotency IdempotencyPort
	hook        PostingHook
	cache       *ledger.Cache
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewService builds a Service instance.
func NewService(logger *slog.Logger, repo Repository, invoices LedgerPort, directory customers.Directory) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		invoices:  invoices,
		customers: directory,
		now:       time.Now,
	}
}

// SetIdempotencyStore injects duplicate-settlement detection.
func (s *Service) SetIdempotencyStore(store IdempotencyPort) { s.idempotency = store }

// SetPostingHook injects the downstream ledger-posting consumer.
func (s *Service) SetPostingHook(hook PostingHook) { s.hook = hook }

// SetCache injects the open-invoice cache bumped after each settlement.
func (s *Service) SetCache(cache *ledger.Cache) { s.cache = cache }

// SetMetrics injects settlement metrics.
func (s *Service) SetMetrics(m *observability.Metrics) { s.metrics = m }

// SetClock overrides the time source, used by tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// RecordPaymentInput carries a payment header plus either caller-supplied
// allocations or the auto-allocate flag.
type RecordPaymentInput struct {
	Header         payment.HeaderInput
	Allocations    []allocation.Entry
	AutoAllocate   bool
	IdempotencyKey string
}

// Result reports a committed settlement: the persisted payment, what was
// applied where, the unapplied remainder, and the updated invoice snapshots.
type Result struct {
	Payment     payment.Payment
	Applied     []allocation.Entry
	Unallocated money.Money
	Invoices    []ledger.Invoice
}

// FullyApplied reports whether the whole payment amount landed on invoices.
func (r Result) FullyApplied() bool {
	return r.Unallocated.IsZero()
}

const idempotencyModule = "ar_settlement"

// RecordPayment validates, allocates, and commits a settlement atomically.
// Either every invoice update, the payment, and its allocations persist
// together, or nothing does.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*Result, error) {
	draft, err := payment.NewDraft(input.Header)
	if err != nil {
		return nil, err
	}

	if _, err := s.customers.GetCustomer(ctx, draft.CustomerID); err != nil {
		return nil, err
	}

	open, err := s.invoices.ListOpenInvoices(ctx, draft.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("settlement: list open invoices: %w", err)
	}

	entries, err := s.resolveEntries(draft, input, open)
	if err != nil {
		s.recordOutcome("rejected", money.Zero())
		return nil, err
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, ErrIdempotencyConflict) {
				return nil, ErrDuplicateSettlement
			}
			return nil, err
		}
	}

	result, err := s.commit(ctx, draft, entries)
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, input.IdempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		s.recordOutcome("rejected", money.Zero())
		return nil, err
	}

	if err := s.postCommit(ctx, result); err != nil {
		return nil, err
	}

	s.recordOutcome("committed", result.Payment.Amount.Sub(result.Unallocated))
	return result, nil
}

func (s *Service) resolveEntries(draft *payment.Draft, input RecordPaymentInput, open []ledger.Invoice) ([]allocation.Entry, error) {
	if len(input.Allocations) == 0 && !input.AutoAllocate {
		// An explicitly empty manual allocation list: the payment is
		// persisted wholly unallocated, a reportable condition, not an error.
		return nil, nil
	}

	dues := make(map[int64]money.Money, len(open))
	candidates := make([]allocation.InvoiceDue, 0, len(open))
	for _, inv := range open {
		dues[inv.ID] = inv.AmountDue()
		candidates = append(candidates, allocation.InvoiceDue{InvoiceID: inv.ID, AmountDue: inv.AmountDue()})
	}

	var entries []allocation.Entry
	if len(input.Allocations) > 0 {
		report, err := allocation.ValidateManual(draft.Amount, input.Allocations, dues)
		if err != nil {
			return nil, err
		}
		entries = report.Entries
	} else {
		proposal, err := allocation.AutoAllocate(draft.Amount, candidates)
		if err != nil {
			return nil, err
		}
		entries = proposal.Entries
	}

	// The draft's cumulative guard is the payment-record boundary; entries
	// that passed the engine must also pass here.
	for _, e := range entries {
		if err := draft.AddAllocationCandidate(e.InvoiceID, e.Amount); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *Service) commit(ctx context.Context, draft *payment.Draft, entries []allocation.Entry) (*Result, error) {
	now := s.now()
	result := &Result{Applied: entries}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GeneratePaymentNumber(ctx)
		if err != nil {
			return fmt.Errorf("settlement: generate payment number: %w", err)
		}

		pay := payment.Payment{
			Number:     number,
			CustomerID: draft.CustomerID,
			Amount:     draft.Amount,
			PaidAt:     draft.PaidAt,
			Method:     draft.Method,
			Reference:  draft.Reference,
			Notes:      draft.Notes,
			Status:     payment.StatusCompleted,
		}
		paymentID, err := tx.CreatePayment(ctx, pay)
		if err != nil {
			return err
		}
		pay.ID = paymentID

		for _, entry := range entries {
			if err := tx.CreateAllocation(ctx, paymentID, entry.InvoiceID, entry.Amount); err != nil {
				return err
			}
			updated, err := tx.ApplyPayment(ctx, entry.InvoiceID, entry.Amount)
			if err != nil {
				return err
			}
			status := ledger.DeriveStatus(updated.AmountPaid, updated.Total, updated.DueAt, now)
			if status != updated.Status {
				if err := tx.SetInvoiceStatus(ctx, entry.InvoiceID, status); err != nil {
					return err
				}
				updated.Status = status
			}
			result.Invoices = append(result.Invoices, *updated)
			pay.Allocations = append(pay.Allocations, payment.Allocation{
				PaymentID: paymentID,
				InvoiceID: entry.InvoiceID,
				Amount:    entry.Amount,
			})
		}

		result.Payment = pay
		result.Unallocated = pay.Unallocated()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// postCommit runs the defense-in-depth invariant check and downstream
// notifications. The invariant check failing means the ledger is wrong, so
// it surfaces as a fatal error even though the transaction has committed.
func (s *Service) postCommit(ctx context.Context, result *Result) error {
	for _, inv := range result.Invoices {
		if err := s.invoices.VerifyAllocationInvariant(ctx, inv.ID); err != nil {
			s.logger.Error("settlement invariant violated", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
			s.recordOutcome("invariant_violation", money.Zero())
			return fmt.Errorf("settlement: post-commit invariant: %w", err)
		}
	}

	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump open-invoice cache", slog.Any("error", err))
	}

	if s.hook != nil {
		event := NewSettlementPostedEvent(result)
		if err := s.hook.HandleSettlementPosted(ctx, event); err != nil {
			// The settlement is committed; posting consumers reconcile later.
			s.logger.Error("settlement posting hook", slog.String("event_id", event.EventID.String()), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) recordOutcome(outcome string, applied money.Money) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSettlement(outcome, applied.Float64())
}

// ProposedAllocation augments an engine entry with display fields for
// preview callers.
type ProposedAllocation struct {
	InvoiceID     int64       `json:"invoiceId"`
	InvoiceNumber string      `json:"invoiceNumber"`
	AmountDue     money.Money `json:"amountDue"`
	Amount        money.Money `json:"amount"`
}

// Preview is the non-persisting outcome of auto-allocation.
type Preview struct {
	Customer    customers.Customer   `json:"customer"`
	Allocations []ProposedAllocation `json:"proposedAllocations"`
	Remainder   money.Money          `json:"remainder"`
}

// PreviewAutoAllocation runs the greedy allocator against the customer's
// open invoices without persisting anything.
func (s *Service) PreviewAutoAllocation(ctx context.Context, customerID int64, amount money.Money) (*Preview, error) {
	if !amount.IsPositive() {
		return nil, &payment.ValidationError{Fields: map[string][]string{
			"amount": {"must be greater than zero"},
		}}
	}

	var (
		customer *customers.Customer
		open     []ledger.Invoice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customer, err = s.customers.GetCustomer(gctx, customerID)
		return err
	})
	g.Go(func() error {
		var err error
		open, err = s.cache.FetchOpenInvoices(gctx, customerID, func(ctx context.Context) ([]ledger.Invoice, error) {
			return s.invoices.ListOpenInvoices(ctx, customerID)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]allocation.InvoiceDue, 0, len(open))
	byID := make(map[int64]ledger.Invoice, len(open))
	for _, inv := range open {
		candidates = append(candidates, allocation.InvoiceDue{InvoiceID: inv.ID, AmountDue: inv.AmountDue()})
		byID[inv.ID] = inv
	}

	proposal, err := allocation.AutoAllocate(amount, candidates)
	if err != nil {
		return nil, err
	}

	preview := &Preview{Customer: *customer, Remainder: proposal.Remainder}
	for _, entry := range proposal.Entries {
		inv := byID[entry.InvoiceID]
		preview.Allocations = append(preview.Allocations, ProposedAllocation{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			AmountDue:     inv.AmountDue(),
			Amount:        entry.Amount,
		})
	}
	return preview, nil
}

// GetPayment returns a payment with its allocations.
func (s *Service) GetPayment(ctx context.Context, id int64) (*payment.Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments returns payments, optionally filtered by customer.
func (s *Service) ListPayments(ctx context.Context, customerID int64) ([]payment.Payment, error) {
	return s.repo.ListPayments(ctx, customerID)
}

// Aging computes the receivables aging report over open invoices.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (ledger.AgingBucket, error) {
	open, err := s.invoices.ListOpenInvoices(ctx, 0)
	if err != nil {
		return ledger.AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	return ledger.ComputeAging(open, asOf), nil
}
