package payment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

const dateLayout = "2006-01-02"

// HeaderInput carries the raw payment header as submitted by a caller.
// Amount and PaidAt arrive as strings so every malformed field can be
// reported at once instead of failing on the first decode.
type HeaderInput struct {
	CustomerID int64  `json:"customerId" validate:"required,gt=0"`
	Amount     string `json:"amount" validate:"required"`
	PaidAt     string `json:"paymentDate" validate:"required"`
	Method     string `json:"paymentMethod" validate:"required,oneof=CASH CHEQUE BANK_TRANSFER CREDIT_CARD OTHER"`
	Reference  string `json:"reference" validate:"omitempty,max=255"`
	Notes      string `json:"notes" validate:"omitempty,max=2000"`
}

// ValidationError lists every violated header field, mirroring a form that
// shows all errors at once.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "payment: invalid header fields: " + strings.Join(names, ", ")
}

// ErrInvalidHeader is the category matched by errors.Is for ValidationError.
var ErrInvalidHeader = errors.New("payment: invalid header")

// Is lets errors.Is(err, ErrInvalidHeader) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidHeader
}

var validate = validator.New()

// Candidate is a proposed allocation held by a draft; it does not touch any
// invoice until settlement commits it.
type Candidate struct {
	InvoiceID int64
	Amount    money.Money
}

// Draft is a validated payment header accumulating allocation candidates
// before settlement.
type Draft struct {
	CustomerID int64
	Amount     money.Money
	PaidAt     time.Time
	Method     Method
	Reference  string
	Notes      string

	candidates []Candidate
	allocated  money.Money
}

// NewDraft validates the header and returns a draft ready to accept
// allocation candidates. On failure the returned ValidationError names every
// violated field, not just the first.
func NewDraft(input HeaderInput) (*Draft, error) {
	fields := map[string][]string{}

	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		for _, fieldErr := range verrs {
			name := headerFieldName(fieldErr.Field())
			fields[name] = append(fields[name], headerFieldMessage(fieldErr))
		}
	}

	draft := &Draft{
		CustomerID: input.CustomerID,
		Reference:  input.Reference,
		Notes:      input.Notes,
		Method:     Method(input.Method),
		allocated:  money.Zero(),
	}

	if input.Amount != "" {
		amount, err := money.Parse(input.Amount)
		switch {
		case err != nil:
			fields["amount"] = append(fields["amount"], "must be a decimal amount with at most two fractional digits")
		case !amount.IsPositive():
			fields["amount"] = append(fields["amount"], "must be greater than zero")
		default:
			draft.Amount = amount
		}
	}

	if input.PaidAt != "" {
		paidAt, err := time.Parse(dateLayout, input.PaidAt)
		if err != nil {
			fields["paymentDate"] = append(fields["paymentDate"], "must be a date in YYYY-MM-DD format")
		} else {
			draft.PaidAt = paidAt
		}
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return draft, nil
}

// AddAllocationCandidate appends a proposed allocation, enforcing that the
// cumulative candidate amount never exceeds the payment amount. This is the
// pre-commit guard; the ledger applies its own per-invoice guard at commit.
func (d *Draft) AddAllocationCandidate(invoiceID int64, amount money.Money) error {
	if invoiceID <= 0 {
		return fmt.Errorf("payment: allocation candidate requires an invoice id")
	}
	if amount.IsNegative() {
		return fmt.Errorf("payment: allocation candidate for invoice %d must not be negative", invoiceID)
	}
	remaining := d.Amount.Sub(d.allocated)
	if amount.GreaterThan(remaining) {
		return &AllocationOverflowError{
			InvoiceID: invoiceID,
			Attempted: amount,
			Available: remaining,
		}
	}
	d.candidates = append(d.candidates, Candidate{InvoiceID: invoiceID, Amount: amount})
	d.allocated = d.allocated.Add(amount)
	return nil
}

// Candidates returns the accumulated allocation candidates in insertion
// order.
func (d *Draft) Candidates() []Candidate {
	out := make([]Candidate, len(d.candidates))
	copy(out, d.candidates)
	return out
}

// Unallocated returns the payment amount not yet covered by candidates.
func (d *Draft) Unallocated() money.Money {
	return d.Amount.Sub(d.allocated)
}

func headerFieldName(structField string) string {
	switch structField {
	case "CustomerID":
		return "customerId"
	case "Amount":
		return "amount"
	case "PaidAt":
		return "paymentDate"
	case "Method":
		return "paymentMethod"
	case "Reference":
		return "reference"
	case "Notes":
		return "notes"
	default:
		return structField
	}
}

func headerFieldMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fieldErr.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fieldErr.Param(), " ", ", ")
	case "max":
		return "must be at most " + fieldErr.Param() + " characters"
	default:
		return "is invalid"
	}
}
