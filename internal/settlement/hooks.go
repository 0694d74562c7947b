package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

// SettlementPostedEvent describes a committed settlement for downstream
// consumers such as the general-ledger posting bridge.
type SettlementPostedEvent struct {
	EventID       uuid.UUID          `json:"eventId"`
	PaymentID     int64              `json:"paymentId"`
	PaymentNumber string             `json:"paymentNumber"`
	CustomerID    int64              `json:"customerId"`
	Amount        money.Money        `json:"amount"`
	Unallocated   money.Money        `json:"unallocated"`
	Allocations   []PostedAllocation `json:"allocations"`
	OccurredAt    time.Time          `json:"occurredAt"`
}

// PostedAllocation is one invoice application within a posted settlement.
type PostedAllocation struct {
	InvoiceID     int64       `json:"invoiceId"`
	InvoiceNumber string      `json:"invoiceNumber"`
	Amount        money.Money `json:"amount"`
}

// NewSettlementPostedEvent derives the posting event from a committed result.
func NewSettlementPostedEvent(result *Result) SettlementPostedEvent {
	event := SettlementPostedEvent{
		EventID:       uuid.New(),
		PaymentID:     result.Payment.ID,
		PaymentNumber: result.Payment.Number,
		CustomerID:    result.Payment.CustomerID,
		Amount:        result.Payment.Amount,
		Unallocated:   result.Unallocated,
		OccurredAt:    time.Now().UTC(),
	}
	numbers := make(map[int64]string, len(result.Invoices))
	for _, inv := range result.Invoices {
		numbers[inv.ID] = inv.Number
	}
	for _, alloc := range result.Payment.Allocations {
		event.Allocations = append(event.Allocations, PostedAllocation{
			InvoiceID:     alloc.InvoiceID,
			InvoiceNumber: numbers[alloc.InvoiceID],
			Amount:        alloc.Amount,
		})
	}
	return event
}

// PostingHook consumes settlement events after commit. Hook failures never
// roll a settlement back.
type PostingHook interface {
	HandleSettlementPosted(ctx context.Context, event SettlementPostedEvent) error
}

// LoggingPostingHook records posted settlements to the application log. It
// stands in until a journal-posting consumer is wired.
type LoggingPostingHook struct {
	Logger *slog.Logger
}

// HandleSettlementPosted implements PostingHook.
func (h LoggingPostingHook) HandleSettlementPosted(_ context.Context, event SettlementPostedEvent) error {
	h.Logger.Info("settlement posted",
		slog.String("event_id", event.EventID.String()),
		slog.String("payment_number", event.PaymentNumber),
		slog.Int64("customer_id", event.CustomerID),
		slog.String("amount", event.Amount.String()),
		slog.String("unallocated", event.Unallocated.String()),
		slog.Int("allocations", len(event.Allocations)),
	)
	return nil
}
