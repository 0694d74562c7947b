package settlement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-erp/meridian-erp/internal/allocation"
	"github.com/meridian-erp/meridian-erp/internal/customers"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/payment"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes the settlement JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	invoices InvoiceQueries
}

// InvoiceQueries lists and fetches invoices for the read endpoints.
type InvoiceQueries interface {
	GetInvoice(ctx context.Context, id int64) (*ledger.Invoice, error)
	ListInvoices(ctx context.Context, req ledger.ListInvoicesRequest) ([]ledger.Invoice, error)
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, invoices InvoiceQueries) *Handler {
	return &Handler{logger: logger, service: service, invoices: invoices}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/settlements", h.recordSettlement)
	r.Get("/settlements/preview", h.previewAllocation)
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Get("/payments", h.listPayments)
	r.Get("/payments/{id}", h.getPayment)
	r.Get("/aging", h.agingReport)
}

type settlementRequest struct {
	payment.HeaderInput
	Allocations  []allocation.Entry `json:"allocations"`
	AutoAllocate bool               `json:"autoAllocate"`
}

type settlementResponse struct {
	Payment     payment.Payment    `json:"payment"`
	Applied     []allocation.Entry `json:"applied"`
	Unallocated money.Money        `json:"unallocated"`
	Invoices    []ledger.Invoice   `json:"invoices"`
}

func (h *Handler) recordSettlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Status: http.StatusBadRequest, Title: "Invalid Request Body",
			Detail: err.Error(), Kind: httpx.KindValidation,
		})
		return
	}

	result, err := h.service.RecordPayment(r.Context(), RecordPaymentInput{
		Header:         req.HeaderInput,
		Allocations:    req.Allocations,
		AutoAllocate:   req.AutoAllocate,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, settlementResponse{
		Payment:     result.Payment,
		Applied:     result.Applied,
		Unallocated: result.Unallocated,
		Invoices:    result.Invoices,
	})
}

func (h *Handler) previewAllocation(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64)
	if err != nil || customerID <= 0 {
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Status: http.StatusBadRequest, Title: "Validation Failed",
			Kind:   httpx.KindValidation,
			Fields: map[string][]string{"customer_id": {"must be a positive integer"}},
		})
		return
	}
	amount, err := money.Parse(r.URL.Query().Get("amount"))
	if err != nil {
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Status: http.StatusBadRequest, Title: "Validation Failed",
			Kind:   httpx.KindValidation,
			Fields: map[string][]string{"amount": {err.Error()}},
		})
		return
	}

	preview, err := h.service.PreviewAutoAllocation(r.Context(), customerID, amount)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	var customerID int64
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		customerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	invoices, err := h.invoices.ListInvoices(r.Context(), ledger.ListInvoicesRequest{
		Status:     ledger.InvoiceStatus(r.URL.Query().Get("status")),
		CustomerID: customerID,
		Limit:      100,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be an integer")
		return
	}
	invoice, err := h.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	var customerID int64
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		customerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	payments, err := h.service.ListPayments(r.Context(), customerID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "payment id must be an integer")
		return
	}
	p, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type agingResponse struct {
	AsOf    time.Time          `json:"asOf"`
	Buckets ledger.AgingBucket `json:"buckets"`
	Total   money.Money        `json:"total"`
	Display map[string]string  `json:"display"`
}

func (h *Handler) agingReport(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.ProblemWith(w, httpx.ProblemDetail{
				Status: http.StatusBadRequest, Title: "Validation Failed",
				Kind:   httpx.KindValidation,
				Fields: map[string][]string{"as_of": {"must be formatted YYYY-MM-DD"}},
			})
			return
		}
		asOf = parsed
	}

	buckets, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}

	printer := message.NewPrinter(language.English)
	display := map[string]string{
		"current": printer.Sprintf("%.2f", buckets.Current.Float64()),
		"30":      printer.Sprintf("%.2f", buckets.Bucket30.Float64()),
		"60":      printer.Sprintf("%.2f", buckets.Bucket60.Float64()),
		"90":      printer.Sprintf("%.2f", buckets.Bucket90.Float64()),
		"120":     printer.Sprintf("%.2f", buckets.Bucket120.Float64()),
		"total":   printer.Sprintf("%.2f", buckets.Total().Float64()),
	}
	httpx.JSON(w, http.StatusOK, agingResponse{
		AsOf:    asOf,
		Buckets: buckets,
		Total:   buckets.Total(),
		Display: display,
	})
}

// respondError maps domain errors onto the API error taxonomy.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var (
		validationErr *payment.ValidationError
		overAlloc     *ledger.OverAllocationError
		overflow      *payment.AllocationOverflowError
		exceeds       *allocation.AllocationExceedsPaymentError
	)
	switch {
	case errors.As(err, &validationErr):
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Status: http.StatusBadRequest, Title: "Validation Failed",
			Kind: httpx.KindValidation, Fields: validationErr.Fields,
		})
	case errors.As(err, &exceeds):
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Status: http.StatusUnprocessableEntity, Title: "Allocations Exceed Payment",
			Detail: err.Error(), Kind: httpx.KindAllocationExceedsPayment,
			Meta: map[string]any{
				"allocated": exceeds.Allocated.String(),
				"payment":   exceeds.Payment.String(),
			},
		})
	case errors.As(err, &overAlloc):
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Status: http.StatusConflict, Title: "Over-Allocation",
			Detail: err.Error(), Kind: httpx.KindOverAllocation,
			Meta: map[string]any{
				"invoiceId": overAlloc.InvoiceID,
				"requested": overAlloc.Requested.String(),
				"due":       overAlloc.Due.String(),
				"stale":     overAlloc.StaleRead,
			},
		})
	case errors.As(err, &overflow):
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Status: http.StatusConflict, Title: "Over-Allocation",
			Detail: err.Error(), Kind: httpx.KindOverAllocation,
			Meta: map[string]any{
				"invoiceId": overflow.InvoiceID,
				"attempted": overflow.Attempted.String(),
				"available": overflow.Available.String(),
			},
		})
	case errors.Is(err, ErrDuplicateSettlement):
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Status: http.StatusConflict, Title: "Duplicate Settlement",
			Detail: err.Error(), Kind: httpx.KindDuplicate,
		})
	case errors.Is(err, ledger.ErrInvoiceNotFound),
		errors.Is(err, customers.ErrCustomerNotFound),
		errors.Is(err, ErrPaymentNotFound):
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Status: http.StatusNotFound, Title: "Not Found",
			Detail: err.Error(), Kind: httpx.KindNotFound,
		})
	default:
		h.logger.Error("settlement request failed", slog.Any("error", err))
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Status: http.StatusInternalServerError, Title: "Internal Error",
			Kind: httpx.KindSystem,
		})
	}
}
