package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

type invoiceQueriesFake struct {
	repo *memorySettlementRepo
}

func (f invoiceQueriesFake) GetInvoice(ctx context.Context, id int64) (*ledger.Invoice, error) {
	return f.repo.GetInvoice(ctx, id)
}

func (f invoiceQueriesFake) ListInvoices(ctx context.Context, req ledger.ListInvoicesRequest) ([]ledger.Invoice, error) {
	return f.repo.ListOpenInvoices(ctx, req.CustomerID)
}

func newTestRouter(repo *memorySettlementRepo) http.Handler {
	svc := newTestService(repo)
	handler := NewHandler(svc.logger, svc, invoiceQueriesFake{repo})
	r := chi.NewRouter()
	r.Route("/ar", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return r
}

func TestRecordSettlementEndpoint(t *testing.T) {
	repo := newMemorySettlementRepo()
	repo.addInvoice(1, "300.00", "0.00", testNow.AddDate(0, 0, 10), ledger.StatusUnpaid)
	router := newTestRouter(repo)

	body := `{"customerId":1,"amount":"300.00","paymentDate":"2026-03-15","paymentMethod":"BANK_TRANSFER","autoAllocate":true}`
	req := httptest.NewRequest(http.MethodPost, "/ar/settlements", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Payment struct {
			Status string `json:"Status"`
		} `json:"payment"`
		Unallocated string `json:"unallocated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "0.00", resp.Unallocated)
	require.Equal(t, ledger.StatusPaid, repo.invoices[1].Status)
}

func TestRecordSettlementValidationProblem(t *testing.T) {
	repo := newMemorySettlementRepo()
	router := newTestRouter(repo)

	body := `{"customerId":1,"amount":"12.345","paymentDate":"15-03-2026","paymentMethod":"BARTER"}`
	req := httptest.NewRequest(http.MethodPost, "/ar/settlements", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem struct {
		Kind   string              `json:"kind"`
		Fields map[string][]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "validation_error", problem.Kind)
	require.Contains(t, problem.Fields, "amount")
	require.Contains(t, problem.Fields, "paymentDate")
	require.Contains(t, problem.Fields, "paymentMethod")
}

func TestRecordSettlementOverAllocationProblem(t *testing.T) {
	repo := newMemorySettlementRepo()
	repo.addInvoice(1, "500.00", "0.00", testNow.AddDate(0, 0, 10), ledger.StatusUnpaid)
	router := newTestRouter(repo)

	body := `{"customerId":1,"amount":"600.00","paymentDate":"2026-03-15","paymentMethod":"CASH",` +
		`"allocations":[{"invoiceId":1,"amount":"600.00"}]}`
	req := httptest.NewRequest(http.MethodPost, "/ar/settlements", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var problem struct {
		Kind string         `json:"kind"`
		Meta map[string]any `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "over_allocation", problem.Kind)
	require.Equal(t, "500.00", problem.Meta["due"])
}

func TestRecordSettlementExceedsPaymentProblem(t *testing.T) {
	repo := newMemorySettlementRepo()
	repo.addInvoice(1, "400.00", "0.00", testNow.AddDate(0, 0, 10), ledger.StatusUnpaid)
	repo.addInvoice(2, "400.00", "0.00", testNow.AddDate(0, 0, 12), ledger.StatusUnpaid)
	router := newTestRouter(repo)

	body := `{"customerId":1,"amount":"500.00","paymentDate":"2026-03-15","paymentMethod":"CASH",` +
		`"allocations":[{"invoiceId":1,"amount":"300.00"},{"invoiceId":2,"amount":"300.00"}]}`
	req := httptest.NewRequest(http.MethodPost, "/ar/settlements", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var problem struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "allocation_exceeds_payment", problem.Kind)
}

func TestPreviewEndpoint(t *testing.T) {
	repo := newMemorySettlementRepo()
	repo.addInvoice(1, "300.00", "0.00", testNow.AddDate(0, 0, 10), ledger.StatusUnpaid)
	repo.addInvoice(2, "200.00", "0.00", testNow.AddDate(0, 0, 20), ledger.StatusUnpaid)
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/ar/settlements/preview?customer_id=1&amount=450.00", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var preview struct {
		ProposedAllocations []struct {
			InvoiceID int64  `json:"invoiceId"`
			Amount    string `json:"amount"`
		} `json:"proposedAllocations"`
		Remainder string `json:"remainder"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	require.Len(t, preview.ProposedAllocations, 2)
	require.Equal(t, "150.00", preview.ProposedAllocations[1].Amount)
	require.Equal(t, "0.00", preview.Remainder)
}

func TestGetPaymentNotFoundProblem(t *testing.T) {
	repo := newMemorySettlementRepo()
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/ar/payments/99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var problem struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "not_found", problem.Kind)
}
