package httpx

import (
	"errors"
	"net/http"
)

// Error kinds surfaced to API callers. Handlers map domain errors onto these
// so a caller can distinguish "you asked for too much on this invoice" from
// "you asked for more than you paid".
const (
	KindValidation               = "validation_error"
	KindOverAllocation           = "over_allocation"
	KindAllocationExceedsPayment = "allocation_exceeds_payment"
	KindNotFound                 = "not_found"
	KindDuplicate                = "duplicate_settlement"
	KindSystem                   = "system_error"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps generic domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		ProblemWith(w, ProblemDetail{Status: http.StatusNotFound, Title: "Not Found", Detail: err.Error(), Kind: KindNotFound})
	case errors.Is(err, ErrDuplicate):
		ProblemWith(w, ProblemDetail{Status: http.StatusConflict, Title: "Duplicate", Detail: err.Error(), Kind: KindDuplicate})
	case errors.Is(err, ErrValidation):
		ProblemWith(w, ProblemDetail{Status: http.StatusBadRequest, Title: "Validation Failed", Detail: err.Error(), Kind: KindValidation})
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		ProblemWith(w, ProblemDetail{Status: http.StatusInternalServerError, Title: "Internal Error", Kind: KindSystem})
	}
}
