package httpx

import (
	"errors"
	"net/http"

	"github.com/crestline-fin/crestline/internal/shared"
)

// RespondError maps shared sentinel errors to RFC7807 responses. Handlers
// translate their domain errors first and fall back to this for the rest.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, shared.ErrInvalidFiscalYear), errors.Is(err, shared.ErrInvalidFiscalPeriod):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
