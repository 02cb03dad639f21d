// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/tradewind-ops/tradewind/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validationErr *shared.ValidationError
		notFoundErr   *shared.NotFoundError
		conflictErr   *shared.ConflictError
		stateErr      *shared.StateError
		externalErr   *shared.ExternalDependencyError
	)
	switch {
	case errors.As(err, &validationErr):
		ProblemFields(w, http.StatusUnprocessableEntity, "Validation Failed", "one or more fields are invalid", validationErr.Fields)
	case errors.As(err, &notFoundErr), errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &conflictErr):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &stateErr):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.As(err, &externalErr):
		Problem(w, http.StatusBadGateway, "Upstream Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
