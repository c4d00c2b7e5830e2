package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/domain"
)

// errorStatus maps an error kind to its HTTP status and code.
func errorStatus(err error) (int, string) {
	switch domain.Kind(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest, "validation_error"
	case domain.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case domain.ErrEmptyCart:
		return http.StatusBadRequest, "empty_cart"
	case domain.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case domain.ErrConflict:
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondError writes err using the kind mapping. Unclassified errors are
// logged and reported without detail.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal server error"
	case errors.Is(err, domain.ErrEmptyCart):
		message = "Cart is empty"
	}
	middleware.RespondError(w, message, code, status)
}

func respondBadRequest(w http.ResponseWriter, message string) {
	middleware.RespondError(w, message, "validation_error", http.StatusBadRequest)
}
