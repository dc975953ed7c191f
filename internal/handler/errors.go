package handler

import (
	"errors"
	"net/http"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/labstack/echo/v4"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrListingNotFound),
		errors.Is(err, domain.ErrPurchaseNotFound),
		errors.Is(err, domain.ErrOfferNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": ...}. Server-side failures never expose their cause.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	status := statusFor(err)

	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		log.Error(c.Request().Context(), "Request failed",
			"error", err,
		)
		message = "internal error"
	case http.StatusConflict:
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			message = domain.ErrConcurrencyConflict.Error()
		}
	}

	return c.JSON(status, map[string]string{
		"error": message,
	})
}
