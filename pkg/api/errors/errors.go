// Package errors maps domain errors onto the HTTP surface without
// leaking internals.
package errors

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/joselopes-lab/brokerdesk/pkg/domain"
	"github.com/joselopes-lab/brokerdesk/pkg/models"
)

// FromDomain translates a domain error into the matching JSON response.
// Unknown errors become a generic 500.
func FromDomain(c echo.Context, err error) error {
	switch domain.GetErrorCode(err) {
	case domain.ErrCodeNotFound:
		return c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case domain.ErrCodeValidation:
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	case domain.ErrCodeNoBrokerAvailable:
		return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "no_broker_available",
			Message: "No broker currently serves this city.",
		})
	case domain.ErrCodeConflict:
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
		})
	case domain.ErrCodeStorageFailure:
		// Log the cause; the caller only learns it is retryable.
		log.Printf("[STORAGE ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)
		return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "storage_failure",
			Message: "A storage error occurred. Please try again.",
		})
	case domain.ErrCodeUnauthorized:
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "You are not authorized to access this resource.",
		})
	default:
		log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred. Please try again later.",
		})
	}
}

// ValidationError returns a generic validation error for malformed
// request payloads.
func ValidationError(c echo.Context, err error) error {
	log.Printf("[VALIDATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request data. Please check your input and try again.",
	})
}
