package domain

import "fmt"

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNoBrokerAvailable = "NO_BROKER_AVAILABLE"
	ErrCodeStorageFailure    = "STORAGE_FAILURE"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Error constructors

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewNoBrokerAvailableError creates the error returned when no broker
// serves the requested city
func NewNoBrokerAvailableError(state, city string) error {
	return &DomainError{
		Code:    ErrCodeNoBrokerAvailable,
		Message: fmt.Sprintf("no broker available for %s, %s", city, state),
	}
}

// NewStorageFailureError wraps a failed document store read or write.
// Callers may retry; the services themselves do not.
func NewStorageFailureError(err error) error {
	return &DomainError{
		Code:    ErrCodeStorageFailure,
		Message: "storage operation failed",
		Err:     err,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError() error {
	return &DomainError{
		Code:    ErrCodeUnauthorized,
		Message: "Authentication required",
	}
}

// NewInternalError creates a new internal error
func NewInternalError(err error) error {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "An internal error occurred",
		Err:     err,
	}
}

// Helper functions to check error types

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	if de, ok := err.(*DomainError); ok {
		return de.Code == ErrCodeNotFound
	}
	return false
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	if de, ok := err.(*DomainError); ok {
		return de.Code == ErrCodeValidation
	}
	return false
}

// IsNoBrokerAvailable checks if the error is a no-broker-available error
func IsNoBrokerAvailable(err error) bool {
	if de, ok := err.(*DomainError); ok {
		return de.Code == ErrCodeNoBrokerAvailable
	}
	return false
}

// IsStorageFailure checks if the error is a storage failure
func IsStorageFailure(err error) bool {
	if de, ok := err.(*DomainError); ok {
		return de.Code == ErrCodeStorageFailure
	}
	return false
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	if de, ok := err.(*DomainError); ok {
		return de.Code == ErrCodeConflict
	}
	return false
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	if de, ok := err.(*DomainError); ok {
		return de.Code
	}
	return ErrCodeInternal
}
