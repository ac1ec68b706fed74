package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes rendered to clients.
const (
	CodeValidation     = "VALIDATION_FAILED"
	CodeConflict       = "CONFLICT"
	CodeAuthentication = "AUTHENTICATION_FAILED"
	CodeNotFound       = "NOT_FOUND"
	CodeUnavailable    = "SERVICE_UNAVAILABLE"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

// NewAuthenticationError is returned for every failed sign-in, whatever the cause.
func NewAuthenticationError(message string) error {
	return NewDomainError(CodeAuthentication, message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewRateLimited(message string) error {
	return NewDomainError(CodeRateLimited, message, http.StatusTooManyRequests, nil)
}

// NewUnavailable wraps an infrastructure fault. The cause is kept for logging
// and never rendered.
func NewUnavailable(err error) error {
	return &DomainError{
		Code:       CodeUnavailable,
		Message:    "service temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewInternalError(err).(*DomainError)
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

func IsValidation(err error) bool     { return HasCode(err, CodeValidation) }
func IsConflict(err error) bool       { return HasCode(err, CodeConflict) }
func IsAuthentication(err error) bool { return HasCode(err, CodeAuthentication) }
func IsNotFound(err error) bool       { return HasCode(err, CodeNotFound) }
func IsUnavailable(err error) bool    { return HasCode(err, CodeUnavailable) }
