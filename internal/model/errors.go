package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUpstreamError     = errors.New("upstream error")
	ErrRateLimited       = errors.New("rate limited")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrCheckoutBlocked   = errors.New("checkout blocked")
	ErrInvalidResult     = errors.New("invalid validation result")
	ErrSessionClosed     = errors.New("session closed")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// NewInsufficientStockError rejects a cart change that exceeds known stock.
func NewInsufficientStockError(name string, available int) *APIError {
	return &APIError{
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("only %d units of %q are available", available, name),
		StatusCode: 409,
		Err:        ErrInsufficientStock,
	}
}

// NewConflictError creates a 409 error for operations that collide with
// work already in progress.
func NewConflictError(reason string) *APIError {
	return &APIError{
		Code:       "CONFLICT",
		Message:    reason,
		StatusCode: 409,
		Err:        ErrConflict,
	}
}

// NewCheckoutBlockedError refuses checkout until the cart is reconciled.
func NewCheckoutBlockedError(reason string) *APIError {
	return &APIError{
		Code:       "CHECKOUT_BLOCKED",
		Message:    reason,
		StatusCode: 409,
		Err:        ErrCheckoutBlocked,
	}
}

// NewInvalidResultError wraps contract violations found in a backend
// validation response.
func NewInvalidResultError(err error) *APIError {
	return &APIError{
		Code:       "INVALID_VALIDATION_RESULT",
		Message:    "cart validation returned an inconsistent result",
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrInvalidResult, err),
	}
}

// NewSessionClosedError is returned for work on a closed session.
func NewSessionClosedError() *APIError {
	return &APIError{
		Code:       "SESSION_CLOSED",
		Message:    "cart session is closed",
		StatusCode: 410,
		Err:        ErrSessionClosed,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}
