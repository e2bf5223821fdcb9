package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrAccessDenied        = errors.New("access denied")
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrServerFault         = errors.New("server fault")
	ErrUnreachable         = errors.New("unreachable")
	ErrRateLimited         = errors.New("rate limited")
	ErrMalformedCredential = errors.New("malformed credential")
)

// APIError represents a structured error for storefront API failures.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped sentinel, not serialized
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

// NewUnauthenticatedError creates a 401 error. The renewal coordinator
// recovers these locally; callers only see one after a failed replay.
func NewUnauthenticatedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHENTICATED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthenticated,
	}
}

// NewAccessDeniedError creates a 403 error. The server-supplied message is
// surfaced verbatim and the request is never retried.
func NewAccessDeniedError(serverMessage string) *APIError {
	if serverMessage == "" {
		serverMessage = "access denied"
	}
	return &APIError{
		Code:       "ACCESS_DENIED",
		Message:    serverMessage,
		StatusCode: 403,
		Err:        ErrAccessDenied,
	}
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

// NewValidationError creates a 400-class error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrValidation,
	}
}

// NewServerFaultError creates an error for 5xx storefront responses.
func NewServerFaultError(status int, serverMessage string) *APIError {
	if serverMessage == "" {
		serverMessage = "storefront internal error"
	}
	return &APIError{
		Code:       "SERVER_FAULT",
		Message:    serverMessage,
		StatusCode: status,
		Err:        ErrServerFault,
	}
}

// NewUnreachableError creates an error for network-level failures where no
// response was received.
func NewUnreachableError(err error) *APIError {
	return &APIError{
		Code:       "UNREACHABLE",
		Message:    "storefront could not be reached",
		StatusCode: 0,
		Err:        fmt.Errorf("%w: %v", ErrUnreachable, err),
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError() *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    "rate limit exceeded, please retry later",
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// NewMalformedCredentialError creates an error for locally detected bad
// bearer credentials. Self-healing: the store purges the value on detection.
func NewMalformedCredentialError(reason string) *APIError {
	return &APIError{
		Code:       "MALFORMED_CREDENTIAL",
		Message:    reason,
		StatusCode: 0,
		Err:        ErrMalformedCredential,
	}
}
