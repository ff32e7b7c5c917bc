// Package apperr defines the error taxonomy shared by services and handlers.
// Every expected failure carries a stable code and the HTTP status it maps to.
package apperr

import (
	"errors"
	"net/http"
)

// Error is an expected, client-facing failure.
type Error struct {
	Code    string
	Status  int
	Message string
	Details any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// Is matches on Code so that errors.Is(err, apperr.ErrNotFound) works for
// errors built with WithMessage or WithDetails.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of e carrying msg.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// WithDetails returns a copy of e carrying details (usually validation violations).
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func newError(status int, code string) *Error {
	return &Error{Code: code, Status: status}
}

var (
	ErrUnauthorized   = newError(http.StatusUnauthorized, "unauthorized")
	ErrForbidden      = newError(http.StatusForbidden, "forbidden")
	ErrTenantMismatch = newError(http.StatusForbidden, "tenant_mismatch")
	ErrTokenExpired   = newError(http.StatusForbidden, "token_expired")
	ErrNotFound       = newError(http.StatusNotFound, "not_found")
	ErrInvalidState   = newError(http.StatusBadRequest, "invalid_state")
	ErrValidation     = newError(http.StatusBadRequest, "validation_failed")
	ErrInvalidJSON    = newError(http.StatusBadRequest, "invalid_json")
	ErrDuplicateName  = newError(http.StatusConflict, "duplicate_name")
	ErrConflict       = newError(http.StatusConflict, "conflict")
	ErrRateLimited    = newError(http.StatusTooManyRequests, "rate_limited")
	ErrTooLarge       = newError(http.StatusRequestEntityTooLarge, "payload_too_large")
	ErrServer         = newError(http.StatusInternalServerError, "server_error")
)

// From extracts an *Error from err. Unknown errors become ErrServer and ok is false.
func From(err error) (e *Error, ok bool) {
	if errors.As(err, &e) {
		return e, true
	}
	return ErrServer, false
}
