package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map them to user-visible messages and
// HTTP status codes without leaking infrastructure details.
var (
	ErrValidation      = errors.New("validation failed")
	ErrAuthentication  = errors.New("authentication failed")
	ErrIntegrity       = errors.New("identity mismatch")
	ErrNotFound        = errors.New("not found")
	ErrUnavailable     = errors.New("service unavailable")
	ErrTransport       = errors.New("transport failure")
	ErrInvalidResponse = errors.New("invalid response")
	ErrBusy            = errors.New("request already in progress")
	ErrOutOfRange      = errors.New("index out of range")
	ErrConflict        = errors.New("conflict")
	ErrSignedOut       = errors.New("not signed in")
	ErrRateLimited     = errors.New("too many requests")
)

// ValidationError is returned by pre-flight checks. It never reaches a network call.
type ValidationError struct {
	Flow   string
	Fields []string
	Reason string
}

func NewValidationError(flow, reason string, fields ...string) *ValidationError {
	return &ValidationError{Flow: flow, Fields: fields, Reason: reason}
}

func (e *ValidationError) Error() string {
	msg := e.Flow + ": " + e.Reason
	if len(e.Fields) > 0 {
		msg += fmt.Sprintf(" (%s)", strings.Join(e.Fields, ", "))
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
