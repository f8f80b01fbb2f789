// Package common defines the error taxonomy and small helpers shared by the
// server, the CLI and the repositories. Callers should use errors.Is to match
// the sentinel kinds.
package common

import (
	"errors"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorBusiness     = errors.New("business rule violation")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Error attaches human-readable messages to one of the sentinel kinds above.
// It unwraps to its kind, so errors.Is(err, ErrorNotFound) works on it.
type Error struct {
	Kind     error
	Messages []string
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + strings.Join(e.Messages, "; ")
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// NewError builds an *Error of the given kind.
func NewError(kind error, messages ...string) error {
	return &Error{Kind: kind, Messages: messages}
}

func NotFound(msg string) error     { return NewError(ErrorNotFound, msg) }
func Unauthorized(msg string) error { return NewError(ErrorUnauthorized, msg) }
func Forbidden(msg string) error    { return NewError(ErrorForbidden, msg) }
func Conflict(msg string) error     { return NewError(ErrorConflict, msg) }

// Business reports a domain rule violation with one or more reasons.
func Business(reasons ...string) error { return NewError(ErrorBusiness, reasons...) }

// Messages returns the human-readable messages carried by err, if any.
func Messages(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Messages
	}
	return nil
}

// Kind returns the taxonomy sentinel err belongs to, or ErrorInternal when it
// matches none of them.
func Kind(err error) error {
	for _, k := range []error{ErrorNotFound, ErrorUnauthorized, ErrorForbidden, ErrorConflict, ErrorBusiness} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrorInternal
}
