// Package apperrors defines the closed set of outcomes the catalogue reports to its callers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind int

const (
	// KindUpstream is the zero value so unclassified errors map to a 500.
	KindUpstream Kind = iota
	KindValidation
	KindAuthDenied
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthDenied:
		return "auth_denied"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "upstream"
	}
}

// StatusCode maps a kind to its HTTP status.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthDenied:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind, a client-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, a ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, a...)}
}

func Conflict(format string, a ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, a...)}
}

func NotFound(format string, a ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, a...)}
}

func AuthDenied(format string, a ...any) error {
	return &Error{Kind: KindAuthDenied, Message: fmt.Sprintf(format, a...)}
}

// Upstream wraps a storage or identity provider failure.
func Upstream(err error, format string, a ...any) error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, a...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUpstream.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-safe message for err. Upstream causes are never exposed.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
