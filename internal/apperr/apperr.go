// Package apperr defines the error taxonomy shared by every subsystem.
//
// Kinds are aligned with HTTP status codes but carry no HTTP dependency:
// the boundary layer owns the mapping. Internal failure details are wrapped
// so they never leak into client-visible messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the response taxonomy.
type Kind int

const (
	// KindInternal is the default for unclassified failures.
	KindInternal Kind = iota
	// KindBadRequest marks malformed or missing input.
	KindBadRequest
	// KindUnauthorized marks a missing, invalid, expired, or revoked credential.
	KindUnauthorized
	// KindForbidden marks an identified but disallowed caller (lockout, limits).
	KindForbidden
	// KindNotFound marks a missing resource.
	KindNotFound
	// KindTooManyRequests marks rate or weight budget exhaustion.
	KindTooManyRequests
)

// Error carries a kind, a client-safe message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// BadRequest creates a KindBadRequest error.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// Unauthorized creates a KindUnauthorized error.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Forbidden creates a KindForbidden error.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound creates a KindNotFound error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// TooManyRequests creates a KindTooManyRequests error.
func TooManyRequests(message string) *Error {
	return &Error{Kind: KindTooManyRequests, Message: message}
}

// Internal wraps an unexpected collaborator failure. The message shown to
// clients is always generic; cause stays server-side.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

// KindOf extracts the taxonomy kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err. Internal and
// unclassified errors collapse to a generic message; their context is for
// logs only and never reaches the client.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}
