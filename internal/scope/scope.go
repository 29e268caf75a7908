// Package scope models the coarse privilege tier carried in access tokens.
package scope

import "errors"

// Scope is a user's privilege tier. Ordering: Unverified < User < Admin.
type Scope string

const (
	// Unverified is the tier assigned at registration, before email verification.
	Unverified Scope = "unverified"
	// User is the tier granted once the email address is verified.
	User Scope = "user"
	// Admin is assigned out-of-band and passes every scope requirement.
	Admin Scope = "admin"
)

// ErrInvalidScope reports a scope value outside the known set.
var ErrInvalidScope = errors.New("invalid scope")

// Parse validates a raw scope string.
func Parse(raw string) (Scope, error) {
	switch Scope(raw) {
	case Unverified, User, Admin:
		return Scope(raw), nil
	}
	return "", ErrInvalidScope
}

func rank(s Scope) int {
	switch s {
	case Unverified:
		return 1
	case User:
		return 2
	case Admin:
		return 3
	}
	return 0
}

// Allows reports whether actual satisfies the required minimum scope.
// A nil requirement passes everything; Admin passes regardless of the
// requirement; otherwise actual must rank at or above required.
func Allows(required *Scope, actual Scope) bool {
	if required == nil {
		return true
	}
	if actual == Admin {
		return true
	}
	ar := rank(actual)
	if ar == 0 {
		return false
	}
	return ar >= rank(*required)
}

// Require is a convenience for building guard configurations.
func Require(s Scope) *Scope { return &s }
