// Package emailaddr normalizes and validates account email addresses.
// Normalization runs before every storage lookup so that one mailbox maps
// to exactly one account regardless of case or plus-suffix aliases.
package emailaddr

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalid reports a syntactically unacceptable address.
	ErrInvalid = errors.New("invalid email address")
	// ErrDisposable reports an address on a known throwaway domain.
	ErrDisposable = errors.New("disposable email addresses are not allowed")
)

var addressPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Domains whose only purpose is throwaway inboxes. Kept small on purpose;
// anything smarter belongs in an external reputation service.
var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"temp-mail.org":     {},
	"yopmail.com":       {},
	"sharklasers.com":   {},
	"trashmail.com":     {},
	"getnada.com":       {},
	"dispostable.com":   {},
}

// Normalize lowercases the address and strips a plus-suffix from the local
// part, so "User+tag@Example.com" and "user@example.com" address the same
// account.
func Normalize(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.Index(local, "+"); plus > 0 {
		local = local[:plus]
	}
	return local + "@" + domain
}

// Validate checks the normalized address for shape and rejects disposable
// domains. It assumes Normalize has already run.
func Validate(email string) error {
	if len(email) > 254 || !addressPattern.MatchString(email) {
		return ErrInvalid
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	if _, ok := disposableDomains[domain]; ok {
		return ErrDisposable
	}
	return nil
}
