// Package token signs, verifies, decodes, and revokes the JSON Web Tokens
// used as access credentials and single-purpose reset credentials.
//
// Identity claims (sub, email) never appear in plaintext inside a
// distributed token: they are sealed with crypto.EncryptField under the
// signing secret before signing, and callers decrypt them explicitly after
// verification. Signing is HS256 over a KeySet: an ordered list of secrets
// where the newest always signs and verification tries each in turn, so a
// secret can be rotated without invalidating tokens issued under its
// predecessor.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"authd/internal/crypto"
	"authd/internal/scope"
)

const resetPurpose = "password_reset"

var (
	// ErrTokenInvalid reports a malformed token, a bad signature, missing
	// required claims, or a claim-decryption failure.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired reports a structurally valid token past its exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked reports a token with an active revocation marker.
	// Revocation takes precedence over a valid signature and expiry.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrNoSecrets reports an empty key set.
	ErrNoSecrets = errors.New("key set requires at least one secret")
)

// Revocations is the marker store consulted during verification. A nil
// Revocations disables the check (reset tokens use this path).
type Revocations interface {
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
	RevokeToken(ctx context.Context, token string, ttl time.Duration) error
}

// AccessClaims is the explicit access-token payload. Subject and Email hold
// encrypted envelopes on the wire; a payload missing any required field is
// rejected at the parse boundary rather than discovered downstream.
type AccessClaims struct {
	Email string      `json:"email"`
	Scope scope.Scope `json:"scope"`
	jwt.RegisteredClaims
}

// ResetClaims is the payload of single-purpose password-reset tokens.
// Subject holds the encrypted user id.
type ResetClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Service is the token engine. Safe for concurrent use after construction.
type Service struct {
	secrets     []string
	accessTTL   time.Duration
	revocations Revocations
}

// NewService builds a Service. secrets[0] signs; the rest are retired
// secrets still accepted for verification. revocations may be nil.
func NewService(secrets []string, accessTTL time.Duration, revocations Revocations) (*Service, error) {
	kept := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNoSecrets
	}
	if accessTTL <= 0 {
		return nil, errors.New("invalid access TTL")
	}
	return &Service{secrets: kept, accessTTL: accessTTL, revocations: revocations}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

func (s *Service) signingSecret() string { return s.secrets[0] }

// SignAccess seals identity claims and signs an access token expiring
// accessTTL from now.
func (s *Service) SignAccess(userID, email string, sc scope.Scope, now time.Time) (string, time.Time, error) {
	secret := s.signingSecret()

	encSub, err := crypto.EncryptField(userID, secret)
	if err != nil {
		return "", time.Time{}, err
	}
	encEmail, err := crypto.EncryptField(email, secret)
	if err != nil {
		return "", time.Time{}, err
	}

	exp := now.Add(s.accessTTL)
	claims := AccessClaims{
		Email: encEmail,
		Scope: sc,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   encSub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *Service) parse(tokenStr string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	var lastErr error
	for _, secret := range s.secrets {
		key := secret
		_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(key), nil
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}

	if errors.Is(lastErr, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrTokenInvalid, lastErr)
}

// VerifyAccess validates signature and expiry, consulting the revocation
// store first when one is configured: a marker fails the token even if it
// is otherwise valid. Returned claims still carry encrypted sub/email.
func (s *Service) VerifyAccess(ctx context.Context, tokenStr string) (*AccessClaims, error) {
	if s.revocations != nil {
		revoked, err := s.revocations.IsTokenRevoked(ctx, tokenStr)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	claims := &AccessClaims{}
	if err := s.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrTokenInvalid)
	}
	if _, err := scope.Parse(string(claims.Scope)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

// DecryptAccess opens the sealed identity claims. Each configured secret is
// tried because the token may have been issued under a retired one. Failure
// maps to ErrTokenInvalid, never a raw decryption error.
func (s *Service) DecryptAccess(claims *AccessClaims) (userID, email string, err error) {
	for _, secret := range s.secrets {
		sub, subErr := crypto.DecryptField(claims.Subject, secret)
		if subErr != nil {
			continue
		}
		mail, mailErr := crypto.DecryptField(claims.Email, secret)
		if mailErr != nil {
			continue
		}
		return sub, mail, nil
	}
	return "", "", fmt.Errorf("%w: invalid token data", ErrTokenInvalid)
}

// Decode extracts claims without verifying the signature. Safe only for
// non-trust-sensitive reads such as computing a cookie max-age from exp;
// it must never be used to authorize access.
func (s *Service) Decode(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: token has no expiration", ErrTokenInvalid)
	}
	return claims, nil
}

// Revoke stores a marker for the raw token with TTL equal to the token's
// remaining lifetime. Already-expired tokens are skipped: no revocation
// entry should outlive the token it revokes.
func (s *Service) Revoke(ctx context.Context, tokenStr string) error {
	if s.revocations == nil {
		return errors.New("revocation store not configured")
	}

	claims, err := s.Decode(tokenStr)
	if err != nil {
		return err
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	return s.revocations.RevokeToken(ctx, tokenStr, ttl)
}

// SignReset issues a single-purpose password-reset token with an encrypted
// user id, using the same claim-encryption discipline as access tokens.
func (s *Service) SignReset(userID, email string, ttl time.Duration, now time.Time) (string, error) {
	secret := s.signingSecret()

	encSub, err := crypto.EncryptField(userID, secret)
	if err != nil {
		return "", err
	}

	claims := ResetClaims{
		Email:   email,
		Purpose: resetPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   encSub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyReset validates a reset token. Reset tokens skip the revocation
// store; their short TTL and single-purpose claim bound the exposure.
func (s *Service) VerifyReset(tokenStr string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	if err := s.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.Purpose != resetPurpose {
		return nil, fmt.Errorf("%w: not a reset token", ErrTokenInvalid)
	}
	return claims, nil
}

// DecryptResetSubject opens the encrypted user id of a verified reset token.
func (s *Service) DecryptResetSubject(claims *ResetClaims) (string, error) {
	for _, secret := range s.secrets {
		sub, err := crypto.DecryptField(claims.Subject, secret)
		if err == nil {
			return sub, nil
		}
	}
	return "", fmt.Errorf("%w: invalid token data", ErrTokenInvalid)
}
