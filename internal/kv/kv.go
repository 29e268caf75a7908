// Package kv wraps the shared TTL key-value store behind typed accessors
// for every ephemeral state category the engine keeps: verification codes
// and their attempt counters, password-reset attempt counters, attestation
// nonces and enrolled keys, and revoked-token markers.
//
// Keys are deterministic composites of the form base-key1[-key2]. Each
// feature owns exactly one base; no two features may share a prefix.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Base is a reserved key prefix for one ephemeral state category.
type Base string

const (
	// BaseEmailVerificationCode holds the current 6-char code per user.
	BaseEmailVerificationCode Base = "EVC"
	// BaseEmailVerificationAttempts counts code issuances and failed
	// checks per user.
	BaseEmailVerificationAttempts Base = "EVA"
	// BasePasswordResetAttempts counts reset requests per email.
	BasePasswordResetAttempts Base = "PRCA"
	// BaseFailedLoginAttempts counts consecutive bad logins per email.
	BaseFailedLoginAttempts Base = "FLA"
	// BaseAttestationNonce holds single-use challenges per client+request.
	BaseAttestationNonce Base = "AN"
	// BaseAppAttestKey holds the enrolled device public key per client.
	BaseAppAttestKey Base = "AAK"
	// BaseRevokedToken marks explicitly revoked access tokens.
	BaseRevokedToken Base = "RVK"
	// BaseRequestThrottle backs the sliding-window request limiter.
	BaseRequestThrottle Base = "RL"
)

const (
	// EmailVerificationCodeTTL bounds how long an issued code stays valid.
	EmailVerificationCodeTTL = 24 * time.Hour
	// PasswordResetAttemptsTTL is the reset-request counting window.
	PasswordResetAttemptsTTL = 24 * time.Hour
	// AttestationNonceTTL bounds the challenge/assert round trip.
	AttestationNonceTTL = 30 * time.Minute
	// AppAttestKeyTTL forces periodic device re-enrollment.
	AppAttestKeyTTL = 30 * 24 * time.Hour
)

var (
	// ErrNotFound reports a missing or expired key.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable reports an unreachable backend.
	ErrUnavailable = errors.New("kv: backend unavailable")
)

// Key builds the composite key for base and one or two discriminators.
func Key(base Base, key1 string, key2 ...string) string {
	k := string(base) + "-" + key1
	if len(key2) > 0 && key2[0] != "" {
		k += "-" + key2[0]
	}
	return k
}

// Store is the typed wrapper over the shared Redis namespace.
type Store struct {
	redis redis.UniversalClient
}

// NewStore wraps the given client.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{redis: client}
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, nil
}

func (s *Store) put(ctx context.Context, key, val string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (s *Store) getCounter(ctx context.Context, key string) (int, error) {
	val, err := s.get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(val)
	if convErr != nil {
		return 0, nil
	}
	return n, nil
}

// EmailVerificationCode returns the active code for userID.
func (s *Store) EmailVerificationCode(ctx context.Context, userID string) (string, error) {
	return s.get(ctx, Key(BaseEmailVerificationCode, userID))
}

// PutEmailVerificationCode stores a freshly issued code for userID.
func (s *Store) PutEmailVerificationCode(ctx context.Context, userID, code string) error {
	return s.put(ctx, Key(BaseEmailVerificationCode, userID), code, EmailVerificationCodeTTL)
}

// DeleteEmailVerificationCode removes the code after successful consumption.
func (s *Store) DeleteEmailVerificationCode(ctx context.Context, userID string) error {
	_, err := s.delete(ctx, Key(BaseEmailVerificationCode, userID))
	return err
}

// EmailVerificationAttempts returns the attempt counter for userID. It
// counts issuances and failed checks together.
func (s *Store) EmailVerificationAttempts(ctx context.Context, userID string) (int, error) {
	return s.getCounter(ctx, Key(BaseEmailVerificationAttempts, userID))
}

// SetEmailVerificationAttempts overwrites the attempt counter, renewing
// its 24h window.
func (s *Store) SetEmailVerificationAttempts(ctx context.Context, userID string, count int) error {
	return s.put(ctx, Key(BaseEmailVerificationAttempts, userID), strconv.Itoa(count), EmailVerificationCodeTTL)
}

// ResetEmailVerificationAttempts clears the attempt counter.
func (s *Store) ResetEmailVerificationAttempts(ctx context.Context, userID string) error {
	_, err := s.delete(ctx, Key(BaseEmailVerificationAttempts, userID))
	return err
}

// PasswordResetAttempts returns the reset-request counter for email.
func (s *Store) PasswordResetAttempts(ctx context.Context, email string) (int, error) {
	return s.getCounter(ctx, Key(BasePasswordResetAttempts, email))
}

// SetPasswordResetAttempts overwrites the reset-request counter.
func (s *Store) SetPasswordResetAttempts(ctx context.Context, email string, count int) error {
	return s.put(ctx, Key(BasePasswordResetAttempts, email), strconv.Itoa(count), PasswordResetAttemptsTTL)
}

// PutAttestationNonce stores the challenge for a (clientID, requestID) pair.
func (s *Store) PutAttestationNonce(ctx context.Context, clientID, requestID, nonce string) error {
	return s.put(ctx, Key(BaseAttestationNonce, clientID, requestID), nonce, AttestationNonceTTL)
}

// AttestationNonce returns the stored challenge for the pair.
func (s *Store) AttestationNonce(ctx context.Context, clientID, requestID string) (string, error) {
	return s.get(ctx, Key(BaseAttestationNonce, clientID, requestID))
}

// ConsumeAttestationNonce deletes the challenge and reports whether this
// caller performed the deletion. The delete is the serialization point for
// single-use enforcement: under two concurrent consumers at most one sees
// true.
func (s *Store) ConsumeAttestationNonce(ctx context.Context, clientID, requestID string) (bool, error) {
	return s.delete(ctx, Key(BaseAttestationNonce, clientID, requestID))
}

// PutAppAttestKey enrolls the device public key for clientID.
func (s *Store) PutAppAttestKey(ctx context.Context, clientID, publicKeyPEM string) error {
	return s.put(ctx, Key(BaseAppAttestKey, clientID), publicKeyPEM, AppAttestKeyTTL)
}

// AppAttestKey returns the enrolled public key for clientID.
func (s *Store) AppAttestKey(ctx context.Context, clientID string) (string, error) {
	return s.get(ctx, Key(BaseAppAttestKey, clientID))
}

// RevokeToken writes a revocation marker for the raw token. TTL must be the
// token's remaining lifetime so the marker never outlives what it revokes.
func (s *Store) RevokeToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.put(ctx, Key(BaseRevokedToken, token), "revoked", ttl)
}

// IsTokenRevoked reports whether a revocation marker exists for the token.
func (s *Store) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	_, err := s.get(ctx, Key(BaseRevokedToken, token))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
