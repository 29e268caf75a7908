// Package attest implements device attestation for mobile clients. The
// server hands out a single-use challenge; the client binds its next request
// to that challenge with a signature under a previously enrolled device key,
// proving both key possession and request integrity.
//
// The request binding is sha256(canonicalJSON(body) || nonce), so neither
// the body nor the challenge can be swapped after signing.
package attest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"authd/internal/crypto"
	"authd/internal/kv"
)

var (
	// ErrAttestationInvalid reports a failed or tampered assertion.
	ErrAttestationInvalid = errors.New("attestation invalid")
	// ErrChallengeExpired reports a missing or already-consumed challenge.
	ErrChallengeExpired = errors.New("attestation challenge expired")
	// ErrKeyNotEnrolled reports a client with no registered device key.
	ErrKeyNotEnrolled = errors.New("device key not enrolled")
	// ErrBadKey reports an enrollment payload that is not an EC P-256 key.
	ErrBadKey = errors.New("invalid device public key")
)

// Assertion is the decoded client attestation header: the echoed challenge
// and an ASN.1 ECDSA signature over the request binding, both produced by
// the enrolled device key.
type Assertion struct {
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

// Verifier checks a device signature over a digest. Implementations are
// interchangeable so tests can substitute their own and future attestation
// schemes can plug in without touching the flow.
type Verifier interface {
	Verify(publicKeyPEM string, digest, signature []byte) error
}

// ECDSAVerifier verifies ASN.1 ECDSA signatures under P-256 keys, the
// format App Attest hardware keys produce.
type ECDSAVerifier struct{}

// Verify checks sig over digest with the PEM-encoded public key.
func (ECDSAVerifier) Verify(publicKeyPEM string, digest, signature []byte) error {
	pub, err := parseECPublicKey(publicKeyPEM)
	if err != nil {
		return err
	}
	if !ecdsa.VerifyASN1(pub, digest, signature) {
		return ErrAttestationInvalid
	}
	return nil
}

func parseECPublicKey(publicKeyPEM string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, ErrBadKey
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, ErrBadKey
	}
	return pub, nil
}

// Service runs the challenge/enroll/assert lifecycle. With Bypass set the
// assertion check is skipped entirely, for local development without a
// device.
type Service struct {
	store    *kv.Store
	verifier Verifier
	bypass   bool
}

// NewService builds the attestation service.
func NewService(store *kv.Store, verifier Verifier, bypass bool) *Service {
	return &Service{store: store, verifier: verifier, bypass: bypass}
}

// Bypass reports whether assertion checks are disabled.
func (s *Service) Bypass() bool { return s.bypass }

// Challenge mints and stores a single-use nonce for (clientID, requestID).
// Reissuing for the same pair overwrites the previous nonce.
func (s *Service) Challenge(ctx context.Context, clientID, requestID string) (string, error) {
	nonce := crypto.Nonce()
	if err := s.store.PutAttestationNonce(ctx, clientID, requestID, nonce); err != nil {
		return "", err
	}
	return nonce, nil
}

// RegisterKey enrolls the device public key for clientID after checking it
// parses as an EC P-256 key. Re-enrollment replaces the previous key.
func (s *Service) RegisterKey(ctx context.Context, clientID, publicKeyPEM string) error {
	if _, err := parseECPublicKey(publicKeyPEM); err != nil {
		return err
	}
	return s.store.PutAppAttestKey(ctx, clientID, publicKeyPEM)
}

// VerifyRequest checks the attestation header against the stored challenge
// and enrolled key, then consumes the challenge. Consumption happens only
// after a successful signature check, so a transient failure does not burn
// the nonce; of two concurrent valid replays at most one survives the
// consume step.
func (s *Service) VerifyRequest(ctx context.Context, clientID, requestID, header string, body []byte) error {
	if s.bypass {
		return nil
	}

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return fmt.Errorf("%w: malformed header", ErrAttestationInvalid)
	}
	var assertion Assertion
	if err := json.Unmarshal(decoded, &assertion); err != nil || assertion.Challenge == "" || assertion.Signature == "" {
		return fmt.Errorf("%w: malformed assertion", ErrAttestationInvalid)
	}
	signature, err := base64.StdEncoding.DecodeString(assertion.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrAttestationInvalid)
	}

	nonce, err := s.store.AttestationNonce(ctx, clientID, requestID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrChallengeExpired
		}
		return err
	}
	if subtle.ConstantTimeCompare([]byte(assertion.Challenge), []byte(nonce)) != 1 {
		return fmt.Errorf("%w: challenge mismatch", ErrAttestationInvalid)
	}

	keyPEM, err := s.store.AppAttestKey(ctx, clientID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrKeyNotEnrolled
		}
		return err
	}

	digest, err := RequestDigest(body, nonce)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttestationInvalid, err)
	}
	if err := s.verifier.Verify(keyPEM, digest, signature); err != nil {
		return fmt.Errorf("%w: signature check failed", ErrAttestationInvalid)
	}

	consumed, err := s.store.ConsumeAttestationNonce(ctx, clientID, requestID)
	if err != nil {
		return err
	}
	if !consumed {
		return ErrChallengeExpired
	}
	return nil
}

// RequestDigest computes the binding a device signs:
// sha256(canonicalJSON(body) || nonce).
func RequestDigest(body []byte, nonce string) ([]byte, error) {
	canonical, err := CanonicalJSON(body)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(append(canonical, []byte(nonce)...))
	return sum[:], nil
}
