// Package crypto holds the primitives every credential path builds on:
// one-way hashing, authenticated field encryption, and random material
// generation for codes, secrets, and nonces.
//
// EncryptField/DecryptField implement the envelope format shared with
// clients: hex(iv):hex(ciphertext):hex(tag), AES-256-GCM with a key
// derived from the secret via SHA-256. Deriving the key keeps the AES key
// length fixed regardless of how the deployment sizes its secret.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	ivSize  = 12
	tagSize = 16

	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength   = 6

	// RefreshSecretBytes is the raw entropy behind a refresh token
	// (128 hex chars on the wire).
	RefreshSecretBytes = 64
)

// ErrDecryption reports a malformed envelope or failed authentication tag.
// Decryption fails closed: tampering never yields plaintext.
var ErrDecryption = errors.New("decryption failed")

// Hash returns the SHA-256 hex digest of input. Deterministic and unsalted;
// callers must guarantee uniqueness through the randomness of the pre-hash
// value (refresh secrets, fingerprints).
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// EncryptField seals plaintext under a key derived from secret and returns
// the hex(iv):hex(ciphertext):hex(tag) envelope.
func EncryptField(plaintext, secret string) (string, error) {
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext) + ":" + hex.EncodeToString(tag), nil
}

// DecryptField opens an envelope produced by EncryptField. Any missing
// component, bad hex, or tag mismatch yields ErrDecryption.
func DecryptField(envelope, secret string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", ErrDecryption
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrDecryption
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrDecryption
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != tagSize {
		return "", ErrDecryption
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", ErrDecryption
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryption
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

// VerificationCode returns a 6-character uppercase base36 code.
// The 36^6 space is the brute-force defense only in combination with the
// attempt caps enforced by the stores that hold these codes.
func VerificationCode() (string, error) {
	var b strings.Builder
	b.Grow(codeLength)

	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// OpaqueSecret returns n cryptographically random bytes hex encoded.
func OpaqueSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Nonce returns a UUIDv4 challenge value.
func Nonce() string {
	return uuid.NewString()
}
