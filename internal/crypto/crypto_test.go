package crypto

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	secrets := []string{"s", "a-much-longer-secret-than-32-bytes-for-key-derivation", "üñïçødé"}
	plaintexts := []string{"", "x", "user-1234", strings.Repeat("p", 4096)}

	for _, secret := range secrets {
		for _, plaintext := range plaintexts {
			envelope, err := EncryptField(plaintext, secret)
			require.NoError(t, err)

			got, err := DecryptField(envelope, secret)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)
		}
	}
}

func TestEncryptFieldEnvelopeFormat(t *testing.T) {
	envelope, err := EncryptField("payload", "secret")
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	require.Len(t, parts, 3)

	iv, err := hex.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Len(t, iv, 12)

	tag, err := hex.DecodeString(parts[2])
	require.NoError(t, err)
	assert.Len(t, tag, 16)
}

func TestDecryptFieldWrongSecret(t *testing.T) {
	envelope, err := EncryptField("payload", "secret-a")
	require.NoError(t, err)

	_, err = DecryptField(envelope, "secret-b")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptFieldTamperedEnvelope(t *testing.T) {
	envelope, err := EncryptField("payload-to-protect", "secret")
	require.NoError(t, err)

	// Flipping any hex digit of any component must fail closed.
	for i := 0; i < len(envelope); i++ {
		if envelope[i] == ':' {
			continue
		}
		flipped := byte('0')
		if envelope[i] == '0' {
			flipped = '1'
		}
		tampered := envelope[:i] + string(flipped) + envelope[i+1:]
		if tampered == envelope {
			continue
		}

		got, err := DecryptField(tampered, "secret")
		assert.ErrorIs(t, err, ErrDecryption, "offset %d yielded %q", i, got)
	}
}

func TestDecryptFieldMalformed(t *testing.T) {
	cases := []string{
		"",
		"deadbeef",
		"aa:bb",
		":ciphertext:tag",
		"nothex:00:00000000000000000000000000000000",
	}
	for _, envelope := range cases {
		_, err := DecryptField(envelope, "secret")
		assert.ErrorIs(t, err, ErrDecryption, "envelope %q", envelope)
	}
}

func TestHashDeterministic(t *testing.T) {
	assert.Equal(t, Hash("token"), Hash("token"))
	assert.NotEqual(t, Hash("token"), Hash("token2"))
	assert.Len(t, Hash("token"), 64)
}

func TestVerificationCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		code, err := VerificationCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}
		seen[code] = true
	}
	// 64 draws from a 36^6 space colliding down to a handful would mean
	// broken randomness.
	assert.Greater(t, len(seen), 60)
}

func TestOpaqueSecretLength(t *testing.T) {
	s, err := OpaqueSecret(RefreshSecretBytes)
	require.NoError(t, err)
	assert.Len(t, s, 128)

	other, err := OpaqueSecret(RefreshSecretBytes)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}
