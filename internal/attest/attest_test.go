package attest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/kv"
)

func newTestService(t *testing.T, bypass bool) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kv.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return NewService(store, ECDSAVerifier{}, bypass)
}

func newDeviceKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(pemBytes)
}

func signHeader(t *testing.T, key *ecdsa.PrivateKey, nonce string, body []byte) string {
	t.Helper()
	digest, err := RequestDigest(body, nonce)
	require.NoError(t, err)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest)
	require.NoError(t, err)

	raw, err := json.Marshal(Assertion{
		Challenge: nonce,
		Signature: base64.StdEncoding.EncodeToString(sig),
	})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestCanonicalJSON(t *testing.T) {
	a := []byte(`{"b": 2, "a": {"y": 1.50, "x": "v"}}`)
	b := []byte("{\"a\":{\"x\":\"v\",\n  \"y\":1.50},\"b\":2}")

	ca, err := CanonicalJSON(a)
	require.NoError(t, err)
	cb, err := CanonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)

	// Number text is preserved, not re-rendered through float64.
	assert.Contains(t, string(ca), "1.50")

	empty, err := CanonicalJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(empty))

	_, err = CanonicalJSON([]byte("{not json"))
	assert.Error(t, err)
}

func TestVerifyRequestHappyPath(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, false)
	key, pubPEM := newDeviceKey(t)

	require.NoError(t, svc.RegisterKey(ctx, "client-1", pubPEM))
	nonce, err := svc.Challenge(ctx, "client-1", "req-1")
	require.NoError(t, err)

	body := []byte(`{"email":"a@b.com","password":"secret"}`)
	header := signHeader(t, key, nonce, body)

	assert.NoError(t, svc.VerifyRequest(ctx, "client-1", "req-1", header, body))
}

func TestVerifyRequestIsSingleUse(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, false)
	key, pubPEM := newDeviceKey(t)

	require.NoError(t, svc.RegisterKey(ctx, "client-1", pubPEM))
	nonce, err := svc.Challenge(ctx, "client-1", "req-1")
	require.NoError(t, err)

	body := []byte(`{"n":1}`)
	header := signHeader(t, key, nonce, body)

	require.NoError(t, svc.VerifyRequest(ctx, "client-1", "req-1", header, body))

	// Byte-identical replay: the challenge is gone.
	err = svc.VerifyRequest(ctx, "client-1", "req-1", header, body)
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestVerifyRequestTamperedBody(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, false)
	key, pubPEM := newDeviceKey(t)

	require.NoError(t, svc.RegisterKey(ctx, "client-1", pubPEM))
	nonce, err := svc.Challenge(ctx, "client-1", "req-1")
	require.NoError(t, err)

	header := signHeader(t, key, nonce, []byte(`{"amount":1}`))
	err = svc.VerifyRequest(ctx, "client-1", "req-1", header, []byte(`{"amount":9999}`))
	assert.ErrorIs(t, err, ErrAttestationInvalid)

	// The failed check does not burn the challenge.
	assert.NoError(t, svc.VerifyRequest(ctx, "client-1", "req-1", header, []byte(`{"amount":1}`)))
}

func TestVerifyRequestWrongChallenge(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, false)
	key, pubPEM := newDeviceKey(t)

	require.NoError(t, svc.RegisterKey(ctx, "client-1", pubPEM))
	_, err := svc.Challenge(ctx, "client-1", "req-1")
	require.NoError(t, err)

	body := []byte(`{"n":1}`)
	header := signHeader(t, key, "some-other-nonce", body)
	err = svc.VerifyRequest(ctx, "client-1", "req-1", header, body)
	assert.ErrorIs(t, err, ErrAttestationInvalid)
}

func TestVerifyRequestNoChallenge(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, false)
	key, pubPEM := newDeviceKey(t)

	require.NoError(t, svc.RegisterKey(ctx, "client-1", pubPEM))
	header := signHeader(t, key, "nonce", []byte(`{}`))

	err := svc.VerifyRequest(ctx, "client-1", "req-1", header, []byte(`{}`))
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestVerifyRequestUnenrolledClient(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, false)
	key, _ := newDeviceKey(t)

	nonce, err := svc.Challenge(ctx, "client-1", "req-1")
	require.NoError(t, err)

	body := []byte(`{}`)
	err = svc.VerifyRequest(ctx, "client-1", "req-1", signHeader(t, key, nonce, body), body)
	assert.ErrorIs(t, err, ErrKeyNotEnrolled)
}

func TestVerifyRequestWrongKey(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, false)
	_, enrolledPEM := newDeviceKey(t)
	otherKey, _ := newDeviceKey(t)

	require.NoError(t, svc.RegisterKey(ctx, "client-1", enrolledPEM))
	nonce, err := svc.Challenge(ctx, "client-1", "req-1")
	require.NoError(t, err)

	body := []byte(`{}`)
	err = svc.VerifyRequest(ctx, "client-1", "req-1", signHeader(t, otherKey, nonce, body), body)
	assert.ErrorIs(t, err, ErrAttestationInvalid)
}

func TestVerifyRequestMalformedHeader(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, false)

	for _, header := range []string{
		"not base64 !!!",
		base64.StdEncoding.EncodeToString([]byte("not json")),
		base64.StdEncoding.EncodeToString([]byte(`{"challenge":""}`)),
		base64.StdEncoding.EncodeToString([]byte(`{"challenge":"c","signature":"***"}`)),
	} {
		err := svc.VerifyRequest(ctx, "client-1", "req-1", header, []byte(`{}`))
		assert.ErrorIs(t, err, ErrAttestationInvalid, "header %q", header)
	}
}

func TestRegisterKeyRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, false)

	assert.ErrorIs(t, svc.RegisterKey(ctx, "client-1", "not pem"), ErrBadKey)

	// A valid PEM that is not an EC P-256 public key.
	badBlock := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte("garbage")})
	assert.ErrorIs(t, svc.RegisterKey(ctx, "client-1", string(badBlock)), ErrBadKey)
}

func TestBypassSkipsEverything(t *testing.T) {
	svc := newTestService(t, true)
	assert.NoError(t, svc.VerifyRequest(context.Background(), "client-1", "req-1", "", nil))
}
