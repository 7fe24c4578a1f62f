package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPEM(t *testing.T) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), key
}

func TestSignerHeaders(t *testing.T) {
	pemBytes, key := testKeyPEM(t)
	s, err := NewSigner("key-id", pemBytes)
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1748736000000) }

	h, err := s.Headers(http.MethodPost, "/portfolio/orders")
	require.NoError(t, err)

	assert.Equal(t, "key-id", h.Get("KALSHI-ACCESS-KEY"))
	assert.Equal(t, "1748736000000", h.Get("KALSHI-ACCESS-TIMESTAMP"))

	sig, err := base64.StdEncoding.DecodeString(h.Get("KALSHI-ACCESS-SIGNATURE"))
	require.NoError(t, err)

	msg := "1748736000000POST" + apiPathPrefix + "/portfolio/orders"
	digest := sha256.Sum256([]byte(msg))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	assert.NoError(t, err, "signature covers timestamp + method + full path")
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	_, err := NewSigner("key-id", []byte("not pem"))
	assert.Error(t, err)
}
