package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestHeadersSignVerifiably(t *testing.T) {
	key := testKey(t)
	creds := &Credentials{KeyID: "test-key-id", PrivateKey: key}

	headers, err := creds.Headers("GET", "/trade-api/v2/portfolio/balance")
	require.NoError(t, err)

	assert.Equal(t, "test-key-id", headers["KALSHI-ACCESS-KEY"])
	require.NotEmpty(t, headers["KALSHI-ACCESS-TIMESTAMP"])
	require.NotEmpty(t, headers["KALSHI-ACCESS-SIGNATURE"])

	// The signature must verify against timestamp + method + path.
	sig, err := base64.StdEncoding.DecodeString(headers["KALSHI-ACCESS-SIGNATURE"])
	require.NoError(t, err)
	message := fmt.Sprintf("%sGET/trade-api/v2/portfolio/balance", headers["KALSHI-ACCESS-TIMESTAMP"])
	hashed := sha256.Sum256([]byte(message))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hashed[:], sig,
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	assert.NoError(t, err)
}

func TestLoadCredentialsPKCS8(t *testing.T) {
	key := testKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path,
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	creds, err := LoadCredentials("my-key-id", path)
	require.NoError(t, err)
	assert.Equal(t, "my-key-id", creds.KeyID)
	assert.Zero(t, creds.PrivateKey.N.Cmp(key.N))
}

func TestLoadCredentialsPKCS1(t *testing.T) {
	key := testKey(t)
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path,
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600))

	creds, err := LoadCredentials("my-key-id", path)
	require.NoError(t, err)
	assert.Zero(t, creds.PrivateKey.N.Cmp(key.N))
}

func TestLoadCredentialsErrors(t *testing.T) {
	_, err := LoadCredentials("", "/some/path")
	assert.Error(t, err)

	_, err = LoadCredentials("key-id", "")
	assert.Error(t, err)

	_, err = LoadCredentials("key-id", "/nonexistent/key.pem")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a pem"), 0o600))
	_, err = LoadCredentials("key-id", bad)
	assert.Error(t, err)
}
