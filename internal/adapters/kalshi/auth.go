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
	"strconv"
	"time"
)

// Credentials signs trade API requests with Kalshi's RSA-PSS scheme:
// SHA-256 over timestamp_ms + method + path, salt length equal to the hash.
type Credentials struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
}

// LoadCredentials reads the PEM private key at privateKeyPath and pairs it
// with the API key ID from the Kalshi dashboard.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, fmt.Errorf("kalshi.LoadCredentials: API key ID is required")
	}
	if privateKeyPath == "" {
		return nil, fmt.Errorf("kalshi.LoadCredentials: private key path is required")
	}

	key, err := loadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("kalshi.LoadCredentials: %w", err)
	}
	return &Credentials{KeyID: keyID, PrivateKey: key}, nil
}

// loadPrivateKey parses a PEM RSA key, trying PKCS#8 first and falling back
// to PKCS#1 for older exports.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key in %s is not RSA", path)
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return rsaKey, nil
}

// Headers returns the three KALSHI-ACCESS-* headers for one request. The path
// must be the full request path including the API base path.
func (c *Credentials) Headers(method, path string) (map[string]string, error) {
	timestampMs := time.Now().UnixMilli()
	signature, err := c.sign(timestampMs, method, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"KALSHI-ACCESS-KEY":       c.KeyID,
		"KALSHI-ACCESS-TIMESTAMP": strconv.FormatInt(timestampMs, 10),
		"KALSHI-ACCESS-SIGNATURE": signature,
	}, nil
}

func (c *Credentials) sign(timestampMs int64, method, path string) (string, error) {
	message := fmt.Sprintf("%d%s%s", timestampMs, method, path)
	hashed := sha256.Sum256([]byte(message))

	signature, err := rsa.SignPSS(rand.Reader, c.PrivateKey, crypto.SHA256, hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}
