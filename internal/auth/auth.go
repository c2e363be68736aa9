// Package auth signs exchange requests with HMAC-SHA384 and hands out
// strictly increasing nonces.
package auth

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Signer is the contract the session and REST client depend on.
type Signer interface {
	APIKey() string
	Sign(payload string) string
	Nonce() int64
}

// Credentials holds the API key and secret used for signing.
type Credentials struct {
	Key    string
	secret []byte

	mu        sync.Mutex
	lastNonce int64
	now       func() time.Time
}

// NewCredentials creates credentials from an API key and secret.
func NewCredentials(key, secret string) (*Credentials, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("API secret is required")
	}
	return &Credentials{Key: key, secret: []byte(secret), now: time.Now}, nil
}

// LoadCredentials creates credentials from a key and either an inline secret
// or a file holding it.
func LoadCredentials(key, secret, secretPath string) (*Credentials, error) {
	if secret == "" && secretPath != "" {
		data, err := os.ReadFile(secretPath)
		if err != nil {
			return nil, fmt.Errorf("read secret file: %w", err)
		}
		secret = strings.TrimSpace(string(data))
	}
	return NewCredentials(key, secret)
}

// APIKey returns the public key id.
func (c *Credentials) APIKey() string {
	return c.Key
}

// Sign returns the hex HMAC-SHA384 of payload.
func (c *Credentials) Sign(payload string) string {
	mac := hmac.New(sha512.New384, c.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Nonce returns a microsecond timestamp that is strictly greater than any
// nonce returned before by these credentials.
func (c *Credentials) Nonce() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.now().UnixMicro()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

// SignRequest generates authentication headers for a private REST call.
// Message format: "/api" + path + nonce + body
func (c *Credentials) SignRequest(path string, body []byte) map[string]string {
	nonce := strconv.FormatInt(c.Nonce(), 10)
	signature := c.Sign("/api" + path + nonce + string(body))

	return map[string]string{
		"bfx-nonce":     nonce,
		"bfx-apikey":    c.Key,
		"bfx-signature": signature,
	}
}
