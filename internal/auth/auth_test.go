package auth

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestNewCredentials_Validation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		secret  string
		wantErr bool
	}{
		{"valid", "k", "s", false},
		{"missing key", "", "s", true},
		{"missing secret", "k", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCredentials(tt.key, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCredentials_Sign(t *testing.T) {
	creds, err := NewCredentials("key", "secret")
	if err != nil {
		t.Fatal(err)
	}

	payload := "AUTH1700000000000000"
	mac := hmac.New(sha512.New384, []byte("secret"))
	mac.Write([]byte(payload))
	want := hex.EncodeToString(mac.Sum(nil))

	if got := creds.Sign(payload); got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
	if len(want) != 96 {
		t.Errorf("signature length = %d, want 96 hex chars", len(want))
	}
}

func TestCredentials_NonceStrictlyIncreasing(t *testing.T) {
	creds, _ := NewCredentials("key", "secret")
	frozen := time.UnixMicro(1_700_000_000_000_000)
	creds.now = func() time.Time { return frozen }

	prev := creds.Nonce()
	for i := 0; i < 50; i++ {
		n := creds.Nonce()
		if n <= prev {
			t.Fatalf("nonce %d not greater than %d", n, prev)
		}
		prev = n
	}
}

func TestCredentials_SignRequest(t *testing.T) {
	creds, _ := NewCredentials("my-key", "secret")

	body := []byte(`{}`)
	headers := creds.SignRequest("/v2/auth/r/wallets", body)

	if headers["bfx-apikey"] != "my-key" {
		t.Errorf("bfx-apikey = %q, want my-key", headers["bfx-apikey"])
	}
	nonce := headers["bfx-nonce"]
	if _, err := strconv.ParseInt(nonce, 10, 64); err != nil {
		t.Errorf("bfx-nonce %q is not numeric", nonce)
	}

	want := creds.Sign("/api/v2/auth/r/wallets" + nonce + `{}`)
	if headers["bfx-signature"] != want {
		t.Errorf("bfx-signature = %q, want %q", headers["bfx-signature"], want)
	}
}

func TestLoadCredentials_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("file-secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	creds, err := LoadCredentials("key", "", path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}

	direct, _ := NewCredentials("key", "file-secret")
	if creds.Sign("x") != direct.Sign("x") {
		t.Error("secret read from file should be trimmed")
	}
}

func TestLoadCredentials_MissingFile(t *testing.T) {
	if _, err := LoadCredentials("key", "", "/nonexistent/secret"); err == nil {
		t.Error("expected error for missing secret file")
	}
}
