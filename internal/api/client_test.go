package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinstream/internal/auth"
	"github.com/rickgao/coinstream/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]ClientOption{WithRetries(2, time.Millisecond)}, opts...)
	return NewClient(server.URL, opts...)
}

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("")

		if c.baseURL != DefaultBaseURL {
			t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
		if c.signer != nil {
			t.Error("signer should be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		creds, _ := auth.NewCredentials("k", "s")
		c := NewClient("https://api.example.com",
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
			WithSigner(creds),
		)
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 || c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retries = %d/%v", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
		if c.signer == nil {
			t.Error("signer not set")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://api.example.com", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Not Found"}
	if err.Error() != "bitfinex api error 404: Not Found" {
		t.Errorf("Error() = %q", err.Error())
	}

	tests := []struct {
		code      int
		retryable bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.code}
		if e.IsRetryable() != tt.retryable {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.code, e.IsRetryable(), tt.retryable)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	if got := errorMessage(500, []byte(`["error",10020,"symbol: invalid"]`)); got != "symbol: invalid" {
		t.Errorf("errorMessage = %q", got)
	}
	if got := errorMessage(502, []byte(`<html>`)); got != "Bad Gateway" {
		t.Errorf("errorMessage = %q", got)
	}
}

// TestDoWithRetry tests retry behavior.
func TestDoWithRetry(t *testing.T) {
	t.Run("retries 5xx then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`[1]`))
		})

		ok, err := c.PlatformStatus(context.Background())
		if err != nil {
			t.Fatalf("PlatformStatus failed: %v", err)
		}
		if !ok {
			t.Error("expected operative status")
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := c.PlatformStatus(context.Background())
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
			t.Fatalf("expected APIError 500, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("does not retry 4xx", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`["error",10020,"symbol: invalid"]`))
		})

		_, err := c.Ticker(context.Background(), "tNOPE")
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "symbol: invalid" {
			t.Fatalf("expected APIError with venue message, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("context cancelled during backoff", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, WithRetries(3, time.Second))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.PlatformStatus(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestPlatformStatus_Maintenance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/platform/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`[0]`))
	})

	ok, err := c.PlatformStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected maintenance status")
	}
}

func TestTicker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/ticker/tBTCUSD" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`[10645,73.93,10646,82.83,-33,-0.0031,10645.5,4862.65,10835,10549]`))
	})

	tk, err := c.Ticker(context.Background(), "tBTCUSD")
	if err != nil {
		t.Fatalf("Ticker failed: %v", err)
	}
	if !tk.Bid.Equal(decimal.NewFromInt(10645)) || !tk.Ask.Equal(decimal.NewFromInt(10646)) {
		t.Errorf("bid/ask = %s/%s", tk.Bid, tk.Ask)
	}
	if !tk.Last.Equal(decimal.RequireFromString("10645.5")) {
		t.Errorf("last = %s", tk.Last)
	}
	if !tk.Volume24h.Equal(decimal.RequireFromString("4862.65")) {
		t.Errorf("volume = %s", tk.Volume24h)
	}
}

func TestTicker_ShortResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1,2]`))
	})
	if _, err := c.Ticker(context.Background(), "tBTCUSD"); err == nil {
		t.Error("expected error for short response")
	}
}

func TestWallets(t *testing.T) {
	creds, err := auth.NewCredentials("my-key", "my-secret")
	if err != nil {
		t.Fatal(err)
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/auth/r/wallets" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("bfx-apikey") != "my-key" {
			t.Errorf("bfx-apikey = %q", r.Header.Get("bfx-apikey"))
		}
		nonce := r.Header.Get("bfx-nonce")
		body, _ := io.ReadAll(r.Body)
		want := creds.Sign("/api/v2/auth/r/wallets" + nonce + string(body))
		if r.Header.Get("bfx-signature") != want {
			t.Error("bfx-signature does not verify")
		}
		w.Write([]byte(`[["exchange","btc",1.5,0,1.2,null,null],["margin","USD",100,0,null,null,null],["other","eth",2,0]]`))
	}, WithSigner(creds))

	balances, err := c.Wallets(context.Background())
	if err != nil {
		t.Fatalf("Wallets failed: %v", err)
	}
	if len(balances) != 3 {
		t.Fatalf("got %d balances, want 3", len(balances))
	}

	b := balances[0]
	if b.Type != model.BalanceMain || b.Currency != "BTC" || !b.Total.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("balance[0] = %+v", b)
	}
	if free, ok := b.Free(); !ok || !free.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("Free() = %s, %v", free, ok)
	}
	if balances[1].Type != model.BalanceMargin || balances[1].Locked != nil {
		t.Errorf("balance[1] = %+v, want margin with unknown locked", balances[1])
	}
	if balances[2].Type != model.BalanceUnknown {
		t.Errorf("balance[2].Type = %v, want unknown", balances[2].Type)
	}
}

func TestWallets_NoSigner(t *testing.T) {
	c := NewClient("http://127.0.0.1:0")
	if _, err := c.Wallets(context.Background()); !errors.Is(err, ErrNoSigner) {
		t.Errorf("Wallets = %v, want ErrNoSigner", err)
	}
}
