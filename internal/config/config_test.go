package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/coinstream/internal/model"
)

func TestLoad(t *testing.T) {
	yaml := `
venue:
  name: bitflyer
  ws_url: wss://example.test/json-rpc
  symbols:
    BTC_USD: tBTCUSD
session:
  reconnect_delay: 2s
  reconnect_max_delay: 1m
subscriptions:
  - stream: order_book
    instrument: BTC_JPY
  - stream: ticker
    instrument: ETH_JPY
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Venue.Name != "bitflyer" {
		t.Errorf("Venue.Name = %q, want %q", cfg.Venue.Name, "bitflyer")
	}
	if cfg.Venue.WSURL != "wss://example.test/json-rpc" {
		t.Errorf("Venue.WSURL = %q", cfg.Venue.WSURL)
	}
	if cfg.Venue.Symbols["BTC_USD"] != "tBTCUSD" {
		t.Errorf("Venue.Symbols = %v", cfg.Venue.Symbols)
	}
	if cfg.Session.ReconnectDelay != 2*time.Second {
		t.Errorf("Session.ReconnectDelay = %v, want %v", cfg.Session.ReconnectDelay, 2*time.Second)
	}
	if cfg.Session.ReconnectMaxDelay != time.Minute {
		t.Errorf("Session.ReconnectMaxDelay = %v, want %v", cfg.Session.ReconnectMaxDelay, time.Minute)
	}

	keys := cfg.Keys()
	want := []model.SubscriptionKey{
		{Stream: model.StreamOrderBook, Instrument: "BTC_JPY"},
		{Stream: model.StreamTicker, Instrument: "ETH_JPY"},
	}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %v, want %v", i, keys[i], want[i])
		}
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BFX_KEY", "key123")
	t.Setenv("TEST_BFX_SECRET", "secret123")

	yaml := `
api:
  api_key: ${TEST_BFX_KEY}
  api_secret: ${TEST_BFX_SECRET}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.APIKey != "key123" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "key123")
	}
	if cfg.API.APISecret != "secret123" {
		t.Errorf("API.APISecret = %q, want %q", cfg.API.APISecret, "secret123")
	}
	if !cfg.API.HasCredentials() {
		t.Error("HasCredentials() = false, want true")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "venue: [unclosed")
	_, err := Load(path)
	if err == nil || !strings.HasPrefix(err.Error(), "parse config yaml") {
		t.Errorf("Load = %v, want parse error", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "subscriptions: []\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Venue.Name != DefaultVenue {
		t.Errorf("Venue.Name = %q, want default %q", cfg.Venue.Name, DefaultVenue)
	}
	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.Connection.PingInterval != DefaultPingInterval {
		t.Errorf("Connection.PingInterval = %v, want default %v", cfg.Connection.PingInterval, DefaultPingInterval)
	}
	if cfg.Session.ReconnectMaxDelay != DefaultReconnectMaxDelay {
		t.Errorf("Session.ReconnectMaxDelay = %v, want default %v", cfg.Session.ReconnectMaxDelay, DefaultReconnectMaxDelay)
	}
	if cfg.Orders.Timeout != DefaultOrderTimeout {
		t.Errorf("Orders.Timeout = %v, want default %v", cfg.Orders.Timeout, DefaultOrderTimeout)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging = %s/%s, want defaults", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Venue.WSURL != "" {
		t.Errorf("Venue.WSURL = %q, want empty", cfg.Venue.WSURL)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "venue:\n  name: kraken\n")

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	want := `validate config: venue.name must be bitfinex or bitflyer, got "kraken"`
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestValidate(t *testing.T) {
	valid := func() StreamerConfig {
		var c StreamerConfig
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*StreamerConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *StreamerConfig) {},
			wantErr: "",
		},
		{
			name:    "unknown venue",
			mutate:  func(c *StreamerConfig) { c.Venue.Name = "kraken" },
			wantErr: `venue.name must be bitfinex or bitflyer, got "kraken"`,
		},
		{
			name:    "key without secret",
			mutate:  func(c *StreamerConfig) { c.API.APIKey = "k" },
			wantErr: "api.api_secret or api.api_secret_path is required when api.api_key is set",
		},
		{
			name:    "secret without key",
			mutate:  func(c *StreamerConfig) { c.API.APISecretPath = "/run/secrets/bfx" },
			wantErr: "api.api_key is required when a secret is set",
		},
		{
			name:    "key with secret path",
			mutate:  func(c *StreamerConfig) { c.API.APIKey = "k"; c.API.APISecretPath = "/run/secrets/bfx" },
			wantErr: "",
		},
		{
			name: "ping timeout below interval",
			mutate: func(c *StreamerConfig) {
				c.Connection.PingInterval = time.Minute
				c.Connection.PingTimeout = time.Second
			},
			wantErr: "connection.ping_timeout must be >= connection.ping_interval",
		},
		{
			name: "reconnect max below base",
			mutate: func(c *StreamerConfig) {
				c.Session.ReconnectDelay = time.Minute
				c.Session.ReconnectMaxDelay = time.Second
			},
			wantErr: "session.reconnect_max_delay must be >= session.reconnect_delay",
		},
		{
			name: "unsupported stream",
			mutate: func(c *StreamerConfig) {
				c.Subscriptions = []SubscriptionConfig{
					{Stream: "ticker", Instrument: "BTC_USD"},
					{Stream: "private_account", Instrument: "x"},
				}
			},
			wantErr: `subscriptions[1].stream must be ticker or order_book, got "private_account"`,
		},
		{
			name: "missing instrument",
			mutate: func(c *StreamerConfig) {
				c.Subscriptions = []SubscriptionConfig{{Stream: "order_book"}}
			},
			wantErr: "subscriptions[0].instrument is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *StreamerConfig) { c.Logging.Level = "trace" },
			wantErr: `logging.level must be one of debug, info, warn, error, got "trace"`,
		},
		{
			name:    "bad log format",
			mutate:  func(c *StreamerConfig) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *StreamerConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
