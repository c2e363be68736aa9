package config

import (
	"time"

	"github.com/rickgao/coinstream/internal/model"
)

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Venue         VenueConfig          `yaml:"venue"`
	API           APIConfig            `yaml:"api"`
	Connection    ConnectionConfig     `yaml:"connection"`
	Session       SessionConfig        `yaml:"session"`
	Account       AccountConfig        `yaml:"account"`
	Orders        OrdersConfig         `yaml:"orders"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Logging       LoggingConfig        `yaml:"logging"`
	Metrics       MetricsConfig        `yaml:"metrics"`
}

// VenueConfig selects the exchange dialect.
type VenueConfig struct {
	Name     string            `yaml:"name"` // bitfinex or bitflyer
	WSURL    string            `yaml:"ws_url"`
	BookPrec string            `yaml:"book_prec"`
	BookFreq string            `yaml:"book_freq"`
	BookLen  string            `yaml:"book_len"`
	Symbols  map[string]string `yaml:"symbols"` // instrument -> venue symbol overrides
}

// APIConfig holds REST settings and credentials.
type APIConfig struct {
	RestURL       string        `yaml:"rest_url"`
	APIKey        string        `yaml:"api_key"`
	APISecret     string        `yaml:"api_secret"`
	APISecretPath string        `yaml:"api_secret_path"` // file holding the secret, used when api_secret is empty
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
}

// HasCredentials reports whether an API key and a secret source are set.
func (a APIConfig) HasCredentials() bool {
	return a.APIKey != "" && (a.APISecret != "" || a.APISecretPath != "")
}

// ConnectionConfig holds WebSocket transport settings.
type ConnectionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// SessionConfig holds reconnect and subscription pacing settings.
type SessionConfig struct {
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
	DrainInterval     time.Duration `yaml:"drain_interval"`
	SendRate          float64       `yaml:"send_rate"`
	SendBurst         int           `yaml:"send_burst"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
}

// AccountConfig holds account cache retention.
type AccountConfig struct {
	OrderTTL time.Duration `yaml:"order_ttl"`
	QueueLen int           `yaml:"queue_len"`
}

// OrdersConfig holds order-operation settings.
type OrdersConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Rate         float64       `yaml:"rate"`
	Burst        int           `yaml:"burst"`
}

// SubscriptionConfig is one key subscribed at startup.
type SubscriptionConfig struct {
	Stream     string `yaml:"stream"` // ticker or order_book
	Instrument string `yaml:"instrument"`
}

// Key returns the subscription key.
func (s SubscriptionConfig) Key() model.SubscriptionKey {
	return model.SubscriptionKey{Stream: model.StreamType(s.Stream), Instrument: s.Instrument}
}

// LoggingConfig selects the log handler and sink.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // empty logs to stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig holds the health and Prometheus endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// Keys returns the configured subscription keys in order.
func (c *StreamerConfig) Keys() []model.SubscriptionKey {
	keys := make([]model.SubscriptionKey, 0, len(c.Subscriptions))
	for _, s := range c.Subscriptions {
		keys = append(keys, s.Key())
	}
	return keys
}
