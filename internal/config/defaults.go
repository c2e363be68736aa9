package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultVenue             = "bitfinex"
	DefaultRestURL           = "https://api.bitfinex.com"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultPingInterval      = 15 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultBufferSize        = 4096
	DefaultReconnectDelay    = 1 * time.Second
	DefaultReconnectMaxDelay = 30 * time.Second
	DefaultDrainInterval     = 50 * time.Millisecond
	DefaultSendRate          = 20
	DefaultSendBurst         = 5
	DefaultConnectTimeout    = 30 * time.Second
	DefaultOrderTTL          = 1 * time.Hour
	DefaultQueueLen          = 1000
	DefaultOrderTimeout      = 10 * time.Second
	DefaultOrderPoll         = 100 * time.Millisecond
	DefaultOrderRate         = 10
	DefaultOrderBurst        = 1
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultLogMaxSizeMB      = 100
	DefaultLogMaxBackups     = 5
	DefaultLogMaxAgeDays     = 28
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

func (c *StreamerConfig) applyDefaults() {
	// Venue defaults; an empty ws_url lets the venue pick its endpoint
	if c.Venue.Name == "" {
		c.Venue.Name = DefaultVenue
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Connection defaults
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Session defaults
	if c.Session.ReconnectDelay == 0 {
		c.Session.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Session.ReconnectMaxDelay == 0 {
		c.Session.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Session.DrainInterval == 0 {
		c.Session.DrainInterval = DefaultDrainInterval
	}
	if c.Session.SendRate == 0 {
		c.Session.SendRate = DefaultSendRate
	}
	if c.Session.SendBurst == 0 {
		c.Session.SendBurst = DefaultSendBurst
	}
	if c.Session.ConnectTimeout == 0 {
		c.Session.ConnectTimeout = DefaultConnectTimeout
	}

	// Account defaults
	if c.Account.OrderTTL == 0 {
		c.Account.OrderTTL = DefaultOrderTTL
	}
	if c.Account.QueueLen == 0 {
		c.Account.QueueLen = DefaultQueueLen
	}

	// Order defaults
	if c.Orders.Timeout == 0 {
		c.Orders.Timeout = DefaultOrderTimeout
	}
	if c.Orders.PollInterval == 0 {
		c.Orders.PollInterval = DefaultOrderPoll
	}
	if c.Orders.Rate == 0 {
		c.Orders.Rate = DefaultOrderRate
	}
	if c.Orders.Burst == 0 {
		c.Orders.Burst = DefaultOrderBurst
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
