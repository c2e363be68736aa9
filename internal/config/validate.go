package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/coinstream/internal/model"
)

var validVenues = map[string]bool{"bitfinex": true, "bitflyer": true}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if !validVenues[c.Venue.Name] {
		return fmt.Errorf("venue.name must be bitfinex or bitflyer, got %q", c.Venue.Name)
	}

	if c.API.APIKey != "" && c.API.APISecret == "" && c.API.APISecretPath == "" {
		return errors.New("api.api_secret or api.api_secret_path is required when api.api_key is set")
	}
	if c.API.APIKey == "" && (c.API.APISecret != "" || c.API.APISecretPath != "") {
		return errors.New("api.api_key is required when a secret is set")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Connection.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}
	if c.Connection.PingTimeout < c.Connection.PingInterval {
		return errors.New("connection.ping_timeout must be >= connection.ping_interval")
	}

	if c.Session.ReconnectMaxDelay < c.Session.ReconnectDelay {
		return errors.New("session.reconnect_max_delay must be >= session.reconnect_delay")
	}
	if c.Session.SendBurst < 1 {
		return errors.New("session.send_burst must be >= 1")
	}

	if c.Account.QueueLen < 1 {
		return errors.New("account.queue_len must be >= 1")
	}
	if c.Orders.Burst < 1 {
		return errors.New("orders.burst must be >= 1")
	}

	for i, s := range c.Subscriptions {
		if err := s.validate(fmt.Sprintf("subscriptions[%d]", i)); err != nil {
			return err
		}
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (s *SubscriptionConfig) validate(prefix string) error {
	switch model.StreamType(s.Stream) {
	case model.StreamTicker, model.StreamOrderBook:
	default:
		return fmt.Errorf("%s.stream must be ticker or order_book, got %q", prefix, s.Stream)
	}
	if s.Instrument == "" {
		return fmt.Errorf("%s.instrument is required", prefix)
	}
	return nil
}
