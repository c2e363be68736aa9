package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/coinstream/internal/account"
	"github.com/rickgao/coinstream/internal/auth"
	"github.com/rickgao/coinstream/internal/metrics"
	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/orderop"
	"github.com/rickgao/coinstream/internal/router"
	"github.com/rickgao/coinstream/internal/venue"
)

// Errors
var (
	ErrAlreadyOpen   = errors.New("session already open")
	ErrNotOpen       = errors.New("session not open")
	ErrNoCredentials = errors.New("no credentials configured")

	// ErrNotSupported is venue.ErrNotSupported, re-exported for callers.
	ErrNotSupported = venue.ErrNotSupported
)

// State is the session lifecycle state.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Handlers are optional callbacks. They run on the session's read goroutine
// with no internal lock held, so they may call back into the session, with
// one exception: Close must not be called from a handler.
type Handlers struct {
	OnOpen  func()
	OnClose func()
	OnAuth  func(ok bool, info string)
	OnData  func(data model.StreamData)
}

// Config holds configuration for a Session.
type Config struct {
	ReconnectDelay    time.Duration // first reconnect delay, Default: 1s
	ReconnectMaxDelay time.Duration // Default: 30s

	Router  router.Config
	Account account.Config
	Orders  orderop.Config
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		Router:            router.DefaultConfig(),
		Account:           account.DefaultConfig(),
		Orders:            orderop.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectDelay {
		c.ReconnectMaxDelay = d.ReconnectMaxDelay
		if c.ReconnectMaxDelay < c.ReconnectDelay {
			c.ReconnectMaxDelay = c.ReconnectDelay
		}
	}
	return c
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSigner enables authentication.
func WithSigner(signer auth.Signer) Option {
	return func(s *Session) {
		s.signer = signer
	}
}

// WithHandlers sets the callbacks.
func WithHandlers(h Handlers) Option {
	return func(s *Session) {
		s.handlers = h
	}
}

// WithMetrics records session activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}
