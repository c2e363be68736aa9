package router

import (
	"time"

	"github.com/rickgao/coinstream/internal/model"
)

// ChannelID identifies a server-side channel: a numeric chanId rendered as
// a string, or a topic name.
type ChannelID string

// ChannelSpec describes one wire subscription backing a key.
// Channel is set when the client names the channel itself; it stays empty
// when the server assigns the id in its confirmation.
type ChannelSpec struct {
	Channel ChannelID
	Params  map[string]string
}

// Protocol encodes venue-specific subscription requests.
type Protocol interface {
	SubscribeRequest(key model.SubscriptionKey, spec ChannelSpec) ([]byte, error)
	UnsubscribeRequest(key model.SubscriptionKey, spec ChannelSpec, channel ChannelID) ([]byte, error)
}

// Sender writes an encoded request to the live connection.
type Sender interface {
	Send(data []byte) error
}

// Binding is a confirmed or pending key to channel association.
type Binding struct {
	Key       model.SubscriptionKey
	Spec      ChannelSpec
	Channel   ChannelID
	Confirmed bool
}

// Config holds configuration for the Multiplexer.
type Config struct {
	DrainInterval time.Duration // Default: 50ms
	SendRate      float64       // requests per second, Default: 20
	SendBurst     int           // Default: 5
	QueueSize     int           // initial queue capacity, Default: 64
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		DrainInterval: 50 * time.Millisecond,
		SendRate:      20,
		SendBurst:     5,
		QueueSize:     64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DrainInterval <= 0 {
		c.DrainInterval = d.DrainInterval
	}
	if c.SendRate <= 0 {
		c.SendRate = d.SendRate
	}
	if c.SendBurst <= 0 {
		c.SendBurst = d.SendBurst
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

type opKind int

const (
	opSubscribe opKind = iota
	opUnsubscribe
	opReleaseChannel // unsubscribe a channel confirmed after its key was dropped
)

type request struct {
	op      opKind
	key     model.SubscriptionKey
	specs   []ChannelSpec
	channel ChannelID // opReleaseChannel only
}
