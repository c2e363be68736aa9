package orderop

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinstream/internal/model"
)

// Sentinel errors.
var (
	ErrTimeout     = errors.New("order operation timed out")
	ErrUnknownKind = errors.New("unknown order operation kind")
)

// RejectedError is returned when the server acknowledges an operation with
// a non-success status.
type RejectedError struct {
	Kind   Kind
	Status model.NotificationStatus
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("order %s rejected (%s): %s", e.Kind, e.Status, e.Reason)
}

// Kind is an order operation type.
type Kind string

const (
	KindNew         Kind = "new"
	KindCancel      Kind = "cancel"
	KindUpdate      Kind = "update"
	KindCancelGroup Kind = "cancel-group"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindNew, KindCancel, KindUpdate, KindCancelGroup:
		return true
	}
	return false
}

// Op is one order mutation request.
type Op struct {
	Kind       Kind
	CID        int64  // client correlation id, assigned by the correlator for new orders
	OrderID    string // cancel and update
	GroupID    int64
	Instrument string
	Type       string          // venue order type, e.g. "EXCHANGE LIMIT"
	Amount     decimal.Decimal // signed: positive buys, negative sells
	Price      decimal.Decimal
	Params     map[string]any // venue-specific extras passed through as-is
}

// NewOrder builds a new-order op. The correlator assigns its CID.
func NewOrder(instrument, orderType string, amount, price decimal.Decimal) Op {
	return Op{
		Kind:       KindNew,
		Instrument: instrument,
		Type:       orderType,
		Amount:     amount,
		Price:      price,
	}
}

// CancelOrder builds a cancel op for an existing order.
func CancelOrder(orderID string) Op {
	return Op{Kind: KindCancel, OrderID: orderID}
}

// UpdateOrder builds an update op. Zero amount or price leaves that field
// unchanged.
func UpdateOrder(orderID string, amount, price decimal.Decimal) Op {
	return Op{Kind: KindUpdate, OrderID: orderID, Amount: amount, Price: price}
}

// CancelGroup builds an op cancelling every order in a group.
func CancelGroup(groupID int64) Op {
	return Op{Kind: KindCancelGroup, GroupID: groupID}
}

// SubmitOptions controls how Submit waits.
type SubmitOptions struct {
	Timeout time.Duration // zero uses the correlator default
	Async   bool          // return right after sending
}

// Encoder turns ops into venue wire messages.
type Encoder interface {
	// OpCode returns the venue operation code for kind, e.g. "on".
	// Acknowledgements carry the type "<opcode>-req".
	OpCode(kind Kind) (string, error)
	Encode(op Op) ([]byte, error)
}

// Sender writes an encoded op to the live connection.
type Sender interface {
	Send(data []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(data []byte) error

func (f SenderFunc) Send(data []byte) error {
	return f(data)
}

// Store is the account view the correlator waits on.
type Store interface {
	Changed() <-chan struct{}
	NotificationCursor() uint64
	NotificationsAfter(cursor uint64) ([]model.Notification, uint64)
	Order(id string) (model.Order, bool)
}

// Config holds configuration for the Correlator.
type Config struct {
	Timeout      time.Duration // Default: 10s
	PollInterval time.Duration // wakeup fallback, Default: 100ms
	Rate         float64       // ops per second, Default: 10
	Burst        int           // Default: 1
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		PollInterval: 100 * time.Millisecond,
		Rate:         10,
		Burst:        1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Rate <= 0 {
		c.Rate = d.Rate
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	return c
}
