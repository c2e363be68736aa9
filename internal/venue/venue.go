package venue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/coinstream/internal/account"
	"github.com/rickgao/coinstream/internal/auth"
	"github.com/rickgao/coinstream/internal/book"
	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/orderop"
	"github.com/rickgao/coinstream/internal/router"
)

// ErrNotSupported is returned for features a venue does not offer.
var ErrNotSupported = errors.New("not supported by venue")

// Venue is the wire dialect of one exchange.
type Venue interface {
	router.Protocol

	// Name returns a short identifier, e.g. "bitfinex".
	Name() string

	// URL returns the WebSocket endpoint.
	URL() string

	// Partition returns the fixed rule for splitting book levels.
	Partition() book.Partition

	// Channels returns the wire channels backing key.
	Channels(key model.SubscriptionKey) ([]router.ChannelSpec, error)

	// Handshake returns messages sent right after every connect.
	Handshake() [][]byte

	// AuthRequest builds the authentication message.
	AuthRequest(signer auth.Signer) ([]byte, error)

	// RequiredSnapshots lists account message types that must arrive after
	// a successful auth before the session counts as authenticated.
	RequiredSnapshots() []string

	// Decode parses one frame into zero or more events.
	Decode(data []byte) ([]Event, error)

	// ConvertData turns a channel payload into normalized data. It returns
	// false for payloads that carry nothing, such as heartbeats.
	ConvertData(key model.SubscriptionKey, spec router.ChannelSpec, payload json.RawMessage, ts time.Time) (Data, bool, error)

	// Orders returns the order-op encoder, or nil if the venue has none.
	Orders() orderop.Encoder
}

// EventKind classifies a decoded frame.
type EventKind int

const (
	EventInfo EventKind = iota
	EventError
	EventHeartbeat
	EventSubscribed
	EventUnsubscribed
	EventAuth
	EventData
	EventAccount
)

func (k EventKind) String() string {
	switch k {
	case EventInfo:
		return "info"
	case EventError:
		return "error"
	case EventHeartbeat:
		return "heartbeat"
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventAuth:
		return "auth"
	case EventData:
		return "data"
	case EventAccount:
		return "account"
	default:
		return "unknown"
	}
}

// Event is one decoded frame.
type Event struct {
	Kind EventKind

	// Channel is set for subscribed, unsubscribed and data events.
	Channel router.ChannelID

	// Match selects the pending spec a subscribed event confirms.
	Match func(model.SubscriptionKey, router.ChannelSpec) bool

	// AuthOK is set for auth events.
	AuthOK bool

	// Payload is the channel body for data events.
	Payload   json.RawMessage
	Timestamp time.Time

	// Account is set for account events.
	Account *AccountUpdate

	// Message carries info/error/auth text.
	Message string
	Raw     json.RawMessage
}

// Data is a normalized channel payload. Exactly one field is set.
type Data struct {
	Book   *book.Event
	Ticker *model.Ticker
}

// AccountUpdate is a decoded private push. Snapshot flags mean the slice
// replaces the whole collection.
type AccountUpdate struct {
	Type string

	Balances         []model.Balance
	BalancesSnapshot bool

	Orders         []model.Order
	OrdersSnapshot bool

	Positions         []model.Position
	PositionsSnapshot bool

	Executions    []model.Execution
	Notifications []model.Notification
}

// Apply writes the update into cache.
func (u *AccountUpdate) Apply(cache *account.Cache) {
	if u.BalancesSnapshot {
		cache.ReplaceBalances(u.Balances)
	} else {
		for _, b := range u.Balances {
			cache.UpdateBalance(b)
		}
	}

	if u.OrdersSnapshot {
		cache.ReplaceOrders(u.Orders)
	} else {
		for _, o := range u.Orders {
			cache.UpdateOrder(o)
		}
	}

	if u.PositionsSnapshot {
		cache.ReplacePositions(u.Positions)
	} else {
		for _, p := range u.Positions {
			cache.UpdatePosition(p)
		}
	}

	for _, e := range u.Executions {
		cache.AddExecution(e)
	}
	for _, n := range u.Notifications {
		cache.AddNotification(n)
	}
}
