package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Subscription Types
// -----------------------------------------------------------------------------

// StreamType identifies the kind of stream a subscription delivers.
type StreamType string

const (
	StreamTicker         StreamType = "ticker"
	StreamOrderBook      StreamType = "order_book"
	StreamPrivateAccount StreamType = "private_account"
)

// SubscriptionKey identifies what a caller wants to receive.
// It is comparable and used as a map key throughout.
type SubscriptionKey struct {
	Stream     StreamType
	Instrument string
}

// AccountKey is the implicit key for private account pushes. It is never
// subscribed explicitly.
var AccountKey = SubscriptionKey{Stream: StreamPrivateAccount}

func (k SubscriptionKey) String() string {
	if k.Instrument == "" {
		return string(k.Stream)
	}
	return string(k.Stream) + ":" + k.Instrument
}

// StreamData is one normalized event delivered to the data handler.
// Payload is one of *Ticker, *OrderBook, *Execution or AccountEvent.
type StreamData struct {
	Key     SubscriptionKey
	Payload any
}

// AccountEvent is a raw private account push after it has been applied to the
// account cache.
type AccountEvent struct {
	Type string          // Venue message type (e.g. "os", "te", "n")
	Raw  json.RawMessage // Original payload
}

// -----------------------------------------------------------------------------
// Market Data Types
// -----------------------------------------------------------------------------

// PriceLevel is one price point of a normalized order book.
type PriceLevel struct {
	Price  decimal.Decimal
	Qty    decimal.Decimal
	Seq    int64 // Venue count/sequence marker, meaningful only if HasSeq
	HasSeq bool
}

// OrderBook is an immutable normalized order book.
// Asks are sorted ascending by price, bids descending.
type OrderBook struct {
	Timestamp  time.Time
	Instrument string
	Asks       []PriceLevel
	Bids       []PriceLevel
}

// Validate checks the ordering and quantity invariants of the book.
func (b *OrderBook) Validate() error {
	for i, lvl := range b.Asks {
		if !lvl.Qty.IsPositive() {
			return fmt.Errorf("ask %s has non-positive qty %s", lvl.Price, lvl.Qty)
		}
		if i > 0 && !b.Asks[i-1].Price.LessThan(lvl.Price) {
			return fmt.Errorf("asks not strictly ascending at %s", lvl.Price)
		}
	}
	for i, lvl := range b.Bids {
		if !lvl.Qty.IsPositive() {
			return fmt.Errorf("bid %s has non-positive qty %s", lvl.Price, lvl.Qty)
		}
		if i > 0 && !b.Bids[i-1].Price.GreaterThan(lvl.Price) {
			return fmt.Errorf("bids not strictly descending at %s", lvl.Price)
		}
	}
	return nil
}

// BestAsk returns the lowest ask, if any.
func (b *OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// BestBid returns the highest bid, if any.
func (b *OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// Ticker is a top-of-book and volume summary.
type Ticker struct {
	Timestamp  time.Time
	Instrument string
	Ask        decimal.Decimal
	Bid        decimal.Decimal
	Last       decimal.Decimal
	Volume24h  decimal.Decimal
}

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// BalanceType groups balances by account.
type BalanceType string

const (
	BalanceMain    BalanceType = "main"
	BalanceMargin  BalanceType = "margin"
	BalanceLoan    BalanceType = "loan"
	BalanceUnknown BalanceType = "unknown"
)

// Balance is one currency balance within an account type.
type Balance struct {
	Type     BalanceType
	Currency string
	Total    decimal.Decimal
	Locked   *decimal.Decimal // nil if the venue did not report it
}

// Free returns the unlocked amount, or false if the locked amount is unknown.
func (b Balance) Free() (decimal.Decimal, bool) {
	if b.Locked == nil {
		return decimal.Zero, false
	}
	return b.Total.Sub(*b.Locked), true
}

// Side is a trade direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	OrderActive   OrderState = "ACTIVE" // includes partially filled
	OrderFilled   OrderState = "FILLED"
	OrderCanceled OrderState = "CANCELED"
	OrderError    OrderState = "ERROR"
	OrderUnknown  OrderState = "UNKNOWN"
)

// IsTerminal reports whether no further transitions are expected.
func (s OrderState) IsTerminal() bool {
	return s == OrderFilled || s == OrderCanceled || s == OrderError
}

// Order is a venue order as last pushed by the server.
type Order struct {
	ID          string
	ClientID    int64
	GroupID     int64
	Instrument  string
	Type        string // Venue order type string
	Side        Side
	Qty         decimal.Decimal
	QtyExecuted decimal.Decimal
	Price       decimal.Decimal
	PriceAvg    decimal.Decimal
	State       OrderState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// QtyRemaining returns the unexecuted quantity.
func (o Order) QtyRemaining() decimal.Decimal {
	return o.Qty.Sub(o.QtyExecuted)
}

// PositionState is the lifecycle state of a position.
type PositionState string

const (
	PositionActive   PositionState = "ACTIVE"
	PositionClosed   PositionState = "CLOSED"
	PositionCanceled PositionState = "CANCELED"
	PositionUnknown  PositionState = "UNKNOWN"
)

// Position is an open margin position keyed by instrument.
type Position struct {
	Instrument string
	Side       Side
	State      PositionState
	Qty        decimal.Decimal
	Price      decimal.Decimal
	UpdatedAt  time.Time
}

// Execution is a private fill.
type Execution struct {
	ID         string
	Timestamp  time.Time
	Instrument string
	OrderID    string
	Side       Side
	Price      decimal.Decimal
	Qty        decimal.Decimal
}

// NotificationStatus is the outcome carried by a server acknowledgement.
type NotificationStatus string

const (
	StatusSuccess NotificationStatus = "SUCCESS"
	StatusError   NotificationStatus = "ERROR"
	StatusFailure NotificationStatus = "FAILURE"
	StatusInfo    NotificationStatus = "INFO"
)

// Notification is a server-pushed acknowledgement of an order operation.
type Notification struct {
	Timestamp time.Time
	Type      string // Mirrors the request op, e.g. "on-req"
	Status    NotificationStatus
	OrderID   string // Target order id, if the notification carries one
	ClientID  int64  // Correlation id echoed back, 0 if absent
	Text      string // Venue message text
	Raw       json.RawMessage
}
