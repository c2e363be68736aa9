package bitflyer

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinstream/internal/auth"
	"github.com/rickgao/coinstream/internal/book"
	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/orderop"
	"github.com/rickgao/coinstream/internal/router"
	"github.com/rickgao/coinstream/internal/venue"
)

// DefaultURL is the Lightning realtime JSON-RPC endpoint.
const DefaultURL = "wss://ws.lightstream.bitflyer.com/json-rpc"

// Channel name prefixes.
const (
	tickerPrefix        = "lightning_ticker_"
	boardSnapshotPrefix = "lightning_board_snapshot_"
	boardPrefix         = "lightning_board_"
)

// Config holds venue options.
type Config struct {
	URL string
}

// Venue implements venue.Venue for bitFlyer Lightning.
// Channels are named by the client, so bindings never wait for a
// confirmation. There is no private stream.
type Venue struct {
	cfg       Config
	requestID atomic.Int64
}

var _ venue.Venue = (*Venue)(nil)

// New creates a bitFlyer venue.
func New(cfg Config) *Venue {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Venue{cfg: cfg}
}

func (v *Venue) Name() string { return "bitflyer" }

func (v *Venue) URL() string { return v.cfg.URL }

// Partition: asks and bids arrive in separate tagged lists.
func (v *Venue) Partition() book.Partition { return book.ByTag }

// Channels returns a ticker channel, or a snapshot plus an incremental
// board channel for order books.
func (v *Venue) Channels(key model.SubscriptionKey) ([]router.ChannelSpec, error) {
	pair := strings.ToUpper(key.Instrument)

	switch key.Stream {
	case model.StreamTicker:
		return []router.ChannelSpec{
			{Channel: router.ChannelID(tickerPrefix + pair), Params: map[string]string{"kind": "ticker"}},
		}, nil
	case model.StreamOrderBook:
		return []router.ChannelSpec{
			{Channel: router.ChannelID(boardSnapshotPrefix + pair), Params: map[string]string{"kind": "snapshot"}},
			{Channel: router.ChannelID(boardPrefix + pair), Params: map[string]string{"kind": "update"}},
		}, nil
	default:
		return nil, fmt.Errorf("%w: stream %q", venue.ErrNotSupported, key.Stream)
	}
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  map[string]string `json:"params"`
	ID      int64             `json:"id"`
}

func (v *Venue) request(method string, channel router.ChannelID) ([]byte, error) {
	return json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  map[string]string{"channel": string(channel)},
		ID:      v.requestID.Add(1),
	})
}

func (v *Venue) SubscribeRequest(key model.SubscriptionKey, spec router.ChannelSpec) ([]byte, error) {
	if spec.Channel == "" {
		return nil, fmt.Errorf("bitflyer channels are client-named, spec for %s has none", key)
	}
	return v.request("subscribe", spec.Channel)
}

func (v *Venue) UnsubscribeRequest(key model.SubscriptionKey, spec router.ChannelSpec, channel router.ChannelID) ([]byte, error) {
	return v.request("unsubscribe", channel)
}

func (v *Venue) Handshake() [][]byte { return nil }

func (v *Venue) AuthRequest(auth.Signer) ([]byte, error) {
	return nil, venue.ErrNotSupported
}

func (v *Venue) RequiredSnapshots() []string { return nil }

func (v *Venue) Orders() orderop.Encoder { return nil }

type rpcMessage struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type channelParams struct {
	Channel string          `json:"channel"`
	Message json.RawMessage `json:"message"`
}

// Decode parses JSON-RPC responses and channelMessage notifications.
func (v *Venue) Decode(data []byte) ([]venue.Event, error) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	switch {
	case msg.Method == "channelMessage":
		var p channelParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, fmt.Errorf("decode channelMessage params: %w", err)
		}
		return []venue.Event{{
			Kind:    venue.EventData,
			Channel: router.ChannelID(p.Channel),
			Payload: p.Message,
			Raw:     data,
		}}, nil
	case msg.Error != nil:
		return []venue.Event{{
			Kind:    venue.EventError,
			Message: fmt.Sprintf("rpc %d: %s (code %d)", msg.ID, msg.Error.Message, msg.Error.Code),
			Raw:     data,
		}}, nil
	default:
		return []venue.Event{{
			Kind:    venue.EventInfo,
			Message: fmt.Sprintf("rpc %d result %s", msg.ID, msg.Result),
			Raw:     data,
		}}, nil
	}
}

type boardLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type board struct {
	MidPrice decimal.Decimal `json:"mid_price"`
	Asks     []boardLevel    `json:"asks"`
	Bids     []boardLevel    `json:"bids"`
}

type tickerMessage struct {
	ProductCode string          `json:"product_code"`
	Timestamp   string          `json:"timestamp"`
	BestBid     decimal.Decimal `json:"best_bid"`
	BestAsk     decimal.Decimal `json:"best_ask"`
	LTP         decimal.Decimal `json:"ltp"`
	Volume      decimal.Decimal `json:"volume"`
}

// ConvertData decodes ticker and board payloads. Board sizes of zero remove
// the level.
func (v *Venue) ConvertData(key model.SubscriptionKey, spec router.ChannelSpec, payload json.RawMessage, ts time.Time) (venue.Data, bool, error) {
	switch spec.Params["kind"] {
	case "ticker":
		var m tickerMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return venue.Data{}, false, fmt.Errorf("decode ticker: %w", err)
		}
		t := &model.Ticker{
			Timestamp:  parseTime(m.Timestamp),
			Instrument: key.Instrument,
			Bid:        m.BestBid,
			Ask:        m.BestAsk,
			Last:       m.LTP,
			Volume24h:  m.Volume,
		}
		return venue.Data{Ticker: t}, true, nil
	case "snapshot", "update":
		var b board
		if err := json.Unmarshal(payload, &b); err != nil {
			return venue.Data{}, false, fmt.Errorf("decode board: %w", err)
		}
		ev := &book.Event{Snapshot: spec.Params["kind"] == "snapshot", Timestamp: ts}
		for _, l := range b.Asks {
			ev.Levels = append(ev.Levels, book.Level{Price: l.Price, Amount: l.Size, Side: model.SideSell})
		}
		for _, l := range b.Bids {
			ev.Levels = append(ev.Levels, book.Level{Price: l.Price, Amount: l.Size, Side: model.SideBuy})
		}
		return venue.Data{Book: ev}, true, nil
	default:
		return venue.Data{}, false, fmt.Errorf("unknown channel kind %q", spec.Params["kind"])
	}
}

func parseTime(s string) time.Time {
	if len(s) < 10 {
		return time.Now()
	}
	if !strings.HasSuffix(s, "Z") && !strings.ContainsAny(s[10:], "+-") {
		s += "Z"
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Now()
	}
	return t
}
