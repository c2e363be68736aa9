package bitfinex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rickgao/coinstream/internal/auth"
	"github.com/rickgao/coinstream/internal/book"
	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/orderop"
	"github.com/rickgao/coinstream/internal/router"
	"github.com/rickgao/coinstream/internal/venue"
)

// DefaultURL is the public v2 WebSocket endpoint.
const DefaultURL = "wss://api.bitfinex.com/ws/2"

// flagTimestamp asks the server to append a millisecond timestamp to every
// channel message.
const flagTimestamp = 32768

// Config holds venue options.
type Config struct {
	URL      string
	BookPrec string            // Default: P0
	BookFreq string            // Default: F0
	BookLen  string            // Default: 25
	Symbols  map[string]string // instrument -> symbol overrides
}

// Venue implements venue.Venue for the Bitfinex v2 protocol.
type Venue struct {
	cfg     Config
	symbols map[string]string
	reverse map[string]string
}

var _ venue.Venue = (*Venue)(nil)

// New creates a Bitfinex venue.
func New(cfg Config) *Venue {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.BookPrec == "" {
		cfg.BookPrec = "P0"
	}
	if cfg.BookFreq == "" {
		cfg.BookFreq = "F0"
	}
	if cfg.BookLen == "" {
		cfg.BookLen = "25"
	}

	v := &Venue{
		cfg:     cfg,
		symbols: make(map[string]string),
		reverse: make(map[string]string),
	}
	for inst, sym := range cfg.Symbols {
		v.symbols[inst] = sym
		v.reverse[sym] = inst
	}
	return v
}

func (v *Venue) Name() string { return "bitfinex" }

func (v *Venue) URL() string { return v.cfg.URL }

// Partition: a positive amount is a bid.
func (v *Venue) Partition() book.Partition { return book.BySign }

// Symbol maps an instrument like "BTC_USD" to a trading symbol "tBTCUSD".
func (v *Venue) Symbol(instrument string) string {
	if s, ok := v.symbols[instrument]; ok {
		return s
	}
	if strings.HasPrefix(instrument, "t") && !strings.Contains(instrument, "_") {
		return instrument
	}
	base, quote, ok := strings.Cut(instrument, "_")
	if !ok {
		return "t" + strings.ToUpper(instrument)
	}
	if len(base) > 3 || len(quote) > 3 {
		return "t" + strings.ToUpper(base) + ":" + strings.ToUpper(quote)
	}
	return "t" + strings.ToUpper(base+quote)
}

// Instrument maps a trading symbol back to "BASE_QUOTE".
func (v *Venue) Instrument(symbol string) string {
	if inst, ok := v.reverse[symbol]; ok {
		return inst
	}
	s := strings.TrimPrefix(symbol, "t")
	if base, quote, ok := strings.Cut(s, ":"); ok {
		return base + "_" + quote
	}
	if len(s) == 6 {
		return s[:3] + "_" + s[3:]
	}
	return s
}

// Channels returns one server-assigned channel per key.
func (v *Venue) Channels(key model.SubscriptionKey) ([]router.ChannelSpec, error) {
	symbol := v.Symbol(key.Instrument)

	switch key.Stream {
	case model.StreamOrderBook:
		return []router.ChannelSpec{{Params: map[string]string{
			"channel": "book",
			"symbol":  symbol,
			"prec":    v.cfg.BookPrec,
			"freq":    v.cfg.BookFreq,
			"len":     v.cfg.BookLen,
		}}}, nil
	case model.StreamTicker:
		return []router.ChannelSpec{{Params: map[string]string{
			"channel": "ticker",
			"symbol":  symbol,
		}}}, nil
	default:
		return nil, fmt.Errorf("%w: stream %q", venue.ErrNotSupported, key.Stream)
	}
}

// SubscribeRequest encodes {"event":"subscribe", ...params}.
func (v *Venue) SubscribeRequest(key model.SubscriptionKey, spec router.ChannelSpec) ([]byte, error) {
	msg := map[string]string{"event": "subscribe"}
	for k, val := range spec.Params {
		msg[k] = val
	}
	return json.Marshal(msg)
}

// UnsubscribeRequest encodes {"event":"unsubscribe","chanId":N}.
func (v *Venue) UnsubscribeRequest(key model.SubscriptionKey, spec router.ChannelSpec, channel router.ChannelID) ([]byte, error) {
	id, err := strconv.ParseInt(string(channel), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid channel id %q: %w", channel, err)
	}
	return json.Marshal(struct {
		Event  string `json:"event"`
		ChanID int64  `json:"chanId"`
	}{"unsubscribe", id})
}

// Handshake enables server timestamps on channel messages.
func (v *Venue) Handshake() [][]byte {
	return [][]byte{[]byte(fmt.Sprintf(`{"event":"conf","flags":%d}`, flagTimestamp))}
}

type authRequest struct {
	Event       string `json:"event"`
	APIKey      string `json:"apiKey"`
	AuthPayload string `json:"authPayload"`
	AuthNonce   int64  `json:"authNonce"`
	AuthSig     string `json:"authSig"`
}

// AuthRequest signs "AUTH<nonce>" with the API secret.
func (v *Venue) AuthRequest(signer auth.Signer) ([]byte, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	nonce := signer.Nonce()
	payload := fmt.Sprintf("AUTH%d", nonce)

	return json.Marshal(authRequest{
		Event:       "auth",
		APIKey:      signer.APIKey(),
		AuthPayload: payload,
		AuthNonce:   nonce,
		AuthSig:     signer.Sign(payload),
	})
}

// RequiredSnapshots are the wallet, order and position snapshots.
func (v *Venue) RequiredSnapshots() []string {
	return []string{"ws", "os", "ps"}
}

// Orders returns the order-op encoder.
func (v *Venue) Orders() orderop.Encoder {
	return orderEncoder{v: v}
}
