package bitfinex

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinstream/internal/auth"
	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/orderop"
	"github.com/rickgao/coinstream/internal/router"
	"github.com/rickgao/coinstream/internal/venue"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decodeOne(t *testing.T, v *Venue, frame string) venue.Event {
	t.Helper()
	events, err := v.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode(%s) failed: %v", frame, err)
	}
	if len(events) != 1 {
		t.Fatalf("Decode(%s) returned %d events, want 1", frame, len(events))
	}
	return events[0]
}

func TestVenue_SymbolMapping(t *testing.T) {
	v := New(Config{Symbols: map[string]string{"BTC_USDT": "tBTCUST"}})

	tests := []struct {
		instrument string
		symbol     string
	}{
		{"BTC_USD", "tBTCUSD"},
		{"ETH_BTC", "tETHBTC"},
		{"BTC_USDT", "tBTCUST"},
		{"DOGE_USD", "tDOGE:USD"},
	}
	for _, tt := range tests {
		if got := v.Symbol(tt.instrument); got != tt.symbol {
			t.Errorf("Symbol(%q) = %q, want %q", tt.instrument, got, tt.symbol)
		}
		if got := v.Instrument(tt.symbol); got != tt.instrument {
			t.Errorf("Instrument(%q) = %q, want %q", tt.symbol, got, tt.instrument)
		}
	}
}

func TestVenue_Channels(t *testing.T) {
	v := New(Config{})

	specs, err := v.Channels(model.SubscriptionKey{Stream: model.StreamOrderBook, Instrument: "BTC_USD"})
	if err != nil {
		t.Fatalf("Channels failed: %v", err)
	}
	if len(specs) != 1 || specs[0].Channel != "" {
		t.Fatalf("specs = %+v, want one server-assigned spec", specs)
	}

	data, err := v.SubscribeRequest(model.SubscriptionKey{}, specs[0])
	if err != nil {
		t.Fatal(err)
	}
	var msg map[string]string
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"event": "subscribe", "channel": "book", "symbol": "tBTCUSD",
		"prec": "P0", "freq": "F0", "len": "25",
	}
	for k, val := range want {
		if msg[k] != val {
			t.Errorf("subscribe[%s] = %q, want %q", k, msg[k], val)
		}
	}

	if _, err := v.Channels(model.AccountKey); !errors.Is(err, venue.ErrNotSupported) {
		t.Errorf("Channels(AccountKey) error = %v, want ErrNotSupported", err)
	}
}

func TestVenue_UnsubscribeRequest(t *testing.T) {
	v := New(Config{})

	data, err := v.UnsubscribeRequest(model.SubscriptionKey{}, router.ChannelSpec{}, "17")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"event":"unsubscribe","chanId":17}` {
		t.Errorf("unsubscribe = %s", data)
	}

	if _, err := v.UnsubscribeRequest(model.SubscriptionKey{}, router.ChannelSpec{}, "abc"); err == nil {
		t.Error("expected error for non-numeric channel")
	}
}

func TestVenue_Handshake(t *testing.T) {
	msgs := New(Config{}).Handshake()
	if len(msgs) != 1 || string(msgs[0]) != `{"event":"conf","flags":32768}` {
		t.Errorf("Handshake() = %q", msgs)
	}
}

func TestVenue_DecodeSubscribed(t *testing.T) {
	v := New(Config{})
	ev := decodeOne(t, v, `{"event":"subscribed","channel":"book","chanId":17,"symbol":"tBTCUSD","prec":"P0","freq":"F0","len":"25","pair":"BTCUSD"}`)

	if ev.Kind != venue.EventSubscribed {
		t.Fatalf("Kind = %v, want subscribed", ev.Kind)
	}
	if ev.Channel != "17" {
		t.Errorf("Channel = %q, want 17", ev.Channel)
	}

	book := router.ChannelSpec{Params: map[string]string{"channel": "book", "symbol": "tBTCUSD"}}
	ticker := router.ChannelSpec{Params: map[string]string{"channel": "ticker", "symbol": "tBTCUSD"}}
	other := router.ChannelSpec{Params: map[string]string{"channel": "book", "symbol": "tETHUSD"}}

	if !ev.Match(model.SubscriptionKey{}, book) {
		t.Error("should match the book spec")
	}
	if ev.Match(model.SubscriptionKey{}, ticker) || ev.Match(model.SubscriptionKey{}, other) {
		t.Error("should not match other specs")
	}
}

func TestVenue_DecodeControlEvents(t *testing.T) {
	v := New(Config{})

	tests := []struct {
		frame  string
		kind   venue.EventKind
		authOK bool
	}{
		{`{"event":"info","version":2}`, venue.EventInfo, false},
		{`{"event":"conf","status":"OK","flags":32768}`, venue.EventInfo, false},
		{`{"event":"auth","status":"OK","chanId":0,"userId":1}`, venue.EventAuth, true},
		{`{"event":"auth","status":"FAILED","msg":"apikey: invalid"}`, venue.EventAuth, false},
		{`{"event":"error","msg":"symbol: invalid","code":10300}`, venue.EventError, false},
		{`{"event":"unsubscribed","status":"OK","chanId":17}`, venue.EventUnsubscribed, false},
	}
	for _, tt := range tests {
		ev := decodeOne(t, v, tt.frame)
		if ev.Kind != tt.kind {
			t.Errorf("%s: Kind = %v, want %v", tt.frame, ev.Kind, tt.kind)
		}
		if ev.AuthOK != tt.authOK {
			t.Errorf("%s: AuthOK = %v, want %v", tt.frame, ev.AuthOK, tt.authOK)
		}
	}
}

func TestVenue_DecodeBookData(t *testing.T) {
	v := New(Config{})
	key := model.SubscriptionKey{Stream: model.StreamOrderBook, Instrument: "BTC_USD"}
	spec := router.ChannelSpec{Params: map[string]string{"channel": "book", "symbol": "tBTCUSD"}}

	ev := decodeOne(t, v, `[17,[[100,1,-1.5],[99,2,2]],1700000000000]`)
	if ev.Kind != venue.EventData || ev.Channel != "17" {
		t.Fatalf("event = %+v, want data on 17", ev)
	}
	if !ev.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Timestamp = %v", ev.Timestamp)
	}

	data, ok, err := v.ConvertData(key, spec, ev.Payload, ev.Timestamp)
	if err != nil || !ok {
		t.Fatalf("ConvertData = %v, %v", ok, err)
	}
	if !data.Book.Snapshot || len(data.Book.Levels) != 2 {
		t.Fatalf("book = %+v, want 2-level snapshot", data.Book)
	}
	if !data.Book.Levels[0].Amount.Equal(d("-1.5")) {
		t.Errorf("Levels[0].Amount = %s, want -1.5", data.Book.Levels[0].Amount)
	}

	ev = decodeOne(t, v, `[17,[100,0,-1]]`)
	data, _, err = v.ConvertData(key, spec, ev.Payload, ev.Timestamp)
	if err != nil {
		t.Fatal(err)
	}
	if data.Book.Snapshot || len(data.Book.Levels) != 1 {
		t.Fatalf("book = %+v, want single update", data.Book)
	}
	if !data.Book.Levels[0].Amount.IsZero() {
		t.Errorf("count 0 should become a delete, amount = %s", data.Book.Levels[0].Amount)
	}

	if hb := decodeOne(t, v, `[17,"hb"]`); hb.Kind != venue.EventHeartbeat {
		t.Errorf("heartbeat Kind = %v", hb.Kind)
	}
}

func TestVenue_ConvertTicker(t *testing.T) {
	v := New(Config{})
	key := model.SubscriptionKey{Stream: model.StreamTicker, Instrument: "BTC_USD"}
	spec := router.ChannelSpec{Params: map[string]string{"channel": "ticker"}}

	data, ok, err := v.ConvertData(key, spec, json.RawMessage(`[100,5,101,6,-1,-0.01,100.5,1234,110,90]`), time.Time{})
	if err != nil || !ok {
		t.Fatalf("ConvertData = %v, %v", ok, err)
	}
	tk := data.Ticker
	if tk.Instrument != "BTC_USD" || !tk.Bid.Equal(d("100")) || !tk.Ask.Equal(d("101")) ||
		!tk.Last.Equal(d("100.5")) || !tk.Volume24h.Equal(d("1234")) {
		t.Errorf("ticker = %+v", tk)
	}
}

func TestVenue_DecodeAccount(t *testing.T) {
	v := New(Config{})

	ev := decodeOne(t, v, `[0,"ws",[["exchange","BTC",1.5,0,1.0],["funding","USD",100,0,null]]]`)
	if ev.Kind != venue.EventAccount || ev.Account.Type != "ws" {
		t.Fatalf("event = %+v", ev)
	}
	if !ev.Account.BalancesSnapshot || len(ev.Account.Balances) != 2 {
		t.Fatalf("balances = %+v", ev.Account)
	}
	b := ev.Account.Balances[0]
	if b.Type != model.BalanceMain || b.Currency != "BTC" || b.Locked == nil || !b.Locked.Equal(d("0.5")) {
		t.Errorf("balance[0] = %+v", b)
	}
	if ev.Account.Balances[1].Type != model.BalanceLoan || ev.Account.Balances[1].Locked != nil {
		t.Errorf("balance[1] = %+v", ev.Account.Balances[1])
	}

	ev = decodeOne(t, v, `[0,"os",[]]`)
	if !ev.Account.OrdersSnapshot || len(ev.Account.Orders) != 0 {
		t.Errorf("empty order snapshot = %+v", ev.Account)
	}

	order := `[42,7,1700000000123,"tBTCUSD",1700000000000,1700000001000,-0.4,-1,"EXCHANGE LIMIT",null,null,null,0,"PARTIALLY FILLED @ 100(-0.6)",null,null,100,100,0]`
	ev = decodeOne(t, v, `[0,"ou",`+order+`]`)
	if ev.Account.OrdersSnapshot || len(ev.Account.Orders) != 1 {
		t.Fatalf("orders = %+v", ev.Account)
	}
	o := ev.Account.Orders[0]
	if o.ID != "42" || o.GroupID != 7 || o.ClientID != 1700000000123 {
		t.Errorf("ids = %s/%d/%d", o.ID, o.GroupID, o.ClientID)
	}
	if o.Instrument != "BTC_USD" || o.Side != model.SideSell || o.State != model.OrderActive {
		t.Errorf("order = %+v", o)
	}
	if !o.Qty.Equal(d("1")) || !o.QtyExecuted.Equal(d("0.6")) {
		t.Errorf("qty = %s executed = %s", o.Qty, o.QtyExecuted)
	}
	if !o.UpdatedAt.Equal(time.UnixMilli(1700000001000)) {
		t.Errorf("UpdatedAt = %v", o.UpdatedAt)
	}

	ev = decodeOne(t, v, `[0,"te",[9,"tETHUSD",1700000000000,42,-0.25,2000,"EXCHANGE LIMIT",2000,1,-0.1,"USD"]]`)
	e := ev.Account.Executions[0]
	if e.ID != "9" || e.OrderID != "42" || e.Side != model.SideSell || !e.Qty.Equal(d("0.25")) || e.Instrument != "ETH_USD" {
		t.Errorf("execution = %+v", e)
	}

	ev = decodeOne(t, v, `[0,"ps",[["tBTCUSD","ACTIVE",-2,9000,0,0,null,null,null,null]]]`)
	p := ev.Account.Positions[0]
	if !ev.Account.PositionsSnapshot || p.State != model.PositionActive || p.Side != model.SideSell || !p.Qty.Equal(d("2")) {
		t.Errorf("position = %+v", p)
	}
}

func TestVenue_DecodeNotification(t *testing.T) {
	v := New(Config{})

	ev := decodeOne(t, v, `[0,"n",[1700000002000,"on-req",null,null,[42,null,1700000000123,"tBTCUSD",null,null,1,1,"EXCHANGE LIMIT"],null,"SUCCESS","Submitting exchange limit buy order for 1 BTC."]]`)
	if len(ev.Account.Notifications) != 1 {
		t.Fatalf("notifications = %+v", ev.Account)
	}
	n := ev.Account.Notifications[0]
	if n.Type != "on-req" || n.Status != model.StatusSuccess {
		t.Errorf("type/status = %s/%s", n.Type, n.Status)
	}
	if n.OrderID != "42" || n.ClientID != 1700000000123 {
		t.Errorf("OrderID/ClientID = %s/%d", n.OrderID, n.ClientID)
	}
	if !strings.HasPrefix(n.Text, "Submitting") {
		t.Errorf("Text = %q", n.Text)
	}
}

func TestOrderState(t *testing.T) {
	tests := []struct {
		status string
		want   model.OrderState
	}{
		{"ACTIVE", model.OrderActive},
		{"EXECUTED @ 100(1.0)", model.OrderFilled},
		{"EXECUTED @ 100(0.5): was PARTIALLY FILLED @ 100(0.5)", model.OrderFilled},
		{"PARTIALLY FILLED @ 100(0.5)", model.OrderActive},
		{"CANCELED", model.OrderCanceled},
		{"CANCELED was: PARTIALLY FILLED @ 100(0.5)", model.OrderCanceled},
		{"", model.OrderUnknown},
	}
	for _, tt := range tests {
		if got := orderState(tt.status); got != tt.want {
			t.Errorf("orderState(%q) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

type fixedSigner struct{}

func (fixedSigner) APIKey() string             { return "key" }
func (fixedSigner) Sign(payload string) string { return "sig(" + payload + ")" }
func (fixedSigner) Nonce() int64               { return 1234 }

var _ auth.Signer = fixedSigner{}

func TestVenue_AuthRequest(t *testing.T) {
	data, err := New(Config{}).AuthRequest(fixedSigner{})
	if err != nil {
		t.Fatal(err)
	}

	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg["event"] != "auth" || msg["apiKey"] != "key" || msg["authPayload"] != "AUTH1234" ||
		msg["authSig"] != "sig(AUTH1234)" || msg["authNonce"] != float64(1234) {
		t.Errorf("auth request = %v", msg)
	}
}

func TestOrderEncoder_Encode(t *testing.T) {
	enc := New(Config{}).Orders()

	tests := []struct {
		name string
		op   orderop.Op
		want string
	}{
		{
			name: "new",
			op: func() orderop.Op {
				op := orderop.NewOrder("BTC_USD", "EXCHANGE LIMIT", d("-0.5"), d("30000"))
				op.CID = 99
				return op
			}(),
			want: `[0,"on",null,{"amount":"-0.5","cid":99,"price":"30000","symbol":"tBTCUSD","type":"EXCHANGE LIMIT"}]`,
		},
		{
			name: "cancel",
			op:   orderop.CancelOrder("42"),
			want: `[0,"oc",null,{"id":42}]`,
		},
		{
			name: "update",
			op:   orderop.UpdateOrder("42", decimal.Zero, d("101")),
			want: `[0,"ou",null,{"id":42,"price":"101"}]`,
		},
		{
			name: "cancel group",
			op:   orderop.CancelGroup(7),
			want: `[0,"oc_multi",null,{"gid":[[7]]}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := enc.Encode(tt.op)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Encode() = %s, want %s", data, tt.want)
			}
		})
	}

	if _, err := enc.Encode(orderop.CancelOrder("not-a-number")); err == nil {
		t.Error("expected error for non-numeric order id")
	}
	if _, err := enc.OpCode("replace"); !errors.Is(err, orderop.ErrUnknownKind) {
		t.Errorf("OpCode(replace) error = %v, want ErrUnknownKind", err)
	}
}
