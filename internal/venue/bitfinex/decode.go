package bitfinex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinstream/internal/book"
	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/router"
	"github.com/rickgao/coinstream/internal/venue"
)

type eventMessage struct {
	Event   string          `json:"event"`
	Status  string          `json:"status"`
	Channel string          `json:"channel"`
	ChanID  json.RawMessage `json:"chanId"`
	Symbol  string          `json:"symbol"`
	Pair    string          `json:"pair"`
	Msg     string          `json:"msg"`
	Code    int             `json:"code"`
}

// Decode parses one frame. Objects are control events; arrays are channel
// data, with channel 0 carrying the private account stream.
func (v *Venue) Decode(data []byte) ([]venue.Event, error) {
	raw := json.RawMessage(data)
	if isArray(raw) {
		return v.decodeChannel(raw)
	}

	var msg eventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	ev := venue.Event{Raw: raw, Message: msg.Msg}

	switch msg.Event {
	case "info", "conf":
		ev.Kind = venue.EventInfo
		if msg.Event == "conf" && msg.Status != "" && msg.Status != "OK" {
			ev.Kind = venue.EventError
		}
	case "subscribed":
		ev.Kind = venue.EventSubscribed
		ev.Channel = router.ChannelID(strings.TrimSpace(string(msg.ChanID)))
		channel, symbol := msg.Channel, msg.Symbol
		if symbol == "" && msg.Pair != "" {
			symbol = "t" + msg.Pair
		}
		ev.Match = func(_ model.SubscriptionKey, spec router.ChannelSpec) bool {
			return spec.Params["channel"] == channel &&
				strings.EqualFold(spec.Params["symbol"], symbol)
		}
	case "unsubscribed":
		ev.Kind = venue.EventUnsubscribed
		ev.Channel = router.ChannelID(strings.TrimSpace(string(msg.ChanID)))
	case "auth":
		ev.Kind = venue.EventAuth
		ev.AuthOK = msg.Status == "OK"
	case "error":
		ev.Kind = venue.EventError
	default:
		ev.Kind = venue.EventInfo
		ev.Message = "unsupported event " + msg.Event
	}

	return []venue.Event{ev}, nil
}

func (v *Venue) decodeChannel(raw json.RawMessage) ([]venue.Event, error) {
	arr, err := decodeArray(raw)
	if err != nil {
		return nil, fmt.Errorf("decode channel message: %w", err)
	}
	if err := mustField(arr, 2, "channel message"); err != nil {
		return nil, err
	}

	chanID := fieldInt(arr, 0)
	channel := router.ChannelID(strconv.FormatInt(chanID, 10))

	if fieldString(arr, 1) == "hb" {
		return []venue.Event{{Kind: venue.EventHeartbeat, Channel: channel, Raw: raw}}, nil
	}

	if chanID == 0 {
		upd, err := v.decodeAccount(arr)
		if err != nil {
			return nil, err
		}
		return []venue.Event{{Kind: venue.EventAccount, Account: upd, Raw: raw}}, nil
	}

	ev := venue.Event{Kind: venue.EventData, Channel: channel, Payload: arr[1], Raw: raw}
	if len(arr) >= 3 {
		ev.Timestamp = fieldTime(arr, 2)
	}
	return []venue.Event{ev}, nil
}

// ConvertData decodes book and ticker channel bodies.
func (v *Venue) ConvertData(key model.SubscriptionKey, spec router.ChannelSpec, payload json.RawMessage, ts time.Time) (venue.Data, bool, error) {
	switch spec.Params["channel"] {
	case "book":
		ev, err := convertBook(payload)
		if err != nil {
			return venue.Data{}, false, err
		}
		ev.Timestamp = ts
		return venue.Data{Book: ev}, true, nil
	case "ticker":
		t, err := convertTicker(key.Instrument, payload, ts)
		if err != nil {
			return venue.Data{}, false, err
		}
		return venue.Data{Ticker: t}, true, nil
	default:
		return venue.Data{}, false, fmt.Errorf("unknown channel %q", spec.Params["channel"])
	}
}

// convertBook reads [[price,count,amount],...] (snapshot) or
// [price,count,amount] (update). A zero count removes the price.
func convertBook(payload json.RawMessage) (*book.Event, error) {
	arr, err := decodeArray(payload)
	if err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}

	ev := &book.Event{}
	rows := [][]json.RawMessage{arr}
	if len(arr) > 0 && isArray(arr[0]) {
		ev.Snapshot = true
		rows = rows[:0]
		for _, r := range arr {
			row, err := decodeArray(r)
			if err != nil {
				return nil, fmt.Errorf("decode book row: %w", err)
			}
			rows = append(rows, row)
		}
	}

	for _, row := range rows {
		if err := mustField(row, 3, "book row"); err != nil {
			return nil, err
		}
		count := fieldInt(row, 1)
		lvl := book.Level{
			Price:  fieldDecimal(row, 0),
			Amount: fieldDecimal(row, 2),
			Seq:    count,
			HasSeq: true,
		}
		if count == 0 {
			lvl.Amount = decimal.Zero
		}
		ev.Levels = append(ev.Levels, lvl)
	}
	return ev, nil
}

// convertTicker reads [BID, BID_SIZE, ASK, ASK_SIZE, DAILY_CHANGE,
// DAILY_CHANGE_PERC, LAST_PRICE, VOLUME, HIGH, LOW].
func convertTicker(instrument string, payload json.RawMessage, ts time.Time) (*model.Ticker, error) {
	arr, err := decodeArray(payload)
	if err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	if err := mustField(arr, 8, "ticker"); err != nil {
		return nil, err
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return &model.Ticker{
		Timestamp:  ts,
		Instrument: instrument,
		Bid:        fieldDecimal(arr, 0),
		Ask:        fieldDecimal(arr, 2),
		Last:       fieldDecimal(arr, 6),
		Volume24h:  fieldDecimal(arr, 7),
	}, nil
}

// -----------------------------------------------------------------------------
// Account channel
// -----------------------------------------------------------------------------

var balanceTypes = map[string]model.BalanceType{
	"exchange": model.BalanceMain,
	"margin":   model.BalanceMargin,
	"funding":  model.BalanceLoan,
}

// decodeAccount reads [0, type, payload]. Snapshot types carry a list of
// rows; everything else carries a single row.
func (v *Venue) decodeAccount(arr []json.RawMessage) (*venue.AccountUpdate, error) {
	if err := mustField(arr, 3, "account message"); err != nil {
		return nil, err
	}
	typ := fieldString(arr, 1)
	upd := &venue.AccountUpdate{Type: typ}

	var rows [][]json.RawMessage
	body, err := decodeArray(arr[2])
	if err != nil && !isNull(arr[2]) {
		return nil, fmt.Errorf("decode %s payload: %w", typ, err)
	}
	if len(body) > 0 && isArray(body[0]) {
		for _, r := range body {
			row, err := decodeArray(r)
			if err != nil {
				return nil, fmt.Errorf("decode %s row: %w", typ, err)
			}
			rows = append(rows, row)
		}
	} else if len(body) > 0 {
		rows = [][]json.RawMessage{body}
	}

	switch typ {
	case "ws", "wu":
		upd.BalancesSnapshot = typ == "ws"
		for _, r := range rows {
			upd.Balances = append(upd.Balances, convertBalance(r))
		}
	case "os", "on", "ou", "oc":
		upd.OrdersSnapshot = typ == "os"
		for _, r := range rows {
			upd.Orders = append(upd.Orders, v.convertOrder(r))
		}
	case "ps", "pn", "pu", "pc":
		upd.PositionsSnapshot = typ == "ps"
		for _, r := range rows {
			upd.Positions = append(upd.Positions, v.convertPosition(r))
		}
	case "te", "tu":
		for _, r := range rows {
			upd.Executions = append(upd.Executions, v.convertExecution(r))
		}
	case "n":
		for _, r := range rows {
			upd.Notifications = append(upd.Notifications, convertNotification(r))
		}
	}
	return upd, nil
}

// convertBalance reads [wallet_type, currency, balance, unsettled_interest,
// balance_available].
func convertBalance(r []json.RawMessage) model.Balance {
	typ, ok := balanceTypes[fieldString(r, 0)]
	if !ok {
		typ = model.BalanceUnknown
	}
	b := model.Balance{
		Type:     typ,
		Currency: fieldString(r, 1),
		Total:    fieldDecimal(r, 2),
	}
	if avail := fieldDecimalPtr(r, 4); avail != nil {
		locked := b.Total.Sub(*avail)
		b.Locked = &locked
	}
	return b
}

// convertOrder reads [id, gid, cid, symbol, mts_create, mts_update, amount,
// amount_orig, type, type_prev, _, _, flags, status, _, _, price, price_avg].
func (v *Venue) convertOrder(r []json.RawMessage) model.Order {
	amount := fieldDecimal(r, 6)
	orig := fieldDecimal(r, 7)

	side := model.SideBuy
	if orig.IsNegative() {
		side = model.SideSell
	}

	return model.Order{
		ID:          fieldID(r, 0),
		GroupID:     fieldInt(r, 1),
		ClientID:    fieldInt(r, 2),
		Instrument:  v.Instrument(fieldString(r, 3)),
		CreatedAt:   fieldTime(r, 4),
		UpdatedAt:   fieldTime(r, 5),
		Type:        fieldString(r, 8),
		Side:        side,
		Qty:         orig.Abs(),
		QtyExecuted: orig.Abs().Sub(amount.Abs()),
		State:       orderState(fieldString(r, 13)),
		Price:       fieldDecimal(r, 16),
		PriceAvg:    fieldDecimal(r, 17),
	}
}

// orderState maps statuses such as "EXECUTED @ 100(0.1): was PARTIALLY
// FILLED @ 100(0.05)".
func orderState(status string) model.OrderState {
	switch status {
	case "ACTIVE", "PARTIALLY FILLED":
		return model.OrderActive
	case "EXECUTED":
		return model.OrderFilled
	case "CANCELED":
		return model.OrderCanceled
	case "":
		return model.OrderUnknown
	}
	switch {
	case strings.HasPrefix(status, "PARTIALLY FILLED"):
		return model.OrderActive
	case strings.Contains(status, "EXECUTED"):
		return model.OrderFilled
	case strings.Contains(status, "CANCELED"), strings.Contains(status, "was:"):
		return model.OrderCanceled
	case strings.Contains(status, "REJECTED"):
		return model.OrderError
	}
	return model.OrderActive
}

// convertPosition reads [symbol, status, amount, base_price, ...].
func (v *Venue) convertPosition(r []json.RawMessage) model.Position {
	amount := fieldDecimal(r, 2)
	side := model.SideBuy
	if amount.IsNegative() {
		side = model.SideSell
	}

	state := model.PositionUnknown
	switch fieldString(r, 1) {
	case "ACTIVE":
		state = model.PositionActive
	case "CLOSED":
		state = model.PositionClosed
	}

	return model.Position{
		Instrument: v.Instrument(fieldString(r, 0)),
		Side:       side,
		State:      state,
		Qty:        amount.Abs(),
		Price:      fieldDecimal(r, 3),
		UpdatedAt:  time.Now(),
	}
}

// convertExecution reads [id, symbol, mts_create, order_id, exec_amount,
// exec_price, ...].
func (v *Venue) convertExecution(r []json.RawMessage) model.Execution {
	amount := fieldDecimal(r, 4)
	side := model.SideBuy
	if amount.IsNegative() {
		side = model.SideSell
	}
	return model.Execution{
		ID:         fieldID(r, 0),
		Instrument: v.Instrument(fieldString(r, 1)),
		Timestamp:  fieldTime(r, 2),
		OrderID:    fieldID(r, 3),
		Side:       side,
		Qty:        amount.Abs(),
		Price:      fieldDecimal(r, 5),
	}
}

// convertNotification reads [mts, type, message_id, _, notify_info, code,
// status, text]. For order requests notify_info is the order row.
func convertNotification(r []json.RawMessage) model.Notification {
	n := model.Notification{
		Timestamp: fieldTime(r, 0),
		Type:      fieldString(r, 1),
		Status:    model.NotificationStatus(fieldString(r, 6)),
		Text:      fieldString(r, 7),
	}
	if len(r) > 4 && isArray(r[4]) {
		if info, err := decodeArray(r[4]); err == nil {
			n.OrderID = fieldID(info, 0)
			n.ClientID = fieldInt(info, 2)
		}
	}
	if raw, err := json.Marshal(r); err == nil {
		n.Raw = raw
	}
	return n
}
