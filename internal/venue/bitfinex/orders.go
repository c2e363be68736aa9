package bitfinex

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rickgao/coinstream/internal/orderop"
)

var opCodes = map[orderop.Kind]string{
	orderop.KindNew:         "on",
	orderop.KindCancel:      "oc",
	orderop.KindUpdate:      "ou",
	orderop.KindCancelGroup: "oc_multi",
}

// orderEncoder writes ops as [0, opcode, null, params] on the account channel.
type orderEncoder struct {
	v *Venue
}

func (e orderEncoder) OpCode(kind orderop.Kind) (string, error) {
	code, ok := opCodes[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", orderop.ErrUnknownKind, kind)
	}
	return code, nil
}

func (e orderEncoder) Encode(op orderop.Op) ([]byte, error) {
	code, err := e.OpCode(op.Kind)
	if err != nil {
		return nil, err
	}

	params := make(map[string]any)

	switch op.Kind {
	case orderop.KindNew:
		params["cid"] = op.CID
		params["symbol"] = e.v.Symbol(op.Instrument)
		params["type"] = op.Type
		params["amount"] = op.Amount.String()
		if !op.Price.IsZero() {
			params["price"] = op.Price.String()
		}
		if op.GroupID != 0 {
			params["gid"] = op.GroupID
		}
	case orderop.KindCancel:
		id, err := orderID(op.OrderID)
		if err != nil {
			return nil, err
		}
		params["id"] = id
	case orderop.KindUpdate:
		id, err := orderID(op.OrderID)
		if err != nil {
			return nil, err
		}
		params["id"] = id
		if !op.Amount.IsZero() {
			params["amount"] = op.Amount.String()
		}
		if !op.Price.IsZero() {
			params["price"] = op.Price.String()
		}
		if op.GroupID != 0 {
			params["gid"] = op.GroupID
		}
	case orderop.KindCancelGroup:
		params["gid"] = [][]int64{{op.GroupID}}
	}

	for k, val := range op.Params {
		params[k] = val
	}

	return json.Marshal([]any{0, code, nil, params})
}

func orderID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid order id %q: %w", id, err)
	}
	return n, nil
}
