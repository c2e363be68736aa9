package bitfinex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Bitfinex payloads are positional arrays. These helpers read one field
// and tolerate short arrays and nulls.

func decodeArray(raw json.RawMessage) ([]json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	return arr, nil
}

func isArray(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func fieldDecimal(arr []json.RawMessage, i int) decimal.Decimal {
	if i >= len(arr) || isNull(arr[i]) {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(arr[i]))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func fieldDecimalPtr(arr []json.RawMessage, i int) *decimal.Decimal {
	if i >= len(arr) || isNull(arr[i]) {
		return nil
	}
	d, err := decimal.NewFromString(string(arr[i]))
	if err != nil {
		return nil
	}
	return &d
}

func fieldInt(arr []json.RawMessage, i int) int64 {
	if i >= len(arr) || isNull(arr[i]) {
		return 0
	}
	n, err := strconv.ParseInt(string(arr[i]), 10, 64)
	if err != nil {
		// Some ids arrive as floats, e.g. 1.7e12.
		d, derr := decimal.NewFromString(string(arr[i]))
		if derr != nil {
			return 0
		}
		return d.IntPart()
	}
	return n
}

func fieldString(arr []json.RawMessage, i int) string {
	if i >= len(arr) || isNull(arr[i]) {
		return ""
	}
	var s string
	if err := json.Unmarshal(arr[i], &s); err != nil {
		return ""
	}
	return s
}

func fieldID(arr []json.RawMessage, i int) string {
	n := fieldInt(arr, i)
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

func fieldTime(arr []json.RawMessage, i int) time.Time {
	ms := fieldInt(arr, i)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func mustField(arr []json.RawMessage, n int, what string) error {
	if len(arr) < n {
		return fmt.Errorf("%s: expected at least %d fields, got %d", what, n, len(arr))
	}
	return nil
}
