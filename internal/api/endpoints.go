package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinstream/internal/model"
)

// PlatformStatus reports whether the venue is operative. Maintenance
// returns false.
func (c *Client) PlatformStatus(ctx context.Context) (bool, error) {
	var resp []int
	if err := c.get(ctx, "/v2/platform/status", nil, &resp); err != nil {
		return false, fmt.Errorf("platform status: %w", err)
	}
	if len(resp) == 0 {
		return false, fmt.Errorf("platform status: empty response")
	}
	return resp[0] == 1, nil
}

// Ticker fetches the trading ticker for a venue symbol such as "tBTCUSD".
// Layout: [bid, bid_size, ask, ask_size, change, change_rel, last, volume,
// high, low].
func (c *Client) Ticker(ctx context.Context, symbol string) (*model.Ticker, error) {
	var row []decimal.NullDecimal
	if err := c.get(ctx, "/v2/ticker/"+symbol, nil, &row); err != nil {
		return nil, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	if len(row) < 8 {
		return nil, fmt.Errorf("ticker %s: short response (%d fields)", symbol, len(row))
	}

	return &model.Ticker{
		Timestamp:  time.Now().UTC(),
		Instrument: symbol,
		Bid:        row[0].Decimal,
		Ask:        row[2].Decimal,
		Last:       row[6].Decimal,
		Volume24h:  row[7].Decimal,
	}, nil
}

var walletTypes = map[string]model.BalanceType{
	"exchange": model.BalanceMain,
	"margin":   model.BalanceMargin,
	"funding":  model.BalanceLoan,
}

// Wallets fetches balances from the authenticated wallets endpoint. Rows
// are [type, currency, balance, unsettled_interest, available, ...].
func (c *Client) Wallets(ctx context.Context) ([]model.Balance, error) {
	var rows [][]json.RawMessage
	if err := c.post(ctx, "/v2/auth/r/wallets", nil, &rows); err != nil {
		return nil, fmt.Errorf("wallets: %w", err)
	}

	out := make([]model.Balance, 0, len(rows))
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		var typ, currency string
		json.Unmarshal(r[0], &typ)
		json.Unmarshal(r[1], &currency)

		var total decimal.NullDecimal
		json.Unmarshal(r[2], &total)

		bt, ok := walletTypes[typ]
		if !ok {
			bt = model.BalanceUnknown
		}
		b := model.Balance{
			Type:     bt,
			Currency: strings.ToUpper(currency),
			Total:    total.Decimal,
		}
		if len(r) > 4 {
			var avail decimal.NullDecimal
			if json.Unmarshal(r[4], &avail) == nil && avail.Valid {
				locked := total.Decimal.Sub(avail.Decimal)
				b.Locked = &locked
			}
		}
		out = append(out, b)
	}
	return out, nil
}
