// Package bitflyer speaks the bitFlyer Lightning JSON-RPC realtime API.
//
// Subscriptions name their channels directly:
//
//	lightning_ticker_BTC_JPY
//	lightning_board_snapshot_BTC_JPY   (full book)
//	lightning_board_BTC_JPY            (incremental)
//
// An order-book key is therefore backed by two channels.
package bitflyer
