// Package bitfinex speaks the Bitfinex v2 WebSocket protocol.
//
// Public channels are server-assigned numeric ids confirmed by a
// "subscribed" event. Channel 0 carries the private account stream and
// accepts order operations:
//
//	[0, "on", null, {"cid": 1700000000000, "symbol": "tBTCUSD", ...}]
//
// Book levels are [price, count, amount]; a positive amount is a bid and a
// zero count removes the price.
package bitfinex
