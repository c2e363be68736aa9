// Package api provides the Bitfinex v2 REST client used next to the
// streaming session.
//
// REST endpoints:
//   - GET  /v2/platform/status
//   - GET  /v2/ticker/{symbol}
//   - POST /v2/auth/r/wallets (signed)
//
// Requests failing with 5xx or 429 are retried with jittered exponential
// backoff.
package api
