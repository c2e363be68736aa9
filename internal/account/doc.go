// Package account caches private account state pushed over the session:
// balances, orders, positions, executions and order-operation notifications.
//
// Collections are locked independently. Every accessor returns a copy, so
// callers never observe a partially applied update. Executions and
// notifications are bounded; the oldest entries are evicted first.
package account
