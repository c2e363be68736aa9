// Package session is the root of the streaming layer. A Session owns one
// venue connection at a time and composes the multiplexer, the book
// reconstructor, the account cache and the order correlator around it.
//
// Lifecycle:
//
//	Closed -> Connecting -> Open -> Closing -> Closed
//	                         |
//	                         +--> Reconnecting -> Connecting
//
// Every disconnect not caused by Close is followed by a reconnect after an
// exponential delay. Each new connection sends the venue handshake, fires
// OnOpen, re-authenticates if Authenticate was called, drops the old
// channel bindings and re-subscribes every held key exactly once.
//
// Handlers run on the read goroutine. Frames are handled one at a time in
// arrival order.
package session
