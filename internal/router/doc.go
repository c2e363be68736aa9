// Package router multiplexes logical subscriptions onto server channels.
//
// A subscription key (stream type plus instrument) is backed by one or more
// channel specs. Client-named channels are bound as soon as the request is
// sent; server-assigned channels are bound when the venue confirms them.
//
// Data flow:
//
//	Subscribe(key) ─▶ Queue ─▶ Run (rate limited) ─▶ Sender
//	                               │
//	                               └─▶ bindings ◀── Confirm(channel)
//	                                       │
//	                     incoming data ─▶ Lookup(channel) ─▶ key
package router
