// Package connection implements the Transport Session.
//
// A Client owns exactly one physical WebSocket connection:
//   - a read loop goroutine performs blocking reads and delivers timestamped messages
//   - a heartbeat goroutine pings the server and reports stale connections
//   - Send serializes writes with a per-connection write deadline
//   - any read failure is reported once on Errors(); Close() is silent
//
// A Dialer produces connected Clients so the session can reconnect without
// knowing the transport.
package connection
