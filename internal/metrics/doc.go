// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Session state, connects and reconnects
//   - Received frames by event kind and decode failures
//   - Held subscriptions and emitted order books
//   - Order operation outcomes and latency
//
// Collectors live on a private registry owned by a Metrics value; there
// are no package-level collectors.
package metrics
