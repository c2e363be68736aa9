// Package model defines shared data types used across the streaming layer.
//
// Conventions:
//   - Prices and quantities: decimal.Decimal (exact, usable as map keys via String())
//   - Timestamps: time.Time in UTC
//   - Order IDs: venue-assigned strings; client IDs: locally generated int64
package model
