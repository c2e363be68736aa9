// Package venue defines the contract between the session and an exchange's
// wire dialect. Implementations live in subpackages.
package venue
