package orderop

import (
	"sync"
	"time"
)

// CIDGenerator hands out strictly increasing client correlation ids based on
// the millisecond clock. Safe for concurrent use.
type CIDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewCIDGenerator creates a generator backed by the wall clock.
func NewCIDGenerator() *CIDGenerator {
	return &CIDGenerator{now: time.Now}
}

// Next returns the next id. Two calls in the same millisecond still get
// distinct, increasing ids.
func (g *CIDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}
