package book

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinstream/internal/model"
)

// Partition decides which side of the book a cached level belongs to.
// It is fixed per venue.
type Partition int

const (
	// BySign treats a positive amount as a bid and a negative amount as an
	// ask. Quantities are emitted as absolute values.
	BySign Partition = iota
	// ByTag uses the explicit side carried by each level.
	ByTag
)

func (p Partition) String() string {
	switch p {
	case BySign:
		return "by_sign"
	case ByTag:
		return "by_tag"
	default:
		return "unknown"
	}
}

// Level is one raw price level as decoded from the wire.
// A zero Amount removes the level.
type Level struct {
	Price  decimal.Decimal
	Amount decimal.Decimal // signed under BySign, non-negative under ByTag
	Side   model.Side      // ByTag only: SideBuy = bid, SideSell = ask
	Seq    int64
	HasSeq bool
}

// Event is a decoded book message: a full snapshot or a set of incremental
// level changes.
type Event struct {
	Snapshot  bool
	Levels    []Level
	Timestamp time.Time // zero means receipt time
}

type levelKey struct {
	side  model.Side // empty under BySign
	price string
}

// cache is the per-key price map.
type cache struct {
	mu               sync.Mutex
	snapshotReceived bool
	levels           map[levelKey]Level
}

// Reconstructor rebuilds full order books from snapshot and incremental
// events, one cache per subscription key.
type Reconstructor struct {
	partition Partition
	logger    *slog.Logger

	mu     sync.Mutex
	caches map[model.SubscriptionKey]*cache
}

// NewReconstructor creates a Reconstructor using the given partition rule.
func NewReconstructor(partition Partition, logger *slog.Logger) *Reconstructor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{
		partition: partition,
		logger:    logger.With("component", "book", "partition", partition.String()),
		caches:    make(map[model.SubscriptionKey]*cache),
	}
}

// Partition returns the partition rule in use.
func (r *Reconstructor) Partition() Partition {
	return r.partition
}

func (r *Reconstructor) cacheFor(key model.SubscriptionKey) *cache {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caches[key]
	if !ok {
		c = &cache{levels: make(map[levelKey]Level)}
		r.caches[key] = c
	}
	return c
}

// Apply folds ev into the cache for key and returns the resulting book.
// It returns false until the first snapshot for key has been applied.
func (r *Reconstructor) Apply(key model.SubscriptionKey, ev Event) (*model.OrderBook, bool) {
	c := r.cacheFor(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Snapshot {
		c.levels = make(map[levelKey]Level, len(ev.Levels))
		c.snapshotReceived = true
	}

	for _, lvl := range ev.Levels {
		k := r.keyOf(lvl)
		if lvl.Amount.IsZero() {
			delete(c.levels, k)
			continue
		}
		c.levels[k] = lvl
	}

	if !c.snapshotReceived {
		return nil, false
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return r.emit(key.Instrument, ts, c.levels), true
}

// Current returns the book currently held for key without applying anything.
func (r *Reconstructor) Current(key model.SubscriptionKey) (*model.OrderBook, bool) {
	r.mu.Lock()
	c, ok := r.caches[key]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snapshotReceived {
		return nil, false
	}
	return r.emit(key.Instrument, time.Now(), c.levels), true
}

// Reset clears the cache for key; the next snapshot starts it again.
func (r *Reconstructor) Reset(key model.SubscriptionKey) {
	c := r.cacheFor(key)

	c.mu.Lock()
	c.levels = make(map[levelKey]Level)
	c.snapshotReceived = false
	c.mu.Unlock()
}

// ResetAll clears every cache.
func (r *Reconstructor) ResetAll() {
	r.mu.Lock()
	keys := make([]model.SubscriptionKey, 0, len(r.caches))
	for k := range r.caches {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	for _, k := range keys {
		r.Reset(k)
	}
}

// Discard drops the cache for key entirely.
func (r *Reconstructor) Discard(key model.SubscriptionKey) {
	r.mu.Lock()
	delete(r.caches, key)
	r.mu.Unlock()
}

func (r *Reconstructor) keyOf(lvl Level) levelKey {
	k := levelKey{price: lvl.Price.String()}
	if r.partition == ByTag {
		k.side = lvl.Side
	}
	return k
}

// emit must be called with the cache lock held.
func (r *Reconstructor) emit(instrument string, ts time.Time, levels map[levelKey]Level) *model.OrderBook {
	ob := &model.OrderBook{
		Timestamp:  ts,
		Instrument: instrument,
		Asks:       make([]model.PriceLevel, 0, len(levels)/2),
		Bids:       make([]model.PriceLevel, 0, len(levels)/2),
	}

	for _, lvl := range levels {
		out := model.PriceLevel{Price: lvl.Price, Seq: lvl.Seq, HasSeq: lvl.HasSeq}

		switch r.partition {
		case BySign:
			out.Qty = lvl.Amount.Abs()
			if lvl.Amount.IsPositive() {
				ob.Bids = append(ob.Bids, out)
			} else {
				ob.Asks = append(ob.Asks, out)
			}
		case ByTag:
			out.Qty = lvl.Amount
			switch lvl.Side {
			case model.SideBuy:
				ob.Bids = append(ob.Bids, out)
			case model.SideSell:
				ob.Asks = append(ob.Asks, out)
			default:
				r.logger.Warn("dropping level without side tag", "instrument", instrument, "price", lvl.Price)
			}
		}
	}

	sort.Slice(ob.Asks, func(i, j int) bool { return ob.Asks[i].Price.LessThan(ob.Asks[j].Price) })
	sort.Slice(ob.Bids, func(i, j int) bool { return ob.Bids[i].Price.GreaterThan(ob.Bids[j].Price) })

	return ob
}
