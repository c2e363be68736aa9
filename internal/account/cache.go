package account

import (
	"bytes"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/rickgao/coinstream/internal/model"
)

// Config holds configuration for the account cache.
type Config struct {
	OrderTTL time.Duration // non-active orders older than this are evicted, Default: 1h
	QueueLen int           // execution and notification history, Default: 1000
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		OrderTTL: time.Hour,
		QueueLen: 1000,
	}
}

type notificationEntry struct {
	seq uint64
	n   model.Notification
}

type balanceKey struct {
	typ      model.BalanceType
	currency string
}

// Cache holds the private account state pushed by the server.
// Each collection has its own lock; no method holds more than one.
type Cache struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	balMu    sync.RWMutex
	balances map[balanceKey]model.Balance

	ordMu  sync.Mutex // Orders() mutates during GC
	orders map[string]model.Order

	posMu     sync.RWMutex
	positions map[string]model.Position

	execMu     sync.RWMutex
	executions deque.Deque[model.Execution]

	notifMu       sync.RWMutex
	notifications deque.Deque[notificationEntry]
	notifSeq      uint64

	changeMu sync.Mutex
	changed  chan struct{}
}

// NewCache creates an empty cache.
func NewCache(cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = def.OrderTTL
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = def.QueueLen
	}

	return &Cache{
		cfg:       cfg,
		logger:    logger.With("component", "account"),
		now:       time.Now,
		balances:  make(map[balanceKey]model.Balance),
		orders:    make(map[string]model.Order),
		positions: make(map[string]model.Position),
		changed:   make(chan struct{}),
	}
}

// Changed returns a channel that is closed on the next order or
// notification mutation. Call it again after each wakeup.
func (c *Cache) Changed() <-chan struct{} {
	c.changeMu.Lock()
	defer c.changeMu.Unlock()
	return c.changed
}

func (c *Cache) signal() {
	c.changeMu.Lock()
	close(c.changed)
	c.changed = make(chan struct{})
	c.changeMu.Unlock()
}

// -----------------------------------------------------------------------------
// Balances
// -----------------------------------------------------------------------------

// UpdateBalance upserts one balance.
func (c *Cache) UpdateBalance(b model.Balance) {
	c.balMu.Lock()
	c.balances[balanceKey{b.Type, b.Currency}] = copyBalance(b)
	c.balMu.Unlock()
}

// ReplaceBalances swaps in a full balance snapshot.
func (c *Cache) ReplaceBalances(bs []model.Balance) {
	m := make(map[balanceKey]model.Balance, len(bs))
	for _, b := range bs {
		m[balanceKey{b.Type, b.Currency}] = copyBalance(b)
	}

	c.balMu.Lock()
	c.balances = m
	c.balMu.Unlock()
}

// Balances returns a copy of every balance, sorted by type then currency.
func (c *Cache) Balances() []model.Balance {
	c.balMu.RLock()
	out := make([]model.Balance, 0, len(c.balances))
	for _, b := range c.balances {
		out = append(out, copyBalance(b))
	}
	c.balMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}

// Balance returns one balance.
func (c *Cache) Balance(typ model.BalanceType, currency string) (model.Balance, bool) {
	c.balMu.RLock()
	defer c.balMu.RUnlock()
	b, ok := c.balances[balanceKey{typ, currency}]
	return copyBalance(b), ok
}

func copyBalance(b model.Balance) model.Balance {
	if b.Locked != nil {
		locked := *b.Locked
		b.Locked = &locked
	}
	return b
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// UpdateOrder upserts one order by id.
func (c *Cache) UpdateOrder(o model.Order) {
	c.ordMu.Lock()
	c.orders[o.ID] = o
	c.ordMu.Unlock()

	c.signal()
}

// ReplaceOrders swaps in a full order snapshot.
func (c *Cache) ReplaceOrders(os []model.Order) {
	m := make(map[string]model.Order, len(os))
	for _, o := range os {
		m[o.ID] = o
	}

	c.ordMu.Lock()
	c.orders = m
	c.ordMu.Unlock()

	c.signal()
}

// Orders returns every order, oldest first. Non-active orders whose last
// update is older than the TTL are evicted first.
func (c *Cache) Orders() []model.Order {
	cutoff := c.now().Add(-c.cfg.OrderTTL)

	c.ordMu.Lock()
	evicted := 0
	out := make([]model.Order, 0, len(c.orders))
	for id, o := range c.orders {
		if o.State != model.OrderActive && o.UpdatedAt.Before(cutoff) {
			delete(c.orders, id)
			evicted++
			continue
		}
		out = append(out, o)
	}
	c.ordMu.Unlock()

	if evicted > 0 {
		c.logger.Debug("evicted stale orders", "count", evicted)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Order returns one order by id.
func (c *Cache) Order(id string) (model.Order, bool) {
	c.ordMu.Lock()
	defer c.ordMu.Unlock()
	o, ok := c.orders[id]
	return o, ok
}

// -----------------------------------------------------------------------------
// Positions
// -----------------------------------------------------------------------------

// UpdatePosition upserts one position by instrument.
func (c *Cache) UpdatePosition(p model.Position) {
	c.posMu.Lock()
	c.positions[p.Instrument] = p
	c.posMu.Unlock()
}

// ReplacePositions swaps in a full position snapshot.
func (c *Cache) ReplacePositions(ps []model.Position) {
	m := make(map[string]model.Position, len(ps))
	for _, p := range ps {
		m[p.Instrument] = p
	}

	c.posMu.Lock()
	c.positions = m
	c.posMu.Unlock()
}

// Positions returns every position sorted by instrument.
func (c *Cache) Positions() []model.Position {
	c.posMu.RLock()
	out := make([]model.Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, p)
	}
	c.posMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// Position returns the position for instrument.
func (c *Cache) Position(instrument string) (model.Position, bool) {
	c.posMu.RLock()
	defer c.posMu.RUnlock()
	p, ok := c.positions[instrument]
	return p, ok
}

// -----------------------------------------------------------------------------
// Executions and notifications
// -----------------------------------------------------------------------------

// AddExecution appends a fill, evicting the oldest past QueueLen.
func (c *Cache) AddExecution(e model.Execution) {
	c.execMu.Lock()
	c.executions.PushBack(e)
	for c.executions.Len() > c.cfg.QueueLen {
		c.executions.PopFront()
	}
	c.execMu.Unlock()
}

// Executions returns the retained fills, oldest first.
func (c *Cache) Executions() []model.Execution {
	c.execMu.RLock()
	defer c.execMu.RUnlock()

	out := make([]model.Execution, c.executions.Len())
	for i := range out {
		out[i] = c.executions.At(i)
	}
	return out
}

// AddNotification appends a notification, evicting the oldest past QueueLen.
func (c *Cache) AddNotification(n model.Notification) {
	c.notifMu.Lock()
	c.notifSeq++
	c.notifications.PushBack(notificationEntry{seq: c.notifSeq, n: cloneNotification(n)})
	for c.notifications.Len() > c.cfg.QueueLen {
		c.notifications.PopFront()
	}
	c.notifMu.Unlock()

	c.signal()
}

// Notifications returns the retained notifications, oldest first.
func (c *Cache) Notifications() []model.Notification {
	c.notifMu.RLock()
	defer c.notifMu.RUnlock()

	out := make([]model.Notification, c.notifications.Len())
	for i := range out {
		out[i] = cloneNotification(c.notifications.At(i).n)
	}
	return out
}

func cloneNotification(n model.Notification) model.Notification {
	n.Raw = bytes.Clone(n.Raw)
	return n
}

// NotificationCursor returns a cursor positioned after the newest
// notification. Pass it to NotificationsAfter to see only later arrivals.
func (c *Cache) NotificationCursor() uint64 {
	c.notifMu.RLock()
	defer c.notifMu.RUnlock()
	return c.notifSeq
}

// NotificationsAfter returns notifications added after cursor, oldest first,
// and the cursor to use next time.
func (c *Cache) NotificationsAfter(cursor uint64) ([]model.Notification, uint64) {
	c.notifMu.RLock()
	defer c.notifMu.RUnlock()

	var out []model.Notification
	for i := 0; i < c.notifications.Len(); i++ {
		e := c.notifications.At(i)
		if e.seq > cursor {
			out = append(out, cloneNotification(e.n))
		}
	}
	return out, c.notifSeq
}
