package router

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/coinstream/internal/model"
)

// Multiplexer maps subscription keys to server channels and serializes the
// wire requests that create and remove those channels.
//
// Subscribe and Unsubscribe only enqueue. Run drains the queue in FIFO order
// on a fixed interval, one request at a time.
type Multiplexer struct {
	cfg      Config
	protocol Protocol
	logger   *slog.Logger
	limiter  *rate.Limiter

	queue *Queue[request]

	mu       sync.RWMutex
	channels map[ChannelID]Binding
	byKey    map[model.SubscriptionKey][]ChannelID
	pending  map[model.SubscriptionKey][]ChannelSpec

	// cancelled holds server-assigned specs whose subscribe was sent before
	// the key was unsubscribed. Their confirmations are released, not bound.
	cancelled map[model.SubscriptionKey][]ChannelSpec

	statsMu    sync.Mutex
	sent       int64
	sendErrors int64
}

// MultiplexerStats contains runtime statistics.
type MultiplexerStats struct {
	Sent       int64
	SendErrors int64
	Queue      QueueStats
}

// NewMultiplexer creates a Multiplexer using protocol for wire encoding.
func NewMultiplexer(cfg Config, protocol Protocol, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Multiplexer{
		cfg:      cfg,
		protocol: protocol,
		logger:   logger.With("component", "multiplexer"),
		limiter:  rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		queue:    NewQueue[request](cfg.QueueSize),
		channels: make(map[ChannelID]Binding),
		byKey:    make(map[model.SubscriptionKey][]ChannelID),
		pending:  make(map[model.SubscriptionKey][]ChannelSpec),

		cancelled: make(map[model.SubscriptionKey][]ChannelSpec),
	}
}

// Subscribe queues a subscribe request for key backed by specs.
func (m *Multiplexer) Subscribe(key model.SubscriptionKey, specs ...ChannelSpec) {
	if len(specs) == 0 {
		specs = []ChannelSpec{{}}
	}
	m.queue.Push(request{op: opSubscribe, key: key, specs: specs})
}

// Unsubscribe queues an unsubscribe request for key.
func (m *Multiplexer) Unsubscribe(key model.SubscriptionKey) {
	m.queue.Push(request{op: opUnsubscribe, key: key})
}

// Run drains queued requests to sender until ctx is cancelled.
func (m *Multiplexer) Run(ctx context.Context, sender Sender) {
	ticker := time.NewTicker(m.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.drain(ctx, sender)
		}
	}
}

func (m *Multiplexer) drain(ctx context.Context, sender Sender) {
	for ctx.Err() == nil {
		req, ok := m.queue.Pop()
		if !ok {
			return
		}
		switch req.op {
		case opSubscribe:
			m.subscribe(ctx, sender, req)
		case opUnsubscribe:
			m.unsubscribe(ctx, sender, req)
		case opReleaseChannel:
			m.release(ctx, sender, req)
		}
	}
}

func (m *Multiplexer) subscribe(ctx context.Context, sender Sender, req request) {
	for _, spec := range req.specs {
		// Record the binding before the request hits the wire so a fast
		// confirmation always finds it.
		m.mu.Lock()
		if spec.Channel != "" {
			m.bindLocked(req.key, spec, spec.Channel)
		} else {
			m.pending[req.key] = append(m.pending[req.key], spec)
		}
		m.mu.Unlock()

		data, err := m.protocol.SubscribeRequest(req.key, spec)
		if err != nil {
			m.logger.Error("failed to encode subscribe", "key", req.key, "error", err)
			continue
		}
		m.send(ctx, sender, data, "subscribe", req.key)
	}
}

func (m *Multiplexer) unsubscribe(ctx context.Context, sender Sender, req request) {
	type target struct {
		spec    ChannelSpec
		channel ChannelID
	}

	m.mu.Lock()
	var targets []target
	for _, ch := range m.byKey[req.key] {
		targets = append(targets, target{spec: m.channels[ch].Spec, channel: ch})
		delete(m.channels, ch)
	}
	delete(m.byKey, req.key)
	dropped := len(m.pending[req.key])
	if dropped > 0 {
		m.cancelled[req.key] = append(m.cancelled[req.key], m.pending[req.key]...)
	}
	delete(m.pending, req.key)
	m.mu.Unlock()

	if len(targets) == 0 {
		if dropped == 0 {
			m.logger.Debug("unsubscribe for unknown key", "key", req.key)
		}
		return
	}

	for _, t := range targets {
		data, err := m.protocol.UnsubscribeRequest(req.key, t.spec, t.channel)
		if err != nil {
			m.logger.Error("failed to encode unsubscribe", "key", req.key, "channel", t.channel, "error", err)
			continue
		}
		m.send(ctx, sender, data, "unsubscribe", req.key)
	}
}

// release unsubscribes a channel that was confirmed for a dropped key.
func (m *Multiplexer) release(ctx context.Context, sender Sender, req request) {
	data, err := m.protocol.UnsubscribeRequest(req.key, req.specs[0], req.channel)
	if err != nil {
		m.logger.Error("failed to encode unsubscribe", "key", req.key, "channel", req.channel, "error", err)
		return
	}
	m.send(ctx, sender, data, "unsubscribe", req.key)
}

func (m *Multiplexer) send(ctx context.Context, sender Sender, data []byte, op string, key model.SubscriptionKey) {
	if err := m.limiter.Wait(ctx); err != nil {
		return
	}

	err := sender.Send(data)

	m.statsMu.Lock()
	if err != nil {
		m.sendErrors++
	} else {
		m.sent++
	}
	m.statsMu.Unlock()

	if err != nil {
		m.logger.Warn("failed to send request", "op", op, "key", key, "error", err)
		return
	}
	m.logger.Debug("request sent", "op", op, "key", key)
}

// bindLocked must be called with mu held.
func (m *Multiplexer) bindLocked(key model.SubscriptionKey, spec ChannelSpec, channel ChannelID) {
	m.channels[channel] = Binding{Key: key, Spec: spec, Channel: channel, Confirmed: true}
	m.byKey[key] = append(m.byKey[key], channel)
}

// Confirm binds a server-assigned channel to the first pending spec that
// match accepts. It returns the bound key. A confirmation for a spec whose
// key was unsubscribed while pending queues a wire unsubscribe for channel
// and binds nothing.
func (m *Multiplexer) Confirm(channel ChannelID, match func(model.SubscriptionKey, ChannelSpec) bool) (model.SubscriptionKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Cancelled specs went out before any pending spec of the same key.
	if key, spec, ok := takeMatch(m.cancelled, match); ok {
		m.queue.Push(request{op: opReleaseChannel, key: key, specs: []ChannelSpec{spec}, channel: channel})
		m.logger.Debug("releasing channel of dropped key", "key", key, "channel", channel)
		return model.SubscriptionKey{}, false
	}
	if key, spec, ok := takeMatch(m.pending, match); ok {
		m.bindLocked(key, spec, channel)
		return key, true
	}
	return model.SubscriptionKey{}, false
}

// takeMatch removes and returns the first spec in specs that match accepts.
func takeMatch(specs map[model.SubscriptionKey][]ChannelSpec, match func(model.SubscriptionKey, ChannelSpec) bool) (model.SubscriptionKey, ChannelSpec, bool) {
	for key, list := range specs {
		for i, spec := range list {
			if !match(key, spec) {
				continue
			}
			rest := append(list[:i:i], list[i+1:]...)
			if len(rest) == 0 {
				delete(specs, key)
			} else {
				specs[key] = rest
			}
			return key, spec, true
		}
	}
	return model.SubscriptionKey{}, ChannelSpec{}, false
}

// Lookup returns the key and spec bound to channel.
func (m *Multiplexer) Lookup(channel ChannelID) (model.SubscriptionKey, ChannelSpec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.channels[channel]
	return b.Key, b.Spec, ok
}

// Channels returns the channels currently bound to key.
func (m *Multiplexer) Channels(key model.SubscriptionKey) []ChannelID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ChannelID(nil), m.byKey[key]...)
}

// Reset drops every binding and every queued request. Called on disconnect:
// channel ids do not survive a new connection.
func (m *Multiplexer) Reset() {
	dropped := m.queue.Clear()

	m.mu.Lock()
	m.channels = make(map[ChannelID]Binding)
	m.byKey = make(map[model.SubscriptionKey][]ChannelID)
	m.pending = make(map[model.SubscriptionKey][]ChannelSpec)
	m.cancelled = make(map[model.SubscriptionKey][]ChannelSpec)
	m.mu.Unlock()

	m.logger.Debug("bindings reset", "dropped_requests", dropped)
}

// Bindings returns a sorted snapshot of confirmed and pending bindings.
func (m *Multiplexer) Bindings() []Binding {
	m.mu.RLock()
	out := make([]Binding, 0, len(m.channels))
	for _, b := range m.channels {
		out = append(out, b)
	}
	for key, specs := range m.pending {
		for _, spec := range specs {
			out = append(out, Binding{Key: key, Spec: spec})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key.String() < out[j].Key.String()
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

// Stats returns current statistics.
func (m *Multiplexer) Stats() MultiplexerStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return MultiplexerStats{
		Sent:       m.sent,
		SendErrors: m.sendErrors,
		Queue:      m.queue.Stats(),
	}
}
