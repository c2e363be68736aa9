package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/rickgao/coinstream/internal/account"
	"github.com/rickgao/coinstream/internal/auth"
	"github.com/rickgao/coinstream/internal/book"
	"github.com/rickgao/coinstream/internal/connection"
	"github.com/rickgao/coinstream/internal/metrics"
	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/orderop"
	"github.com/rickgao/coinstream/internal/router"
	"github.com/rickgao/coinstream/internal/venue"
)

// Session keeps one venue connection alive and rebuilds its subscriptions
// and authentication after every reconnect.
type Session struct {
	id       string
	cfg      Config
	venue    venue.Venue
	dialer   connection.Dialer
	signer   auth.Signer
	handlers Handlers
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mux     *router.Multiplexer
	books   *book.Reconstructor
	account *account.Cache
	orders  *orderop.Correlator

	// mu guards the lifecycle: state, the closing flag, the live connection
	// and the reconnect decision.
	mu      sync.Mutex
	state   State
	closing bool
	conn    connection.Client
	cancel  context.CancelFunc
	done    chan struct{}
	changed chan struct{}

	// keysMu guards the held key set. It is also held while a new connection
	// rebuilds its bindings so a concurrent Subscribe is replayed exactly once.
	keysMu sync.Mutex
	keys   map[model.SubscriptionKey]struct{}
	order  []model.SubscriptionKey
	live   bool // false once shutdown has cleared the keys

	authMu        sync.Mutex
	authWanted    bool
	authSentOn    connection.Client // connection the auth request went out on
	authenticated bool
	awaiting      map[string]bool // snapshot types still missing after auth OK
}

// New creates a closed session for v. Connections are made through dialer.
func New(cfg Config, v venue.Venue, dialer connection.Dialer, opts ...Option) *Session {
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg.withDefaults(),
		venue:   v,
		dialer:  dialer,
		logger:  slog.Default(),
		changed: make(chan struct{}),
		keys:    make(map[model.SubscriptionKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	base := s.logger.With("venue", v.Name(), "session_id", s.id)
	s.logger = base.With("component", "session")

	s.mux = router.NewMultiplexer(s.cfg.Router, v, base)
	s.books = book.NewReconstructor(v.Partition(), base)
	s.account = account.NewCache(s.cfg.Account, base)
	if enc := v.Orders(); enc != nil {
		s.orders = orderop.NewCorrelator(s.cfg.Orders, enc, s, s.account, nil, base)
	}
	return s
}

// ID returns the session instance id.
func (s *Session) ID() string {
	return s.id
}

// Venue returns the venue name.
func (s *Session) Venue() string {
	return s.venue.Name()
}

// Open starts connecting in the background. Use WaitConnection to block
// until the first connection is up. Cancelling ctx has the same effect as
// Close.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateClosed {
		return ErrAlreadyOpen
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.closing = false
	s.setStateLocked(StateConnecting)

	s.keysMu.Lock()
	s.live = true
	s.keysMu.Unlock()

	go func() {
		s.run(runCtx)
		s.shutdown()
		close(done)
	}()

	s.logger.Info("session opened", "url", s.venue.URL())
	return nil
}

// Close tears the session down and waits for the read goroutine to exit.
// No reconnect follows. Held keys are released.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed || s.closing {
		s.mu.Unlock()
		return ErrNotOpen
	}
	s.closing = true
	s.setStateLocked(StateClosing)
	conn, cancel, done := s.conn, s.cancel, s.done
	s.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done

	s.mu.Lock()
	s.closing = false
	s.setStateLocked(StateClosed)
	s.mu.Unlock()

	s.logger.Info("session closed")
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// isOpen reports whether Open has been called and Close has not.
func (s *Session) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateClosed && !s.closing
}

// Send writes a raw frame on the live connection.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return connection.ErrNotConnected
	}
	return conn.Send(data)
}

// setStateLocked must be called with mu held.
func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("state change", "from", s.state, "to", st)
	s.state = st
	s.metrics.SetState(s.venue.Name(), int(st))
	s.broadcastLocked()
}

// broadcastLocked wakes every waiter. mu must be held.
func (s *Session) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) broadcast() {
	s.mu.Lock()
	s.broadcastLocked()
	s.mu.Unlock()
}

// run dials, serves and redials until the session is closed.
func (s *Session) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectDelay
	bo.MaxInterval = s.cfg.ReconnectMaxDelay
	bo.Reset()

	for {
		client, err := s.dialer.Dial(ctx)
		if err != nil {
			s.logger.Warn("connect failed", "error", err)
		} else {
			if !s.attach(client) {
				client.Close()
				return
			}
			bo.Reset()
			s.serve(ctx, client)
			s.detach(client)
			s.callOnClose()
		}

		if !s.scheduleReconnect(ctx) {
			return
		}

		delay := bo.NextBackOff()
		s.logger.Info("reconnecting", "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if !s.beginConnect() {
			return
		}
	}
}

// attach publishes client as the live connection unless Close won the race.
func (s *Session) attach(client connection.Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.conn = client
	s.setStateLocked(StateOpen)
	return true
}

func (s *Session) detach(client connection.Client) {
	s.mu.Lock()
	if s.conn == client {
		s.conn = nil
	}
	s.mu.Unlock()
	client.Close()
}

// scheduleReconnect decides, under the lifecycle lock, whether the
// connection that just ended is replaced.
func (s *Session) scheduleReconnect(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing || ctx.Err() != nil {
		return false
	}
	s.setStateLocked(StateReconnecting)
	s.metrics.Reconnecting(s.venue.Name())
	return true
}

func (s *Session) beginConnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.setStateLocked(StateConnecting)
	return true
}

// shutdown runs once the read goroutine has exited.
func (s *Session) shutdown() {
	s.keysMu.Lock()
	s.keys = make(map[model.SubscriptionKey]struct{})
	s.order = nil
	s.live = false
	s.keysMu.Unlock()

	s.mux.Reset()
	s.books.ResetAll()
	s.resetAuth()
	s.authMu.Lock()
	s.authWanted = false
	s.authSentOn = nil
	s.authMu.Unlock()
	s.metrics.SetSubscriptions(s.venue.Name(), 0)

	s.mu.Lock()
	s.conn = nil
	if !s.closing {
		s.setStateLocked(StateClosed)
	}
	s.mu.Unlock()
}

// serve runs one connection until it drops or ctx is cancelled.
func (s *Session) serve(ctx context.Context, client connection.Client) {
	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	for _, msg := range s.venue.Handshake() {
		if err := client.Send(msg); err != nil {
			s.logger.Warn("failed to send handshake", "error", err)
		}
	}

	s.metrics.Connected(s.venue.Name())
	s.resetAuth()
	s.callOnOpen()

	if err := s.sendAuth(client); err != nil {
		s.logger.Error("re-authentication failed", "error", err)
	}

	n := s.resubscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.mux.Run(connCtx, client)
	}()

	s.logger.Info("connected", "conn_id", client.ID(), "resubscribed", n)

	if err := s.readLoop(connCtx, client); err != nil && connCtx.Err() == nil {
		s.logger.Warn("connection lost", "conn_id", client.ID(), "error", err)
	}
}

func (s *Session) readLoop(ctx context.Context, client connection.Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-client.Errors():
			return err
		case msg := <-client.Messages():
			s.handleFrame(msg)
		}
	}
}

// resubscribe rebuilds every binding for a fresh connection.
func (s *Session) resubscribe() int {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()

	s.mux.Reset()
	s.books.ResetAll()

	for _, key := range s.order {
		specs, err := s.venue.Channels(key)
		if err != nil {
			s.logger.Error("cannot resubscribe", "key", key, "error", err)
			continue
		}
		s.mux.Subscribe(key, specs...)
	}
	return len(s.order)
}

// WaitConnection blocks until the session is connected or timeout elapses.
func (s *Session) WaitConnection(timeout time.Duration) bool {
	return s.wait(timeout, func() bool { return s.State() == StateOpen })
}

// WaitAuthentication blocks until authentication completes or timeout
// elapses.
func (s *Session) WaitAuthentication(timeout time.Duration) bool {
	return s.wait(timeout, s.Authenticated)
}

func (s *Session) wait(timeout time.Duration, cond func() bool) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		ch := s.changed
		s.mu.Unlock()

		if cond() {
			return true
		}

		select {
		case <-ch:
		case <-timer.C:
			return cond()
		}
	}
}

// Subscribe adds keys to the held set and requests their channels. Keys
// already held are skipped.
func (s *Session) Subscribe(keys ...model.SubscriptionKey) error {
	if !s.isOpen() {
		return ErrNotOpen
	}

	// Resolve every key first so an unsupported one fails the whole call.
	specs := make([][]router.ChannelSpec, len(keys))
	for i, key := range keys {
		sp, err := s.venue.Channels(key)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", key, err)
		}
		specs[i] = sp
	}

	s.keysMu.Lock()
	if !s.live {
		// Closed after the check above.
		s.keysMu.Unlock()
		return ErrNotOpen
	}
	for i, key := range keys {
		if _, ok := s.keys[key]; ok {
			continue
		}
		s.keys[key] = struct{}{}
		s.order = append(s.order, key)
		s.books.Reset(key)
		s.mux.Subscribe(key, specs[i]...)
		s.logger.Debug("subscribed", "key", key)
	}
	n := len(s.keys)
	s.keysMu.Unlock()

	s.metrics.SetSubscriptions(s.venue.Name(), n)
	return nil
}

// Unsubscribe releases keys. Keys not held are skipped.
func (s *Session) Unsubscribe(keys ...model.SubscriptionKey) error {
	if !s.isOpen() {
		return ErrNotOpen
	}

	s.keysMu.Lock()
	if !s.live {
		s.keysMu.Unlock()
		return ErrNotOpen
	}
	for _, key := range keys {
		if _, ok := s.keys[key]; !ok {
			continue
		}
		delete(s.keys, key)
		for i, k := range s.order {
			if k == key {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		s.books.Discard(key)
		s.mux.Unsubscribe(key)
		s.logger.Debug("unsubscribed", "key", key)
	}
	n := len(s.keys)
	s.keysMu.Unlock()

	s.metrics.SetSubscriptions(s.venue.Name(), n)
	return nil
}

// Keys returns the held keys in subscription order.
func (s *Session) Keys() []model.SubscriptionKey {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	return append([]model.SubscriptionKey(nil), s.order...)
}

func (s *Session) holds(key model.SubscriptionKey) bool {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Bindings returns the current channel bindings.
func (s *Session) Bindings() []router.Binding {
	return s.mux.Bindings()
}

// Book returns the latest normalized book for key.
func (s *Session) Book(key model.SubscriptionKey) (*model.OrderBook, bool) {
	return s.books.Current(key)
}

// Authenticate sends the venue auth request now, or on the next connect if
// the session is between connections. Every later reconnect
// re-authenticates.
func (s *Session) Authenticate() error {
	if s.signer == nil {
		return ErrNoCredentials
	}
	if !s.isOpen() {
		return ErrNotOpen
	}
	if _, err := s.venue.AuthRequest(s.signer); err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}

	s.authMu.Lock()
	s.authWanted = true
	s.authMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	if err := s.sendAuth(conn); err != nil {
		s.logger.Warn("auth request not sent, retrying on reconnect", "error", err)
	}
	return nil
}

// Authenticated reports whether authentication has completed on the
// current connection.
func (s *Session) Authenticated() bool {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.authenticated
}

// sendAuth sends the auth request on client if authentication is wanted
// and client has not had one yet. Authenticate and a fresh connection can
// race for the same client; only the first sends.
func (s *Session) sendAuth(client connection.Client) error {
	s.authMu.Lock()
	if !s.authWanted || s.signer == nil || s.authSentOn == client {
		s.authMu.Unlock()
		return nil
	}
	s.authSentOn = client
	s.authMu.Unlock()

	msg, err := s.venue.AuthRequest(s.signer)
	if err == nil {
		s.logger.Info("authenticating", "api_key", s.signer.APIKey())
		err = client.Send(msg)
	}
	if err != nil {
		s.authMu.Lock()
		if s.authSentOn == client {
			s.authSentOn = nil
		}
		s.authMu.Unlock()
	}
	return err
}

func (s *Session) resetAuth() {
	s.authMu.Lock()
	changed := s.authenticated
	s.authenticated = false
	s.awaiting = nil
	s.authMu.Unlock()

	if changed {
		s.broadcast()
	}
}

// Account accessors.

func (s *Session) Balances() []model.Balance {
	return s.account.Balances()
}

func (s *Session) Orders() []model.Order {
	return s.account.Orders()
}

func (s *Session) Order(id string) (model.Order, bool) {
	return s.account.Order(id)
}

func (s *Session) Positions() []model.Position {
	return s.account.Positions()
}

func (s *Session) Executions() []model.Execution {
	return s.account.Executions()
}

func (s *Session) Notifications() []model.Notification {
	return s.account.Notifications()
}

func (s *Session) callOnOpen() {
	if s.handlers.OnOpen != nil {
		s.handlers.OnOpen()
	}
}

func (s *Session) callOnClose() {
	if s.handlers.OnClose != nil {
		s.handlers.OnClose()
	}
}

func (s *Session) callOnAuth(ok bool, info string) {
	if s.handlers.OnAuth != nil {
		s.handlers.OnAuth(ok, info)
	}
}

func (s *Session) callOnData(data model.StreamData) {
	if s.handlers.OnData != nil {
		s.handlers.OnData(data)
	}
}
