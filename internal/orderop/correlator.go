package orderop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/coinstream/internal/model"
)

// Correlator sends order operations and matches them with the server's
// asynchronous acknowledgements.
//
// Submissions are serialized: at most one op is in flight at a time.
type Correlator struct {
	cfg     Config
	encoder Encoder
	sender  Sender
	store   Store
	cids    *CIDGenerator
	limiter *rate.Limiter
	logger  *slog.Logger

	opMu sync.Mutex
}

// NewCorrelator creates a Correlator. cids may be nil, in which case the
// correlator owns a fresh generator.
func NewCorrelator(cfg Config, encoder Encoder, sender Sender, store Store, cids *CIDGenerator, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if cids == nil {
		cids = NewCIDGenerator()
	}
	cfg = cfg.withDefaults()

	return &Correlator{
		cfg:     cfg,
		encoder: encoder,
		sender:  sender,
		store:   store,
		cids:    cids,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		logger:  logger.With("component", "orderop"),
	}
}

// Submit sends op and, unless opts.Async is set, waits for its outcome.
//
// A successful new, cancel or update op returns the affected order once the
// cache reflects it. A group cancel returns a nil order. A rejected op
// returns *RejectedError; no acknowledgement in time returns ErrTimeout.
func (c *Correlator) Submit(ctx context.Context, op Op, opts SubmitOptions) (*model.Order, error) {
	if !op.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, op.Kind)
	}
	opcode, err := c.encoder.OpCode(op.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	// Caller-set ids are replaced so ids stay strictly increasing.
	if op.Kind == KindNew {
		op.CID = c.cids.Next()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.waitErr(ctx)
	}

	data, err := c.encoder.Encode(op)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", op.Kind, err)
	}

	// Snapshot state before sending so any acknowledgement is strictly newer.
	cursor := c.store.NotificationCursor()
	before, hadBefore := c.store.Order(op.OrderID)

	log := c.logger.With("kind", op.Kind, "cid", op.CID, "order_id", op.OrderID)
	if err := c.sender.Send(data); err != nil {
		// Resolves through the timeout below; reconnect owns transport errors.
		log.Warn("failed to send order operation", "error", err)
	} else {
		log.Debug("order operation sent")
	}

	if opts.Async {
		return nil, nil
	}

	ack, err := c.awaitAck(ctx, op, opcode+"-req", cursor)
	if err != nil {
		return nil, err
	}

	switch {
	case op.Kind == KindCancelGroup && (ack.Status == model.StatusInfo || ack.Status == model.StatusSuccess):
		log.Info("group cancel acknowledged", "group_id", op.GroupID)
		return nil, nil
	case ack.Status != model.StatusSuccess:
		log.Warn("order operation rejected", "status", ack.Status, "reason", ack.Text)
		return nil, &RejectedError{Kind: op.Kind, Status: ack.Status, Reason: ack.Text}
	}

	orderID := ack.OrderID
	if orderID == "" {
		orderID = op.OrderID
	}

	o, err := c.awaitOrder(ctx, orderID, op.Kind, before, hadBefore)
	if err != nil {
		return nil, err
	}
	log.Info("order operation confirmed", "state", o.State)
	return &o, nil
}

// awaitAck waits for the first matching acknowledgement added after cursor.
func (c *Correlator) awaitAck(ctx context.Context, op Op, ackType string, cursor uint64) (model.Notification, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		changed := c.store.Changed()

		var ns []model.Notification
		ns, cursor = c.store.NotificationsAfter(cursor)
		for _, n := range ns {
			if matches(op, ackType, n) {
				return n, nil
			}
		}

		select {
		case <-ctx.Done():
			return model.Notification{}, c.waitErr(ctx)
		case <-changed:
		case <-ticker.C:
		}
	}
}

func matches(op Op, ackType string, n model.Notification) bool {
	if n.Type != ackType {
		return false
	}
	switch op.Kind {
	case KindNew:
		return n.ClientID == op.CID
	case KindCancel, KindUpdate:
		return n.OrderID == op.OrderID
	case KindCancelGroup:
		// Only one op is in flight, so the type alone identifies it.
		return true
	}
	return false
}

// awaitOrder waits until the cache shows the effect of a confirmed op: a new
// order appearing, or an existing order changing.
func (c *Correlator) awaitOrder(ctx context.Context, id string, kind Kind, before model.Order, hadBefore bool) (model.Order, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		changed := c.store.Changed()

		if o, ok := c.store.Order(id); ok {
			if kind == KindNew || !hadBefore || orderChanged(before, o) {
				return o, nil
			}
		}

		select {
		case <-ctx.Done():
			return model.Order{}, c.waitErr(ctx)
		case <-changed:
		case <-ticker.C:
		}
	}
}

func orderChanged(before, after model.Order) bool {
	return after.State != before.State ||
		after.UpdatedAt.After(before.UpdatedAt) ||
		!after.Qty.Equal(before.Qty) ||
		!after.Price.Equal(before.Price)
}

// waitErr maps an expired wait onto ErrTimeout and keeps caller cancellation.
func (c *Correlator) waitErr(ctx context.Context) error {
	// rate.Limiter fails early when the deadline cannot be met, before ctx
	// itself expires.
	if err := ctx.Err(); err != nil && err != context.DeadlineExceeded {
		return err
	}
	return ErrTimeout
}
