package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/orderop"
)

// Submit sends op through the order correlator. See orderop.Correlator.
func (s *Session) Submit(ctx context.Context, op orderop.Op, opts orderop.SubmitOptions) (*model.Order, error) {
	if s.orders == nil {
		return nil, fmt.Errorf("%s order operations: %w", s.venue.Name(), ErrNotSupported)
	}
	if !s.isOpen() {
		return nil, ErrNotOpen
	}

	start := time.Now()
	order, err := s.orders.Submit(ctx, op, opts)
	s.metrics.OrderOp(s.venue.Name(), string(op.Kind), outcome(err, opts.Async), time.Since(start).Seconds())
	return order, err
}

// SubmitOrder places a new order. A negative amount sells.
func (s *Session) SubmitOrder(ctx context.Context, instrument, orderType string, amount, price decimal.Decimal, opts orderop.SubmitOptions) (*model.Order, error) {
	return s.Submit(ctx, orderop.NewOrder(instrument, orderType, amount, price), opts)
}

// CancelOrder cancels one order by id.
func (s *Session) CancelOrder(ctx context.Context, orderID string, opts orderop.SubmitOptions) (*model.Order, error) {
	return s.Submit(ctx, orderop.CancelOrder(orderID), opts)
}

// UpdateOrder changes the amount and/or price of an order. Zero values
// leave the field unchanged.
func (s *Session) UpdateOrder(ctx context.Context, orderID string, amount, price decimal.Decimal, opts orderop.SubmitOptions) (*model.Order, error) {
	return s.Submit(ctx, orderop.UpdateOrder(orderID, amount, price), opts)
}

// CancelOrderGroup cancels every order in group gid.
func (s *Session) CancelOrderGroup(ctx context.Context, gid int64, opts orderop.SubmitOptions) error {
	_, err := s.Submit(ctx, orderop.CancelGroup(gid), opts)
	return err
}

func outcome(err error, async bool) string {
	var rejected *orderop.RejectedError
	switch {
	case errors.As(err, &rejected):
		return "rejected"
	case errors.Is(err, orderop.ErrTimeout):
		return "timeout"
	case err != nil:
		return "error"
	case async:
		return "sent"
	default:
		return "success"
	}
}
