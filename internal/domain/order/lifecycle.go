package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DeliveryUpdate carries a new delivery date and slot.
type DeliveryUpdate struct {
	Date *time.Time
	Slot Slot
}

func (u DeliveryUpdate) validate() error {
	if u.Date == nil || u.Slot == "" {
		return ErrMissingDelivery
	}
	if !u.Slot.Valid() {
		return ErrInvalidSlot
	}
	return nil
}

// Cancel moves the order to CANCELLED and returns every coupon it consumed to
// the consumer. Only an already cancelled order is rejected; completed orders
// can still be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID int64) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel",
		trace.WithAttributes(attribute.Int64("order.id", orderID)),
	)
	defer func() { endSpan(span, rerr) }()

	var restored int
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}

		for _, item := range o.Items {
			if item.UserCouponID == 0 {
				continue
			}
			uc, err := s.coupons.GetUserCoupon(ctx, item.UserCouponID)
			if err != nil {
				return errors.Wrapf(err, "load coupon of order item %d", item.ID)
			}
			if !uc.IsUsed {
				continue
			}
			uc.Rollback()
			if err := s.coupons.SaveUserCoupon(ctx, uc); err != nil {
				return errors.Wrap(err, "save user coupon")
			}
			restored++
		}

		o.Status = StatusCancelled
		return s.orders.Save(ctx, o)
	})
	if err != nil {
		return err
	}

	s.metrics.cancelled.Add(ctx, 1)
	s.metrics.couponsRestored.Add(ctx, int64(restored))
	zctx.From(ctx).Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.Int("coupons_restored", restored),
	)
	return nil
}

// CompleteRequest holds the input for completing an order.
type CompleteRequest struct {
	OrderID    int64
	ConsumerID int64
	Delivery   DeliveryUpdate
}

// Complete sets the final delivery details, moves the order to COMPLETED and
// publishes OrderConfirmed once the change is committed. The delivery date
// must be tomorrow or later.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Complete",
		trace.WithAttributes(attribute.Int64("order.id", req.OrderID)),
	)
	defer func() { endSpan(span, rerr) }()

	var completed *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if o.ConsumerID != req.ConsumerID {
			return ErrForbidden
		}
		switch o.Status {
		case StatusCompleted:
			return ErrAlreadyCompleted
		case StatusCancelled:
			return ErrAlreadyCancelled
		}
		if err := req.Delivery.validate(); err != nil {
			return err
		}
		date := DateOf(*req.Delivery.Date)
		if date.Before(s.today().AddDate(0, 0, 1)) {
			return ErrInvalidDeliveryDate
		}

		o.DeliveryDate = date
		o.DeliverySlot = req.Delivery.Slot
		o.Status = StatusCompleted
		if err := s.orders.Save(ctx, o); err != nil {
			return errors.Wrap(err, "save order")
		}
		completed = o
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.completed.Add(ctx, 1)
	s.notify(ctx, completed)
	return nil
}

// notify publishes OrderConfirmed. Failures are logged and counted only.
func (s *Service) notify(ctx context.Context, o *Order) {
	lg := zctx.From(ctx).With(zap.Int64("order_id", o.ID))

	c, err := s.consumers.GetByID(ctx, o.ConsumerID)
	if err != nil {
		s.metrics.publishFailures.Add(ctx, 1)
		lg.Error("Load consumer for confirmation", zap.Error(err))
		return
	}

	e := OrderConfirmed{
		OrderID:      o.ID,
		ConsumerID:   c.ID,
		Email:        c.Email,
		Nickname:     c.Nickname,
		DeliveryDate: o.DeliveryDate,
		DeliverySlot: o.DeliverySlot,
	}
	if err := s.publisher.PublishOrderConfirmed(ctx, e); err != nil {
		s.metrics.publishFailures.Add(ctx, 1)
		lg.Error("Publish order confirmation", zap.Error(err))
	}
}

// UpdateDeliveryInfo overwrites the delivery date and slot of an order in any
// status.
func (s *Service) UpdateDeliveryInfo(ctx context.Context, orderID int64, u DeliveryUpdate) error {
	if err := u.validate(); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		o.DeliveryDate = DateOf(*u.Date)
		o.DeliverySlot = u.Slot
		return s.orders.Save(ctx, o)
	})
}
