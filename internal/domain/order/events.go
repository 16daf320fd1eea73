package order

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// OrderConfirmed is emitted after an order is completed. Consumers use it to
// send the confirmation mail.
type OrderConfirmed struct {
	OrderID      int64
	ConsumerID   int64
	Email        string
	Nickname     string
	DeliveryDate time.Time
	DeliverySlot Slot
}

// Publisher emits order events. Publishing happens after the state change
// has committed; an error never undoes it.
type Publisher interface {
	PublishOrderConfirmed(ctx context.Context, e OrderConfirmed) error
}

// LogPublisher writes events to the context logger. It is used when no
// message broker is configured.
type LogPublisher struct{}

// PublishOrderConfirmed implements Publisher.
func (LogPublisher) PublishOrderConfirmed(ctx context.Context, e OrderConfirmed) error {
	zctx.From(ctx).Info("Order confirmed",
		zap.Int64("order_id", e.OrderID),
		zap.Int64("consumer_id", e.ConsumerID),
		zap.String("email", e.Email),
		zap.Time("delivery_date", e.DeliveryDate),
		zap.String("delivery_slot", string(e.DeliverySlot)),
	)
	return nil
}
