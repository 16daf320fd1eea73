package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/freshcart/internal/domain/order"
)

// Sink accepts encoded events for delivery. kafka.Producer implements it.
type Sink interface {
	Publish(ctx context.Context, key, value []byte) error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher turns order events into envelopes and hands them to a Sink.
type Publisher struct {
	sink    Sink
	service string
	now     func() time.Time
	newID   func() string
}

// NewPublisher creates a Publisher. service is recorded as the envelope
// producer.
func NewPublisher(sink Sink, service string) *Publisher {
	return &Publisher{
		sink:    sink,
		service: service,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// PublishOrderConfirmed implements order.Publisher.
func (p *Publisher) PublishOrderConfirmed(ctx context.Context, e order.OrderConfirmed) error {
	payload := OrderConfirmedPayload{
		OrderID:      e.OrderID,
		ConsumerID:   e.ConsumerID,
		Email:        e.Email,
		Nickname:     e.Nickname,
		DeliveryDate: e.DeliveryDate.Format(time.DateOnly),
		DeliverySlot: string(e.DeliverySlot),
	}
	var pe jx.Encoder
	payload.Encode(&pe)

	orderID := strconv.FormatInt(e.OrderID, 10)
	env := Envelope{
		EventID:       p.newID(),
		EventType:     EventOrderConfirmed,
		EventVersion:  envelopeVersion,
		OccurredAt:    p.now(),
		Producer:      p.service,
		CorrelationID: orderID,
		Payload:       pe.Bytes(),
	}
	var enc jx.Encoder
	env.Encode(&enc)

	if err := p.sink.Publish(ctx, []byte(orderID), enc.Bytes()); err != nil {
		return errors.Wrapf(err, "publish %s for order %d", EventOrderConfirmed, e.OrderID)
	}
	return nil
}
