// Package notify carries order events from the API to the confirmation
// mailer: the event envelope, the publisher the order service calls, and the
// consumer-side handler that deduplicates and sends mail.
package notify

import (
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

const (
	// TopicOrderConfirmed carries EventOrderConfirmed envelopes keyed by order id.
	TopicOrderConfirmed = "order.confirmed"

	EventOrderConfirmed = "OrderConfirmed"

	envelopeVersion = 1
)

// Envelope wraps every event written to the broker.
type Envelope struct {
	EventID       string
	EventType     string
	EventVersion  int
	OccurredAt    time.Time
	Producer      string
	CorrelationID string
	Payload       jx.Raw
}

// Encode writes e as a JSON object.
func (e *Envelope) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("event_id")
	enc.Str(e.EventID)
	enc.FieldStart("event_type")
	enc.Str(e.EventType)
	enc.FieldStart("event_version")
	enc.Int(e.EventVersion)
	enc.FieldStart("occurred_at")
	enc.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	enc.FieldStart("producer")
	enc.Str(e.Producer)
	if e.CorrelationID != "" {
		enc.FieldStart("correlation_id")
		enc.Str(e.CorrelationID)
	}
	enc.FieldStart("payload")
	if len(e.Payload) == 0 {
		enc.Null()
	} else {
		enc.Raw(e.Payload)
	}
	enc.ObjEnd()
}

// Decode reads e from a JSON object. Unknown fields are skipped.
func (e *Envelope) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "event_id":
			e.EventID, err = d.Str()
		case "event_type":
			e.EventType, err = d.Str()
		case "event_version":
			e.EventVersion, err = d.Int()
		case "occurred_at":
			var s string
			if s, err = d.Str(); err == nil {
				e.OccurredAt, err = time.Parse(time.RFC3339Nano, s)
			}
		case "producer":
			e.Producer, err = d.Str()
		case "correlation_id":
			e.CorrelationID, err = d.Str()
		case "payload":
			var raw jx.Raw
			if raw, err = d.Raw(); err == nil {
				e.Payload = slices.Clone(raw)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

// OrderConfirmedPayload is the payload of EventOrderConfirmed.
type OrderConfirmedPayload struct {
	OrderID      int64
	ConsumerID   int64
	Email        string
	Nickname     string
	DeliveryDate string // YYYY-MM-DD
	DeliverySlot string
}

// Encode writes p as a JSON object.
func (p *OrderConfirmedPayload) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("order_id")
	enc.Int64(p.OrderID)
	enc.FieldStart("consumer_id")
	enc.Int64(p.ConsumerID)
	enc.FieldStart("email")
	enc.Str(p.Email)
	enc.FieldStart("nickname")
	enc.Str(p.Nickname)
	enc.FieldStart("delivery_date")
	enc.Str(p.DeliveryDate)
	enc.FieldStart("delivery_slot")
	enc.Str(p.DeliverySlot)
	enc.ObjEnd()
}

// Decode reads p from a JSON object.
func (p *OrderConfirmedPayload) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_id":
			p.OrderID, err = d.Int64()
		case "consumer_id":
			p.ConsumerID, err = d.Int64()
		case "email":
			p.Email, err = d.Str()
		case "nickname":
			p.Nickname, err = d.Str()
		case "delivery_date":
			p.DeliveryDate, err = d.Str()
		case "delivery_slot":
			p.DeliverySlot, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}
