package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Message is an outgoing plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers mail.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// Deduper remembers processed event ids.
type Deduper interface {
	// Claim marks key as being processed. It returns false when the key was
	// already claimed.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a redelivered event is processed again.
	Release(ctx context.Context, key string) error
}

// Notifier sends the confirmation mail for OrderConfirmed events. Each event
// id is mailed at most once.
type Notifier struct {
	mailer  Mailer
	dedup   Deduper
	service string
}

// NewNotifier creates a Notifier. service namespaces the dedup keys.
func NewNotifier(mailer Mailer, dedup Deduper, service string) *Notifier {
	return &Notifier{mailer: mailer, dedup: dedup, service: service}
}

func (n *Notifier) dedupKey(eventID string) string {
	return fmt.Sprintf("dedup:%s:%s", n.service, eventID)
}

// Handle processes one encoded envelope. A nil return means the message may be
// committed: it was mailed, was a duplicate, or is not an order confirmation.
func (n *Notifier) Handle(ctx context.Context, value []byte) error {
	var env Envelope
	if err := env.Decode(jx.DecodeBytes(value)); err != nil {
		// Poison messages are dropped rather than retried forever.
		zctx.From(ctx).Warn("Dropping undecodable event", zap.Error(err))
		return nil
	}
	if env.EventType != EventOrderConfirmed {
		return nil
	}
	lg := zctx.From(ctx).With(zap.String("event_id", env.EventID))

	var p OrderConfirmedPayload
	if err := p.Decode(jx.DecodeBytes(env.Payload)); err != nil {
		lg.Warn("Dropping event with undecodable payload", zap.Error(err))
		return nil
	}

	key := n.dedupKey(env.EventID)
	first, err := n.dedup.Claim(ctx, key)
	if err != nil {
		return errors.Wrap(err, "claim event")
	}
	if !first {
		lg.Debug("Skipping duplicate event")
		return nil
	}

	if err := n.mailer.Send(ctx, confirmationMail(p)); err != nil {
		if rerr := n.dedup.Release(ctx, key); rerr != nil {
			lg.Error("Release event claim", zap.Error(rerr))
		}
		return errors.Wrapf(err, "mail confirmation of order %d", p.OrderID)
	}

	lg.Info("Confirmation sent",
		zap.Int64("order_id", p.OrderID),
		zap.String("to", p.Email),
	)
	return nil
}

var slotLabels = map[string]string{
	"MORNING":   "morning (08:00-12:00)",
	"AFTERNOON": "afternoon (12:00-17:00)",
	"EVENING":   "evening (17:00-21:00)",
}

func confirmationMail(p OrderConfirmedPayload) Message {
	slot, ok := slotLabels[p.DeliverySlot]
	if !ok {
		slot = strings.ToLower(p.DeliverySlot)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", p.Nickname)
	fmt.Fprintf(&b, "your order #%d is confirmed.\n", p.OrderID)
	fmt.Fprintf(&b, "It will be delivered on %s in the %s slot.\n\n", p.DeliveryDate, slot)
	b.WriteString("Thank you for shopping with FreshCart.\n")

	return Message{
		To:      p.Email,
		Subject: fmt.Sprintf("Order #%d confirmed", p.OrderID),
		Body:    b.String(),
	}
}
