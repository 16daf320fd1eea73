package notify

import (
	"context"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/freshcart/internal/domain/order"
)

type captureSink struct {
	keys   [][]byte
	values [][]byte
	err    error
}

func (s *captureSink) Publish(_ context.Context, key, value []byte) error {
	s.keys = append(s.keys, key)
	s.values = append(s.values, value)
	return s.err
}

type captureMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mapDeduper struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMapDeduper() *mapDeduper { return &mapDeduper{keys: make(map[string]bool)} }

func (d *mapDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.keys[key] {
		return false, nil
	}
	d.keys[key] = true
	return true, nil
}

func (d *mapDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key)
	return nil
}

var confirmed = order.OrderConfirmed{
	OrderID:      42,
	ConsumerID:   7,
	Email:        "alice@example.com",
	Nickname:     "alice",
	DeliveryDate: time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC),
	DeliverySlot: order.SlotEvening,
}

func publish(t *testing.T, e order.OrderConfirmed) (*captureSink, []byte) {
	t.Helper()
	sink := &captureSink{}
	p := NewPublisher(sink, "api")
	p.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	p.newID = func() string { return "evt-1" }

	require.NoError(t, p.PublishOrderConfirmed(context.Background(), e))
	require.Len(t, sink.values, 1)
	return sink, sink.values[0]
}

func TestPublisher_Envelope(t *testing.T) {
	sink, value := publish(t, confirmed)
	assert.Equal(t, "42", string(sink.keys[0]))

	var env Envelope
	require.NoError(t, env.Decode(jx.DecodeBytes(value)))
	assert.Equal(t, "evt-1", env.EventID)
	assert.Equal(t, EventOrderConfirmed, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "api", env.Producer)
	assert.Equal(t, "42", env.CorrelationID)
	assert.True(t, env.OccurredAt.Equal(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)))

	var p OrderConfirmedPayload
	require.NoError(t, p.Decode(jx.DecodeBytes(env.Payload)))
	assert.Equal(t, OrderConfirmedPayload{
		OrderID:      42,
		ConsumerID:   7,
		Email:        "alice@example.com",
		Nickname:     "alice",
		DeliveryDate: "2025-06-16",
		DeliverySlot: "EVENING",
	}, p)
}

func TestPublisher_SinkError(t *testing.T) {
	sink := &captureSink{err: errors.New("full")}
	err := NewPublisher(sink, "api").PublishOrderConfirmed(context.Background(), confirmed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order 42")
}

func TestEnvelope_DecodeSkipsUnknownFields(t *testing.T) {
	var env Envelope
	err := env.Decode(jx.DecodeStr(`{"event_id":"e","trace_id":"t","extra":{"a":[1,2]},"event_type":"X","payload":null}`))
	require.NoError(t, err)
	assert.Equal(t, "e", env.EventID)
	assert.Equal(t, "X", env.EventType)
}

func TestEnvelope_Decode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantID  string
		wantErr string
	}{
		{name: "single field", input: `{"event_id":"abc"}`, wantID: "abc"},
		{name: "empty object", input: `{}`},
		{name: "wrong type names field", input: `{"event_id":"abc","event_version":"one"}`, wantErr: "event_version"},
		{name: "bad timestamp names field", input: `{"occurred_at":"yesterday"}`, wantErr: "occurred_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			err := env.Decode(jx.DecodeStr(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, env.EventID)
		})
	}
}

func TestOrderConfirmedPayload_Decode(t *testing.T) {
	var p OrderConfirmedPayload
	require.NoError(t, p.Decode(jx.DecodeStr(`{"order_id":5,"email":"bob@example.com","unknown":true}`)))
	assert.Equal(t, OrderConfirmedPayload{OrderID: 5, Email: "bob@example.com"}, p)

	err := p.Decode(jx.DecodeStr(`{"order_id":"five"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order_id")
}

func TestNotifier_SendsOnce(t *testing.T) {
	_, value := publish(t, confirmed)
	mailer := &captureMailer{}
	n := NewNotifier(mailer, newMapDeduper(), "notifier")
	ctx := context.Background()

	require.NoError(t, n.Handle(ctx, value))
	require.NoError(t, n.Handle(ctx, value), "redelivery")

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Order #42 confirmed", msg.Subject)
	assert.Contains(t, msg.Body, "Hello alice")
	assert.Contains(t, msg.Body, "2025-06-16")
	assert.Contains(t, msg.Body, "evening")
}

func TestNotifier_MailFailureAllowsRetry(t *testing.T) {
	_, value := publish(t, confirmed)
	mailer := &captureMailer{err: errors.New("relay down")}
	dedup := newMapDeduper()
	n := NewNotifier(mailer, dedup, "notifier")
	ctx := context.Background()

	require.Error(t, n.Handle(ctx, value))
	assert.Empty(t, dedup.keys, "claim released")

	mailer.err = nil
	require.NoError(t, n.Handle(ctx, value))
	assert.Len(t, mailer.sent, 1)
}

func TestNotifier_IgnoredMessages(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not json", value: `{{{`},
		{name: "other event", value: `{"event_id":"e","event_type":"OrderCreated","payload":{}}`},
		{name: "bad payload", value: `{"event_id":"e","event_type":"OrderConfirmed","payload":{"order_id":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &captureMailer{}
			n := NewNotifier(mailer, newMapDeduper(), "notifier")
			require.NoError(t, n.Handle(context.Background(), []byte(tt.value)))
			assert.Empty(t, mailer.sent)
		})
	}
}

func TestNotifier_DedupError(t *testing.T) {
	_, value := publish(t, confirmed)
	dedup := newMapDeduper()
	dedup.err = errors.New("redis down")
	mailer := &captureMailer{}

	err := NewNotifier(mailer, dedup, "notifier").Handle(context.Background(), value)
	require.Error(t, err)
	assert.Empty(t, mailer.sent)
}

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotAuth smtp.Auth
		gotTo   []string
		gotMsg  string
	)
	m := NewSMTPMailer(SMTPConfig{Host: "mail.local", Port: 2525, From: "shop@example.com"})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		assert.Equal(t, "shop@example.com", from)
		return nil
	}

	require.NoError(t, m.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", Body: "line1\nline2"}))
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Nil(t, gotAuth)
	assert.Equal(t, []string{"a@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: shop@example.com\r\nTo: a@example.com\r\nSubject: Hi\r\n"))
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nline1\r\nline2"))
}
