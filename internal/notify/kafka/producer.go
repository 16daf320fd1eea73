// Package kafka is the broker transport for order events: a buffered async
// producer and a worker-pool consumer with manual commits.
package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrBufferFull is returned by Publish when the producer cannot accept more
// messages.
var ErrBufferFull = errors.New("kafka producer buffer full")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes messages to one topic from a background loop. Publish never
// blocks the caller.
type Producer struct {
	w       messageWriter
	inbox   chan kafka.Message
	closeCh chan struct{}
	lg      *zap.Logger
}

// NewProducer creates a Producer for topic with an inbox of buf messages.
func NewProducer(brokers []string, topic string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}, buf)
}

func newProducer(w messageWriter, buf int) *Producer {
	if buf <= 0 {
		buf = 1
	}
	return &Producer{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		lg:      zap.NewNop(),
	}
}

// Start runs the write loop until ctx is done, then flushes the inbox and
// closes the writer.
func (p *Producer) Start(ctx context.Context) {
	p.lg = zctx.From(ctx).Named("kafka.producer")
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.flush()
				return
			case m := <-p.inbox:
				p.write(context.Background(), m)
			}
		}
	}()
}

func (p *Producer) flush() {
	for {
		select {
		case m := <-p.inbox:
			p.write(context.Background(), m)
		default:
			if err := p.w.Close(); err != nil {
				p.lg.Error("Close writer", zap.Error(err))
			}
			return
		}
	}
}

func (p *Producer) write(ctx context.Context, m kafka.Message) {
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.lg.Error("Write message",
			zap.ByteString("key", m.Key),
			zap.Error(err),
		)
	}
}

// Publish queues a message. It fails with ErrBufferFull instead of waiting.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	m := kafka.Message{Key: key, Value: value, Time: time.Now()}
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// WaitClosed blocks until the write loop has flushed and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
