package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one message. Returning nil commits its offset.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as part of a consumer group and dispatches messages
// to a pool of workers.
type Consumer struct {
	r       messageReader
	workers int
	backoff time.Duration
}

// NewConsumer creates a Consumer with manual offset commits.
func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	}), workers)
}

func newConsumer(r messageReader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, backoff: 200 * time.Millisecond}
}

// Start consumes until ctx is done or the reader fails. Messages whose handler
// fails are left uncommitted for redelivery.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	lg := zctx.From(ctx).Named("kafka.consumer")
	defer func() {
		if err := c.r.Close(); err != nil {
			lg.Error("Close reader", zap.Error(err))
		}
	}()

	jobs := make(chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for range c.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				c.process(ctx, lg, h, m)
			}
		}()
	}
	defer wg.Wait()
	defer close(jobs)

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, lg *zap.Logger, h Handler, m kafka.Message) {
	lg = lg.With(
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)
	if err := h(ctx, m); err != nil {
		lg.Error("Handle message", zap.Error(err))
		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
		}
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		lg.Error("Commit message", zap.Error(err))
	}
}
