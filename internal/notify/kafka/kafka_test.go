package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducer_FlushesOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8)

	for _, key := range []string{"1", "2", "3"} {
		require.NoError(t, p.Publish(context.Background(), []byte(key), []byte("v"+key)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.WaitClosed()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)
	require.Len(t, w.msgs, 3)
	assert.Equal(t, "v1", string(w.msgs[0].Value))
	assert.Equal(t, "3", string(w.msgs[2].Key))
}

func TestProducer_BufferFull(t *testing.T) {
	p := newProducer(&fakeWriter{}, 1)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, nil, []byte("a")))
	require.ErrorIs(t, p.Publish(ctx, nil, []byte("b")), ErrBufferFull)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte("ok")},
		{Offset: 2, Value: []byte("fail")},
		{Offset: 3, Value: []byte("ok")},
	}}
	c := newConsumer(r, 2)
	c.backoff = time.Millisecond

	var (
		mu   sync.Mutex
		seen int
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			seen++
			mu.Unlock()
			if string(m.Value) == "fail" {
				return errors.New("handler failed")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t, []int64{1, 3}, r.commits())
	assert.Equal(t, 3, seen)
	assert.True(t, r.closed)
}
