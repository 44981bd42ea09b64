package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/stock-ledger/internal/messaging"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var offsets []int64
	for _, m := range r.committed {
		offsets = append(offsets, m.Offset)
	}
	return offsets
}

type fakeSink struct {
	mu   sync.Mutex
	sent []string
}

func (s *fakeSink) Send(ctx context.Context, topic string, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, topic+"/"+string(key))
	return nil
}

func newTestConsumer(msgs []kafka.Message, maxRedeliveries int) (*Consumer, *fakeReader, *fakeSink) {
	reader := &fakeReader{messages: msgs}
	sink := &fakeSink{}
	c := newConsumer(reader, ConsumerConfig{
		Topic:             "order.stock.adjust",
		GroupID:           "stock-ledger",
		MaxRedeliveries:   maxRedeliveries,
		RedeliveryBackoff: time.Millisecond,
		DeadLetterSuffix:  ".dlt",
	}, sink)
	return c, reader, sink
}

func testMessages(n int) []kafka.Message {
	msgs := make([]kafka.Message, n)
	for i := range msgs {
		msgs[i] = kafka.Message{Topic: "order.stock.adjust", Offset: int64(i), Key: []byte{byte('a' + i)}, Value: []byte("{}")}
	}
	return msgs
}

// consumeUntil runs the consumer until done reports true or a second passes.
func consumeUntil(t *testing.T, c *Consumer, handler messaging.MessageHandler, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Consume(ctx, handler) }()

	require.Eventually(t, done, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestConsumer_CommitsHandledMessages(t *testing.T) {
	c, reader, _ := newTestConsumer(testMessages(3), 0)

	consumeUntil(t, c, func(ctx context.Context, key, value []byte) error { return nil }, func() bool {
		return len(reader.committedOffsets()) == 3
	})

	assert.Equal(t, []int64{0, 1, 2}, reader.committedOffsets())
}

func TestConsumer_RedeliversUntilSuccess(t *testing.T) {
	c, reader, sink := newTestConsumer(testMessages(2), 0)

	var mu sync.Mutex
	attempts := map[string]int{}
	handler := func(ctx context.Context, key, value []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[string(key)]++
		if string(key) == "a" && attempts["a"] < 3 {
			return errors.New("ledger unavailable")
		}
		return nil
	}

	consumeUntil(t, c, handler, func() bool { return len(reader.committedOffsets()) == 2 })

	assert.Equal(t, []int64{0, 1}, reader.committedOffsets())
	assert.Equal(t, 3, attempts["a"])
	assert.Empty(t, sink.sent)
}

func TestConsumer_PermanentFailureAcknowledged(t *testing.T) {
	c, reader, sink := newTestConsumer(testMessages(1), 5)

	calls := 0
	handler := func(ctx context.Context, key, value []byte) error {
		calls++
		return messaging.Permanent(errors.New("bad json"))
	}

	consumeUntil(t, c, handler, func() bool { return len(reader.committedOffsets()) == 1 })

	assert.Equal(t, 1, calls)
	assert.Empty(t, sink.sent)
}

func TestConsumer_DeadLettersAfterMaxRedeliveries(t *testing.T) {
	c, reader, sink := newTestConsumer(testMessages(2), 3)

	handler := func(ctx context.Context, key, value []byte) error {
		if string(key) == "a" {
			return errors.New("always fails")
		}
		return nil
	}

	consumeUntil(t, c, handler, func() bool { return len(reader.committedOffsets()) == 2 })

	assert.Equal(t, []string{"order.stock.adjust.dlt/a"}, sink.sent)
}

func TestConsumer_Close(t *testing.T) {
	c, reader, _ := newTestConsumer(nil, 0)
	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}
