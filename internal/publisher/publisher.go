// Package publisher delivers domain events asynchronously. Every partition key
// is pinned to one worker, so events for a key leave in the order they were
// queued.
package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/example/stock-ledger/internal/logging"
	"github.com/example/stock-ledger/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	ErrPublishFailed = errors.New("event publish failed")
	ErrClosed        = errors.New("publisher closed")
)

// Transport sends one encoded message. Implementations must route equal keys
// to the same partition.
type Transport interface {
	Send(ctx context.Context, topic string, key, value []byte) error
}

// Outcome reports the final result of one queued event.
type Outcome struct {
	Topic    string
	Key      string
	Attempts int
	Err      error
}

type Config struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// DeadLetterSuffix names the topic (original topic + suffix) that receives
	// events whose retries are exhausted. Empty disables dead-lettering.
	DeadLetterSuffix string
}

func DefaultConfig() Config {
	return Config{
		Workers:          8,
		QueueSize:        1024,
		MaxAttempts:      5,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
		DeadLetterSuffix: ".dlt",
	}
}

type Option func(*Publisher)

// WithOutcomeHandler registers a callback invoked once per event after its
// final attempt. It runs on the worker goroutine.
func WithOutcomeHandler(fn func(Outcome)) Option {
	return func(p *Publisher) { p.onOutcome = fn }
}

type message struct {
	topic   string
	key     string
	value   []byte
	spanCtx trace.SpanContext
}

type Publisher struct {
	transport Transport
	cfg       Config
	shards    []chan message
	onOutcome func(Outcome)
	logger    zerolog.Logger

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New starts the worker pool. Call Close to drain it.
func New(transport Transport, cfg Config, opts ...Option) *Publisher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		transport: transport,
		cfg:       cfg,
		shards:    make([]chan message, cfg.Workers),
		logger:    logging.Component("publisher"),
		ctx:       ctx,
		cancel:    cancel,
		group:     &errgroup.Group{},
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := range p.shards {
		ch := make(chan message, cfg.QueueSize)
		p.shards[i] = ch
		p.group.Go(func() error {
			for msg := range ch {
				p.deliver(msg)
			}
			return nil
		})
	}
	return p
}

// Publish encodes the event and queues it behind earlier events with the same
// key. It blocks only while that key's queue is full. Cancelling ctx does not
// abort the enqueue: callers publish after their write has committed, so the
// event must reach the queue even when the request that caused it is gone.
func (p *Publisher) Publish(ctx context.Context, topic, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := message{
		topic:   topic,
		key:     key,
		value:   value,
		spanCtx: trace.SpanContextFromContext(ctx),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	p.shards[p.shardFor(key)] <- msg
	metrics.PublishQueueDepth.Inc()
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered. If
// ctx expires first, pending retries are abandoned.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		p.cancel()
		return err
	case <-ctx.Done():
		p.cancel()
		<-done
		return errors.Wrap(ctx.Err(), "drain publisher")
	}
}

func (p *Publisher) shardFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(p.shards)))
}

func (p *Publisher) deliver(msg message) {
	metrics.PublishQueueDepth.Dec()

	ctx := p.ctx
	if msg.spanCtx.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, msg.spanCtx)
	}

	backoff := p.cfg.InitialBackoff
	attempt := 0
	var err error
	for attempt = 1; ; attempt++ {
		err = p.transport.Send(ctx, msg.topic, []byte(msg.key), msg.value)
		if err == nil || attempt >= p.cfg.MaxAttempts {
			break
		}

		metrics.PublishRetries.WithLabelValues(msg.topic).Inc()
		p.logger.Warn().
			Err(err).
			Str("topic", msg.topic).
			Str("key", msg.key).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Publish failed, retrying")

		if !wait(ctx, backoff) {
			break
		}
		backoff = min(backoff*2, p.cfg.MaxBackoff)
	}

	outcome := Outcome{Topic: msg.topic, Key: msg.key, Attempts: attempt}
	if err != nil {
		outcome.Err = errors.Wrapf(ErrPublishFailed, "%s after %d attempts: %v", msg.topic, attempt, err)
		metrics.EventsPublished.WithLabelValues(msg.topic, "failed").Inc()
		p.logger.Error().
			Err(err).
			Str("topic", msg.topic).
			Str("key", msg.key).
			Int("attempts", attempt).
			Msg("Publish failed, ledger state is unaffected")
		p.deadLetter(ctx, msg)
	} else {
		metrics.EventsPublished.WithLabelValues(msg.topic, "ok").Inc()
	}

	if p.onOutcome != nil {
		p.onOutcome(outcome)
	}
}

func (p *Publisher) deadLetter(ctx context.Context, msg message) {
	if p.cfg.DeadLetterSuffix == "" {
		return
	}
	topic := msg.topic + p.cfg.DeadLetterSuffix
	if err := p.transport.Send(ctx, topic, []byte(msg.key), msg.value); err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Str("key", msg.key).Msg("Dead-letter publish failed, event dropped")
		return
	}
	metrics.EventsPublished.WithLabelValues(topic, "dead_letter").Inc()
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
