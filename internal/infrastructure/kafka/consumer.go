package kafka

import (
	"context"
	"time"

	"github.com/example/stock-ledger/internal/logging"
	"github.com/example/stock-ledger/internal/messaging"
	"github.com/example/stock-ledger/internal/metrics"
	"github.com/example/stock-ledger/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxRedeliveryBackoff = 30 * time.Second

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// MaxRedeliveries bounds handler attempts per message before it is moved
	// to the dead-letter topic. Zero retries forever.
	MaxRedeliveries   int
	RedeliveryBackoff time.Duration
	DeadLetterSuffix  string
}

// DeadLetterSink receives messages whose redeliveries are exhausted.
type DeadLetterSink interface {
	Send(ctx context.Context, topic string, key, value []byte) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic in a consumer group and commits an offset only after
// the handler accepted the message. A failing message is redelivered in place,
// which holds back later messages of its partition.
type Consumer struct {
	reader     messageReader
	cfg        ConsumerConfig
	deadLetter DeadLetterSink
	tracer     trace.Tracer
	logger     zerolog.Logger
}

func NewConsumer(cfg ConsumerConfig, deadLetter DeadLetterSink) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(reader, cfg, deadLetter)
}

func newConsumer(reader messageReader, cfg ConsumerConfig, deadLetter DeadLetterSink) *Consumer {
	if cfg.RedeliveryBackoff <= 0 {
		cfg.RedeliveryBackoff = time.Second
	}
	return &Consumer{
		reader:     reader,
		cfg:        cfg,
		deadLetter: deadLetter,
		tracer:     otel.Tracer(tracing.InstrumentationName),
		logger:     logging.Component("consumer").With().Str("topic", cfg.Topic).Logger(),
	}
}

func (c *Consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	c.logger.Info().Str("group", c.cfg.GroupID).Msg("Consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("Failed to fetch message")
			if !wait(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		if !c.process(ctx, msg, handler) {
			return ctx.Err()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit offset")
		}
	}
}

// process runs the handler until the message can be committed. It returns
// false only when ctx is cancelled first, leaving the offset uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, handler messaging.MessageHandler) bool {
	ctx = ExtractTraceContext(ctx, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "consume "+msg.Topic, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	backoff := c.cfg.RedeliveryBackoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			metrics.ConsumedMessages.WithLabelValues(msg.Topic, "ack").Inc()
			return true
		}
		if messaging.IsPermanent(err) {
			metrics.ConsumedMessages.WithLabelValues(msg.Topic, "poison").Inc()
			c.logger.Error().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Acknowledging unprocessable message")
			return true
		}

		metrics.ConsumedMessages.WithLabelValues(msg.Topic, "retry").Inc()
		span.RecordError(err)
		c.logger.Warn().
			Err(err).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Int("attempt", attempt).
			Msg("Message not acknowledged, redelivering")

		if c.cfg.MaxRedeliveries > 0 && attempt >= c.cfg.MaxRedeliveries && c.sendToDeadLetter(ctx, msg) {
			span.SetStatus(codes.Error, "dead-lettered")
			return true
		}

		if !wait(ctx, backoff) {
			return false
		}
		backoff = min(backoff*2, maxRedeliveryBackoff)
	}
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, msg kafka.Message) bool {
	if c.deadLetter == nil || c.cfg.DeadLetterSuffix == "" {
		return false
	}

	topic := msg.Topic + c.cfg.DeadLetterSuffix
	if err := c.deadLetter.Send(ctx, topic, msg.Key, msg.Value); err != nil {
		c.logger.Error().Err(err).Str("deadLetterTopic", topic).Msg("Failed to dead-letter message")
		return false
	}

	metrics.ConsumedMessages.WithLabelValues(msg.Topic, "dead_letter").Inc()
	c.logger.Error().
		Str("deadLetterTopic", topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("key", string(msg.Key)).
		Msg("Redeliveries exhausted, message dead-lettered")
	return true
}

func (c *Consumer) Close() error {
	return c.reader.Close()
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
