package rabbitmq

import (
	"context"
	"time"

	"github.com/example/stock-ledger/internal/messaging"
	"github.com/example/stock-ledger/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

const requeueDelay = time.Second

// Consumer reads one durable queue bound to a topic with manual
// acknowledgement. Failed deliveries are requeued for redelivery.
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	topic string
}

func NewConsumer(cfg Config, queue, topic string) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open consumer channel")
	}

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "set qos")
	}
	if err := declareExchange(ch, cfg.Exchange); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "declare queue %s", queue)
	}
	if err := ch.QueueBind(queue, topic, cfg.Exchange, false, nil); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "bind queue %s", queue)
	}

	return &Consumer{conn: conn, ch: ch, queue: queue, topic: topic}, nil
}

func (c *Consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	deliveries, err := c.ch.Consume(
		c.queue,
		"",
		false, // auto-ack false
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "register consumer")
	}

	log.Info().Str("queue", c.queue).Str("topic", c.topic).Msg("Consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d, handler)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler messaging.MessageHandler) {
	key, _ := d.Headers[partitionKeyHeader].(string)

	err := handler(ctx, []byte(key), d.Body)
	switch {
	case err == nil:
		metrics.ConsumedMessages.WithLabelValues(c.topic, "ack").Inc()
		d.Ack(false)
	case messaging.IsPermanent(err):
		metrics.ConsumedMessages.WithLabelValues(c.topic, "poison").Inc()
		log.Error().Err(err).Str("queue", c.queue).Msg("Acknowledging unprocessable message")
		d.Ack(false)
	default:
		metrics.ConsumedMessages.WithLabelValues(c.topic, "retry").Inc()
		log.Warn().Err(err).Str("queue", c.queue).Bool("redelivered", d.Redelivered).Msg("Message not acknowledged, requeueing")
		select {
		case <-time.After(requeueDelay):
		case <-ctx.Done():
		}
		d.Nack(false, true)
	}
}

func (c *Consumer) Close() error {
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}
