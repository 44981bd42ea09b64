// Package rabbitmq is the AMQP alternative to the Kafka transport. Topics map
// to routing keys on one durable topic exchange.
package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

const (
	defaultConfirmTimeout = 5 * time.Second
	partitionKeyHeader    = "partition-key"
	confirmBuffer         = 64
)

type Config struct {
	URL            string
	Exchange       string
	PrefetchCount  int
	ConfirmTimeout time.Duration
}

// Publisher publishes in confirm mode over a single channel. Sends are
// serialized, so messages queued in order reach the broker in order.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
	exchange string
	timeout  time.Duration
	mu       sync.Mutex
	// published counts messages accepted by the channel. In confirm mode the
	// broker numbers deliveries from 1, so it is the tag of the latest send.
	published uint64
}

func NewPublisher(cfg Config) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open producer channel")
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "enable publisher confirms")
	}
	if err := declareExchange(ch, cfg.Exchange); err != nil {
		conn.Close()
		return nil, err
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = defaultConfirmTimeout
	}

	log.Info().Str("exchange", cfg.Exchange).Msg("RabbitMQ publisher ready")
	return &Publisher{
		conn:     conn,
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer)),
		exchange: cfg.Exchange,
		timeout:  timeout,
	}, nil
}

func (p *Publisher) Send(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Publish(p.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{partitionKeyHeader: string(key)},
		Body:         value,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "publish message")
	}

	p.published++

	return awaitConfirm(ctx, p.confirms, p.published, p.timeout)
}

// awaitConfirm waits for the confirmation of delivery tag. Confirmations with
// lower tags belong to earlier sends that gave up waiting and are discarded.
func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, tag uint64, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case confirm, ok := <-confirms:
			if !ok {
				return errors.New("confirm channel closed")
			}
			if confirm.DeliveryTag < tag {
				continue
			}
			if confirm.DeliveryTag > tag {
				return errors.Errorf("confirmation for delivery %d missed, got %d", tag, confirm.DeliveryTag)
			}
			if !confirm.Ack {
				return errors.New("message nacked by broker")
			}
			return nil
		case <-timer.C:
			return errors.New("publish confirmation timeout")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Publisher) Close() error {
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
	return errors.Wrapf(err, "declare exchange %s", name)
}
