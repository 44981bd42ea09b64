package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/example/stock-ledger/internal/config"
	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/email"
	"github.com/example/stock-ledger/internal/infrastructure/kafka"
	"github.com/example/stock-ledger/internal/infrastructure/rabbitmq"
	"github.com/example/stock-ledger/internal/logging"
	"github.com/example/stock-ledger/internal/messaging"
	"github.com/example/stock-ledger/internal/monitor"
	"github.com/example/stock-ledger/internal/notification"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// consumerGroup is dedicated to alert emails so the ledger's own groups are unaffected.
const consumerGroup = "stock-alert-notifier"

type consumer interface {
	Consume(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Notifier stopped with error")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.Component("notifier")
	logger.Info().
		Str("transport", cfg.Transport).
		Str("smtp", cfg.SMTPHost+":"+strconv.Itoa(cfg.SMTPPort)).
		Strs("recipients", cfg.AlertRecipients).
		Msg("Starting alert notifier")

	emailSvc := email.NewService(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort), cfg.SMTPFrom)
	handler := notification.NewHandler(emailSvc, cfg.AlertRecipients,
		monitor.New(cfg.LowStockThreshold, cfg.CriticalStockLevel))

	topics := []string{inventory.TopicInventoryLow, inventory.TopicBackorderNotification}
	consumers := make([]consumer, 0, len(topics))
	defer func() {
		for _, c := range consumers {
			c.Close()
		}
	}()

	var deadLetter kafka.DeadLetterSink
	if cfg.Transport == "kafka" {
		producer := kafka.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		deadLetter = producer
	}

	for _, topic := range topics {
		c, err := openConsumer(cfg, topic, deadLetter)
		if err != nil {
			return err
		}
		consumers = append(consumers, c)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range consumers {
		topic := topics[i]
		g.Go(func() error {
			logger.Info().Str("topic", topic).Msg("Listening")
			err := c.Consume(gctx, handler.HandleEvent)
			if gctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "consume %s", topic)
		})
	}

	err := g.Wait()
	logger.Info().Msg("Shutting down...")
	return err
}

func openConsumer(cfg config.Config, topic string, deadLetter kafka.DeadLetterSink) (consumer, error) {
	if cfg.Transport == "rabbitmq" {
		return rabbitmq.NewConsumer(rabbitmq.Config{
			URL:           cfg.RabbitMQURL,
			Exchange:      cfg.RabbitMQExchange,
			PrefetchCount: cfg.RabbitMQPrefetch,
		}, consumerGroup+"."+topic, topic)
	}
	return kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:           cfg.KafkaBrokers,
		Topic:             topic,
		GroupID:           consumerGroup,
		MaxRedeliveries:   cfg.ConsumerMaxRedeliveries,
		RedeliveryBackoff: cfg.ConsumerRedeliveryBackoff,
		DeadLetterSuffix:  cfg.DeadLetterSuffix,
	}, deadLetter), nil
}
