package main

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/stock-ledger/internal/cache"
	"github.com/example/stock-ledger/internal/config"
	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/domain/warehouse"
	"github.com/example/stock-ledger/internal/idempotency"
	"github.com/example/stock-ledger/internal/infrastructure/kafka"
	"github.com/example/stock-ledger/internal/infrastructure/rabbitmq"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/messaging"
	"github.com/example/stock-ledger/internal/publisher"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

type transport interface {
	publisher.Transport
	Close() error
}

type consumer interface {
	Consume(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// resources tracks opened connections so run can close them in reverse order.
type resources struct {
	db      *sqlx.DB
	redis   *redis.Client
	closers []func() error
}

func (r *resources) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *resources) close() {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i]())
	}
	if err != nil {
		log.Warn().Err(err).Msg("Errors while closing resources")
	}
}

func (r *resources) postgres(cfg config.Config) (*sqlx.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	r.db = db
	r.onClose(db.Close)
	log.Info().Msg("Connected to PostgreSQL")
	return db, nil
}

func (r *resources) redisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if r.redis != nil {
		return r.redis, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "connect to redis")
	}
	r.redis = client
	r.onClose(client.Close)
	log.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	return client, nil
}

func (r *resources) openStore(ctx context.Context, cfg config.Config) (store.LedgerStoreInterface, warehouse.Directory, error) {
	seed, err := cfg.Warehouses()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.StoreDriver {
	case "postgres":
		db, err := r.postgres(cfg)
		if err != nil {
			return nil, nil, err
		}
		ledger := store.NewPostgresLedgerStore(db)
		if err := ledger.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		warehouses := store.NewPostgresWarehouseStore(db)
		if err := warehouses.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return ledger, warehouses, nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load aws config")
		}
		client := dynamodb.NewFromConfig(awsCfg)
		log.Info().Str("table", cfg.DynamoTable).Str("region", awsCfg.Region).Msg("Using DynamoDB ledger store")
		return store.NewDynamoLedgerStore(client, cfg.DynamoTable), store.NewMemoryWarehouseStore(seed...), nil
	default:
		log.Warn().Msg("Using in-memory ledger store, data is lost on restart")
		return store.NewMemoryLedgerStore(), store.NewMemoryWarehouseStore(seed...), nil
	}
}

func (r *resources) openCache(ctx context.Context, cfg config.Config) (inventory.Cache, error) {
	switch cfg.CacheDriver {
	case "lru":
		lru, err := cache.NewLRUCache(cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		return lru, nil
	case "redis":
		client, err := r.redisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisCache(client, cfg.CacheTTL), nil
	default:
		return nil, nil
	}
}

func (r *resources) openIdempotency(ctx context.Context, cfg config.Config) (idempotency.Store, error) {
	ttls := idempotency.TTLs{Pending: cfg.IdempotencyPendingTTL, Done: cfg.IdempotencyDoneTTL}
	if cfg.IdempotencyDriver == "redis" {
		client, err := r.redisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return idempotency.NewRedisStore(client, ttls), nil
	}
	return idempotency.NewMemoryStore(ttls), nil
}

func (r *resources) openTransport(ctx context.Context, cfg config.Config) (transport, error) {
	if cfg.Transport == "rabbitmq" {
		pub, err := rabbitmq.NewPublisher(rabbitmqConfig(cfg))
		if err != nil {
			return nil, err
		}
		r.onClose(pub.Close)
		return pub, nil
	}

	topics := kafka.LedgerTopics(cfg.KafkaReplicationFactor, cfg.DeadLetterSuffix,
		[]string{inventory.TopicStockChanged},
		[]string{inventory.TopicInventoryLow, inventory.TopicBackorderNotification, inventory.TopicStockAdjustResponse},
		[]string{inventory.TopicProductCreated, inventory.TopicStockAdjust},
	)
	if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers, topics); err != nil {
		log.Warn().Err(err).Msg("Could not ensure kafka topics, relying on broker auto-creation")
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	r.onClose(producer.Close)
	log.Info().Strs("brokers", cfg.KafkaBrokers).Msg("Kafka producer ready")
	return producer, nil
}

// openConsumer subscribes to topic. Kafka consumers dead-letter through the
// outbound transport; RabbitMQ consumers acknowledge poison messages instead.
func (r *resources) openConsumer(cfg config.Config, topic string, deadLetter transport) (consumer, error) {
	var (
		c   consumer
		err error
	)
	if cfg.Transport == "rabbitmq" {
		c, err = rabbitmq.NewConsumer(rabbitmqConfig(cfg), cfg.AppName+"."+topic, topic)
		if err != nil {
			return nil, err
		}
	} else {
		c = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:           cfg.KafkaBrokers,
			Topic:             topic,
			GroupID:           cfg.KafkaGroupID,
			MaxRedeliveries:   cfg.ConsumerMaxRedeliveries,
			RedeliveryBackoff: cfg.ConsumerRedeliveryBackoff,
			DeadLetterSuffix:  cfg.DeadLetterSuffix,
		}, deadLetter)
	}
	r.onClose(c.Close)
	return c, nil
}

func rabbitmqConfig(cfg config.Config) rabbitmq.Config {
	return rabbitmq.Config{
		URL:           cfg.RabbitMQURL,
		Exchange:      cfg.RabbitMQExchange,
		PrefetchCount: cfg.RabbitMQPrefetch,
	}
}

// consume runs c until ctx is cancelled. Cancellation is a clean stop.
func consume(ctx context.Context, c consumer, topic string, handler messaging.MessageHandler) error {
	log.Info().Str("topic", topic).Msg("Starting consumer")
	err := c.Consume(ctx, handler)
	if ctx.Err() != nil {
		return nil
	}
	return errors.Wrapf(err, "consume %s", topic)
}
