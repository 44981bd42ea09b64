package idempotency

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "ledger:processed:"
	pendingValue   = "pending"
	doneValue      = "done"
)

// RedisStore shares claims between consumer instances. SET NX makes the
// pending claim atomic across instances.
type RedisStore struct {
	client redis.UniversalClient
	ttls   TTLs
}

func NewRedisStore(client redis.UniversalClient, ttls TTLs) *RedisStore {
	return &RedisStore{client: client, ttls: ttls}
}

func (s *RedisStore) Begin(ctx context.Context, id string) (State, error) {
	key := redisKeyPrefix + id
	ok, err := s.client.SetNX(ctx, key, pendingValue, s.ttls.Pending).Result()
	if err != nil {
		return StatePending, errors.Wrap(err, "claim correlation id")
	}
	if ok {
		return StateNew, nil
	}

	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; let the redelivery claim it.
		return StatePending, nil
	}
	if err != nil {
		return StatePending, errors.Wrap(err, "read correlation id")
	}
	if value == doneValue {
		return StateDone, nil
	}
	return StatePending, nil
}

func (s *RedisStore) Complete(ctx context.Context, id string) error {
	err := s.client.Set(ctx, redisKeyPrefix+id, doneValue, s.ttls.Done).Err()
	return errors.Wrap(err, "complete correlation id")
}

func (s *RedisStore) Release(ctx context.Context, id string) error {
	return errors.Wrap(s.client.Del(ctx, redisKeyPrefix+id).Err(), "release correlation id")
}
