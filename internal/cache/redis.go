package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisPrefix      = "ledger:"
	redisLowStockKey = redisPrefix + "lowstock"
)

// RedisCache shares cached reads between service instances. Low-stock
// listings live as fields of a single hash so one DEL drops all of them.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *RedisCache) GetEntry(ctx context.Context, productID, warehouseID int64) (*inventory.Entry, bool) {
	raw, err := c.client.Get(ctx, redisPrefix+entryKey(productID, warehouseID)).Bytes()
	if !c.found(err) {
		return nil, false
	}

	var entry inventory.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Warn().Err(err).Msg("Discarding undecodable cached ledger entry")
		return nil, false
	}
	return &entry, true
}

func (c *RedisCache) SetEntry(ctx context.Context, entry *inventory.Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisPrefix+entryKey(entry.ProductID, entry.WarehouseID), raw, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to cache ledger entry")
	}
}

func (c *RedisCache) GetList(ctx context.Context, key string) ([]*inventory.Entry, bool) {
	var (
		raw []byte
		err error
	)
	if field, ok := lowStockField(key); ok {
		raw, err = c.client.HGet(ctx, redisLowStockKey, field).Bytes()
	} else {
		raw, err = c.client.Get(ctx, redisPrefix+key).Bytes()
	}
	if !c.found(err) {
		return nil, false
	}

	var entries []*inventory.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cached listing")
		return nil, false
	}
	return entries, true
}

func (c *RedisCache) SetList(ctx context.Context, key string, entries []*inventory.Entry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}

	if field, ok := lowStockField(key); ok {
		pipe := c.client.TxPipeline()
		pipe.HSet(ctx, redisLowStockKey, field, raw)
		pipe.Expire(ctx, redisLowStockKey, c.ttl)
		_, err = pipe.Exec(ctx)
	} else {
		err = c.client.Set(ctx, redisPrefix+key, raw, c.ttl).Err()
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache listing")
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, productID, warehouseID int64) {
	err := c.client.Del(ctx,
		redisPrefix+entryKey(productID, warehouseID),
		redisPrefix+inventory.ProductListKey(productID),
		redisPrefix+inventory.WarehouseListKey(warehouseID),
		redisLowStockKey,
	).Err()
	if err != nil {
		log.Error().
			Err(err).
			Int64("productId", productID).
			Int64("warehouseId", warehouseID).
			Msg("Failed to invalidate cached ledger reads")
	}
}

func (c *RedisCache) found(err error) bool {
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return true
	case err == redis.Nil:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("Cache lookup failed, reading through")
	}
	return false
}

func lowStockField(key string) (string, bool) {
	return strings.CutPrefix(key, inventory.LowStockKeyPrefix)
}
