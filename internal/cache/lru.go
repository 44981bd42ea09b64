// Package cache provides read-through caches for ledger reads. Both
// implementations are invalidated synchronously by the reservation engine.
package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/metrics"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

type lruItem struct {
	entry     *inventory.Entry
	list      []*inventory.Entry
	expiresAt time.Time
}

// LRUCache is an in-process cache bounded by size and entry age.
type LRUCache struct {
	items *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewLRUCache(size int, ttl time.Duration) (*LRUCache, error) {
	items, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "create lru cache")
	}
	return &LRUCache{
		items: items,
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

func entryKey(productID, warehouseID int64) string {
	return "entry:" + strconv.FormatInt(productID, 10) + ":" + strconv.FormatInt(warehouseID, 10)
}

func (c *LRUCache) GetEntry(ctx context.Context, productID, warehouseID int64) (*inventory.Entry, bool) {
	item, ok := c.lookup(entryKey(productID, warehouseID))
	if !ok || item.entry == nil {
		return nil, false
	}
	return item.entry.Clone(), true
}

func (c *LRUCache) SetEntry(ctx context.Context, entry *inventory.Entry) {
	c.items.Add(entryKey(entry.ProductID, entry.WarehouseID), lruItem{
		entry:     entry.Clone(),
		expiresAt: c.now().Add(c.ttl),
	})
}

func (c *LRUCache) GetList(ctx context.Context, key string) ([]*inventory.Entry, bool) {
	item, ok := c.lookup(key)
	if !ok {
		return nil, false
	}
	return cloneEntries(item.list), true
}

func (c *LRUCache) SetList(ctx context.Context, key string, entries []*inventory.Entry) {
	c.items.Add(key, lruItem{
		list:      cloneEntries(entries),
		expiresAt: c.now().Add(c.ttl),
	})
}

// Invalidate drops the entry, both listings it belongs to and every low-stock listing.
func (c *LRUCache) Invalidate(ctx context.Context, productID, warehouseID int64) {
	c.items.Remove(entryKey(productID, warehouseID))
	c.items.Remove(inventory.ProductListKey(productID))
	c.items.Remove(inventory.WarehouseListKey(warehouseID))

	for _, k := range c.items.Keys() {
		if key, ok := k.(string); ok && strings.HasPrefix(key, inventory.LowStockKeyPrefix) {
			c.items.Remove(key)
		}
	}
}

func (c *LRUCache) lookup(key string) (lruItem, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return lruItem{}, false
	}
	item := v.(lruItem)
	if c.ttl > 0 && c.now().After(item.expiresAt) {
		c.items.Remove(key)
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return lruItem{}, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return item, true
}

func cloneEntries(entries []*inventory.Entry) []*inventory.Entry {
	c := make([]*inventory.Entry, len(entries))
	for i, e := range entries {
		c[i] = e.Clone()
	}
	return c
}
