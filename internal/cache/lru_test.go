package cache

import (
	"context"
	"testing"
	"time"

	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLRU(t *testing.T) *LRUCache {
	t.Helper()
	c, err := NewLRUCache(64, time.Minute)
	require.NoError(t, err)
	return c
}

func testEntry(productID, warehouseID int64, reserved int) *inventory.Entry {
	return &inventory.Entry{
		ProductID:        productID,
		WarehouseID:      warehouseID,
		TotalQuantity:    50,
		ReservedQuantity: reserved,
		Status:           inventory.StatusActive,
		Version:          1,
	}
}

func TestLRUCache_EntryRoundTrip(t *testing.T) {
	c := newTestLRU(t)
	ctx := context.Background()

	_, ok := c.GetEntry(ctx, 1, 1)
	assert.False(t, ok)

	c.SetEntry(ctx, testEntry(1, 1, 5))
	got, ok := c.GetEntry(ctx, 1, 1)
	require.True(t, ok)
	assert.Equal(t, 5, got.ReservedQuantity)

	// Mutating the returned copy leaves the cached value alone.
	got.ReservedQuantity = 99
	again, ok := c.GetEntry(ctx, 1, 1)
	require.True(t, ok)
	assert.Equal(t, 5, again.ReservedQuantity)
}

func TestLRUCache_Invalidate(t *testing.T) {
	c := newTestLRU(t)
	ctx := context.Background()

	c.SetEntry(ctx, testEntry(1, 1, 0))
	c.SetEntry(ctx, testEntry(2, 2, 0))
	c.SetList(ctx, inventory.ProductListKey(1), []*inventory.Entry{testEntry(1, 1, 0)})
	c.SetList(ctx, inventory.WarehouseListKey(1), []*inventory.Entry{testEntry(1, 1, 0)})
	c.SetList(ctx, inventory.WarehouseListKey(2), []*inventory.Entry{testEntry(2, 2, 0)})
	c.SetList(ctx, inventory.LowStockListKey(10), nil)
	c.SetList(ctx, inventory.LowStockListKey(25), nil)

	c.Invalidate(ctx, 1, 1)

	_, ok := c.GetEntry(ctx, 1, 1)
	assert.False(t, ok)
	_, ok = c.GetList(ctx, inventory.ProductListKey(1))
	assert.False(t, ok)
	_, ok = c.GetList(ctx, inventory.WarehouseListKey(1))
	assert.False(t, ok)
	_, ok = c.GetList(ctx, inventory.LowStockListKey(10))
	assert.False(t, ok)
	_, ok = c.GetList(ctx, inventory.LowStockListKey(25))
	assert.False(t, ok)

	_, ok = c.GetEntry(ctx, 2, 2)
	assert.True(t, ok)
	_, ok = c.GetList(ctx, inventory.WarehouseListKey(2))
	assert.True(t, ok)
}

func TestLRUCache_Expiry(t *testing.T) {
	c := newTestLRU(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.SetEntry(ctx, testEntry(1, 1, 0))
	now = now.Add(2 * time.Minute)

	_, ok := c.GetEntry(ctx, 1, 1)
	assert.False(t, ok)
}

func TestLRUCache_InvalidSize(t *testing.T) {
	_, err := NewLRUCache(0, time.Minute)
	assert.Error(t, err)
}

func TestLowStockField(t *testing.T) {
	field, ok := lowStockField(inventory.LowStockListKey(10))
	assert.True(t, ok)
	assert.Equal(t, "10", field)

	_, ok = lowStockField(inventory.ProductListKey(10))
	assert.False(t, ok)
}
