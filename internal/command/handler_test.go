package command

import (
	"context"
	"testing"

	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *mocks.MockLedgerStore, *mocks.MockPublisher) {
	ledgerStore := mocks.NewMockLedgerStore()
	pub := mocks.NewMockPublisher()
	svc := inventory.NewService(ledgerStore, inventory.WithPublisher(pub))
	return NewHandler(svc), ledgerStore, pub
}

// ============================================
// Create Entry Tests
// ============================================

func TestHandler_CreateEntry_Success(t *testing.T) {
	handler, ledgerStore, pub := newTestHandler()
	ctx := context.Background()

	v, err := handler.CreateEntry(ctx, CreateEntry{ProductID: 100, WarehouseID: 1, TotalQuantity: 50, ReservedQuantity: 10})

	require.NoError(t, err)
	assert.Equal(t, 40, v.AvailableQuantity)
	assert.Equal(t, inventory.StatusActive, v.Status)
	assert.Len(t, ledgerStore.InsertCalls, 1)
	assert.Len(t, pub.OnTopic(inventory.TopicStockChanged), 1)
}

func TestHandler_CreateEntry_Duplicate(t *testing.T) {
	handler, _, _ := newTestHandler()
	ctx := context.Background()
	cmd := CreateEntry{ProductID: 100, WarehouseID: 1, TotalQuantity: 50}

	_, err := handler.CreateEntry(ctx, cmd)
	require.NoError(t, err)

	v, err := handler.CreateEntry(ctx, cmd)
	assert.ErrorIs(t, err, inventory.ErrAlreadyExists)
	assert.Nil(t, v)
}

// ============================================
// Quantity Tests
// ============================================

func TestHandler_SetTotalAndAdjust(t *testing.T) {
	handler, _, _ := newTestHandler()
	ctx := context.Background()

	v, err := handler.SetTotalQuantity(ctx, SetTotalQuantity{ProductID: 100, WarehouseID: 1, TotalQuantity: 100})
	require.NoError(t, err)
	assert.Equal(t, 100, v.AvailableQuantity)

	v, err = handler.AdjustReserved(ctx, AdjustReserved{ProductID: 100, WarehouseID: 1, Delta: 95})
	require.NoError(t, err)
	assert.Equal(t, 5, v.AvailableQuantity)
	assert.Equal(t, inventory.StatusLowStock, v.Status)

	_, err = handler.AdjustReserved(ctx, AdjustReserved{ProductID: 100, WarehouseID: 1, Delta: 6})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
}

func TestHandler_AdjustReserved_NotFound(t *testing.T) {
	handler, _, _ := newTestHandler()

	_, err := handler.AdjustReserved(context.Background(), AdjustReserved{ProductID: 1, WarehouseID: 1, Delta: 1})

	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

// ============================================
// Metadata and Deactivate Tests
// ============================================

func TestHandler_UpdateMetadata(t *testing.T) {
	handler, _, pub := newTestHandler()
	ctx := context.Background()
	_, err := handler.CreateEntry(ctx, CreateEntry{ProductID: 100, WarehouseID: 1, TotalQuantity: 50})
	require.NoError(t, err)
	pub.Reset()

	v, err := handler.UpdateMetadata(ctx, UpdateMetadata{ProductID: 100, WarehouseID: 1, Metadata: map[string]string{"bin": "C-3"}})

	require.NoError(t, err)
	assert.Equal(t, "C-3", v.Metadata["bin"])
	assert.Empty(t, pub.PublishCalls)
}

func TestHandler_DeactivateEntry(t *testing.T) {
	handler, _, _ := newTestHandler()
	ctx := context.Background()
	_, err := handler.CreateEntry(ctx, CreateEntry{ProductID: 100, WarehouseID: 1, TotalQuantity: 50})
	require.NoError(t, err)

	v, err := handler.DeactivateEntry(ctx, DeactivateEntry{ProductID: 100, WarehouseID: 1})

	require.NoError(t, err)
	assert.True(t, v.Deactivated)
	assert.Equal(t, inventory.StatusOutOfStock, v.Status)
	assert.Equal(t, 50, v.TotalQuantity)
}
