package inventory

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/example/stock-ledger/internal/domain/warehouse"
	"github.com/example/stock-ledger/internal/idempotency"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/infrastructure/store/mocks"
	"github.com/example/stock-ledger/internal/monitor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestService(opts ...Option) (*Service, *mocks.MockLedgerStore, *mocks.MockPublisher) {
	ledger := mocks.NewMockLedgerStore()
	pub := mocks.NewMockPublisher()
	opts = append([]Option{
		WithPublisher(pub),
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	return NewService(ledger, opts...), ledger, pub
}

func stockChangedEvents(pub *mocks.MockPublisher) []StockChanged {
	var out []StockChanged
	for _, e := range pub.OnTopic(TopicStockChanged) {
		out = append(out, e.(StockChanged))
	}
	return out
}

func lowStockEvents(pub *mocks.MockPublisher) []InventoryLow {
	var out []InventoryLow
	for _, e := range pub.OnTopic(TopicInventoryLow) {
		out = append(out, e.(InventoryLow))
	}
	return out
}

// ============================================
// Create Entry Tests
// ============================================

func TestService_CreateEntry_Success(t *testing.T) {
	svc, ledger, pub := newTestService()
	ctx := context.Background()

	e, err := svc.CreateEntry(ctx, 100, 1, 50, 10, map[string]string{"bin": "A-1"})

	require.NoError(t, err)
	assert.Equal(t, 50, e.TotalQuantity)
	assert.Equal(t, 10, e.ReservedQuantity)
	assert.Equal(t, 40, e.AvailableQuantity())
	assert.Equal(t, StatusActive, e.Status)
	assert.Equal(t, int64(1), e.Version)
	assert.Equal(t, testNow, e.CreatedAt)
	assert.Equal(t, "A-1", e.Metadata["bin"])
	assert.Len(t, ledger.InsertCalls, 1)

	events := stockChangedEvents(pub)
	require.Len(t, events, 1)
	assert.Equal(t, OpCreate, events[0].Operation)
	assert.Equal(t, 0, events[0].OldQuantity)
	assert.Equal(t, 50, events[0].NewQuantity)
	assert.Equal(t, OriginService, events[0].OriginService)
	assert.Equal(t, "100", pub.PublishCalls[0].Key)
}

func TestService_CreateEntry_AlreadyExists(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, 100, 1, 50, 0, nil)
	require.NoError(t, err)

	e, err := svc.CreateEntry(ctx, 100, 1, 10, 0, nil)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, KindAlreadyExists, KindOf(err))
	assert.Nil(t, e)
}

func TestService_CreateEntry_InvalidArguments(t *testing.T) {
	tests := []struct {
		name                 string
		productID, warehouse int64
		total, reserved      int
	}{
		{"missing product", 0, 1, 10, 0},
		{"missing warehouse", 1, 0, 10, 0},
		{"negative total", 1, 1, -1, 0},
		{"negative reserved", 1, 1, 10, -1},
		{"reserved above total", 1, 1, 10, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, ledger, pub := newTestService()

			_, err := svc.CreateEntry(context.Background(), tt.productID, tt.warehouse, tt.total, tt.reserved, nil)

			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Empty(t, ledger.InsertCalls)
			assert.Empty(t, pub.PublishCalls)
		})
	}
}

func TestService_CreateEntry_UnknownWarehouse(t *testing.T) {
	warehouses := store.NewMemoryWarehouseStore(warehouse.Warehouse{ID: 1, Status: warehouse.StatusActive})
	svc, _, _ := newTestService(WithWarehouseDirectory(warehouses))

	_, err := svc.CreateEntry(context.Background(), 100, 2, 10, 0, nil)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_InitializeEntry_NoAlert(t *testing.T) {
	svc, _, pub := newTestService()

	e, err := svc.InitializeEntry(context.Background(), 100, 1)

	require.NoError(t, err)
	assert.Equal(t, StatusOutOfStock, e.Status)
	require.Len(t, stockChangedEvents(pub), 1)
	assert.Equal(t, OpInitialize, stockChangedEvents(pub)[0].Operation)
	assert.Empty(t, lowStockEvents(pub))
}

// ============================================
// Adjust Reserved Tests
// ============================================

func TestService_AdjustReserved_Scenario(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, 100, 1, 50, 10, nil)
	require.NoError(t, err)
	pub.Reset()

	e, err := svc.AdjustReserved(ctx, 100, 1, 5)

	require.NoError(t, err)
	assert.Equal(t, 15, e.ReservedQuantity)
	assert.Equal(t, 35, e.AvailableQuantity())
	assert.Equal(t, StatusActive, e.Status)
	assert.Equal(t, int64(2), e.Version)

	events := stockChangedEvents(pub)
	require.Len(t, events, 1)
	assert.Equal(t, OpReserve, events[0].Operation)
	assert.Equal(t, 10, events[0].OldQuantity)
	assert.Equal(t, 15, events[0].NewQuantity)
	assert.Equal(t, 35, events[0].AvailableQuantity)
	assert.Equal(t, StatusActive, events[0].Status)
	assert.Len(t, pub.PublishCalls, 1)
}

func TestService_AdjustReserved_InsufficientStock(t *testing.T) {
	svc, ledger, pub := newTestService()
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, 100, 1, 12, 10, nil)
	require.NoError(t, err)
	pub.Reset()

	e, err := svc.AdjustReserved(ctx, 100, 1, 5)

	assert.Nil(t, e)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.Contains(t, err.Error(), "reservation exceeds available stock")

	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 5, insufficient.Requested)

	stored, err := ledger.Get(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.ReservedQuantity)
	assert.Equal(t, int64(1), stored.Version)

	assert.Empty(t, pub.OnTopic(TopicStockChanged))
	backorders := pub.OnTopic(TopicBackorderNotification)
	require.Len(t, backorders, 1)
	assert.Equal(t, 5, backorders[0].(BackorderNotification).RequestedQuantity)
}

func TestService_AdjustReserved_BackorderOncePerCorrelationID(t *testing.T) {
	claims := idempotency.NewMemoryStore(idempotency.DefaultTTLs())
	svc, ledger, pub := newTestService(WithBackorderDedupe(claims))
	require.NoError(t, ledger.Seed(&store.LedgerEntry{ProductID: 100, WarehouseID: 1, TotalQuantity: 12, ReservedQuantity: 10, Version: 1}))

	ctx := WithCorrelationID(context.Background(), "o-1:RESERVE:100:1")
	for i := 0; i < 3; i++ {
		_, err := svc.AdjustReserved(ctx, 100, 1, 5)
		require.ErrorIs(t, err, ErrInsufficientStock)
	}
	assert.Len(t, pub.OnTopic(TopicBackorderNotification), 1)

	// Without a correlation id every rejection is notified.
	_, err := svc.AdjustReserved(context.Background(), 100, 1, 5)
	require.ErrorIs(t, err, ErrInsufficientStock)
	_, err = svc.AdjustReserved(context.Background(), 100, 1, 5)
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Len(t, pub.OnTopic(TopicBackorderNotification), 3)
}

func TestService_AdjustReserved_NegativeReserved(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 20, 3, nil)
	require.NoError(t, err)

	_, err = svc.AdjustReserved(ctx, 100, 1, -4)

	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.NotErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "reserved cannot be negative")
}

func TestService_AdjustReserved_ZeroDelta(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 20, 0, nil)
	require.NoError(t, err)

	_, err = svc.AdjustReserved(ctx, 100, 1, 0)

	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_AdjustReserved_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.AdjustReserved(context.Background(), 100, 1, 1)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestService_AdjustReserved_RoundTrip(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.SetTotalQuantity(ctx, 100, 1, 100)
	require.NoError(t, err)
	_, err = svc.AdjustReserved(ctx, 100, 1, 30)
	require.NoError(t, err)
	e, err := svc.AdjustReserved(ctx, 100, 1, -30)
	require.NoError(t, err)

	assert.Equal(t, 0, e.ReservedQuantity)
	assert.Equal(t, 100, e.TotalQuantity)
}

func TestService_AdjustReserved_Invariant(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 40, 0, nil)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		delta := rng.Intn(21) - 10
		if delta == 0 {
			continue
		}
		_, _ = svc.AdjustReserved(ctx, 100, 1, delta)

		e, err := svc.GetEntry(ctx, 100, 1)
		require.NoError(t, err)
		require.GreaterOrEqual(t, e.ReservedQuantity, 0)
		require.LessOrEqual(t, e.ReservedQuantity, e.TotalQuantity)
	}
}

func TestService_AdjustReserved_ConcurrentReservations(t *testing.T) {
	const n = 20
	svc, _, _ := newTestService(WithMaxAttempts(n * 2))
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, n-1, 0, nil)
	require.NoError(t, err)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successes    int
		insufficient int
		other        []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.AdjustReserved(ctx, 100, 1, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInsufficientStock):
				insufficient++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, n-1, successes)
	assert.Equal(t, 1, insufficient)

	e, err := svc.GetEntry(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, successes, e.ReservedQuantity)
	assert.Equal(t, 0, e.AvailableQuantity())
	assert.Equal(t, StatusOutOfStock, e.Status)
}

func TestService_AdjustReserved_RetriesOnConflict(t *testing.T) {
	svc, ledger, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 50, 0, nil)
	require.NoError(t, err)

	ledger.ConflictsRemaining = 2
	e, err := svc.AdjustReserved(ctx, 100, 1, 5)

	require.NoError(t, err)
	assert.Equal(t, 5, e.ReservedQuantity)
	assert.Equal(t, 3, ledger.SwapCount())
}

func TestService_AdjustReserved_Contention(t *testing.T) {
	svc, ledger, pub := newTestService(WithMaxAttempts(3))
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 50, 0, nil)
	require.NoError(t, err)
	pub.Reset()

	ledger.ConflictsRemaining = 10
	_, err = svc.AdjustReserved(ctx, 100, 1, 5)

	assert.ErrorIs(t, err, ErrContention)
	assert.Equal(t, KindContention, KindOf(err))
	assert.Equal(t, 3, ledger.SwapCount())
	assert.Empty(t, pub.PublishCalls)
}

func TestService_AdjustReserved_StoreFailure(t *testing.T) {
	svc, ledger, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 50, 0, nil)
	require.NoError(t, err)

	ledger.SwapErr = errors.New("connection reset")
	_, err = svc.AdjustReserved(ctx, 100, 1, 5)

	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestService_ApplyAdjustment_CancelTagged(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 50, 20, nil)
	require.NoError(t, err)
	pub.Reset()

	_, err = svc.ApplyAdjustment(ctx, 100, 1, -20, OpCancel)
	require.NoError(t, err)

	events := stockChangedEvents(pub)
	require.Len(t, events, 1)
	assert.Equal(t, OpCancel, events[0].Operation)
	assert.Equal(t, 20, events[0].OldQuantity)
	assert.Equal(t, 0, events[0].NewQuantity)
}

// ============================================
// Set Total Quantity Tests
// ============================================

func TestService_SetTotalQuantity_CreatesWhenAbsent(t *testing.T) {
	svc, _, pub := newTestService()

	e, err := svc.SetTotalQuantity(context.Background(), 100, 1, 30)

	require.NoError(t, err)
	assert.Equal(t, 30, e.TotalQuantity)
	assert.Equal(t, 0, e.ReservedQuantity)
	assert.Equal(t, int64(1), e.Version)

	events := stockChangedEvents(pub)
	require.Len(t, events, 1)
	assert.Equal(t, OpSetTotal, events[0].Operation)
	assert.Equal(t, 0, events[0].OldQuantity)
	assert.Equal(t, 30, events[0].NewQuantity)
}

func TestService_SetTotalQuantity_Replaces(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 30, 5, nil)
	require.NoError(t, err)
	pub.Reset()

	e, err := svc.SetTotalQuantity(ctx, 100, 1, 80)

	require.NoError(t, err)
	assert.Equal(t, 80, e.TotalQuantity)
	assert.Equal(t, 5, e.ReservedQuantity)
	assert.Equal(t, int64(2), e.Version)

	events := stockChangedEvents(pub)
	require.Len(t, events, 1)
	assert.Equal(t, 30, events[0].OldQuantity)
	assert.Equal(t, 80, events[0].NewQuantity)
}

func TestService_SetTotalQuantity_BelowReservedClamps(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 50, 40, nil)
	require.NoError(t, err)

	e, err := svc.SetTotalQuantity(ctx, 100, 1, 30)
	require.NoError(t, err)
	assert.Equal(t, 40, e.ReservedQuantity)
	assert.Equal(t, 0, e.AvailableQuantity())
	assert.Equal(t, StatusOutOfStock, e.Status)

	// Further reservations fail, releases still go through.
	_, err = svc.AdjustReserved(ctx, 100, 1, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	e, err = svc.AdjustReserved(ctx, 100, 1, -15)
	require.NoError(t, err)
	assert.Equal(t, 25, e.ReservedQuantity)
	assert.Equal(t, 5, e.AvailableQuantity())
}

func TestService_SetTotalQuantity_Negative(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.SetTotalQuantity(context.Background(), 100, 1, -1)

	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// ============================================
// Metadata and Deactivation Tests
// ============================================

func TestService_UpdateMetadata_NoEvent(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 50, 0, nil)
	require.NoError(t, err)
	pub.Reset()

	e, err := svc.UpdateMetadata(ctx, 100, 1, map[string]string{"bin": "B-2"})

	require.NoError(t, err)
	assert.Equal(t, "B-2", e.Metadata["bin"])
	assert.Equal(t, 50, e.TotalQuantity)
	assert.Equal(t, int64(2), e.Version)
	assert.Empty(t, pub.PublishCalls)
}

func TestService_Deactivate(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 50, 10, nil)
	require.NoError(t, err)
	pub.Reset()

	e, err := svc.Deactivate(ctx, 100, 1)
	require.NoError(t, err)
	assert.True(t, e.Deactivated)
	assert.Equal(t, StatusOutOfStock, e.Status)
	assert.Len(t, stockChangedEvents(pub), 1)
	assert.Empty(t, lowStockEvents(pub))

	_, err = svc.AdjustReserved(ctx, 100, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	e, err = svc.AdjustReserved(ctx, 100, 1, -10)
	require.NoError(t, err)
	assert.Equal(t, 0, e.ReservedQuantity)
	assert.Equal(t, StatusOutOfStock, e.Status)

	again, err := svc.Deactivate(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, e.Version, again.Version)

	low, err := svc.ListLowStock(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, low)
}

// ============================================
// Low Stock Alert Tests
// ============================================

func TestService_LowStockAlert_EdgeTriggered(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 50, 0, nil)
	require.NoError(t, err)

	steps := []struct {
		reserve      int
		wantAlert    bool
		wantSeverity string
	}{
		{40, false, ""},       // 10 left: not below threshold
		{2, true, "WARNING"},  // 8 left
		{1, false, ""},        // 7 left, same band
		{2, true, "CRITICAL"}, // 5 left
		{3, false, ""},        // 2 left, same band
		{2, true, "CRITICAL"}, // 0 left: depleted
	}

	for i, step := range steps {
		before := len(lowStockEvents(pub))
		_, err := svc.AdjustReserved(ctx, 100, 1, step.reserve)
		require.NoError(t, err, "step %d", i)

		alerts := lowStockEvents(pub)
		if !step.wantAlert {
			assert.Len(t, alerts, before, "step %d", i)
			continue
		}
		require.Len(t, alerts, before+1, "step %d", i)
		last := alerts[len(alerts)-1]
		assert.Equal(t, step.wantSeverity, last.Severity, "step %d", i)
		assert.Equal(t, 10, last.Threshold)
	}
}

func TestService_LowStockAlert_CustomMonitor(t *testing.T) {
	svc, _, pub := newTestService(WithLowStockThreshold(20), WithMonitor(monitor.New(20, 2)))
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, 100, 1, 15, 0, nil)
	require.NoError(t, err)

	alerts := lowStockEvents(pub)
	require.Len(t, alerts, 1)
	assert.Equal(t, "WARNING", alerts[0].Severity)
	assert.Equal(t, 20, alerts[0].Threshold)
	assert.Equal(t, 20, svc.LowStockThreshold())
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		total, reserved int
		want            Status
	}{
		{50, 45, StatusLowStock},
		{50, 50, StatusOutOfStock},
		{50, 40, StatusActive},
		{50, 41, StatusLowStock},
		{30, 40, StatusOutOfStock},
	}
	for _, tt := range tests {
		e := &Entry{TotalQuantity: tt.total, ReservedQuantity: tt.reserved}
		assert.Equal(t, tt.want, e.deriveStatus(DefaultLowStockThreshold), "total=%d reserved=%d", tt.total, tt.reserved)
	}

	m := monitor.New(DefaultLowStockThreshold, monitor.DefaultCriticalLevel)
	assert.Equal(t, monitor.SeverityCritical, m.Severity((&Entry{TotalQuantity: 50, ReservedQuantity: 45}).AvailableQuantity()))
}

// ============================================
// Read Tests
// ============================================

type recordingCache struct {
	noopCache
	mu          sync.Mutex
	entries     map[[2]int64]*Entry
	invalidated [][2]int64
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[[2]int64]*Entry)}
}

func (c *recordingCache) GetEntry(_ context.Context, p, w int64) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[[2]int64{p, w}]
	return e, ok
}

func (c *recordingCache) SetEntry(_ context.Context, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[[2]int64{e.ProductID, e.WarehouseID}] = e.Clone()
}

func (c *recordingCache) Invalidate(_ context.Context, p, w int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, [2]int64{p, w})
	c.invalidated = append(c.invalidated, [2]int64{p, w})
}

func TestService_GetEntry_CacheInvalidatedOnWrite(t *testing.T) {
	c := newRecordingCache()
	svc, ledger, _ := newTestService(WithCache(c))
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 50, 0, nil)
	require.NoError(t, err)

	first, err := svc.GetEntry(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, first.ReservedQuantity)

	// Served from cache while the store is unreachable.
	ledger.GetErr = errors.New("down")
	cached, err := svc.GetEntry(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, first.Version, cached.Version)
	ledger.GetErr = nil

	_, err = svc.AdjustReserved(ctx, 100, 1, 7)
	require.NoError(t, err)
	assert.Contains(t, c.invalidated, [2]int64{100, 1})

	fresh, err := svc.GetEntry(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, fresh.ReservedQuantity)
}

func TestService_Listings(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	for _, e := range []struct {
		p, w            int64
		total, reserved int
	}{
		{100, 1, 50, 0},
		{100, 2, 8, 0},
		{200, 1, 3, 3},
		{200, 2, 20, 0},
	} {
		_, err := svc.CreateEntry(ctx, e.p, e.w, e.total, e.reserved, nil)
		require.NoError(t, err)
	}

	byProduct, err := svc.ListByProduct(ctx, 100)
	require.NoError(t, err)
	require.Len(t, byProduct, 2)
	assert.Equal(t, int64(1), byProduct[0].WarehouseID)
	assert.Equal(t, int64(2), byProduct[1].WarehouseID)

	byWarehouse, err := svc.ListByWarehouse(ctx, 1)
	require.NoError(t, err)
	require.Len(t, byWarehouse, 2)
	assert.Equal(t, int64(100), byWarehouse[0].ProductID)
	assert.Equal(t, int64(200), byWarehouse[1].ProductID)

	low, err := svc.ListLowStock(ctx, 0)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, StatusLowStock, low[0].Status)
	assert.Equal(t, StatusOutOfStock, low[1].Status)

	lowIn2, err := svc.ListLowStockInWarehouse(ctx, 2, 25)
	require.NoError(t, err)
	assert.Len(t, lowIn2, 2)

	_, err = svc.ListByProduct(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_CheckAvailability(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 12, 10, nil)
	require.NoError(t, err)

	ok, e, err := svc.CheckAvailability(ctx, 100, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, e.AvailableQuantity())

	ok, _, err = svc.CheckAvailability(ctx, 100, 1, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = svc.CheckAvailability(ctx, 100, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = svc.CheckAvailability(ctx, 100, 9, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_PublishFailureDoesNotRollBack(t *testing.T) {
	svc, ledger, pub := newTestService()
	ctx := context.Background()
	_, err := svc.CreateEntry(ctx, 100, 1, 50, 0, nil)
	require.NoError(t, err)

	pub.PublishErr = errors.New("queue closed")
	e, err := svc.AdjustReserved(ctx, 100, 1, 5)

	require.NoError(t, err)
	assert.Equal(t, 5, e.ReservedQuantity)
	stored, err := ledger.Get(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.ReservedQuantity)
}
