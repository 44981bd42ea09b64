package mocks

import (
	"context"
	"sync"

	"github.com/example/stock-ledger/internal/infrastructure/store"
)

// MockLedgerStore is an in-memory LedgerStoreInterface that records calls and
// can inject failures.
type MockLedgerStore struct {
	*store.MemoryLedgerStore

	mu sync.Mutex

	// For tracking calls in tests
	InsertCalls []*store.LedgerEntry
	SwapCalls   []SwapCall

	// ConflictsRemaining makes that many CompareAndSwap calls fail with
	// ErrVersionConflict before the store behaves normally again.
	ConflictsRemaining int
	GetErr             error
	InsertErr          error
	SwapErr            error
	SwapCallback       func(ctx context.Context, entry *store.LedgerEntry, expectedVersion int64) error
}

// SwapCall records parameters passed to CompareAndSwap
type SwapCall struct {
	Entry           *store.LedgerEntry
	ExpectedVersion int64
}

// NewMockLedgerStore creates a new MockLedgerStore
func NewMockLedgerStore() *MockLedgerStore {
	return &MockLedgerStore{
		MemoryLedgerStore: store.NewMemoryLedgerStore(),
		InsertCalls:       make([]*store.LedgerEntry, 0),
		SwapCalls:         make([]SwapCall, 0),
	}
}

func (m *MockLedgerStore) Get(ctx context.Context, productID, warehouseID int64) (*store.LedgerEntry, error) {
	m.mu.Lock()
	err := m.GetErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MemoryLedgerStore.Get(ctx, productID, warehouseID)
}

func (m *MockLedgerStore) Insert(ctx context.Context, entry *store.LedgerEntry) error {
	m.mu.Lock()
	m.InsertCalls = append(m.InsertCalls, entry.Clone())
	err := m.InsertErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.MemoryLedgerStore.Insert(ctx, entry)
}

func (m *MockLedgerStore) CompareAndSwap(ctx context.Context, entry *store.LedgerEntry, expectedVersion int64) error {
	m.mu.Lock()
	m.SwapCalls = append(m.SwapCalls, SwapCall{Entry: entry.Clone(), ExpectedVersion: expectedVersion})
	callback := m.SwapCallback
	err := m.SwapErr
	if err == nil && m.ConflictsRemaining > 0 {
		m.ConflictsRemaining--
		err = store.ErrVersionConflict
	}
	m.mu.Unlock()

	if callback != nil {
		return callback(ctx, entry, expectedVersion)
	}
	if err != nil {
		return err
	}
	return m.MemoryLedgerStore.CompareAndSwap(ctx, entry, expectedVersion)
}

// Seed stores an entry directly, bypassing recording.
func (m *MockLedgerStore) Seed(entry *store.LedgerEntry) error {
	return m.MemoryLedgerStore.Insert(context.Background(), entry)
}

// SwapCount returns the number of CompareAndSwap calls so far.
func (m *MockLedgerStore) SwapCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SwapCalls)
}

// Reset clears recorded calls and injected failures
func (m *MockLedgerStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls = make([]*store.LedgerEntry, 0)
	m.SwapCalls = make([]SwapCall, 0)
	m.ConflictsRemaining = 0
	m.GetErr = nil
	m.InsertErr = nil
	m.SwapErr = nil
	m.SwapCallback = nil
}
