package store

import (
	"context"
	"sort"
	"sync"
)

type ledgerKey struct {
	productID   int64
	warehouseID int64
}

// MemoryLedgerStore keeps the ledger in a keyed concurrent map.
type MemoryLedgerStore struct {
	mu      sync.RWMutex
	entries map[ledgerKey]*LedgerEntry
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries: make(map[ledgerKey]*LedgerEntry),
	}
}

func (s *MemoryLedgerStore) Get(ctx context.Context, productID, warehouseID int64) (*LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[ledgerKey{productID, warehouseID}]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return entry.Clone(), nil
}

func (s *MemoryLedgerStore) Insert(ctx context.Context, entry *LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{entry.ProductID, entry.WarehouseID}
	if _, ok := s.entries[key]; ok {
		return ErrEntryExists
	}
	s.entries[key] = entry.Clone()
	return nil
}

func (s *MemoryLedgerStore) CompareAndSwap(ctx context.Context, entry *LedgerEntry, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{entry.ProductID, entry.WarehouseID}
	current, ok := s.entries[key]
	if !ok {
		return ErrEntryNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	s.entries[key] = entry.Clone()
	return nil
}

func (s *MemoryLedgerStore) ListByProduct(ctx context.Context, productID int64) ([]*LedgerEntry, error) {
	return s.filter(func(e *LedgerEntry) bool { return e.ProductID == productID }), nil
}

func (s *MemoryLedgerStore) ListByWarehouse(ctx context.Context, warehouseID int64) ([]*LedgerEntry, error) {
	return s.filter(func(e *LedgerEntry) bool { return e.WarehouseID == warehouseID }), nil
}

func (s *MemoryLedgerStore) ListAvailableBelow(ctx context.Context, threshold int) ([]*LedgerEntry, error) {
	return s.filter(func(e *LedgerEntry) bool {
		return !e.Deactivated && e.Available() < threshold
	}), nil
}

// filter returns copies ordered by product then warehouse so listings are stable.
func (s *MemoryLedgerStore) filter(match func(*LedgerEntry) bool) []*LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*LedgerEntry, 0)
	for _, e := range s.entries {
		if match(e) {
			result = append(result, e.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ProductID != result[j].ProductID {
			return result[i].ProductID < result[j].ProductID
		}
		return result[i].WarehouseID < result[j].WarehouseID
	})
	return result
}
