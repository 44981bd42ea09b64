package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEntryNotFound   = errors.New("ledger entry not found")
	ErrEntryExists     = errors.New("ledger entry already exists")
	ErrVersionConflict = errors.New("ledger entry version conflict")
)

// LedgerEntry is the persisted shape of one (product, warehouse) stock record.
type LedgerEntry struct {
	ProductID        int64
	WarehouseID      int64
	TotalQuantity    int
	ReservedQuantity int
	Status           string
	Deactivated      bool
	Metadata         map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int64
}

// Available returns total minus reserved, floored at zero.
func (e *LedgerEntry) Available() int {
	return max(0, e.TotalQuantity-e.ReservedQuantity)
}

// Clone returns a deep copy so callers never share metadata maps with the store.
func (e *LedgerEntry) Clone() *LedgerEntry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// LedgerStoreInterface is the durable ledger collaborator. Implementations must
// give read-your-writes per key and an atomic compare-and-swap on Version.
type LedgerStoreInterface interface {
	Get(ctx context.Context, productID, warehouseID int64) (*LedgerEntry, error)
	// Insert fails with ErrEntryExists when the key is already present.
	Insert(ctx context.Context, entry *LedgerEntry) error
	// CompareAndSwap replaces the stored entry only if its version still equals
	// expectedVersion, otherwise it returns ErrVersionConflict.
	CompareAndSwap(ctx context.Context, entry *LedgerEntry, expectedVersion int64) error
	ListByProduct(ctx context.Context, productID int64) ([]*LedgerEntry, error)
	ListByWarehouse(ctx context.Context, warehouseID int64) ([]*LedgerEntry, error)
	// ListAvailableBelow returns live entries whose available quantity is below threshold.
	ListAvailableBelow(ctx context.Context, threshold int) ([]*LedgerEntry, error)
}
