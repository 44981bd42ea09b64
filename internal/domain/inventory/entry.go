package inventory

import (
	"time"

	"github.com/example/stock-ledger/internal/infrastructure/store"
)

const (
	DefaultLowStockThreshold = 10
	DefaultMaxAttempts       = 5
	OriginService            = "inventory-service"
)

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusLowStock   Status = "LOW_STOCK"
	StatusOutOfStock Status = "OUT_OF_STOCK"
)

// Entry is the authoritative stock record for one (product, warehouse) pair.
type Entry struct {
	ProductID        int64             `json:"productId"`
	WarehouseID      int64             `json:"warehouseId"`
	TotalQuantity    int               `json:"totalQuantity"`
	ReservedQuantity int               `json:"reservedQuantity"`
	Status           Status            `json:"status"`
	Deactivated      bool              `json:"deactivated"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	Version          int64             `json:"version"`
}

// AvailableQuantity is total minus reserved, floored at zero. A lowered total
// may leave reserved above total; available then reads zero.
func (e *Entry) AvailableQuantity() int {
	return max(0, e.TotalQuantity-e.ReservedQuantity)
}

// DeriveStatus maps an available quantity onto a status for the given threshold.
func DeriveStatus(available, threshold int) Status {
	switch {
	case available <= 0:
		return StatusOutOfStock
	case available < threshold:
		return StatusLowStock
	default:
		return StatusActive
	}
}

func (e *Entry) deriveStatus(threshold int) Status {
	if e.Deactivated {
		return StatusOutOfStock
	}
	return DeriveStatus(e.AvailableQuantity(), threshold)
}

func (e *Entry) Clone() *Entry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (e *Entry) record() *store.LedgerEntry {
	return &store.LedgerEntry{
		ProductID:        e.ProductID,
		WarehouseID:      e.WarehouseID,
		TotalQuantity:    e.TotalQuantity,
		ReservedQuantity: e.ReservedQuantity,
		Status:           string(e.Status),
		Deactivated:      e.Deactivated,
		Metadata:         e.Metadata,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
		Version:          e.Version,
	}
}

// entryFromRecord rebuilds the domain entry; status is always recomputed.
func entryFromRecord(r *store.LedgerEntry, threshold int) *Entry {
	e := &Entry{
		ProductID:        r.ProductID,
		WarehouseID:      r.WarehouseID,
		TotalQuantity:    r.TotalQuantity,
		ReservedQuantity: r.ReservedQuantity,
		Deactivated:      r.Deactivated,
		Metadata:         r.Metadata,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Version:          r.Version,
	}
	e.Status = e.deriveStatus(threshold)
	return e
}

func entriesFromRecords(records []*store.LedgerEntry, threshold int) []*Entry {
	entries := make([]*Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, entryFromRecord(r, threshold))
	}
	return entries
}
