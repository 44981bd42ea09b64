package readmodel

import (
	"time"

	"github.com/example/stock-ledger/internal/domain/inventory"
)

// LedgerEntryView is the API shape of a ledger entry, with the derived
// available quantity spelled out.
type LedgerEntryView struct {
	ProductID         int64             `json:"productId"`
	WarehouseID       int64             `json:"warehouseId"`
	TotalQuantity     int               `json:"totalQuantity"`
	ReservedQuantity  int               `json:"reservedQuantity"`
	AvailableQuantity int               `json:"availableQuantity"`
	Status            inventory.Status  `json:"status"`
	Deactivated       bool              `json:"deactivated"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Version           int64             `json:"version"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func NewLedgerEntryView(e *inventory.Entry) *LedgerEntryView {
	return &LedgerEntryView{
		ProductID:         e.ProductID,
		WarehouseID:       e.WarehouseID,
		TotalQuantity:     e.TotalQuantity,
		ReservedQuantity:  e.ReservedQuantity,
		AvailableQuantity: e.AvailableQuantity(),
		Status:            e.Status,
		Deactivated:       e.Deactivated,
		Metadata:          e.Metadata,
		Version:           e.Version,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func NewLedgerEntryViews(entries []*inventory.Entry) []*LedgerEntryView {
	views := make([]*LedgerEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, NewLedgerEntryView(e))
	}
	return views
}

// StockTotals sums the live entries of one product or one warehouse.
type StockTotals struct {
	ProductID         int64 `json:"productId,omitempty"`
	WarehouseID       int64 `json:"warehouseId,omitempty"`
	TotalQuantity     int   `json:"totalQuantity"`
	ReservedQuantity  int   `json:"reservedQuantity"`
	AvailableQuantity int   `json:"availableQuantity"`
	Entries           int   `json:"entries"`
}

// Availability answers whether a quantity could be reserved right now.
type Availability struct {
	ProductID         int64 `json:"productId"`
	WarehouseID       int64 `json:"warehouseId"`
	RequestedQuantity int   `json:"requestedQuantity"`
	AvailableQuantity int   `json:"availableQuantity"`
	Available         bool  `json:"available"`
}
