package query

import (
	"context"

	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/readmodel"
)

// Reader is the read side of the reservation engine.
type Reader interface {
	GetEntry(ctx context.Context, productID, warehouseID int64) (*inventory.Entry, error)
	ListByProduct(ctx context.Context, productID int64) ([]*inventory.Entry, error)
	ListByWarehouse(ctx context.Context, warehouseID int64) ([]*inventory.Entry, error)
	ListLowStock(ctx context.Context, threshold int) ([]*inventory.Entry, error)
	ListLowStockInWarehouse(ctx context.Context, warehouseID int64, threshold int) ([]*inventory.Entry, error)
	CheckAvailability(ctx context.Context, productID, warehouseID int64, quantity int) (bool, *inventory.Entry, error)
}

type Handler struct {
	ledger Reader
}

func NewHandler(ledger Reader) *Handler {
	return &Handler{ledger: ledger}
}

// Entries
func (h *Handler) GetEntry(ctx context.Context, productID, warehouseID int64) (*readmodel.LedgerEntryView, error) {
	e, err := h.ledger.GetEntry(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	return readmodel.NewLedgerEntryView(e), nil
}

func (h *Handler) ListByProduct(ctx context.Context, productID int64) ([]*readmodel.LedgerEntryView, error) {
	entries, err := h.ledger.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return readmodel.NewLedgerEntryViews(entries), nil
}

func (h *Handler) ListByWarehouse(ctx context.Context, warehouseID int64) ([]*readmodel.LedgerEntryView, error) {
	entries, err := h.ledger.ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	return readmodel.NewLedgerEntryViews(entries), nil
}

// Low stock
func (h *Handler) ListLowStock(ctx context.Context, threshold int) ([]*readmodel.LedgerEntryView, error) {
	entries, err := h.ledger.ListLowStock(ctx, threshold)
	if err != nil {
		return nil, err
	}
	return readmodel.NewLedgerEntryViews(entries), nil
}

func (h *Handler) ListLowStockInWarehouse(ctx context.Context, warehouseID int64, threshold int) ([]*readmodel.LedgerEntryView, error) {
	entries, err := h.ledger.ListLowStockInWarehouse(ctx, warehouseID, threshold)
	if err != nil {
		return nil, err
	}
	return readmodel.NewLedgerEntryViews(entries), nil
}

func (h *Handler) CheckAvailability(ctx context.Context, productID, warehouseID int64, quantity int) (*readmodel.Availability, error) {
	ok, e, err := h.ledger.CheckAvailability(ctx, productID, warehouseID, quantity)
	if err != nil {
		return nil, err
	}
	return &readmodel.Availability{
		ProductID:         productID,
		WarehouseID:       warehouseID,
		RequestedQuantity: quantity,
		AvailableQuantity: e.AvailableQuantity(),
		Available:         ok,
	}, nil
}

// Totals skip deactivated entries.
func (h *Handler) TotalStockForProduct(ctx context.Context, productID int64) (*readmodel.StockTotals, error) {
	entries, err := h.ledger.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	totals := sumEntries(entries)
	totals.ProductID = productID
	return totals, nil
}

func (h *Handler) TotalStockInWarehouse(ctx context.Context, warehouseID int64) (*readmodel.StockTotals, error) {
	entries, err := h.ledger.ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	totals := sumEntries(entries)
	totals.WarehouseID = warehouseID
	return totals, nil
}

func sumEntries(entries []*inventory.Entry) *readmodel.StockTotals {
	totals := &readmodel.StockTotals{}
	for _, e := range entries {
		if e.Deactivated {
			continue
		}
		totals.TotalQuantity += e.TotalQuantity
		totals.ReservedQuantity += e.ReservedQuantity
		totals.AvailableQuantity += e.AvailableQuantity()
		totals.Entries++
	}
	return totals
}
