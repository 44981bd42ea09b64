package command

import (
	"context"

	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/readmodel"
)

// Ledger is the write side of the reservation engine.
type Ledger interface {
	CreateEntry(ctx context.Context, productID, warehouseID int64, initialTotal, initialReserved int, metadata map[string]string) (*inventory.Entry, error)
	SetTotalQuantity(ctx context.Context, productID, warehouseID int64, newTotal int) (*inventory.Entry, error)
	AdjustReserved(ctx context.Context, productID, warehouseID int64, delta int) (*inventory.Entry, error)
	UpdateMetadata(ctx context.Context, productID, warehouseID int64, metadata map[string]string) (*inventory.Entry, error)
	Deactivate(ctx context.Context, productID, warehouseID int64) (*inventory.Entry, error)
}

type Handler struct {
	ledger Ledger
}

func NewHandler(ledger Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// CreateEntry creates the entry; events are published asynchronously
func (h *Handler) CreateEntry(ctx context.Context, cmd CreateEntry) (*readmodel.LedgerEntryView, error) {
	return view(h.ledger.CreateEntry(ctx, cmd.ProductID, cmd.WarehouseID, cmd.TotalQuantity, cmd.ReservedQuantity, cmd.Metadata))
}

func (h *Handler) SetTotalQuantity(ctx context.Context, cmd SetTotalQuantity) (*readmodel.LedgerEntryView, error) {
	return view(h.ledger.SetTotalQuantity(ctx, cmd.ProductID, cmd.WarehouseID, cmd.TotalQuantity))
}

func (h *Handler) AdjustReserved(ctx context.Context, cmd AdjustReserved) (*readmodel.LedgerEntryView, error) {
	return view(h.ledger.AdjustReserved(ctx, cmd.ProductID, cmd.WarehouseID, cmd.Delta))
}

func (h *Handler) UpdateMetadata(ctx context.Context, cmd UpdateMetadata) (*readmodel.LedgerEntryView, error) {
	return view(h.ledger.UpdateMetadata(ctx, cmd.ProductID, cmd.WarehouseID, cmd.Metadata))
}

// DeactivateEntry soft-deletes the entry; it keeps its history and reads OUT_OF_STOCK
func (h *Handler) DeactivateEntry(ctx context.Context, cmd DeactivateEntry) (*readmodel.LedgerEntryView, error) {
	return view(h.ledger.Deactivate(ctx, cmd.ProductID, cmd.WarehouseID))
}

func view(e *inventory.Entry, err error) (*readmodel.LedgerEntryView, error) {
	if err != nil {
		return nil, err
	}
	return readmodel.NewLedgerEntryView(e), nil
}
