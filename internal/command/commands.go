package command

// Ledger entry commands
type CreateEntry struct {
	ProductID        int64             `json:"productId"`
	WarehouseID      int64             `json:"warehouseId"`
	TotalQuantity    int               `json:"totalQuantity"`
	ReservedQuantity int               `json:"reservedQuantity"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type SetTotalQuantity struct {
	ProductID     int64 `json:"productId"`
	WarehouseID   int64 `json:"warehouseId"`
	TotalQuantity int   `json:"totalQuantity"`
}

// AdjustReserved reserves with a positive delta and releases with a negative one.
type AdjustReserved struct {
	ProductID   int64 `json:"productId"`
	WarehouseID int64 `json:"warehouseId"`
	Delta       int   `json:"delta"`
}

type UpdateMetadata struct {
	ProductID   int64             `json:"productId"`
	WarehouseID int64             `json:"warehouseId"`
	Metadata    map[string]string `json:"metadata"`
}

type DeactivateEntry struct {
	ProductID   int64 `json:"productId"`
	WarehouseID int64 `json:"warehouseId"`
}
