package inventory

import "time"

const (
	TopicStockChanged          = "stock.changed"
	TopicProductCreated        = "product.created"
	TopicInventoryLow          = "inventory.low"
	TopicBackorderNotification = "backorder.notification"
	TopicStockAdjust           = "order.stock.adjust"
	TopicStockAdjustResponse   = "order.stock.adjust.response"
)

const (
	EventStockChanged             = "STOCK_CHANGED"
	EventInventoryLow             = "INVENTORY_LOW"
	EventBackorderNotification    = "BACKORDER_NOTIFICATION"
	EventStockAdjustmentConfirmed = "STOCK_ADJUSTMENT_CONFIRMED"
	EventStockAdjustmentFailed    = "STOCK_ADJUSTMENT_FAILED"
)

// Operation tags the mutation that produced an event.
type Operation string

const (
	OpCreate         Operation = "CREATE"
	OpInitialize     Operation = "INITIALIZE"
	OpSetTotal       Operation = "SET_TOTAL"
	OpReserve        Operation = "RESERVE"
	OpRelease        Operation = "RELEASE"
	OpCancel         Operation = "CANCEL"
	OpDeactivate     Operation = "DEACTIVATE"
	OpUpdateMetadata Operation = "UPDATE_METADATA"
)

// adjustsReserved reports whether old/new quantities of the operation refer to
// the reserved quantity rather than the total.
func (o Operation) adjustsReserved() bool {
	return o == OpReserve || o == OpRelease || o == OpCancel
}

type StockChanged struct {
	EventID           string    `json:"eventId"`
	EventType         string    `json:"eventType"`
	ProductID         int64     `json:"productId"`
	WarehouseID       int64     `json:"warehouseId"`
	OldQuantity       int       `json:"oldQuantity"`
	NewQuantity       int       `json:"newQuantity"`
	TotalQuantity     int       `json:"totalQuantity"`
	ReservedQuantity  int       `json:"reservedQuantity"`
	AvailableQuantity int       `json:"availableQuantity"`
	Status            Status    `json:"status"`
	Operation         Operation `json:"operation"`
	Version           int64     `json:"version"`
	Timestamp         time.Time `json:"timestamp"`
	OriginService     string    `json:"originService"`
}

type InventoryLow struct {
	EventID           string    `json:"eventId"`
	EventType         string    `json:"eventType"`
	ProductID         int64     `json:"productId"`
	WarehouseID       int64     `json:"warehouseId"`
	AvailableQuantity int       `json:"availableQuantity"`
	Threshold         int       `json:"threshold"`
	Severity          string    `json:"severity"`
	Status            Status    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	OriginService     string    `json:"originService"`
}

type BackorderNotification struct {
	EventID           string    `json:"eventId"`
	EventType         string    `json:"eventType"`
	ProductID         int64     `json:"productId"`
	WarehouseID       int64     `json:"warehouseId"`
	RequestedQuantity int       `json:"requestedQuantity"`
	AvailableQuantity int       `json:"availableQuantity"`
	Timestamp         time.Time `json:"timestamp"`
	OriginService     string    `json:"originService"`
}

// StockAdjustmentResponse answers an order-service adjustment request.
type StockAdjustmentResponse struct {
	EventID           string    `json:"eventId"`
	EventType         string    `json:"eventType"`
	OrderID           string    `json:"orderId"`
	ProductID         int64     `json:"productId"`
	WarehouseID       int64     `json:"warehouseId"`
	QuantityChange    int       `json:"quantityChange"`
	Operation         Operation `json:"operation"`
	Success           bool      `json:"success"`
	Error             string    `json:"error,omitempty"`
	ErrorKind         Kind      `json:"errorKind,omitempty"`
	ReservedQuantity  int       `json:"reservedQuantity,omitempty"`
	AvailableQuantity int       `json:"availableQuantity,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	OriginService     string    `json:"originService"`
}
