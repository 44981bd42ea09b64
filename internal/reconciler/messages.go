package reconciler

import (
	"fmt"
	"strings"

	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/pkg/errors"
)

// ProductCreated is the catalog's onboarding event.
type ProductCreated struct {
	EventType string `json:"eventType"`
	ProductID int64  `json:"productId"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name,omitempty"`
}

// StockAdjustmentRequest is an order-service request on order.stock.adjust.
// QuantityChange is always positive; Operation gives the direction.
type StockAdjustmentRequest struct {
	OrderID        string              `json:"orderId"`
	ProductID      int64               `json:"productId"`
	WarehouseID    int64               `json:"warehouseId"`
	QuantityChange int                 `json:"quantityChange"`
	Operation      inventory.Operation `json:"operation"`
}

func (r StockAdjustmentRequest) Validate() error {
	var missing []string
	if r.OrderID == "" {
		missing = append(missing, "orderId")
	}
	if r.ProductID <= 0 {
		missing = append(missing, "productId")
	}
	if r.WarehouseID <= 0 {
		missing = append(missing, "warehouseId")
	}
	if len(missing) > 0 {
		return errors.Wrapf(inventory.ErrInvalidArgument, "missing %s", strings.Join(missing, ", "))
	}
	if r.QuantityChange <= 0 {
		return errors.Wrap(inventory.ErrInvalidArgument, "quantityChange must be positive")
	}
	switch r.Operation {
	case inventory.OpReserve, inventory.OpRelease, inventory.OpCancel:
		return nil
	default:
		return errors.Wrapf(inventory.ErrInvalidArgument, "unknown operation %q", r.Operation)
	}
}

// Delta is the signed change to the reserved quantity.
func (r StockAdjustmentRequest) Delta() int {
	if r.Operation == inventory.OpReserve {
		return r.QuantityChange
	}
	return -r.QuantityChange
}

// CorrelationID identifies the request for deduplication. Product and
// warehouse are part of it because one order adjusts several lines.
func (r StockAdjustmentRequest) CorrelationID() string {
	return fmt.Sprintf("%s:%s:%d:%d", r.OrderID, r.Operation, r.ProductID, r.WarehouseID)
}
