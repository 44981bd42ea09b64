package inventory

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindInvalidArgument   Kind = "InvalidArgument"
	KindNotFound          Kind = "NotFound"
	KindAlreadyExists     Kind = "AlreadyExists"
	KindInsufficientStock Kind = "InsufficientStock"
	KindContention        Kind = "Contention"
	KindInternal          Kind = "Internal"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("ledger entry not found")
	ErrAlreadyExists     = errors.New("ledger entry already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrContention        = errors.New("ledger entry contention, retries exhausted")
)

// InsufficientStockError rejects a reservation larger than the available
// quantity. It matches both ErrInsufficientStock and ErrInvalidArgument.
type InsufficientStockError struct {
	ProductID   int64
	WarehouseID int64
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("reservation exceeds available stock: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock || target == ErrInvalidArgument
}

// KindOf classifies err into one of the ledger error kinds.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrContention):
		return KindContention
	default:
		return KindInternal
	}
}

func invalidArgument(msg string) error {
	return errors.Wrap(ErrInvalidArgument, msg)
}

func notFound(productID, warehouseID int64) error {
	return errors.Wrapf(ErrNotFound, "product %d in warehouse %d", productID, warehouseID)
}

func validateKey(productID, warehouseID int64) error {
	if productID <= 0 {
		return invalidArgument("productId is required")
	}
	if warehouseID <= 0 {
		return invalidArgument("warehouseId is required")
	}
	return nil
}
