package warehouse

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

var ErrWarehouseNotFound = errors.New("warehouse not found")

type Warehouse struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Location    string    `json:"location,omitempty" db:"location"`
	Capacity    int       `json:"capacity" db:"capacity"`
	Status      Status    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

func (w Warehouse) IsActive() bool {
	return w.Status == StatusActive
}

// Directory resolves warehouses for ledger creation and product onboarding.
type Directory interface {
	Get(ctx context.Context, id int64) (*Warehouse, error)
	ListActive(ctx context.Context) ([]Warehouse, error)
}
