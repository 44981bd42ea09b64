package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/example/stock-ledger/internal/domain/warehouse"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const WarehouseSchema = `
CREATE TABLE IF NOT EXISTS warehouses (
	id          BIGINT PRIMARY KEY,
	name        VARCHAR(255) NOT NULL,
	description TEXT         NOT NULL DEFAULT '',
	location    VARCHAR(255) NOT NULL DEFAULT '',
	capacity    INTEGER      NOT NULL DEFAULT 0,
	status      VARCHAR(20)  NOT NULL DEFAULT 'ACTIVE',
	created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
);
`

// MemoryWarehouseStore is a warehouse directory seeded from configuration.
type MemoryWarehouseStore struct {
	mu         sync.RWMutex
	warehouses map[int64]warehouse.Warehouse
}

func NewMemoryWarehouseStore(seed ...warehouse.Warehouse) *MemoryWarehouseStore {
	s := &MemoryWarehouseStore{warehouses: make(map[int64]warehouse.Warehouse)}
	for _, w := range seed {
		s.warehouses[w.ID] = w
	}
	return s
}

// Put adds or replaces a warehouse.
func (s *MemoryWarehouseStore) Put(w warehouse.Warehouse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warehouses[w.ID] = w
}

func (s *MemoryWarehouseStore) Get(ctx context.Context, id int64) (*warehouse.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.warehouses[id]
	if !ok {
		return nil, warehouse.ErrWarehouseNotFound
	}
	return &w, nil
}

func (s *MemoryWarehouseStore) ListActive(ctx context.Context) ([]warehouse.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]warehouse.Warehouse, 0, len(s.warehouses))
	for _, w := range s.warehouses {
		if w.IsActive() {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// PostgresWarehouseStore reads warehouses from PostgreSQL.
type PostgresWarehouseStore struct {
	db *sqlx.DB
}

func NewPostgresWarehouseStore(db *sqlx.DB) *PostgresWarehouseStore {
	return &PostgresWarehouseStore{db: db}
}

func (s *PostgresWarehouseStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, WarehouseSchema)
	return errors.Wrap(err, "create warehouse schema")
}

func (s *PostgresWarehouseStore) Get(ctx context.Context, id int64) (*warehouse.Warehouse, error) {
	var w warehouse.Warehouse
	err := s.db.GetContext(ctx, &w,
		`SELECT id, name, description, location, capacity, status, created_at, updated_at
		 FROM warehouses WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, warehouse.ErrWarehouseNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get warehouse %d", id)
	}
	return &w, nil
}

func (s *PostgresWarehouseStore) ListActive(ctx context.Context) ([]warehouse.Warehouse, error) {
	var warehouses []warehouse.Warehouse
	err := s.db.SelectContext(ctx, &warehouses,
		`SELECT id, name, description, location, capacity, status, created_at, updated_at
		 FROM warehouses WHERE status = $1 ORDER BY id`, warehouse.StatusActive)
	if err != nil {
		return nil, errors.Wrap(err, "list active warehouses")
	}
	return warehouses, nil
}
