package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

const LedgerSchema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	product_id        BIGINT      NOT NULL,
	warehouse_id      BIGINT      NOT NULL,
	total_quantity    INTEGER     NOT NULL CHECK (total_quantity >= 0),
	reserved_quantity INTEGER     NOT NULL CHECK (reserved_quantity >= 0),
	status            VARCHAR(20) NOT NULL,
	deactivated       BOOLEAN     NOT NULL DEFAULT FALSE,
	metadata          JSONB       NOT NULL DEFAULT '{}'::jsonb,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	version           BIGINT      NOT NULL,
	PRIMARY KEY (product_id, warehouse_id)
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_warehouse ON ledger_entries (warehouse_id);
`

const ledgerColumns = `product_id, warehouse_id, total_quantity, reserved_quantity, status,
	deactivated, metadata, created_at, updated_at, version`

// PostgresLedgerStore persists ledger entries in PostgreSQL and implements
// compare-and-swap with a version-guarded UPDATE.
type PostgresLedgerStore struct {
	db *sqlx.DB
}

type ledgerRow struct {
	ProductID        int64     `db:"product_id"`
	WarehouseID      int64     `db:"warehouse_id"`
	TotalQuantity    int       `db:"total_quantity"`
	ReservedQuantity int       `db:"reserved_quantity"`
	Status           string    `db:"status"`
	Deactivated      bool      `db:"deactivated"`
	Metadata         []byte    `db:"metadata"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
	Version          int64     `db:"version"`
}

type casRow struct {
	ledgerRow
	ExpectedVersion int64 `db:"expected_version"`
}

// ConnectPostgres opens a pooled connection and verifies it.
func ConnectPostgres(connStr string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "connect to postgres")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewPostgresLedgerStore(db *sqlx.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

// EnsureSchema creates the ledger table when it does not exist yet.
func (s *PostgresLedgerStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, LedgerSchema)
	return errors.Wrap(err, "create ledger schema")
}

func (s *PostgresLedgerStore) Get(ctx context.Context, productID, warehouseID int64) (*LedgerEntry, error) {
	var row ledgerRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE product_id = $1 AND warehouse_id = $2`,
		productID, warehouseID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get ledger entry %d/%d", productID, warehouseID)
	}
	return row.toEntry()
}

func (s *PostgresLedgerStore) Insert(ctx context.Context, entry *LedgerEntry) error {
	row, err := newLedgerRow(entry)
	if err != nil {
		return err
	}

	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO ledger_entries (`+ledgerColumns+`)
		 VALUES (:product_id, :warehouse_id, :total_quantity, :reserved_quantity, :status,
		         :deactivated, :metadata, :created_at, :updated_at, :version)
		 ON CONFLICT (product_id, warehouse_id) DO NOTHING`,
		row,
	)
	if err != nil {
		return errors.Wrap(err, "insert ledger entry")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "insert ledger entry")
	}
	if affected == 0 {
		return ErrEntryExists
	}
	return nil
}

func (s *PostgresLedgerStore) CompareAndSwap(ctx context.Context, entry *LedgerEntry, expectedVersion int64) error {
	row, err := newLedgerRow(entry)
	if err != nil {
		return err
	}

	res, err := s.db.NamedExecContext(ctx,
		`UPDATE ledger_entries
		 SET total_quantity = :total_quantity,
		     reserved_quantity = :reserved_quantity,
		     status = :status,
		     deactivated = :deactivated,
		     metadata = :metadata,
		     updated_at = :updated_at,
		     version = :version
		 WHERE product_id = :product_id AND warehouse_id = :warehouse_id AND version = :expected_version`,
		casRow{ledgerRow: *row, ExpectedVersion: expectedVersion},
	)
	if err != nil {
		return errors.Wrap(err, "update ledger entry")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update ledger entry")
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE product_id = $1 AND warehouse_id = $2)`,
		entry.ProductID, entry.WarehouseID,
	); err != nil {
		return errors.Wrap(err, "check ledger entry")
	}
	if !exists {
		return ErrEntryNotFound
	}
	return ErrVersionConflict
}

func (s *PostgresLedgerStore) ListByProduct(ctx context.Context, productID int64) ([]*LedgerEntry, error) {
	return s.list(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE product_id = $1 ORDER BY warehouse_id`,
		productID,
	)
}

func (s *PostgresLedgerStore) ListByWarehouse(ctx context.Context, warehouseID int64) ([]*LedgerEntry, error) {
	return s.list(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE warehouse_id = $1 ORDER BY product_id`,
		warehouseID,
	)
}

func (s *PostgresLedgerStore) ListAvailableBelow(ctx context.Context, threshold int) ([]*LedgerEntry, error) {
	return s.list(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		 WHERE NOT deactivated AND GREATEST(total_quantity - reserved_quantity, 0) < $1
		 ORDER BY product_id, warehouse_id`,
		threshold,
	)
}

func (s *PostgresLedgerStore) list(ctx context.Context, query string, args ...any) ([]*LedgerEntry, error) {
	var rows []ledgerRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "list ledger entries")
	}

	entries := make([]*LedgerEntry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func newLedgerRow(e *LedgerEntry) (*ledgerRow, error) {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.Wrap(err, "marshal ledger metadata")
	}

	return &ledgerRow{
		ProductID:        e.ProductID,
		WarehouseID:      e.WarehouseID,
		TotalQuantity:    e.TotalQuantity,
		ReservedQuantity: e.ReservedQuantity,
		Status:           e.Status,
		Deactivated:      e.Deactivated,
		Metadata:         raw,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
		Version:          e.Version,
	}, nil
}

func (r *ledgerRow) toEntry() (*LedgerEntry, error) {
	e := &LedgerEntry{
		ProductID:        r.ProductID,
		WarehouseID:      r.WarehouseID,
		TotalQuantity:    r.TotalQuantity,
		ReservedQuantity: r.ReservedQuantity,
		Status:           r.Status,
		Deactivated:      r.Deactivated,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Version:          r.Version,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &e.Metadata); err != nil {
			return nil, errors.Wrap(err, "unmarshal ledger metadata")
		}
	}
	return e, nil
}
