package inventory

import (
	"context"
	"strconv"
	"time"

	"github.com/example/stock-ledger/internal/domain/warehouse"
	"github.com/example/stock-ledger/internal/idempotency"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/logging"
	"github.com/example/stock-ledger/internal/metrics"
	"github.com/example/stock-ledger/internal/monitor"
	"github.com/example/stock-ledger/internal/tracing"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EventPublisher queues an event for asynchronous, per-key ordered delivery.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

// Cache is a read-through cache in front of ledger reads. Invalidate must drop
// every cached value that may contain the given key.
type Cache interface {
	GetEntry(ctx context.Context, productID, warehouseID int64) (*Entry, bool)
	SetEntry(ctx context.Context, entry *Entry)
	GetList(ctx context.Context, key string) ([]*Entry, bool)
	SetList(ctx context.Context, key string, entries []*Entry)
	Invalidate(ctx context.Context, productID, warehouseID int64)
}

// LowStockKeyPrefix marks cached low-stock listings; any write drops all of them.
const LowStockKeyPrefix = "low:"

func ProductListKey(productID int64) string {
	return "product:" + strconv.FormatInt(productID, 10)
}

func WarehouseListKey(warehouseID int64) string {
	return "warehouse:" + strconv.FormatInt(warehouseID, 10)
}

func LowStockListKey(threshold int) string {
	return LowStockKeyPrefix + strconv.Itoa(threshold)
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithWarehouseDirectory makes entry creation reject unknown warehouses.
func WithWarehouseDirectory(d warehouse.Directory) Option {
	return func(s *Service) { s.warehouses = d }
}

func WithLowStockThreshold(threshold int) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(s *Service) { s.monitor = m }
}

// WithBackorderDedupe limits BACKORDER_NOTIFICATION to one per correlation id
// (see WithCorrelationID), so a redelivered request that keeps failing does
// not notify again.
func WithBackorderDedupe(claims idempotency.Store) Option {
	return func(s *Service) { s.backorders = claims }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the reservation engine. It is the only writer of ledger entries.
type Service struct {
	ledger      store.LedgerStoreInterface
	cache       Cache
	publisher   EventPublisher
	warehouses  warehouse.Directory
	monitor     *monitor.Monitor
	backorders  idempotency.Store
	threshold   int
	maxAttempts int
	now         func() time.Time
	tracer      trace.Tracer
	logger      zerolog.Logger
}

func NewService(ledger store.LedgerStoreInterface, opts ...Option) *Service {
	s := &Service{
		ledger:      ledger,
		cache:       noopCache{},
		publisher:   noopPublisher{},
		threshold:   DefaultLowStockThreshold,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		tracer:      otel.Tracer(tracing.InstrumentationName),
		logger:      logging.Component("engine"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.monitor == nil {
		s.monitor = monitor.New(s.threshold, monitor.DefaultCriticalLevel)
	}
	return s
}

func (s *Service) LowStockThreshold() int {
	return s.threshold
}

// ============================================
// Mutations
// ============================================

// CreateEntry creates the ledger entry for a key that must not exist yet.
func (s *Service) CreateEntry(ctx context.Context, productID, warehouseID int64, initialTotal, initialReserved int, metadata map[string]string) (*Entry, error) {
	return s.create(ctx, OpCreate, productID, warehouseID, initialTotal, initialReserved, metadata)
}

// InitializeEntry creates a zero-stock entry, as done when a product is onboarded.
func (s *Service) InitializeEntry(ctx context.Context, productID, warehouseID int64) (*Entry, error) {
	return s.create(ctx, OpInitialize, productID, warehouseID, 0, 0, nil)
}

func (s *Service) create(ctx context.Context, op Operation, productID, warehouseID int64, total, reserved int, metadata map[string]string) (*Entry, error) {
	ctx, span := s.startSpan(ctx, "inventory.CreateEntry", productID, warehouseID)
	defer span.End()

	if err := validateKey(productID, warehouseID); err != nil {
		return nil, s.fail(span, op, err)
	}
	switch {
	case total < 0:
		return nil, s.fail(span, op, invalidArgument("initial total cannot be negative"))
	case reserved < 0:
		return nil, s.fail(span, op, invalidArgument("initial reserved cannot be negative"))
	case reserved > total:
		return nil, s.fail(span, op, invalidArgument("initial reserved cannot exceed initial total"))
	}
	if err := s.checkWarehouse(ctx, warehouseID); err != nil {
		return nil, s.fail(span, op, err)
	}

	entry := s.newEntry(productID, warehouseID, total, reserved, metadata)
	if err := s.insert(ctx, entry); err != nil {
		return nil, s.fail(span, op, err)
	}

	s.afterCommit(ctx, op, nil, entry)
	return entry.Clone(), nil
}

// SetTotalQuantity replaces the on-hand total, creating the entry with nothing
// reserved when it is absent. Lowering the total below the reserved quantity
// is allowed; reservations are kept and available reads zero.
func (s *Service) SetTotalQuantity(ctx context.Context, productID, warehouseID int64, newTotal int) (*Entry, error) {
	ctx, span := s.startSpan(ctx, "inventory.SetTotalQuantity", productID, warehouseID)
	defer span.End()

	if err := validateKey(productID, warehouseID); err != nil {
		return nil, s.fail(span, OpSetTotal, err)
	}
	if newTotal < 0 {
		return nil, s.fail(span, OpSetTotal, invalidArgument("total quantity cannot be negative"))
	}

	setTotal := func(e *Entry) error {
		e.TotalQuantity = newTotal
		return nil
	}

	prev, next, err := s.update(ctx, OpSetTotal, productID, warehouseID, setTotal)
	if errors.Is(err, ErrNotFound) {
		if err := s.checkWarehouse(ctx, warehouseID); err != nil {
			return nil, s.fail(span, OpSetTotal, err)
		}
		prev, next = nil, s.newEntry(productID, warehouseID, newTotal, 0, nil)
		err = s.insert(ctx, next)
		if errors.Is(err, ErrAlreadyExists) {
			// Lost the creation race; apply to the winner's entry instead.
			prev, next, err = s.update(ctx, OpSetTotal, productID, warehouseID, setTotal)
		}
	}
	if err != nil {
		return nil, s.fail(span, OpSetTotal, err)
	}

	if next.ReservedQuantity > next.TotalQuantity {
		s.logger.Warn().
			Int64("productId", productID).
			Int64("warehouseId", warehouseID).
			Int("totalQuantity", next.TotalQuantity).
			Int("reservedQuantity", next.ReservedQuantity).
			Msg("Total lowered below reserved quantity, available clamped to zero")
	}

	s.afterCommit(ctx, OpSetTotal, prev, next)
	return next.Clone(), nil
}

// AdjustReserved reserves (delta > 0) or releases (delta < 0) stock.
func (s *Service) AdjustReserved(ctx context.Context, productID, warehouseID int64, delta int) (*Entry, error) {
	return s.ApplyAdjustment(ctx, productID, warehouseID, delta, "")
}

// ApplyAdjustment is AdjustReserved with an explicit operation tag for the
// emitted event. An empty tag is derived from the sign of delta.
func (s *Service) ApplyAdjustment(ctx context.Context, productID, warehouseID int64, delta int, op Operation) (*Entry, error) {
	if op == "" {
		op = OpReserve
		if delta < 0 {
			op = OpRelease
		}
	}

	ctx, span := s.startSpan(ctx, "inventory.AdjustReserved", productID, warehouseID)
	defer span.End()
	span.SetAttributes(attribute.Int("ledger.delta", delta), attribute.String("ledger.operation", string(op)))

	if err := validateKey(productID, warehouseID); err != nil {
		return nil, s.fail(span, op, err)
	}
	if delta == 0 {
		return nil, s.fail(span, op, invalidArgument("quantity change must be non-zero"))
	}

	prev, next, err := s.update(ctx, op, productID, warehouseID, func(e *Entry) error {
		newReserved := e.ReservedQuantity + delta
		if delta > 0 {
			if e.Deactivated {
				return invalidArgument("ledger entry is deactivated")
			}
			// Only growth is checked so releases still work while over-reserved.
			if newReserved > e.TotalQuantity {
				return &InsufficientStockError{
					ProductID:   productID,
					WarehouseID: warehouseID,
					Requested:   delta,
					Available:   e.AvailableQuantity(),
				}
			}
		}
		if newReserved < 0 {
			return invalidArgument("reserved cannot be negative")
		}
		e.ReservedQuantity = newReserved
		return nil
	})
	if err != nil {
		var insufficient *InsufficientStockError
		if errors.As(err, &insufficient) {
			s.publishBackorder(ctx, insufficient)
		}
		return nil, s.fail(span, op, err)
	}

	s.afterCommit(ctx, op, prev, next)
	return next.Clone(), nil
}

// UpdateMetadata replaces the entry's metadata. Quantities are untouched.
func (s *Service) UpdateMetadata(ctx context.Context, productID, warehouseID int64, metadata map[string]string) (*Entry, error) {
	ctx, span := s.startSpan(ctx, "inventory.UpdateMetadata", productID, warehouseID)
	defer span.End()

	if err := validateKey(productID, warehouseID); err != nil {
		return nil, s.fail(span, OpUpdateMetadata, err)
	}

	prev, next, err := s.update(ctx, OpUpdateMetadata, productID, warehouseID, func(e *Entry) error {
		e.Metadata = copyMetadata(metadata)
		return nil
	})
	if err != nil {
		return nil, s.fail(span, OpUpdateMetadata, err)
	}

	s.afterCommit(ctx, OpUpdateMetadata, prev, next)
	return next.Clone(), nil
}

// Deactivate soft-deletes an entry: it stays in the ledger, reads OUT_OF_STOCK
// and refuses new reservations. Deactivating twice is a no-op.
func (s *Service) Deactivate(ctx context.Context, productID, warehouseID int64) (*Entry, error) {
	ctx, span := s.startSpan(ctx, "inventory.Deactivate", productID, warehouseID)
	defer span.End()

	if err := validateKey(productID, warehouseID); err != nil {
		return nil, s.fail(span, OpDeactivate, err)
	}

	prev, next, err := s.update(ctx, OpDeactivate, productID, warehouseID, func(e *Entry) error {
		if e.Deactivated {
			return errUnchanged
		}
		e.Deactivated = true
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return prev, nil
	}
	if err != nil {
		return nil, s.fail(span, OpDeactivate, err)
	}

	s.afterCommit(ctx, OpDeactivate, prev, next)
	return next.Clone(), nil
}

var errUnchanged = errors.New("ledger entry unchanged")

// update is the single serialization point for existing entries: read with
// version, apply, write only if the version is unchanged, retry on conflict.
func (s *Service) update(ctx context.Context, op Operation, productID, warehouseID int64, apply func(*Entry) error) (*Entry, *Entry, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		record, err := s.ledger.Get(ctx, productID, warehouseID)
		if errors.Is(err, store.ErrEntryNotFound) {
			return nil, nil, notFound(productID, warehouseID)
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "read ledger entry")
		}

		prev := entryFromRecord(record, s.threshold)
		next := prev.Clone()
		if err := apply(next); err != nil {
			return prev, nil, err
		}
		next.Version = prev.Version + 1
		next.UpdatedAt = s.now()
		next.Status = next.deriveStatus(s.threshold)

		err = s.ledger.CompareAndSwap(ctx, next.record(), prev.Version)
		switch {
		case err == nil:
			return prev, next, nil
		case errors.Is(err, store.ErrVersionConflict):
			metrics.VersionConflicts.WithLabelValues(string(op)).Inc()
			s.logger.Debug().
				Int64("productId", productID).
				Int64("warehouseId", warehouseID).
				Int("attempt", attempt).
				Msg("Version conflict, retrying")
		case errors.Is(err, store.ErrEntryNotFound):
			return nil, nil, notFound(productID, warehouseID)
		default:
			return nil, nil, errors.Wrap(err, "write ledger entry")
		}
	}
	return nil, nil, errors.Wrapf(ErrContention, "product %d in warehouse %d after %d attempts", productID, warehouseID, s.maxAttempts)
}

func (s *Service) insert(ctx context.Context, entry *Entry) error {
	err := s.ledger.Insert(ctx, entry.record())
	if errors.Is(err, store.ErrEntryExists) {
		return errors.Wrapf(ErrAlreadyExists, "product %d in warehouse %d", entry.ProductID, entry.WarehouseID)
	}
	return errors.Wrap(err, "insert ledger entry")
}

func (s *Service) newEntry(productID, warehouseID int64, total, reserved int, metadata map[string]string) *Entry {
	now := s.now()
	e := &Entry{
		ProductID:        productID,
		WarehouseID:      warehouseID,
		TotalQuantity:    total,
		ReservedQuantity: reserved,
		Metadata:         copyMetadata(metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	e.Status = e.deriveStatus(s.threshold)
	return e
}

func (s *Service) checkWarehouse(ctx context.Context, warehouseID int64) error {
	if s.warehouses == nil {
		return nil
	}
	_, err := s.warehouses.Get(ctx, warehouseID)
	if errors.Is(err, warehouse.ErrWarehouseNotFound) {
		return errors.Wrapf(ErrNotFound, "warehouse %d", warehouseID)
	}
	return errors.Wrap(err, "look up warehouse")
}

// afterCommit runs once the ledger write is durable: the cache is invalidated
// before the caller sees the result, then events are queued.
func (s *Service) afterCommit(ctx context.Context, op Operation, prev, next *Entry) {
	s.cache.Invalidate(ctx, next.ProductID, next.WarehouseID)
	metrics.LedgerMutations.WithLabelValues(string(op), "ok").Inc()

	if op == OpUpdateMetadata {
		return
	}

	oldQuantity, newQuantity := 0, next.TotalQuantity
	if op.adjustsReserved() {
		newQuantity = next.ReservedQuantity
		if prev != nil {
			oldQuantity = prev.ReservedQuantity
		}
	} else if prev != nil {
		oldQuantity = prev.TotalQuantity
	}

	s.publish(ctx, TopicStockChanged, next.ProductID, StockChanged{
		EventID:           uuid.NewString(),
		EventType:         EventStockChanged,
		ProductID:         next.ProductID,
		WarehouseID:       next.WarehouseID,
		OldQuantity:       oldQuantity,
		NewQuantity:       newQuantity,
		TotalQuantity:     next.TotalQuantity,
		ReservedQuantity:  next.ReservedQuantity,
		AvailableQuantity: next.AvailableQuantity(),
		Status:            next.Status,
		Operation:         op,
		Version:           next.Version,
		Timestamp:         next.UpdatedAt,
		OriginService:     OriginService,
	})

	// Placeholder rows and retired entries are expected to read zero.
	if op == OpInitialize || next.Deactivated {
		return
	}

	before := monitor.Reading{}
	if prev != nil && !prev.Deactivated {
		before = monitor.Reading{Available: prev.AvailableQuantity(), Known: true}
	}
	alert, ok := s.monitor.Evaluate(before, monitor.Reading{Available: next.AvailableQuantity(), Known: true})
	if !ok {
		return
	}

	metrics.LowStockAlerts.WithLabelValues(alert.Severity.String()).Inc()
	s.logger.Warn().
		Int64("productId", next.ProductID).
		Int64("warehouseId", next.WarehouseID).
		Int("availableQuantity", alert.Available).
		Str("severity", alert.Severity.String()).
		Msg("Low stock")

	s.publish(ctx, TopicInventoryLow, next.ProductID, InventoryLow{
		EventID:           uuid.NewString(),
		EventType:         EventInventoryLow,
		ProductID:         next.ProductID,
		WarehouseID:       next.WarehouseID,
		AvailableQuantity: alert.Available,
		Threshold:         alert.Threshold,
		Severity:          alert.Severity.String(),
		Status:            next.Status,
		Timestamp:         alert.RaisedAt,
		OriginService:     OriginService,
	})
}

const backorderClaimPrefix = "backorder:"

func (s *Service) publishBackorder(ctx context.Context, e *InsufficientStockError) {
	if id := CorrelationID(ctx); id != "" && s.backorders != nil {
		claim := backorderClaimPrefix + id
		state, err := s.backorders.Begin(ctx, claim)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("correlationId", id).Msg("Backorder dedupe unavailable, notifying anyway")
		case state != idempotency.StateNew:
			s.logger.Debug().Str("correlationId", id).Msg("Backorder already notified")
			return
		default:
			defer func() {
				if err := s.backorders.Complete(ctx, claim); err != nil {
					s.logger.Warn().Err(err).Str("correlationId", id).Msg("Failed to record backorder notification")
				}
			}()
		}
	}

	s.publish(ctx, TopicBackorderNotification, e.ProductID, BackorderNotification{
		EventID:           uuid.NewString(),
		EventType:         EventBackorderNotification,
		ProductID:         e.ProductID,
		WarehouseID:       e.WarehouseID,
		RequestedQuantity: e.Requested,
		AvailableQuantity: e.Available,
		Timestamp:         s.now(),
		OriginService:     OriginService,
	})
}

// publish hands the event to the publisher. Failures are logged only; the
// ledger write has already been committed.
func (s *Service) publish(ctx context.Context, topic string, productID int64, event any) {
	if err := s.publisher.Publish(ctx, topic, strconv.FormatInt(productID, 10), event); err != nil {
		s.logger.Error().
			Err(err).
			Str("topic", topic).
			Int64("productId", productID).
			Msg("Failed to queue event")
	}
}

func (s *Service) startSpan(ctx context.Context, name string, productID, warehouseID int64) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("ledger.product_id", productID),
		attribute.Int64("ledger.warehouse_id", warehouseID),
	))
}

func (s *Service) fail(span trace.Span, op Operation, err error) error {
	metrics.LedgerMutations.WithLabelValues(string(op), string(KindOf(err))).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// ============================================
// Reads
// ============================================

// GetEntry returns one entry, through the cache.
func (s *Service) GetEntry(ctx context.Context, productID, warehouseID int64) (*Entry, error) {
	if err := validateKey(productID, warehouseID); err != nil {
		return nil, err
	}
	if e, ok := s.cache.GetEntry(ctx, productID, warehouseID); ok {
		return e, nil
	}

	record, err := s.ledger.Get(ctx, productID, warehouseID)
	if errors.Is(err, store.ErrEntryNotFound) {
		return nil, notFound(productID, warehouseID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read ledger entry")
	}

	e := entryFromRecord(record, s.threshold)
	s.cache.SetEntry(ctx, e)
	return e, nil
}

func (s *Service) ListByProduct(ctx context.Context, productID int64) ([]*Entry, error) {
	if productID <= 0 {
		return nil, invalidArgument("productId is required")
	}
	return s.cachedList(ctx, ProductListKey(productID), func(ctx context.Context) ([]*store.LedgerEntry, error) {
		return s.ledger.ListByProduct(ctx, productID)
	})
}

func (s *Service) ListByWarehouse(ctx context.Context, warehouseID int64) ([]*Entry, error) {
	if warehouseID <= 0 {
		return nil, invalidArgument("warehouseId is required")
	}
	return s.cachedList(ctx, WarehouseListKey(warehouseID), func(ctx context.Context) ([]*store.LedgerEntry, error) {
		return s.ledger.ListByWarehouse(ctx, warehouseID)
	})
}

// ListLowStock returns live entries with available below threshold. A
// non-positive threshold means the configured low-stock threshold.
func (s *Service) ListLowStock(ctx context.Context, threshold int) ([]*Entry, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	return s.cachedList(ctx, LowStockListKey(threshold), func(ctx context.Context) ([]*store.LedgerEntry, error) {
		return s.ledger.ListAvailableBelow(ctx, threshold)
	})
}

func (s *Service) ListLowStockInWarehouse(ctx context.Context, warehouseID int64, threshold int) ([]*Entry, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	entries, err := s.ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, err
	}

	low := make([]*Entry, 0)
	for _, e := range entries {
		if !e.Deactivated && e.AvailableQuantity() < threshold {
			low = append(low, e)
		}
	}
	return low, nil
}

// CheckAvailability reports whether quantity could be reserved right now. It
// bypasses the cache but reserves nothing.
func (s *Service) CheckAvailability(ctx context.Context, productID, warehouseID int64, quantity int) (bool, *Entry, error) {
	if err := validateKey(productID, warehouseID); err != nil {
		return false, nil, err
	}
	if quantity <= 0 {
		return false, nil, invalidArgument("quantity must be positive")
	}

	record, err := s.ledger.Get(ctx, productID, warehouseID)
	if errors.Is(err, store.ErrEntryNotFound) {
		return false, nil, notFound(productID, warehouseID)
	}
	if err != nil {
		return false, nil, errors.Wrap(err, "read ledger entry")
	}

	e := entryFromRecord(record, s.threshold)
	return !e.Deactivated && e.AvailableQuantity() >= quantity, e, nil
}

func (s *Service) cachedList(ctx context.Context, key string, load func(context.Context) ([]*store.LedgerEntry, error)) ([]*Entry, error) {
	if entries, ok := s.cache.GetList(ctx, key); ok {
		return entries, nil
	}

	records, err := load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger entries")
	}

	entries := entriesFromRecords(records, s.threshold)
	s.cache.SetList(ctx, key, entries)
	return entries, nil
}

func copyMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	c := make(map[string]string, len(metadata))
	for k, v := range metadata {
		c[k] = v
	}
	return c
}

type noopCache struct{}

func (noopCache) GetEntry(context.Context, int64, int64) (*Entry, bool) { return nil, false }
func (noopCache) SetEntry(context.Context, *Entry)                      {}
func (noopCache) GetList(context.Context, string) ([]*Entry, bool)      { return nil, false }
func (noopCache) SetList(context.Context, string, []*Entry)             {}
func (noopCache) Invalidate(context.Context, int64, int64)              {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, any) error { return nil }
