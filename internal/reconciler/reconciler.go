// Package reconciler applies externally triggered changes to the ledger:
// product onboarding and order-service reservation requests.
package reconciler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/domain/warehouse"
	"github.com/example/stock-ledger/internal/idempotency"
	"github.com/example/stock-ledger/internal/logging"
	"github.com/example/stock-ledger/internal/messaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Ledger is the part of the reservation engine the reconciler drives.
type Ledger interface {
	InitializeEntry(ctx context.Context, productID, warehouseID int64) (*inventory.Entry, error)
	ApplyAdjustment(ctx context.Context, productID, warehouseID int64, delta int, op inventory.Operation) (*inventory.Entry, error)
}

type Reconciler struct {
	ledger     Ledger
	warehouses warehouse.Directory
	processed  idempotency.Store
	publisher  inventory.EventPublisher
	now        func() time.Time
	logger     zerolog.Logger
}

func New(ledger Ledger, warehouses warehouse.Directory, processed idempotency.Store, publisher inventory.EventPublisher) *Reconciler {
	return &Reconciler{
		ledger:     ledger,
		warehouses: warehouses,
		processed:  processed,
		publisher:  publisher,
		now:        time.Now,
		logger:     logging.Component("reconciler"),
	}
}

// HandleProductCreated makes sure every active warehouse has a zero-stock
// entry for the new product. Existing entries are left alone, so redelivery
// is harmless. A failing warehouse does not stop the others; the combined
// error leaves the message for redelivery.
func (r *Reconciler) HandleProductCreated(ctx context.Context, key, value []byte) error {
	var evt ProductCreated
	if err := json.Unmarshal(value, &evt); err != nil {
		return messaging.Permanent(errors.Wrap(err, "decode product.created"))
	}
	if evt.ProductID <= 0 {
		return messaging.Permanent(errors.Wrap(inventory.ErrInvalidArgument, "product.created without productId"))
	}

	warehouses, err := r.warehouses.ListActive(ctx)
	if err != nil {
		return errors.Wrap(err, "list active warehouses")
	}
	if len(warehouses) == 0 {
		r.logger.Warn().Int64("productId", evt.ProductID).Msg("No active warehouses, nothing to initialize")
		return nil
	}

	var errs error
	created, existing := 0, 0
	for _, w := range warehouses {
		_, err := r.ledger.InitializeEntry(ctx, evt.ProductID, w.ID)
		switch {
		case err == nil:
			created++
		case errors.Is(err, inventory.ErrAlreadyExists):
			existing++
		default:
			r.logger.Error().
				Err(err).
				Int64("productId", evt.ProductID).
				Int64("warehouseId", w.ID).
				Msg("Failed to initialize ledger entry")
			errs = multierr.Append(errs, errors.Wrapf(err, "warehouse %d", w.ID))
		}
	}

	r.logger.Info().
		Int64("productId", evt.ProductID).
		Int("created", created).
		Int("existing", existing).
		Int("failed", len(multierr.Errors(errs))).
		Msg("Product onboarding processed")
	return errs
}

// HandleStockAdjustment applies a RESERVE, RELEASE or CANCEL request once per
// correlation id and answers on the response topic. On failure the response
// carries the error and the message stays unacknowledged.
func (r *Reconciler) HandleStockAdjustment(ctx context.Context, key, value []byte) error {
	var req StockAdjustmentRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return messaging.Permanent(errors.Wrap(err, "decode stock adjustment request"))
	}
	if err := req.Validate(); err != nil {
		if req.OrderID != "" {
			r.respondFailure(ctx, req, err)
		}
		return messaging.Permanent(err)
	}

	logger := r.logger.With().
		Str("orderId", req.OrderID).
		Str("operation", string(req.Operation)).
		Int64("productId", req.ProductID).
		Int64("warehouseId", req.WarehouseID).
		Logger()

	id := req.CorrelationID()
	state, err := r.processed.Begin(ctx, id)
	if err != nil {
		return errors.Wrap(err, "check correlation id")
	}
	switch state {
	case idempotency.StateDone:
		logger.Info().Msg("Duplicate adjustment request, confirming again")
		r.respond(ctx, r.response(req, inventory.EventStockAdjustmentConfirmed, true))
		return nil
	case idempotency.StatePending:
		return errors.Errorf("adjustment %s is already in progress", id)
	}

	entry, err := r.ledger.ApplyAdjustment(inventory.WithCorrelationID(ctx, id), req.ProductID, req.WarehouseID, req.Delta(), req.Operation)
	if err != nil {
		if relErr := r.processed.Release(ctx, id); relErr != nil {
			logger.Error().Err(relErr).Msg("Failed to release correlation id")
		}
		logger.Warn().Err(err).Msg("Stock adjustment failed")
		r.respondFailure(ctx, req, err)
		return errors.Wrapf(err, "apply %s for order %s", req.Operation, req.OrderID)
	}

	if err := r.processed.Complete(ctx, id); err != nil {
		// The ledger already changed; a redelivery inside the pending window
		// is held back, after it the request would be applied again.
		logger.Error().Err(err).Msg("Failed to mark adjustment as processed")
	}

	resp := r.response(req, inventory.EventStockAdjustmentConfirmed, true)
	resp.ReservedQuantity = entry.ReservedQuantity
	resp.AvailableQuantity = entry.AvailableQuantity()
	r.respond(ctx, resp)

	logger.Info().
		Int("reservedQuantity", entry.ReservedQuantity).
		Int("availableQuantity", entry.AvailableQuantity()).
		Msg("Stock adjustment confirmed")
	return nil
}

func (r *Reconciler) respondFailure(ctx context.Context, req StockAdjustmentRequest, cause error) {
	resp := r.response(req, inventory.EventStockAdjustmentFailed, false)
	resp.Error = cause.Error()
	resp.ErrorKind = inventory.KindOf(cause)
	r.respond(ctx, resp)
}

func (r *Reconciler) response(req StockAdjustmentRequest, eventType string, success bool) inventory.StockAdjustmentResponse {
	return inventory.StockAdjustmentResponse{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		OrderID:        req.OrderID,
		ProductID:      req.ProductID,
		WarehouseID:    req.WarehouseID,
		QuantityChange: req.QuantityChange,
		Operation:      req.Operation,
		Success:        success,
		Timestamp:      r.now(),
		OriginService:  inventory.OriginService,
	}
}

func (r *Reconciler) respond(ctx context.Context, resp inventory.StockAdjustmentResponse) {
	if err := r.publisher.Publish(ctx, inventory.TopicStockAdjustResponse, resp.OrderID, resp); err != nil {
		r.logger.Error().
			Err(err).
			Str("orderId", resp.OrderID).
			Str("eventType", resp.EventType).
			Msg("Failed to queue adjustment response")
	}
}
