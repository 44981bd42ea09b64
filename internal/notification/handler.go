package notification

import (
	"context"
	"encoding/json"

	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/email"
	"github.com/example/stock-ledger/internal/infrastructure/kinesis"
	"github.com/example/stock-ledger/internal/logging"
	"github.com/example/stock-ledger/internal/messaging"
	"github.com/example/stock-ledger/internal/monitor"
	"github.com/pkg/errors"
)

// Sender delivers operations emails
type Sender interface {
	SendLowStockAlert(to []string, alert email.LowStockAlert) error
	SendBackorderNotice(to []string, notice email.BackorderNotice) error
}

// Handler turns stock alerts into emails for the operations team
type Handler struct {
	sender     Sender
	recipients []string
	monitor    *monitor.Monitor
}

// NewHandler creates a new notification handler
func NewHandler(sender Sender, recipients []string, m *monitor.Monitor) *Handler {
	return &Handler{
		sender:     sender,
		recipients: recipients,
		monitor:    m,
	}
}

type envelope struct {
	EventType string `json:"eventType"`
}

// HandleEvent processes an INVENTORY_LOW or BACKORDER_NOTIFICATION message.
// Other event types are acknowledged without action.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	logger := logging.Component("notifier")

	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		logger.Error().Err(err).Str("key", string(key)).Msg("Failed to unmarshal event")
		return messaging.Permanent(errors.Wrap(err, "decode event"))
	}

	switch env.EventType {
	case inventory.EventInventoryLow:
		var e inventory.InventoryLow
		if err := json.Unmarshal(value, &e); err != nil {
			return messaging.Permanent(errors.Wrap(err, "decode inventory low"))
		}
		return h.sendAlert(email.LowStockAlert{
			ProductID:         e.ProductID,
			WarehouseID:       e.WarehouseID,
			AvailableQuantity: e.AvailableQuantity,
			Threshold:         e.Threshold,
			Severity:          e.Severity,
			RaisedAt:          e.Timestamp,
		})
	case inventory.EventBackorderNotification:
		var e inventory.BackorderNotification
		if err := json.Unmarshal(value, &e); err != nil {
			return messaging.Permanent(errors.Wrap(err, "decode backorder notification"))
		}
		notice := email.BackorderNotice{
			ProductID:         e.ProductID,
			WarehouseID:       e.WarehouseID,
			RequestedQuantity: e.RequestedQuantity,
			AvailableQuantity: e.AvailableQuantity,
			RaisedAt:          e.Timestamp,
		}
		if err := h.sender.SendBackorderNotice(h.recipients, notice); err != nil {
			logger.Error().Err(err).Int64("productId", e.ProductID).Msg("Failed to send backorder email")
			return errors.Wrap(err, "send backorder email")
		}
		logger.Info().
			Int64("productId", e.ProductID).
			Int64("warehouseId", e.WarehouseID).
			Msg("Backorder email sent")
		return nil
	default:
		logger.Debug().Str("eventType", env.EventType).Msg("Ignoring event")
		return nil
	}
}

// HandleLedgerChange evaluates a ledger-table change captured by the DynamoDB
// stream. Inserted and deactivated entries never alert, matching the engine.
func (h *Handler) HandleLedgerChange(ctx context.Context, change *kinesis.LedgerChange) error {
	if change == nil || change.Inserted() || change.New.Deactivated {
		return nil
	}

	alert, ok := h.monitor.Evaluate(
		monitor.Reading{Available: change.Old.Available(), Known: true},
		monitor.Reading{Available: change.New.Available(), Known: true},
	)
	if !ok {
		return nil
	}

	return h.sendAlert(email.LowStockAlert{
		ProductID:         change.New.ProductID,
		WarehouseID:       change.New.WarehouseID,
		AvailableQuantity: alert.Available,
		Threshold:         alert.Threshold,
		Severity:          alert.Severity.String(),
		RaisedAt:          alert.RaisedAt,
	})
}

func (h *Handler) sendAlert(alert email.LowStockAlert) error {
	logger := logging.Component("notifier")

	if err := h.sender.SendLowStockAlert(h.recipients, alert); err != nil {
		logger.Error().
			Err(err).
			Int64("productId", alert.ProductID).
			Int64("warehouseId", alert.WarehouseID).
			Msg("Failed to send low stock email")
		return errors.Wrap(err, "send low stock email")
	}

	logger.Info().
		Int64("productId", alert.ProductID).
		Int64("warehouseId", alert.WarehouseID).
		Str("severity", alert.Severity).
		Int("available", alert.AvailableQuantity).
		Msg("Low stock email sent")
	return nil
}
