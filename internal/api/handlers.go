package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/stock-ledger/internal/command"
	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/query"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
	}
}

// Ledger Entry Handlers

func (h *Handlers) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateEntry
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondError(w, r, errors.Wrap(inventory.ErrInvalidArgument, err.Error()))
		return
	}

	entry, err := h.cmdHandler.CreateEntry(r.Context(), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (h *Handlers) GetEntry(w http.ResponseWriter, r *http.Request, productID, warehouseID int64) {
	entry, err := h.queryHandler.GetEntry(r.Context(), productID, warehouseID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handlers) SetTotalQuantity(w http.ResponseWriter, r *http.Request, productID, warehouseID int64) {
	var req struct {
		TotalQuantity *int `json:"totalQuantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, errors.Wrap(inventory.ErrInvalidArgument, err.Error()))
		return
	}
	if req.TotalQuantity == nil {
		respondError(w, r, errors.Wrap(inventory.ErrInvalidArgument, "totalQuantity is required"))
		return
	}

	entry, err := h.cmdHandler.SetTotalQuantity(r.Context(), command.SetTotalQuantity{
		ProductID:     productID,
		WarehouseID:   warehouseID,
		TotalQuantity: *req.TotalQuantity,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handlers) AdjustReserved(w http.ResponseWriter, r *http.Request, productID, warehouseID int64) {
	var req struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, errors.Wrap(inventory.ErrInvalidArgument, err.Error()))
		return
	}

	entry, err := h.cmdHandler.AdjustReserved(r.Context(), command.AdjustReserved{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Delta:       req.Delta,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handlers) UpdateMetadata(w http.ResponseWriter, r *http.Request, productID, warehouseID int64) {
	var req struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, errors.Wrap(inventory.ErrInvalidArgument, err.Error()))
		return
	}

	entry, err := h.cmdHandler.UpdateMetadata(r.Context(), command.UpdateMetadata{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handlers) DeactivateEntry(w http.ResponseWriter, r *http.Request, productID, warehouseID int64) {
	entry, err := h.cmdHandler.DeactivateEntry(r.Context(), command.DeactivateEntry{
		ProductID:   productID,
		WarehouseID: warehouseID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handlers) CheckAvailability(w http.ResponseWriter, r *http.Request, productID, warehouseID int64) {
	quantity, err := queryInt(r, "quantity")
	if err != nil {
		respondError(w, r, err)
		return
	}

	availability, err := h.queryHandler.CheckAvailability(r.Context(), productID, warehouseID, quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, availability)
}

// Product Handlers

func (h *Handlers) GetProductStock(w http.ResponseWriter, r *http.Request, productID int64) {
	entries, err := h.queryHandler.ListByProduct(r.Context(), productID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handlers) GetProductTotals(w http.ResponseWriter, r *http.Request, productID int64) {
	totals, err := h.queryHandler.TotalStockForProduct(r.Context(), productID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, totals)
}

// Warehouse Handlers

func (h *Handlers) GetWarehouseStock(w http.ResponseWriter, r *http.Request, warehouseID int64) {
	entries, err := h.queryHandler.ListByWarehouse(r.Context(), warehouseID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handlers) GetWarehouseTotals(w http.ResponseWriter, r *http.Request, warehouseID int64) {
	totals, err := h.queryHandler.TotalStockInWarehouse(r.Context(), warehouseID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, totals)
}

func (h *Handlers) GetWarehouseLowStock(w http.ResponseWriter, r *http.Request, warehouseID int64) {
	threshold, err := optionalQueryInt(r, "threshold")
	if err != nil {
		respondError(w, r, err)
		return
	}

	entries, err := h.queryHandler.ListLowStockInWarehouse(r.Context(), warehouseID, threshold)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Low Stock Handlers

func (h *Handlers) GetLowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := optionalQueryInt(r, "threshold")
	if err != nil {
		respondError(w, r, err)
		return
	}

	entries, err := h.queryHandler.ListLowStock(r.Context(), threshold)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps a ledger error kind onto an HTTP status.
func statusFor(kind inventory.Kind) int {
	switch kind {
	case inventory.KindInvalidArgument:
		return http.StatusBadRequest
	case inventory.KindNotFound:
		return http.StatusNotFound
	case inventory.KindAlreadyExists, inventory.KindInsufficientStock:
		return http.StatusConflict
	case inventory.KindContention:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := inventory.KindOf(err)
	status := statusFor(kind)

	message := err.Error()
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		message = "Internal server error"
	}
	if kind == inventory.KindContention {
		w.Header().Set("Retry-After", "1")
	}

	respondJSON(w, status, map[string]string{
		"error": message,
		"kind":  string(kind),
	})
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// pathIDs parses the slash separated ids at the start of rest and returns the
// remainder, e.g. "12/3/adjust" with n=2 gives [12 3] and "adjust".
func pathIDs(rest string, n int) ([]int64, string, bool) {
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", n+1)
	if len(parts) < n {
		return nil, "", false
	}
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		id, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil {
			return nil, "", false
		}
		ids[i] = id
	}
	if len(parts) > n {
		return ids, parts[n], true
	}
	return ids, "", true
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.Wrapf(inventory.ErrInvalidArgument, "%s is required", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(inventory.ErrInvalidArgument, "%s must be an integer", name)
	}
	return v, nil
}

func optionalQueryInt(r *http.Request, name string) (int, error) {
	if r.URL.Query().Get(name) == "" {
		return 0, nil
	}
	return queryInt(r, name)
}
