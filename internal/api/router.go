package api

import (
	"net/http"

	"github.com/example/stock-ledger/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handlers *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Ledger entries
	mux.HandleFunc("/ledger", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.CreateEntry(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// /ledger/{productId}/{warehouseId}[/total|/adjust|/metadata|/availability]
	mux.HandleFunc("/ledger/", func(w http.ResponseWriter, r *http.Request) {
		ids, action, ok := pathIDs(extractPathParam(r.URL.Path, "/ledger/"), 2)
		if !ok {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		productID, warehouseID := ids[0], ids[1]

		switch {
		case action == "" && r.Method == http.MethodGet:
			handlers.GetEntry(w, r, productID, warehouseID)
		case action == "" && r.Method == http.MethodDelete:
			handlers.DeactivateEntry(w, r, productID, warehouseID)
		case action == "total" && r.Method == http.MethodPut:
			handlers.SetTotalQuantity(w, r, productID, warehouseID)
		case action == "adjust" && r.Method == http.MethodPost:
			handlers.AdjustReserved(w, r, productID, warehouseID)
		case action == "metadata" && r.Method == http.MethodPut:
			handlers.UpdateMetadata(w, r, productID, warehouseID)
		case action == "availability" && r.Method == http.MethodGet:
			handlers.CheckAvailability(w, r, productID, warehouseID)
		case action == "" || action == "total" || action == "adjust" || action == "metadata" || action == "availability":
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	// Products: /products/{productId}/stock[/total]
	mux.HandleFunc("/products/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ids, action, ok := pathIDs(extractPathParam(r.URL.Path, "/products/"), 1)
		if !ok {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		switch action {
		case "stock":
			handlers.GetProductStock(w, r, ids[0])
		case "stock/total":
			handlers.GetProductTotals(w, r, ids[0])
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	// Warehouses: /warehouses/{warehouseId}/stock[/total] and /low-stock
	mux.HandleFunc("/warehouses/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ids, action, ok := pathIDs(extractPathParam(r.URL.Path, "/warehouses/"), 1)
		if !ok {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		switch action {
		case "stock":
			handlers.GetWarehouseStock(w, r, ids[0])
		case "stock/total":
			handlers.GetWarehouseTotals(w, r, ids[0])
		case "low-stock":
			handlers.GetWarehouseLowStock(w, r, ids[0])
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	mux.HandleFunc("/low-stock", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetLowStock(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	return middleware.RequestLogger(middleware.Recoverer(mux))
}
