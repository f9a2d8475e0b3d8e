package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

type StockReader interface {
	GetStock(ctx context.Context, itemID string) (int64, bool, error)
}

type InventoryReader interface {
	LoadInventory(ctx context.Context, itemIDs []string) (map[string]domain.InventoryRecord, error)
}

type StockWarmer interface {
	Warm(ctx context.Context) (int, error)
}

type HTTPHandler struct {
	stock     StockReader
	inventory InventoryReader
	warmer    StockWarmer
	logger    *zap.Logger
}

// StockHTTPResponse shows both views of an item. A nil side has no record.
type StockHTTPResponse struct {
	ItemID   string `json:"item_id"`
	FastPath *int64 `json:"fast_path"`
	Durable  *int64 `json:"durable"`
	Version  int64  `json:"version"`
	Drift    bool   `json:"drift"`
}

type WarmHTTPResponse struct {
	Success bool   `json:"success"`
	Items   int    `json:"items"`
	Message string `json:"message,omitempty"`
}

func NewHTTPHandler(stock StockReader, inventory InventoryReader, warmer StockWarmer, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{stock: stock, inventory: inventory, warmer: warmer, logger: logger}
}

func NewRouter(h *HTTPHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)
	r.Get("/api/stock/{itemID}", h.GetStock)
	r.Post("/api/stock/warm", h.WarmStock)
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStock reports the fast-path counter next to the durable row so drift
// between them can be spotted.
func (h *HTTPHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	resp := StockHTTPResponse{ItemID: itemID}

	stock, found, err := h.stock.GetStock(r.Context(), itemID)
	if err != nil {
		h.logger.Error("failed to read stock", zap.String("item_id", itemID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if found {
		resp.FastPath = &stock
	}

	records, err := h.inventory.LoadInventory(r.Context(), []string{itemID})
	if err != nil {
		h.logger.Error("failed to read inventory", zap.String("item_id", itemID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if rec, ok := records[itemID]; ok {
		resp.Durable = &rec.Quantity
		resp.Version = rec.Version
	}

	if resp.FastPath == nil && resp.Durable == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown item"})
		return
	}
	resp.Drift = resp.FastPath == nil || resp.Durable == nil || *resp.FastPath != *resp.Durable

	writeJSON(w, http.StatusOK, resp)
}

// WarmStock reloads every fast-path counter from durable inventory.
func (h *HTTPHandler) WarmStock(w http.ResponseWriter, r *http.Request) {
	n, err := h.warmer.Warm(r.Context())
	if err != nil {
		h.logger.Error("stock warm-up failed", zap.Int("items_written", n), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, WarmHTTPResponse{
			Success: false,
			Items:   n,
			Message: "warm-up failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, WarmHTTPResponse{Success: true, Items: n})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
