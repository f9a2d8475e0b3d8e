package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/stock-validator/internal/port"
)

// StockWarmer copies durable inventory into the fast-path counters. It
// overwrites whatever the counters hold, so it is meant for startup or for
// an operator with consumption paused.
type StockWarmer struct {
	inventory port.InventoryRepository
	cache     port.CacheRepository
	logger    *zap.Logger
}

func NewStockWarmer(inventory port.InventoryRepository, cache port.CacheRepository, logger *zap.Logger) *StockWarmer {
	return &StockWarmer{inventory: inventory, cache: cache, logger: logger}
}

// Warm returns the number of counters written.
func (w *StockWarmer) Warm(ctx context.Context) (int, error) {
	records, err := w.inventory.ListInventory(ctx)
	if err != nil {
		return 0, fmt.Errorf("list inventory: %w", err)
	}

	for i, rec := range records {
		if err := w.cache.SetStock(ctx, rec.ItemID, rec.Quantity); err != nil {
			return i, fmt.Errorf("set stock for %s: %w", rec.ItemID, err)
		}
	}

	w.logger.Info("stock counters warmed", zap.Int("items", len(records)))
	return len(records), nil
}
