package port

import (
	"context"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

type CatalogRepository interface {
	// StoreExists reports whether a live store with the given id exists
	StoreExists(ctx context.Context, storeID string) (bool, error)

	// ResolveItems loads visible, non-deleted catalog items for the given ids
	ResolveItems(ctx context.Context, itemIDs []string) ([]domain.CatalogItem, error)
}

type InventoryRepository interface {
	// LoadInventory reads the current records (with versions) in one pass
	LoadInventory(ctx context.Context, itemIDs []string) (map[string]domain.InventoryRecord, error)

	// CompareAndSwapInventory writes all records guarded by the versions they were read at
	CompareAndSwapInventory(ctx context.Context, records []domain.InventoryRecord) (domain.WriteStatus, error)

	// ListInventory returns every durable record
	ListInventory(ctx context.Context) ([]domain.InventoryRecord, error)
}
