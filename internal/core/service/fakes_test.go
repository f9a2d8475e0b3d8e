package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/stock-validator/internal/adapter/storage"
	"github.com/rl1809/stock-validator/internal/core/domain"
)

type fakeCatalog struct {
	mu     sync.Mutex
	stores map[string]bool
	items  map[string]domain.CatalogItem
	err    error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{stores: map[string]bool{}, items: map[string]domain.CatalogItem{}}
}

func (f *fakeCatalog) StoreExists(ctx context.Context, storeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.stores[storeID], nil
}

func (f *fakeCatalog) ResolveItems(ctx context.Context, itemIDs []string) ([]domain.CatalogItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.CatalogItem
	for _, id := range itemIDs {
		if item, ok := f.items[id]; ok && !item.Hidden {
			out = append(out, item)
		}
	}
	return out, nil
}

// fakeInventory enforces version checks like the MySQL adapter. conflicts
// forces that many version conflicts before writes are let through.
type fakeInventory struct {
	mu        sync.Mutex
	records   map[string]domain.InventoryRecord
	conflicts int
	casCalls  int
	loadErr   error
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{records: map[string]domain.InventoryRecord{}}
}

func (f *fakeInventory) LoadInventory(ctx context.Context, itemIDs []string) (map[string]domain.InventoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[string]domain.InventoryRecord, len(itemIDs))
	for _, id := range itemIDs {
		if rec, ok := f.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (f *fakeInventory) CompareAndSwapInventory(ctx context.Context, records []domain.InventoryRecord) (domain.WriteStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.casCalls++

	if f.conflicts > 0 {
		f.conflicts--
		return domain.WriteVersionConflict, nil
	}
	for _, rec := range records {
		current, ok := f.records[rec.ItemID]
		if !ok || current.Version != rec.Version {
			return domain.WriteVersionConflict, nil
		}
	}
	for _, rec := range records {
		rec.Version++
		f.records[rec.ItemID] = rec
	}
	return domain.WriteOK, nil
}

func (f *fakeInventory) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make([]domain.InventoryRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeInventory) get(itemID string) domain.InventoryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[itemID]
}

type fakePublisher struct {
	mu       sync.Mutex
	outcomes []domain.ReservationOutcome
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, outcome domain.ReservationOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func (f *fakePublisher) published() []domain.ReservationOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ReservationOutcome(nil), f.outcomes...)
}

type failingCarts struct{ err error }

func (f failingCarts) GetCart(ctx context.Context, userID int64) ([]domain.CartLineItem, error) {
	return nil, f.err
}

// harness wires the real Redis adapter on miniredis with fake durable stores.
type harness struct {
	t         *testing.T
	mr        *miniredis.Miniredis
	redis     *storage.RedisAdapter
	catalog   *fakeCatalog
	inventory *fakeInventory
	publisher *fakePublisher
	sync      *Synchronizer
	pipeline  *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := &harness{
		t:         t,
		mr:        mr,
		redis:     storage.NewRedisAdapter(client),
		catalog:   newFakeCatalog(),
		inventory: newFakeInventory(),
		publisher: &fakePublisher{},
	}

	logger := zap.NewNop()
	h.sync = NewSynchronizer(h.inventory, RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		MaxDelay:    10 * time.Millisecond,
	}, logger)
	h.sync.sleep = func(context.Context, time.Duration) error { return nil }

	h.pipeline = NewPipeline(
		NewValidator(h.redis, h.catalog),
		h.redis,
		h.sync,
		NewEmitter(h.publisher, logger),
		h.redis,
		logger,
	)
	return h
}

func (h *harness) addStore() string {
	storeID := uuid.NewString()
	h.catalog.mu.Lock()
	h.catalog.stores[storeID] = true
	h.catalog.mu.Unlock()
	return storeID
}

// addItem registers a menu item with the same stock on both paths.
func (h *harness) addItem(storeID, name string, price, stock int64) string {
	itemID := uuid.NewString()

	h.catalog.mu.Lock()
	h.catalog.items[itemID] = domain.CatalogItem{ItemID: itemID, StoreID: storeID, Name: name, UnitPrice: price}
	h.catalog.mu.Unlock()

	h.inventory.mu.Lock()
	h.inventory.records[itemID] = domain.InventoryRecord{ItemID: itemID, Quantity: stock}
	h.inventory.mu.Unlock()

	require.NoError(h.t, h.redis.SetStock(context.Background(), itemID, stock))
	return itemID
}

func (h *harness) setCart(userID int64, storeID string, quantities map[string]int) {
	items := make([]domain.CartLineItem, 0, len(quantities))
	for itemID, qty := range quantities {
		items = append(items, domain.CartLineItem{ItemID: itemID, StoreID: storeID, Quantity: qty})
	}
	require.NoError(h.t, h.redis.SaveCart(context.Background(), userID, items))
}

func (h *harness) fastStock(itemID string) int64 {
	stock, found, err := h.redis.GetStock(context.Background(), itemID)
	require.NoError(h.t, err)
	require.True(h.t, found)
	return stock
}

func requestBody(orderID string, userID int64, storeID string, total int64) []byte {
	return []byte(fmt.Sprintf(`{"orderId":%q,"userId":%d,"storeId":%q,"totalPrice":%d}`, orderID, userID, storeID, total))
}
