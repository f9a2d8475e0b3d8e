package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

func setupTestRedis(t *testing.T) (*RedisAdapter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisAdapter(client), mr
}

func stockOf(t *testing.T, mr *miniredis.Miniredis, itemID string) string {
	v, err := mr.Get(stockKey(itemID))
	require.NoError(t, err)
	return v
}

func TestReserve_Success(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, adapter.SetStock(ctx, "item-a", 10))
	require.NoError(t, adapter.SetStock(ctx, "item-b", 4))

	ok, err := adapter.Reserve(ctx, []domain.ReservationLine{
		{ItemID: "item-a", Quantity: 3},
		{ItemID: "item-b", Quantity: 4},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, "7", stockOf(t, mr, "item-a"))
	assert.Equal(t, "0", stockOf(t, mr, "item-b"))
}

func TestReserve_InsufficientLineLeavesOthersUntouched(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, adapter.SetStock(ctx, "plenty", 10))
	require.NoError(t, adapter.SetStock(ctx, "scarce", 1))

	ok, err := adapter.Reserve(ctx, []domain.ReservationLine{
		{ItemID: "plenty", Quantity: 2},
		{ItemID: "scarce", Quantity: 5},
	})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "10", stockOf(t, mr, "plenty"))
	assert.Equal(t, "1", stockOf(t, mr, "scarce"))
}

func TestReserve_KeyNotExists(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, adapter.SetStock(ctx, "known", 3))

	ok, err := adapter.Reserve(ctx, []domain.ReservationLine{
		{ItemID: "known", Quantity: 1},
		{ItemID: "never-initialized", Quantity: 1},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "3", stockOf(t, mr, "known"))
	assert.False(t, mr.Exists(stockKey("never-initialized")))
}

func TestReserve_RejectsNonPositiveQuantity(t *testing.T) {
	adapter, _ := setupTestRedis(t)

	_, err := adapter.Reserve(context.Background(), []domain.ReservationLine{{ItemID: "x", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestReserve_EmptyBatch(t *testing.T) {
	adapter, _ := setupTestRedis(t)

	ok, err := adapter.Reserve(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReserve_ConcurrentNoOversell(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	initialStock := 20
	totalRequests := 50
	require.NoError(t, adapter.SetStock(ctx, "hot-item", int64(initialStock)))

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.Reserve(ctx, []domain.ReservationLine{{ItemID: "hot-item", Quantity: 1}})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())
	assert.Equal(t, "0", stockOf(t, mr, "hot-item"))
}

func TestGetStock(t *testing.T) {
	adapter, _ := setupTestRedis(t)
	ctx := context.Background()

	_, found, err := adapter.GetStock(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, adapter.SetStock(ctx, "present", 12))
	stock, found, err := adapter.GetStock(ctx, "present")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(12), stock)
}

func TestGetCart_RoundTrip(t *testing.T) {
	adapter, _ := setupTestRedis(t)
	ctx := context.Background()

	items := []domain.CartLineItem{
		{ItemID: "menu-1", StoreID: "store-1", Quantity: 2},
		{ItemID: "menu-2", StoreID: "store-1", Quantity: 1},
	}
	require.NoError(t, adapter.SaveCart(ctx, 42, items))

	cart, err := adapter.GetCart(ctx, 42)
	require.NoError(t, err)
	assert.ElementsMatch(t, items, cart)
}

func TestGetCart_MissingKey(t *testing.T) {
	adapter, _ := setupTestRedis(t)

	cart, err := adapter.GetCart(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestGetCart_StringKeyIsEmpty(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cartKey(9), "legacy"))

	cart, err := adapter.GetCart(context.Background(), 9)
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestGetCart_InvalidJSON(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	mr.HSet(cartKey(3), "menu-1", "{not json")

	_, err := adapter.GetCart(context.Background(), 3)
	assert.Error(t, err)
}

func TestClaim_OnlyOnce(t *testing.T) {
	adapter, _ := setupTestRedis(t)
	ctx := context.Background()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.Claim(ctx, "order-1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
}

func TestRecall_PendingThenRemembered(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := adapter.Claim(ctx, "order-2")
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := adapter.Recall(ctx, "order-2")
	require.NoError(t, err)
	assert.Nil(t, stored)

	outcome := domain.Succeeded("order-2", map[string]domain.ValidatedLine{
		"menu-1": {Name: "Bulgogi", UnitPrice: 9000, Quantity: 2},
	})
	require.NoError(t, adapter.Remember(ctx, outcome))

	stored, err = adapter.Recall(ctx, "order-2")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, outcome, *stored)
	assert.True(t, mr.TTL(reservationKey("order-2")) > 0)
}
