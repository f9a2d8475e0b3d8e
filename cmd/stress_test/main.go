package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rl1809/stock-validator/internal/adapter/storage"
	"github.com/rl1809/stock-validator/internal/config"
	"github.com/rl1809/stock-validator/internal/core/domain"
	"github.com/rl1809/stock-validator/internal/core/service"
	"github.com/rl1809/stock-validator/internal/platform/observability"
)

const (
	initialStock  = 20
	totalRequests = 50
	unitPrice     = 12000
)

// countingPublisher stands in for Kafka and tallies outcomes.
type countingPublisher struct {
	success atomic.Int32
	fail    atomic.Int32
	reasons sync.Map
}

func (p *countingPublisher) Publish(ctx context.Context, outcome domain.ReservationOutcome) error {
	if outcome.Success() {
		p.success.Add(1)
		return nil
	}
	p.fail.Add(1)
	n, _ := p.reasons.LoadOrStore(outcome.Reason, new(atomic.Int32))
	n.(*atomic.Int32).Add(1)
	return nil
}

func main() {
	ctx := context.Background()
	logger := observability.NewLogger(zapcore.WarnLevel)
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err == nil {
		err = db.PingContext(ctx)
	}
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	defer db.Close()

	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.RunMigrations(); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Fresh store and item per run
	storeID := uuid.NewString()
	itemID := uuid.NewString()
	if err := mysqlAdapter.SeedItem(ctx, domain.CatalogItem{
		ItemID:    itemID,
		StoreID:   storeID,
		Name:      "flash-sale-item",
		UnitPrice: unitPrice,
	}, initialStock); err != nil {
		logger.Fatal("failed to seed item", zap.Error(err))
	}
	if err := redisAdapter.SetStock(ctx, itemID, initialStock); err != nil {
		logger.Fatal("failed to set stock", zap.Error(err))
	}

	baseUser := time.Now().UnixNano() % 1_000_000_000
	for i := int64(1); i <= totalRequests; i++ {
		cart := []domain.CartLineItem{{ItemID: itemID, StoreID: storeID, Quantity: 1}}
		if err := redisAdapter.SaveCart(ctx, baseUser+i, cart); err != nil {
			logger.Fatal("failed to seed cart", zap.Error(err))
		}
	}

	publisher := &countingPublisher{}
	policy := service.DefaultRetryPolicy()
	policy.MaxAttempts = 20
	policy.BaseDelay = 5 * time.Millisecond

	pipeline := service.NewPipeline(
		service.NewValidator(redisAdapter, mysqlAdapter),
		redisAdapter,
		service.NewSynchronizer(mysqlAdapter, policy, logger),
		service.NewEmitter(publisher, logger),
		redisAdapter,
		logger,
	)

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := int64(1); i <= totalRequests; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			body := fmt.Sprintf(`{"orderId":%q,"userId":%d,"storeId":%q,"totalPrice":%d}`,
				uuid.NewString(), userID, storeID, unitPrice)
			pipeline.Handle(ctx, nil, []byte(body))
		}(baseUser + i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := publisher.success.Load()
	fail := publisher.fail.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	publisher.reasons.Range(func(k, v any) bool {
		fmt.Printf("  %-16s %d\n", k, v.(*atomic.Int32).Load())
		return true
	})
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
		failed = true
	}

	fastStock, _, _ := redisAdapter.GetStock(ctx, itemID)
	records, err := mysqlAdapter.LoadInventory(ctx, []string{itemID})
	if err != nil {
		logger.Fatal("failed to read inventory", zap.Error(err))
	}
	durable := records[itemID]

	fmt.Printf("Final Redis Stock:  %d\n", fastStock)
	fmt.Printf("Final MySQL Stock:  %d (version %d)\n", durable.Quantity, durable.Version)

	if fastStock == 0 && durable.Quantity == 0 && durable.Version == int64(success) {
		fmt.Println("PASS: Both stores depleted to 0")
	} else {
		fmt.Println("FAIL: Stores disagree or were oversold")
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
