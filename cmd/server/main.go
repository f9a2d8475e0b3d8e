package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rl1809/stock-validator/internal/adapter/handler"
	"github.com/rl1809/stock-validator/internal/adapter/messaging"
	"github.com/rl1809/stock-validator/internal/adapter/storage"
	"github.com/rl1809/stock-validator/internal/config"
	"github.com/rl1809/stock-validator/internal/core/service"
	"github.com/rl1809/stock-validator/internal/platform/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(zapcore.InfoLevel).Fatal("invalid configuration", zap.Error(err))
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	logger := observability.NewLogger(level)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.RunMigrations(); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	redisAdapter := storage.NewRedisAdapter(rdb).WithIdempotencyTTL(cfg.IdempotencyTTL)
	logger.Info("connected to redis")

	warmer := service.NewStockWarmer(mysqlAdapter, redisAdapter, logger)
	if cfg.WarmStockOnStart {
		if _, err := warmer.Warm(ctx); err != nil {
			logger.Fatal("failed to warm stock counters", zap.Error(err))
		}
	}

	// Pipeline
	writer := messaging.NewKafkaWriter(cfg.KafkaBrokers, cfg.ResultTopic)
	publisher := messaging.NewKafkaPublisher(writer)

	synchronizer := service.NewSynchronizer(mysqlAdapter, service.RetryPolicy{
		MaxAttempts: cfg.Sync.MaxAttempts,
		BaseDelay:   cfg.Sync.BaseDelay,
		Multiplier:  cfg.Sync.Multiplier,
		MaxDelay:    cfg.Sync.MaxDelay,
	}, logger)

	pipeline := service.NewPipeline(
		service.NewValidator(redisAdapter, mysqlAdapter),
		redisAdapter,
		synchronizer,
		service.NewEmitter(publisher, logger),
		redisAdapter,
		logger,
	)

	pool := service.NewWorkerPool(pipeline, cfg.WorkerCount, cfg.QueueSize, logger)
	pool.Start()

	reader := messaging.NewKafkaReader(cfg.KafkaBrokers, cfg.RequestTopic, cfg.ConsumerGroup)
	consumer := messaging.NewKafkaConsumer(reader, pool, logger)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		logger.Info("consuming validation requests",
			zap.String("topic", cfg.RequestTopic), zap.String("group", cfg.ConsumerGroup))
		if err := consumer.Run(ctx); err != nil {
			logger.Error("consumer stopped", zap.Error(err))
			cancel()
		}
	}()

	// Initialize gRPC health server
	grpcServer, grpcHealth := handler.NewGRPCServer(config.ServiceName)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(redisAdapter, mysqlAdapter, warmer, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewRouter(httpHandler),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	grpcHealth.Shutdown()

	// Stop fetching, then let queued requests finish before closing the writer.
	cancel()
	<-consumerDone
	pool.Close()
	logger.Info("workers stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	if err := consumer.Close(); err != nil {
		logger.Warn("failed to close kafka reader", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		logger.Warn("failed to close kafka writer", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}

	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
