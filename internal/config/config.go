package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ServiceName    = "stock-validator"
	ServiceVersion = "0.1.0"
)

// SyncConfig bounds the durable inventory retry loop.
type SyncConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

type Config struct {
	HTTPAddr string
	GRPCAddr string

	MySQLDSN      string
	RedisAddr     string
	RedisPassword string

	KafkaBrokers  []string
	RequestTopic  string
	ResultTopic   string
	ConsumerGroup string

	WorkerCount int
	QueueSize   int

	Sync             SyncConfig
	IdempotencyTTL   time.Duration
	WarmStockOnStart bool

	OtelEndpoint string
	LogLevel     string
}

func Load() (*Config, error) {
	l := &loader{}

	cfg := &Config{
		HTTPAddr:      l.str("HTTP_ADDR", ":8080"),
		GRPCAddr:      l.str("GRPC_ADDR", ":50051"),
		MySQLDSN:      l.str("MYSQL_DSN", "root:root@tcp(localhost:3306)/stockvalidator?parseTime=true"),
		RedisAddr:     l.str("REDIS_ADDR", "localhost:6379"),
		RedisPassword: l.str("REDIS_PASSWORD", ""),
		KafkaBrokers:  l.list("KAFKA_BROKERS", []string{"localhost:9092"}),
		RequestTopic:  l.str("REQUEST_TOPIC", "order.valid.request"),
		ResultTopic:   l.str("RESULT_TOPIC", "order.valid.result"),
		ConsumerGroup: l.str("CONSUMER_GROUP", "stock-validator"),
		WorkerCount:   l.integer("WORKER_COUNT", 10),
		QueueSize:     l.integer("QUEUE_SIZE", 1000),
		Sync: SyncConfig{
			MaxAttempts: l.integer("SYNC_MAX_ATTEMPTS", 5),
			BaseDelay:   l.duration("SYNC_BASE_DELAY", 300*time.Millisecond),
			Multiplier:  l.float("SYNC_MULTIPLIER", 2),
			MaxDelay:    l.duration("SYNC_MAX_DELAY", 5*time.Second),
		},
		IdempotencyTTL:   l.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		WarmStockOnStart: l.boolean("WARM_STOCK_ON_START", true),
		OtelEndpoint:     l.str("OTEL_ENDPOINT", ""),
		LogLevel:         l.str("LOG_LEVEL", "info"),
	}

	if err := l.err(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS must list at least one broker"))
	}
	if c.WorkerCount <= 0 {
		errs = append(errs, errors.New("WORKER_COUNT must be positive"))
	}
	if c.QueueSize < 0 {
		errs = append(errs, errors.New("QUEUE_SIZE must not be negative"))
	}
	if c.Sync.MaxAttempts <= 0 {
		errs = append(errs, errors.New("SYNC_MAX_ATTEMPTS must be positive"))
	}
	if c.Sync.Multiplier < 1 {
		errs = append(errs, errors.New("SYNC_MULTIPLIER must be at least 1"))
	}
	if c.Sync.BaseDelay < 0 || c.Sync.MaxDelay < c.Sync.BaseDelay {
		errs = append(errs, errors.New("SYNC_MAX_DELAY must be at least SYNC_BASE_DELAY"))
	}
	return errors.Join(errs...)
}

// loader reads environment variables and collects parse errors.
type loader struct {
	errs []error
}

func (l *loader) err() error {
	return errors.Join(l.errs...)
}

func (l *loader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func (l *loader) list(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (l *loader) integer(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (l *loader) float(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (l *loader) boolean(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
