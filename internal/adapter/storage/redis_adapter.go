package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

const (
	stockKeyPrefix       = "stock:"
	cartKeyPrefix        = "cart:"
	reservationKeyPrefix = "reservation:"
	pendingMarker        = "pending"
	defaultIdempotentTTL = 24 * time.Hour
)

var ErrInvalidQuantity = errors.New("quantity must be positive")

// All keys are checked before any is touched, so a short line leaves every
// counter as it was. Redis runs the script without interleaving other commands.
var reserveStockScript = redis.NewScript(`
for i = 1, #KEYS do
	local current = redis.call('GET', KEYS[i])
	if not current or tonumber(current) < tonumber(ARGV[i]) then
		return 0
	end
end

for i = 1, #KEYS do
	redis.call('DECRBY', KEYS[i], ARGV[i])
end

return 1
`)

type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, idempotencyTTL: defaultIdempotentTTL}
}

// WithIdempotencyTTL overrides how long order claims and outcomes are kept.
func (r *RedisAdapter) WithIdempotencyTTL(ttl time.Duration) *RedisAdapter {
	if ttl > 0 {
		r.idempotencyTTL = ttl
	}
	return r
}

func (r *RedisAdapter) Reserve(ctx context.Context, lines []domain.ReservationLine) (bool, error) {
	if len(lines) == 0 {
		return true, nil
	}

	keys := make([]string, len(lines))
	args := make([]interface{}, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return false, fmt.Errorf("item %s: %w", line.ItemID, ErrInvalidQuantity)
		}
		keys[i] = stockKey(line.ItemID)
		args[i] = line.Quantity
	}

	result, err := reserveStockScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("run reserve script: %w", err)
	}

	return result == 1, nil
}

func (r *RedisAdapter) SetStock(ctx context.Context, itemID string, quantity int64) error {
	return r.client.Set(ctx, stockKey(itemID), quantity, 0).Err()
}

func (r *RedisAdapter) GetStock(ctx context.Context, itemID string) (int64, bool, error) {
	stock, err := r.client.Get(ctx, stockKey(itemID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get stock: %w", err)
	}
	return stock, true, nil
}

// GetCart reads the cart hash of a user. A missing key, or a key holding
// anything but a hash, is an empty cart.
func (r *RedisAdapter) GetCart(ctx context.Context, userID int64) ([]domain.CartLineItem, error) {
	key := cartKey(userID)

	keyType, err := r.client.Type(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("cart type: %w", err)
	}
	if keyType != "hash" {
		return nil, nil
	}

	values, err := r.client.HVals(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	items := make([]domain.CartLineItem, 0, len(values))
	for _, v := range values {
		var item domain.CartLineItem
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			return nil, fmt.Errorf("parse cart item: %w", err)
		}
		items = append(items, item)
	}

	return items, nil
}

// SaveCart replaces the cart of a user, one hash field per item.
func (r *RedisAdapter) SaveCart(ctx context.Context, userID int64, items []domain.CartLineItem) error {
	key := cartKey(userID)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal cart item: %w", err)
		}
		pipe.HSet(ctx, key, item.ItemID, string(data))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (r *RedisAdapter) Claim(ctx context.Context, orderID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, reservationKey(orderID), pendingMarker, r.idempotencyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim order: %w", err)
	}
	return ok, nil
}

func (r *RedisAdapter) Remember(ctx context.Context, outcome domain.ReservationOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	return r.client.Set(ctx, reservationKey(outcome.OrderID), data, r.idempotencyTTL).Err()
}

func (r *RedisAdapter) Recall(ctx context.Context, orderID string) (*domain.ReservationOutcome, error) {
	data, err := r.client.Get(ctx, reservationKey(orderID)).Result()
	if errors.Is(err, redis.Nil) || data == pendingMarker {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recall outcome: %w", err)
	}

	var outcome domain.ReservationOutcome
	if err := json.Unmarshal([]byte(data), &outcome); err != nil {
		return nil, fmt.Errorf("parse outcome: %w", err)
	}
	return &outcome, nil
}

func stockKey(itemID string) string {
	return stockKeyPrefix + itemID
}

func cartKey(userID int64) string {
	return cartKeyPrefix + strconv.FormatInt(userID, 10)
}

func reservationKey(orderID string) string {
	return reservationKeyPrefix + orderID
}
