package port

import (
	"context"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

type CacheRepository interface {
	// Reserve atomically checks and decrements every line's counter, returns false
	// without touching any counter if one line is short or missing
	Reserve(ctx context.Context, lines []domain.ReservationLine) (bool, error)

	// SetStock overwrites the counter for an item (warm-up from durable storage)
	SetStock(ctx context.Context, itemID string, quantity int64) error

	// GetStock reads the counter, reports false if it was never initialized
	GetStock(ctx context.Context, itemID string) (int64, bool, error)
}

type CartRepository interface {
	// GetCart returns the pending line items of a user, empty if there is no cart
	GetCart(ctx context.Context, userID int64) ([]domain.CartLineItem, error)
}

type IdempotencyRepository interface {
	// Claim marks an order as in flight, returns false if it was already claimed
	Claim(ctx context.Context, orderID string) (bool, error)

	// Remember stores the outcome of a claimed order for redelivery replay
	Remember(ctx context.Context, outcome domain.ReservationOutcome) error

	// Recall returns the stored outcome, nil if the order is still in flight
	Recall(ctx context.Context, orderID string) (*domain.ReservationOutcome, error)
}
