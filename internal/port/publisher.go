package port

import (
	"context"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

type OutcomePublisher interface {
	// Publish sends the outcome with orderId and eventType as routing headers
	Publish(ctx context.Context, outcome domain.ReservationOutcome) error
}
