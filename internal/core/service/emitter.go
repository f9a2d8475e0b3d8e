package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/stock-validator/internal/core/domain"
	"github.com/rl1809/stock-validator/internal/port"
)

// Emitter hands outcomes to the publisher. Publishing is fire-and-forget:
// a failed send is logged and the outcome is not retried here.
type Emitter struct {
	publisher port.OutcomePublisher
	logger    *zap.Logger
}

func NewEmitter(publisher port.OutcomePublisher, logger *zap.Logger) *Emitter {
	return &Emitter{publisher: publisher, logger: logger}
}

func (e *Emitter) Emit(ctx context.Context, outcome domain.ReservationOutcome) {
	if err := e.publisher.Publish(ctx, outcome); err != nil {
		e.logger.Error("failed to publish outcome",
			zap.String("order_id", outcome.OrderID),
			zap.String("event_type", string(outcome.EventType)),
			zap.String("reason", string(outcome.Reason)),
			zap.Error(err),
		)
		return
	}
	e.logger.Debug("outcome published",
		zap.String("order_id", outcome.OrderID),
		zap.String("event_type", string(outcome.EventType)),
	)
}
