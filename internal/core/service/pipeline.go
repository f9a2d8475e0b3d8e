package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-validator/internal/core/domain"
	"github.com/rl1809/stock-validator/internal/port"
)

var tracer = otel.Tracer("github.com/rl1809/stock-validator/internal/core/service")

// Pipeline runs one validation request end to end: validate, reserve on the
// fast path, commit durably, emit. Every handled request yields exactly one
// outcome; a redelivery of an already finished order replays the stored one.
type Pipeline struct {
	validator    *Validator
	cache        port.CacheRepository
	synchronizer *Synchronizer
	emitter      *Emitter
	idempotency  port.IdempotencyRepository
	logger       *zap.Logger
}

// NewPipeline wires the stages together. idempotency may be nil, in which
// case redeliveries are processed as new requests.
func NewPipeline(
	validator *Validator,
	cache port.CacheRepository,
	synchronizer *Synchronizer,
	emitter *Emitter,
	idempotency port.IdempotencyRepository,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		validator:    validator,
		cache:        cache,
		synchronizer: synchronizer,
		emitter:      emitter,
		idempotency:  idempotency,
		logger:       logger,
	}
}

// Handle processes one raw message. It reports the outcome and whether it was
// emitted; a duplicate of an in-flight order is dropped without emitting.
func (p *Pipeline) Handle(ctx context.Context, key, value []byte) (domain.ReservationOutcome, bool) {
	ctx, span := tracer.Start(ctx, "stock.validate", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	req, err := domain.DecodeValidationRequest(value)
	if err != nil {
		orderID := recoverOrderID(key, value)
		p.logger.Warn("rejecting malformed validation request",
			zap.String("order_id", orderID), zap.Error(err))
		outcome := domain.Failed(orderID, domain.ReasonMessageParse)
		p.finish(ctx, span, newRequestState(orderID, p.logger), outcome)
		return outcome, true
	}
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("store.id", req.StoreID),
		attribute.Int64("user.id", req.UserID),
	)

	if p.idempotency != nil {
		claimed, err := p.idempotency.Claim(ctx, req.OrderID)
		if err != nil {
			p.logger.Error("idempotency claim failed",
				zap.String("order_id", req.OrderID), zap.Error(err))
			outcome := domain.Failed(req.OrderID, domain.ReasonTransport)
			p.finish(ctx, span, newRequestState(req.OrderID, p.logger), outcome)
			return outcome, true
		}
		if !claimed {
			return p.replay(ctx, span, req.OrderID)
		}
	}

	state := newRequestState(req.OrderID, p.logger)
	outcome := p.process(ctx, state, req)

	if p.idempotency != nil {
		if err := p.idempotency.Remember(ctx, outcome); err != nil {
			p.logger.Error("failed to store outcome for replay",
				zap.String("order_id", req.OrderID), zap.Error(err))
		}
	}

	p.finish(ctx, span, state, outcome)
	return outcome, true
}

func (p *Pipeline) process(ctx context.Context, state *requestState, req domain.ValidationRequest) domain.ReservationOutcome {
	state.advance(domain.StateValidating)
	validation, err := p.validator.Validate(ctx, req)
	if err != nil {
		return p.fail(req.OrderID, err)
	}

	state.advance(domain.StateReserving)
	ok, err := p.cache.Reserve(ctx, validation.Lines)
	if err != nil {
		return p.fail(req.OrderID, err)
	}
	if !ok {
		return p.fail(req.OrderID, ErrInsufficientStock)
	}

	state.advance(domain.StateSyncing)
	if err := p.synchronizer.Commit(ctx, req.OrderID, validation.Lines); err != nil {
		return p.fail(req.OrderID, err)
	}

	p.logger.Info("stock reserved",
		zap.String("order_id", req.OrderID),
		zap.Int("lines", len(validation.Lines)),
		zap.Int64("total_price", validation.Total),
	)
	return domain.Succeeded(req.OrderID, validation.Priced)
}

func (p *Pipeline) fail(orderID string, err error) domain.ReservationOutcome {
	reason := reasonFor(err)
	fields := []zap.Field{zap.String("order_id", orderID), zap.String("reason", string(reason)), zap.Error(err)}
	switch reason {
	case domain.ReasonTransport:
		p.logger.Error("validation request failed", fields...)
	case domain.ReasonConcurrency:
		// already reported by the synchronizer
	default:
		p.logger.Info("validation request rejected", fields...)
	}
	return domain.Failed(orderID, reason)
}

// replay re-emits the stored outcome of a finished order. If the first
// delivery is still in flight there is nothing to replay yet and the
// duplicate is dropped.
func (p *Pipeline) replay(ctx context.Context, span trace.Span, orderID string) (domain.ReservationOutcome, bool) {
	span.SetAttributes(attribute.Bool("order.duplicate", true))

	stored, err := p.idempotency.Recall(ctx, orderID)
	if err != nil {
		p.logger.Error("failed to recall stored outcome, dropping duplicate",
			zap.String("order_id", orderID), zap.Error(err))
		return domain.ReservationOutcome{OrderID: orderID}, false
	}
	if stored == nil {
		p.logger.Info("duplicate delivery while order is in flight, dropping",
			zap.String("order_id", orderID))
		return domain.ReservationOutcome{OrderID: orderID}, false
	}

	p.logger.Info("replaying stored outcome", zap.String("order_id", orderID))
	p.emitter.Emit(ctx, *stored)
	return *stored, true
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, state *requestState, outcome domain.ReservationOutcome) {
	span.SetAttributes(attribute.String("outcome.event_type", string(outcome.EventType)))
	if !outcome.Success() {
		span.SetAttributes(attribute.String("outcome.reason", string(outcome.Reason)))
		span.SetStatus(codes.Error, string(outcome.Reason))
	}
	p.emitter.Emit(ctx, outcome)
	state.advance(domain.StateEmitted)
}

// recoverOrderID salvages an order id from a message that failed to decode,
// first from the body and then from the message key.
func recoverOrderID(key, value []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(value, &fields); err == nil {
		if id, ok := fields["orderId"].(string); ok {
			if _, err := uuid.Parse(id); err == nil {
				return id
			}
		}
	}
	if _, err := uuid.ParseBytes(key); err == nil {
		return string(key)
	}
	return ""
}

type requestState struct {
	orderID string
	current domain.State
	logger  *zap.Logger
}

func newRequestState(orderID string, logger *zap.Logger) *requestState {
	return &requestState{orderID: orderID, current: domain.StateReceived, logger: logger}
}

func (s *requestState) advance(next domain.State) {
	if !s.current.CanAdvance(next) {
		s.logger.Error("illegal request state transition",
			zap.String("order_id", s.orderID),
			zap.String("from", string(s.current)),
			zap.String("to", string(next)),
		)
		return
	}
	s.current = next
}
