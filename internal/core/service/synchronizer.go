package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stock-validator/internal/core/domain"
	"github.com/rl1809/stock-validator/internal/port"
)

// RetryPolicy bounds how often a version conflict is retried and how long
// to wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   300 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    5 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt, counting from 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) || math.IsInf(d, 0) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Synchronizer mirrors an accepted fast-path reservation onto the durable
// inventory rows using optimistic version checks.
type Synchronizer struct {
	inventory port.InventoryRepository
	policy    RetryPolicy
	logger    *zap.Logger
	sleep     func(context.Context, time.Duration) error
}

func NewSynchronizer(inventory port.InventoryRepository, policy RetryPolicy, logger *zap.Logger) *Synchronizer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Synchronizer{
		inventory: inventory,
		policy:    policy,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// Commit applies the decrements of lines to the durable store. Version
// conflicts are retried with backoff. Any error returned wraps ErrConcurrency:
// the fast-path counters were already decremented and now disagree with the
// durable rows.
func (s *Synchronizer) Commit(ctx context.Context, orderID string, lines []domain.ReservationLine) error {
	for attempt := 1; ; attempt++ {
		status, err := s.attempt(ctx, lines)
		switch status {
		case domain.WriteOK:
			if attempt > 1 {
				s.logger.Info("durable inventory committed after retry",
					zap.String("order_id", orderID), zap.Int("attempt", attempt))
			}
			return nil
		case domain.WriteFatal:
			s.critical(orderID, lines, attempt, err)
			return fmt.Errorf("%w: %w", ErrConcurrency, err)
		}

		if attempt >= s.policy.MaxAttempts {
			s.critical(orderID, lines, attempt, errors.New("version conflict retries exhausted"))
			return fmt.Errorf("%w: version conflict after %d attempts", ErrConcurrency, attempt)
		}

		delay := s.policy.Delay(attempt)
		s.logger.Warn("durable inventory version conflict, retrying",
			zap.String("order_id", orderID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)
		if err := s.sleep(ctx, delay); err != nil {
			s.critical(orderID, lines, attempt, err)
			return fmt.Errorf("%w: %w", ErrConcurrency, err)
		}
	}
}

func (s *Synchronizer) attempt(ctx context.Context, lines []domain.ReservationLine) (domain.WriteStatus, error) {
	records, err := s.inventory.LoadInventory(ctx, domain.ItemIDs(lines))
	if err != nil {
		return domain.WriteFatal, err
	}

	updated := make([]domain.InventoryRecord, 0, len(lines))
	for _, line := range lines {
		rec, ok := records[line.ItemID]
		if !ok {
			return domain.WriteFatal, fmt.Errorf("%w: no inventory row for %s", ErrDurableDrift, line.ItemID)
		}
		next, err := rec.Decrement(line.Quantity)
		if err != nil {
			return domain.WriteFatal, fmt.Errorf("%w: item %s: %w", ErrDurableDrift, line.ItemID, err)
		}
		updated = append(updated, next)
	}

	return s.inventory.CompareAndSwapInventory(ctx, updated)
}

func (s *Synchronizer) critical(orderID string, lines []domain.ReservationLine, attempt int, err error) {
	s.logger.Error("CRITICAL: fast-path reservation not reflected in durable inventory",
		zap.String("order_id", orderID),
		zap.Any("lines", lines),
		zap.Int("attempts", attempt),
		zap.Error(err),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
