package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

var ErrPoolClosed = errors.New("worker pool closed")

const ackTimeout = 5 * time.Second

// Message is one inbound delivery queued for a worker. Ack is called once the
// message has been handled, successfully or not.
type Message struct {
	Key   []byte
	Value []byte
	Trace trace.SpanContext
	Ack   func(context.Context) error
}

type Handler interface {
	Handle(ctx context.Context, key, value []byte) (domain.ReservationOutcome, bool)
}

// WorkerPool fans deliveries out to a fixed number of workers through a
// bounded queue.
type WorkerPool struct {
	handler Handler
	workers int
	queue   chan Message
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewWorkerPool(handler Handler, workers, queueSize int, logger *zap.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		handler: handler,
		workers: workers,
		queue:   make(chan Message, queueSize),
		logger:  logger,
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.workerLoop(id)
		}(i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workers))
}

// Submit blocks until the message is queued, the pool is closed or ctx ends.
func (p *WorkerPool) Submit(ctx context.Context, msg Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages and waits for queued ones to drain.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) workerLoop(id int) {
	for msg := range p.queue {
		ctx := context.Background()
		if msg.Trace.IsValid() {
			ctx = trace.ContextWithRemoteSpanContext(ctx, msg.Trace)
		}

		outcome, emitted := p.handler.Handle(ctx, msg.Key, msg.Value)
		p.logger.Debug("message handled",
			zap.Int("worker", id),
			zap.String("order_id", outcome.OrderID),
			zap.Bool("emitted", emitted),
		)

		if msg.Ack == nil {
			continue
		}
		ackCtx, cancel := context.WithTimeout(context.Background(), ackTimeout)
		if err := msg.Ack(ackCtx); err != nil {
			p.logger.Error("failed to acknowledge message",
				zap.Int("worker", id),
				zap.String("order_id", outcome.OrderID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
