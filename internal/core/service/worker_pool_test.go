package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

type recordingHandler struct {
	mu     sync.Mutex
	keys   []string
	traces []trace.SpanContext
}

func (r *recordingHandler) Handle(ctx context.Context, key, value []byte) (domain.ReservationOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, string(key))
	r.traces = append(r.traces, trace.SpanContextFromContext(ctx))
	return domain.Failed(string(key), domain.ReasonCartEmpty), true
}

func TestWorkerPool_HandlesAndAcksEveryMessage(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	handler := &recordingHandler{}
	pool := NewWorkerPool(handler, 4, 8, zap.NewNop())
	pool.Start()

	var acked atomic.Int32
	for i := 0; i < 100; i++ {
		err := pool.Submit(context.Background(), Message{
			Key: []byte{byte(i)},
			Ack: func(context.Context) error {
				acked.Add(1)
				return nil
			},
		})
		require.NoError(t, err)
	}
	pool.Close()

	assert.Equal(t, int32(100), acked.Load())
	assert.Len(t, handler.keys, 100)
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := NewWorkerPool(&recordingHandler{}, 1, 1, zap.NewNop())
	pool.Start()
	pool.Close()
	pool.Close()

	err := pool.Submit(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPool_SubmitRespectsContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// not started, so the single queue slot stays full
	pool := NewWorkerPool(&recordingHandler{}, 1, 1, zap.NewNop())
	require.NoError(t, pool.Submit(context.Background(), Message{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pool.Submit(ctx, Message{}), context.Canceled)

	pool.Start()
	pool.Close()
}

func TestWorkerPool_PropagatesTraceContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})

	handler := &recordingHandler{}
	pool := NewWorkerPool(handler, 1, 1, zap.NewNop())
	pool.Start()
	require.NoError(t, pool.Submit(context.Background(), Message{Key: []byte("k"), Trace: sc}))
	pool.Close()

	require.Len(t, handler.traces, 1)
	assert.Equal(t, sc.TraceID(), handler.traces[0].TraceID())
	assert.Equal(t, sc.SpanID(), handler.traces[0].SpanID())
}
