package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/stock-validator/internal/core/service"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Submitter interface {
	Submit(ctx context.Context, msg service.Message) error
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

// KafkaConsumer feeds validation requests into the worker pool. An offset is
// committed only after it and every earlier offset of its partition have been
// handled.
type KafkaConsumer struct {
	reader  MessageReader
	pool    Submitter
	offsets *offsetTracker
	logger  *zap.Logger
}

func NewKafkaConsumer(reader MessageReader, pool Submitter, logger *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, pool: pool, offsets: newOffsetTracker(), logger: logger}
}

// Run fetches until ctx is cancelled or the reader is closed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		c.logger.Debug("message received",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)

		c.offsets.track(m)
		msg := service.Message{
			Key:   m.Key,
			Value: m.Value,
			Trace: extractTrace(m.Headers),
			Ack: func(ctx context.Context) error {
				return c.offsets.ack(m, func(last kafka.Message) error {
					return c.reader.CommitMessages(ctx, last)
				})
			},
		}
		if err := c.pool.Submit(ctx, msg); err != nil {
			if ctx.Err() != nil || errors.Is(err, service.ErrPoolClosed) {
				return nil
			}
			return fmt.Errorf("submit message: %w", err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
