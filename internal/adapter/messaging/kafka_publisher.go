package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter keys by order id so every outcome of an order lands on the
// same partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, outcome domain.ReservationOutcome) error {
	body, err := EncodeOutcome(outcome)
	if err != nil {
		return err
	}

	headers := []kafka.Header{
		{Key: headerEventType, Value: []byte(outcome.EventType)},
		{Key: headerOrderID, Value: []byte(outcome.OrderID)},
	}

	msg := kafka.Message{
		Value:   body,
		Headers: injectTrace(ctx, headers),
	}
	if outcome.OrderID != "" {
		msg.Key = []byte(outcome.OrderID)
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write outcome %s: %w", outcome.OrderID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type failureBody struct {
	ErrorMessage domain.FailureReason `json:"errorMessage"`
}

// EncodeOutcome renders the outcome body. A success is the map of validated
// lines keyed by item id; a failure carries only the reason.
func EncodeOutcome(outcome domain.ReservationOutcome) ([]byte, error) {
	var (
		body []byte
		err  error
	)
	if outcome.Success() {
		lines := outcome.Lines
		if lines == nil {
			lines = map[string]domain.ValidatedLine{}
		}
		body, err = json.Marshal(lines)
	} else {
		body, err = json.Marshal(failureBody{ErrorMessage: outcome.Reason})
	}
	if err != nil {
		return nil, fmt.Errorf("encode outcome: %w", err)
	}
	return body, nil
}
