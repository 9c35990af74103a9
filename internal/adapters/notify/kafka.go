package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/pkg/encoding"
	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives customer notifications for the push and email workers
const DefaultTopic = "checkout.notifications"

// messageWriter is the subset of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes notifications keyed by user id so a user's
// messages stay ordered within a partition
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaWriter builds the writer used by NewKafkaPublisher
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaPublisher creates a Kafka sink
func NewKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Notify(ctx context.Context, n domain.Notification) error {
	payload, err := encoding.EncodeJSON(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish notification to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
