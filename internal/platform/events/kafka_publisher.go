package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/fashionfield/checkout/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes OrderSubmitted events to a Kafka topic, keyed by guard key so
// retries of one transaction land on one partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher constructs a publisher writing to topic on brokers.
func NewKafkaPublisher(topic string, brokers ...string) (*KafkaPublisher, error) {
	if topic == "" {
		return nil, errors.New("kafka order publisher: topic is required")
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka order publisher: at least one broker is required")
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}, nil
}

// PublishOrderSubmitted writes the event synchronously and returns its event id.
func (p *KafkaPublisher) PublishOrderSubmitted(ctx context.Context, event services.OrderSubmittedEvent) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	headers := make([]kafka.Header, 0, 4)
	for key, value := range eventAttributes(event) {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	msg := kafka.Message{
		Key:     []byte(event.GuardKey),
		Value:   payload,
		Headers: headers,
		Time:    event.SubmittedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return event.EventID, nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
