// Package events publishes order lifecycle events to Pub/Sub or Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/fashionfield/checkout/internal/services"
)

// PubSubPublisher publishes OrderSubmitted events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishOrderSubmitted sends the event and waits for the server-assigned message id.
func (p *PubSubPublisher) PublishOrderSubmitted(ctx context.Context, event services.OrderSubmittedEvent) (string, error) {
	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: eventAttributes(event),
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

// Close flushes pending messages.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return nil
}

func eventAttributes(event services.OrderSubmittedEvent) map[string]string {
	attrs := map[string]string{"eventType": services.EventTypeOrderSubmitted}
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "transactionId", event.TransactionID)
	setAttr(attrs, "paymentMethod", event.PaymentMethod)
	setAttr(attrs, "guardKey", event.GuardKey)
	return attrs
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
