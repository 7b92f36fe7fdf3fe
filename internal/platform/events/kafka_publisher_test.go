package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fashionfield/checkout/internal/services"
)

type captureWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	writer := &captureWriter{}
	publisher := &KafkaPublisher{writer: writer}

	id, err := publisher.PublishOrderSubmitted(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, sampleEvent().EventID, id)

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "transaction_pi_123", string(msg.Key))

	var payload services.OrderSubmittedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "54.90", payload.Total)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, services.EventTypeOrderSubmitted, headers["eventType"])

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherPropagatesWriteError(t *testing.T) {
	publisher := &KafkaPublisher{writer: &captureWriter{err: errors.New("broker down")}}

	_, err := publisher.PublishOrderSubmitted(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaPublisherValidatesInput(t *testing.T) {
	_, err := NewKafkaPublisher("", "localhost:9092")
	assert.Error(t, err)
	_, err = NewKafkaPublisher("orders")
	assert.Error(t, err)

	publisher, err := NewKafkaPublisher("orders", "localhost:9092")
	require.NoError(t, err)
	assert.NotNil(t, publisher.writer)
}
