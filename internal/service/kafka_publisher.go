package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event as one message to the topic named by
// the event type.
type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaPublisher wraps a writer built without a fixed Topic, so that
// every message carries its own.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher { return &KafkaPublisher{w: w} }

// Publish writes body to topic, keyed by a fresh id.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(uuid.NewString()),
		Value: body,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error { return p.w.Close() }
