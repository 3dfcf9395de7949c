package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitPublisher publishes persistent messages to durable queues on the
// default exchange, routing key = queue name.  The connection is opened
// lazily and reopened after a failure.
type RabbitPublisher struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewRabbitPublisher returns a publisher for url.  No connection is made
// until the first Publish.
func NewRabbitPublisher(url string) *RabbitPublisher {
	return &RabbitPublisher{url: url, declared: make(map[string]bool)}
}

func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// reset drops the current connection.  Must be called with p.mu held.
func (p *RabbitPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
	p.declared = make(map[string]bool)
}

// Publish sends body to the queue named topic.
func (p *RabbitPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	if !p.declared[topic] {
		// durable so messages survive broker restarts
		if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			p.reset()
			return fmt.Errorf("rabbitmq queue declare: %w", err)
		}
		p.declared[topic] = true
	}
	err = ch.PublishWithContext(ctx, "", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Close closes the connection, if any.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.conn, p.ch = nil, nil
	return errors.Join(errs...)
}
