// Package service publishes domain events to the configured broker.
// Publishing is best effort: failures are logged and counted by the
// caller's logger, never surfaced to the request that caused the event.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-sales-engine/internal/model"
	q "github.com/iliyamo/restaurant-sales-engine/internal/queue"
)

// Publisher sends one JSON message to a named queue or topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Close() error
}

// NoopPublisher drops every message.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (NoopPublisher) Close() error                                  { return nil }

// Events turns committed state changes into broker messages.
type Events struct {
	pub     Publisher
	log     zerolog.Logger
	timeout time.Duration
}

// NewEvents wraps pub.  A nil pub behaves like NoopPublisher.
func NewEvents(pub Publisher, timeout time.Duration, log zerolog.Logger) *Events {
	if pub == nil {
		pub = NoopPublisher{}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Events{pub: pub, timeout: timeout, log: log.With().Str("component", "events").Logger()}
}

// ReservationChanged publishes a reservation.status_changed event.
func (e *Events) ReservationChanged(r model.Reservation, from model.ReservationStatus) {
	e.send(q.ReservationStatusChanged, q.NewReservationStatusChanged(r, from))
}

// SaleClosed publishes a sale.closed event.
func (e *Events) SaleClosed(s model.Sale) {
	e.send(q.SaleClosed, q.NewSaleClosed(s))
}

func (e *Events) send(topic string, event interface{}) {
	body, err := json.Marshal(event)
	if err != nil {
		e.log.Error().Err(err).Str("topic", topic).Msg("marshal event failed")
		return
	}
	// detached from the request context so a finished request does not
	// cancel the publish
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.pub.Publish(ctx, topic, body); err != nil {
		e.log.Warn().Err(err).Str("topic", topic).Msg("publish event failed")
	}
}
