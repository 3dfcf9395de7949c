package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-sales-engine/internal/model"
	q "github.com/iliyamo/restaurant-sales-engine/internal/queue"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	bodies [][]byte
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.bodies = append(p.bodies, body)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestEventsPublishesReservationChange(t *testing.T) {
	pub := &recordingPublisher{}
	ev := NewEvents(pub, time.Second, zerolog.Nop())

	ev.ReservationChanged(model.Reservation{ID: 3, Status: model.ReservationAccepted}, model.ReservationPending)

	require.Equal(t, []string{q.ReservationStatusChanged}, pub.topics)
	var got q.ReservationStatusChangedEvent
	require.NoError(t, json.Unmarshal(pub.bodies[0], &got))
	assert.Equal(t, uint64(3), got.ReservationID)
	assert.Equal(t, "PENDING", got.From)
	assert.Equal(t, "ACCEPTED", got.To)
}

func TestEventsSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	ev := NewEvents(pub, time.Second, zerolog.Nop())
	assert.NotPanics(t, func() {
		ev.SaleClosed(model.Sale{ID: 1, Total: decimal.NewFromInt(5)})
	})
	assert.Equal(t, []string{q.SaleClosed}, pub.topics)
}

func TestNilPublisherIsNoop(t *testing.T) {
	ev := NewEvents(nil, 0, zerolog.Nop())
	ev.SaleClosed(model.Sale{ID: 1})
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisherSetsTopicAndKey(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)
	require.NoError(t, p.Publish(context.Background(), q.SaleClosed, []byte(`{"sale_id":1}`)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, q.SaleClosed, w.msgs[0].Topic)
	assert.NotEmpty(t, w.msgs[0].Key)
	assert.JSONEq(t, `{"sale_id":1}`, string(w.msgs[0].Value))
}
