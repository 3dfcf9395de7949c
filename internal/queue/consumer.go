package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AuditConsumer listens to the domain event queues and appends one line
// per event to an audit log.
type AuditConsumer struct {
	url string
	log zerolog.Logger

	mu  sync.Mutex
	out io.Writer
}

// NewAuditConsumer returns a consumer writing to out.
func NewAuditConsumer(url string, out io.Writer, log zerolog.Logger) *AuditConsumer {
	return &AuditConsumer{url: url, out: out, log: log.With().Str("component", "audit-consumer").Logger()}
}

// OpenAuditLog opens (creating if needed) dir/audit.log for appending.
func OpenAuditLog(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return os.OpenFile(filepath.Join(dir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// Run dials the broker and consumes until ctx is done, reconnecting with
// exponential backoff (capped at 30s) whenever the connection drops.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial broker failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("consume loop ended, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set QoS failed")
	}

	merged := make(chan delivery)
	done := make(chan struct{})
	defer close(done)
	var wg sync.WaitGroup
	for _, name := range []string{ReservationStatusChanged, SaleClosed} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		wg.Add(1)
		go func(name string, msgs <-chan amqp.Delivery) {
			defer wg.Done()
			forward(ctx, done, name, msgs, merged)
		}(name, msgs)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-merged:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.queue, d.msg.Body); err != nil {
				c.log.Error().Err(err).Str("queue", d.queue).Msg("handle message failed")
				_ = d.msg.Nack(false, false) // do not requeue poison messages
				continue
			}
			_ = d.msg.Ack(false)
		}
	}
}

type delivery struct {
	queue string
	msg   amqp.Delivery
}

// forward copies msgs into out tagged with queue until msgs closes, ctx is
// done or done is closed.
func forward(ctx context.Context, done <-chan struct{}, queue string, msgs <-chan amqp.Delivery, out chan<- delivery) {
	for m := range msgs {
		select {
		case out <- delivery{queue: queue, msg: m}:
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *AuditConsumer) handleMessage(queue string, body []byte) error {
	line, err := formatLine(queue, body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.out, line); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func formatLine(queue string, body []byte) (string, error) {
	switch queue {
	case ReservationStatusChanged:
		var ev ReservationStatusChangedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		from := ev.From
		if from == "" {
			from = "-"
		}
		line := fmt.Sprintf("[%s] Reservation %s -> %s | reservation_id=%d | branch_id=%d | customer_id=%d",
			ev.ChangedAt, from, ev.To, ev.ReservationID, ev.BranchID, ev.CustomerID)
		if ev.SaleID != 0 {
			line += fmt.Sprintf(" | sale_id=%d", ev.SaleID)
		}
		if ev.Reason != "" {
			line += fmt.Sprintf(" | reason=%q", ev.Reason)
		}
		return line + "\n", nil
	case SaleClosed:
		var ev SaleClosedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		tables := make([]string, 0, len(ev.TableIDs))
		for _, id := range ev.TableIDs {
			tables = append(tables, fmt.Sprint(id))
		}
		kind := "closed"
		if ev.Voided {
			kind = "voided"
		}
		return fmt.Sprintf("[%s] Sale %s | sale_id=%d | branch_id=%d | subtotal=%s | total=%s | tables=[%s]\n",
			ev.ClosedAt, kind, ev.SaleID, ev.BranchID, ev.Subtotal, ev.Total, strings.Join(tables, ",")), nil
	}
	return "", fmt.Errorf("unknown queue %q", queue)
}
