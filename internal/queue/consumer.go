package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer reads trip events and appends one line per event to
// <dir>/trip.log.
type Consumer struct {
	URL   string
	Queue string
	Dir   string
}

// Run keeps a consumer attached to the queue until ctx is cancelled,
// redialling with exponential backoff capped at 30s. Messages that cannot
// be handled are rejected without requeue so they do not loop.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			slog.Warn("trip consumer: dial failed", "error", err, "retry_in", backoff)
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

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("trip consumer: loop ended, reconnecting", "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		slog.Warn("trip consumer: set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				slog.Error("trip consumer: handle message failed", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and appends it to the log file.
func (c *Consumer) Handle(body []byte) error {
	var ev TripEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.RoomID == "" || ev.Type == "" {
		return errors.New("event without room or type")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, "trip.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single log line.
func FormatLine(ev TripEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | id=%s | room_id=%s | phase=%s", ev.OccurredAt, ev.Type, ev.ID, ev.RoomID, ev.Phase)
	if ev.From != "" {
		fmt.Fprintf(&b, " | from=%s", ev.From)
	}
	if ev.ActorID != "" {
		fmt.Fprintf(&b, " | actor=%s", ev.ActorID)
	}
	if len(ev.Members) > 0 {
		fmt.Fprintf(&b, " | members=[%s]", strings.Join(ev.Members, ","))
	}
	if ev.Type == EventSettled {
		fmt.Fprintf(&b, " | actual_total=%d | per_person=%d", ev.ActualTotal, ev.CostPerPerson)
	}
	b.WriteByte('\n')
	return b.String()
}
