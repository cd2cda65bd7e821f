package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BookingLog appends sale events to <Dir>/booking.log, one human-friendly
// line per event.
type BookingLog struct {
	Dir string
	mu  sync.Mutex
}

// Append decodes a SaleEvent and writes it to the log file.
func (b *BookingLog) Append(body []byte) error {
	var ev SaleEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.SaleID == "" {
		return errors.New("event without type or sale_id")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", b.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(b.Dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev SaleEvent) string {
	seats := "[]"
	if len(ev.SeatLabels) > 0 {
		seats = fmt.Sprintf("[%s]", strings.Join(ev.SeatLabels, ","))
	}
	user := "guest"
	if ev.UserID != nil {
		user = fmt.Sprint(*ev.UserID)
	}
	return fmt.Sprintf("[%s] %s | sale_id=%s | code=%s | user=%s | showing_id=%d | status=%s/%s | total=%d cents | seats=%s\n",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.SaleID, ev.Code, user, ev.ShowingID,
		ev.Status, ev.PaymentStatus, ev.TotalCents, seats)
}

// ConsumerConfig locates the broker and the queue the consumer binds to
// the sale events exchange.
type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Dir      string
}

// StartBookingConsumer binds a durable queue to every sale.* event and
// writes each delivery to the booking log.  It reconnects with backoff
// until ctx is cancelled.  Messages that cannot be handled are rejected
// without requeue so a bad payload never loops.
func StartBookingConsumer(ctx context.Context, cfg ConsumerConfig) error {
	logger := log.With().Str("component", "booking-consumer").Logger()
	sink := &BookingLog{Dir: cfg.Dir}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			logger.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, cfg, sink, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig, sink *BookingLog, logger zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn().Err(err).Msg("set QoS failed")
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(cfg.Queue, "sale.#", cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx, cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := sink.Append(d.Body); err != nil {
			logger.Error().Err(err).Str("routing_key", d.RoutingKey).Msg("handle message failed")
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}
