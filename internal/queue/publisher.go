package queue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cinema-ticketing/internal/metrics"
)

// Publisher delivers messages to a broker.  Publish failures are returned
// so callers can log them; a booking never fails because an event could
// not be sent.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
	Close() error
}

func record(m Message, err error) error {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EventsPublished.WithLabelValues(m.RoutingKey(), result).Inc()
	return err
}

// LogPublisher writes events to the application log.  It is the default
// backend when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return record(m, err)
	}
	log.Info().Str("component", "events").Str("type", m.RoutingKey()).RawJSON("event", body).Msg("event")
	return record(m, nil)
}

func (LogPublisher) Close() error { return nil }
