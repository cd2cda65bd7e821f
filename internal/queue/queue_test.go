package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() SaleEvent {
	user := uint64(42)
	return SaleEvent{
		Type:          TypeSaleConfirmed,
		SaleID:        "s-1",
		Code:          "K7PQ2M9XWZ",
		ShowingID:     7,
		UserID:        &user,
		SeatIDs:       []uint64{12, 13},
		SeatLabels:    []string{"B2", "B3"},
		Status:        "CONFIRMED",
		PaymentStatus: "COMPLETED",
		TotalCents:    2688,
		OccurredAt:    time.Date(2026, 3, 1, 18, 4, 0, 0, time.UTC),
	}
}

func TestBookingLogAppend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	sink := &BookingLog{Dir: dir}

	body, err := json.Marshal(sampleEvent())
	require.NoError(t, err)
	require.NoError(t, sink.Append(body))
	require.NoError(t, sink.Append(body))

	data, err := os.ReadFile(filepath.Join(dir, "booking.log"))
	require.NoError(t, err)
	line := "[2026-03-01T18:04:00Z] sale.confirmed | sale_id=s-1 | code=K7PQ2M9XWZ | user=42 | showing_id=7 | status=CONFIRMED/COMPLETED | total=2688 cents | seats=[B2,B3]\n"
	assert.Equal(t, line+line, string(data))
}

func TestBookingLogRejectsGarbage(t *testing.T) {
	sink := &BookingLog{Dir: t.TempDir()}
	assert.Error(t, sink.Append([]byte("not json")))
	assert.Error(t, sink.Append([]byte(`{"type":""}`)))
}

func TestKafkaPublisherKeysBySale(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		key, _ := m.Key.Encode()
		if string(key) != "s-1" {
			return errors.New("unexpected key " + string(key))
		}
		if m.Topic != "booking.events" {
			return errors.New("unexpected topic " + m.Topic)
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer, "booking.events")
	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.ErrorIs(t, p.Publish(context.Background(), PaymentRequested{SaleID: "s-1"}), sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestLogPublisher(t *testing.T) {
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), sampleEvent()))
	assert.NoError(t, LogPublisher{}.Close())
}
