// Package queue defines the booking events emitted by the engine and the
// publishers that deliver them to RabbitMQ, Kafka or the application log.
package queue

import "time"

// Routing keys.  AMQP consumers bind with "sale.#" to follow the whole
// sale lifecycle; the payment service binds "payment.requested".
const (
	TypeSaleCreated      = "sale.created"
	TypeSaleConfirmed    = "sale.confirmed"
	TypeSaleCancelled    = "sale.cancelled"
	TypeSalePaymentFail  = "sale.payment_failed"
	TypeSaleExpired      = "sale.expired"
	TypePaymentRequested = "payment.requested"
)

// Message is anything a Publisher can deliver.
type Message interface {
	// RoutingKey is the AMQP routing key and the event type.
	RoutingKey() string
	// PartitionKey keeps events of one sale ordered on Kafka.
	PartitionKey() string
}

// SaleEvent describes a sale lifecycle transition.  It carries enough
// information for downstream consumers to log, notify or trigger analytics
// without querying the sales database.
type SaleEvent struct {
	Type          string    `json:"type"`
	SaleID        string    `json:"sale_id"`
	Code          string    `json:"code"`
	ShowingID     uint64    `json:"showing_id"`
	UserID        *uint64   `json:"user_id,omitempty"`
	BuyerEmail    string    `json:"buyer_email"`
	SeatIDs       []uint64  `json:"seat_ids"`
	SeatLabels    []string  `json:"seats"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	TotalCents    int64     `json:"total_cents"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (e SaleEvent) RoutingKey() string { return e.Type }
func (e SaleEvent) PartitionKey() string { return e.SaleID }

// PaymentRequested asks the payment gateway to collect AmountCents before
// Deadline.  The gateway answers through the payment callback endpoint.
type PaymentRequested struct {
	SaleID      string    `json:"sale_id"`
	Code        string    `json:"code"`
	AmountCents int64     `json:"amount_cents"`
	BuyerName   string    `json:"buyer_name"`
	BuyerEmail  string    `json:"buyer_email"`
	Deadline    time.Time `json:"deadline"`
	RequestedAt time.Time `json:"requested_at"`
}

func (PaymentRequested) RoutingKey() string { return TypePaymentRequested }
func (p PaymentRequested) PartitionKey() string { return p.SaleID }
