package model

import "time"

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

const (
	SalePending   SaleStatus = "PENDING"
	SaleConfirmed SaleStatus = "CONFIRMED"
	SaleCancelled SaleStatus = "CANCELLED"
	SaleExpired   SaleStatus = "EXPIRED"
)

// Terminal reports whether no further transition is allowed.
func (s SaleStatus) Terminal() bool {
	return s != SalePending
}

// Valid reports whether s is a known status.
func (s SaleStatus) Valid() bool {
	switch s {
	case SalePending, SaleConfirmed, SaleCancelled, SaleExpired:
		return true
	}
	return false
}

// PaymentStatus tracks the payment attached to a sale.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

// Buyer holds the mandatory contact fields of a purchaser.
type Buyer struct {
	Name  string `json:"name" db:"buyer_name"`
	Email string `json:"email" db:"buyer_email"`
	Phone string `json:"phone,omitempty" db:"buyer_phone"`
}

// Sale records a purchase of one or more seats of a single showing.  A
// sale is created PENDING from a verified hold and moves to CONFIRMED
// once payment completes, or to CANCELLED/EXPIRED when it is abandoned.
// HoldDeadline is non-nil exactly while the sale is PENDING.
//
// Fields:
//  ID              – sales.id (uuid).
//  Code            – externally visible booking code, unique.
//  UserID          – registered user, nil for guest checkout.
//  SessionID       – session whose hold produced the sale.
//  ShowingID       – showing the seats belong to.
//  SubtotalCents   – sum of per-seat prices before discount.
//  DiscountCents   – voucher plus points discount.
//  TaxCents        – tax on the discounted amount.
//  ServiceFeeCents – service fee on the discounted amount.
//  TotalCents      – amount to be paid.
//  PointsRedeemed  – loyalty points consumed by the discount.
//  PaymentRef      – gateway reference once payment settles.
type Sale struct {
	ID              string        `json:"id" db:"id"`
	Code            string        `json:"code" db:"code"`
	UserID          *uint64       `json:"user_id,omitempty" db:"user_id"`
	SessionID       string        `json:"-" db:"session_id"`
	Buyer           `json:"buyer"`
	ShowingID       uint64        `json:"showing_id" db:"showing_id"`
	SubtotalCents   int64         `json:"subtotal_cents" db:"subtotal_cents"`
	DiscountCents   int64         `json:"discount_cents" db:"discount_cents"`
	TaxCents        int64         `json:"tax_cents" db:"tax_cents"`
	ServiceFeeCents int64         `json:"service_fee_cents" db:"service_fee_cents"`
	TotalCents      int64         `json:"total_cents" db:"total_cents"`
	PointsRedeemed  int64         `json:"points_redeemed" db:"points_redeemed"`
	VoucherCode     *string       `json:"voucher_code,omitempty" db:"voucher_code"`
	Status          SaleStatus    `json:"status" db:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentRef      *string       `json:"payment_ref,omitempty" db:"payment_ref"`
	HoldDeadline    *time.Time    `json:"hold_deadline,omitempty" db:"hold_deadline"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
	Tickets         []Ticket      `json:"tickets" db:"-"`
}

// SeatIDs returns the seats covered by the sale's tickets.
func (s *Sale) SeatIDs() []uint64 {
	ids := make([]uint64, 0, len(s.Tickets))
	for _, t := range s.Tickets {
		ids = append(ids, t.SeatID)
	}
	return ids
}

// Ticket is one seat of a sale with its price breakdown.  Its status
// mirrors the sale so that per-seat check-in or voiding can be added
// without reshaping the data.
type Ticket struct {
	ID             string     `json:"id" db:"id"`
	SaleID         string     `json:"sale_id" db:"sale_id"`
	ShowingID      uint64     `json:"showing_id" db:"showing_id"`
	SeatID         uint64     `json:"seat_id" db:"seat_id"`
	RowLabel       string     `json:"row_label" db:"row_label"`
	SeatNumber     uint32     `json:"seat_number" db:"seat_number"`
	SeatType       string     `json:"seat_type" db:"seat_type"`
	BaseCents      int64      `json:"base_cents" db:"base_cents"`
	SurchargeCents int64      `json:"surcharge_cents" db:"surcharge_cents"`
	DiscountCents  int64      `json:"discount_cents" db:"discount_cents"`
	FinalCents     int64      `json:"final_cents" db:"final_cents"`
	Status         SaleStatus `json:"status" db:"status"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
