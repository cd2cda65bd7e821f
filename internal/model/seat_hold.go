package model

import "time"

// SeatHold represents a temporary hold on one or more seats of a
// showing while a session completes checkout.  Holds prevent concurrent
// buyers from grabbing the same seats and expire automatically at
// ExpiresAt; nothing has to delete them.
//
// Fields:
//  ShowingID    – showing for which the seats are held.
//  SeatIDs      – seats covered by the hold (non-empty, unique).
//  SessionID    – opaque client token that owns the hold.
//  ContactEmail – optional contact supplied when the hold was placed.
//  ExpiresAt    – absolute instant after which the hold is void.
//  CreatedAt    – when the hold was first acquired.
type SeatHold struct {
	ShowingID    uint64    `json:"showing_id"`
	SeatIDs      []uint64  `json:"seat_ids"`
	SessionID    string    `json:"session_id"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

