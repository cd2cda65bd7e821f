package model

// Layout is the seat map and pricing of one showing as returned by the
// catalog.  Seats without an explicit price fall back to BasePriceCents.
//
// Fields:
//  ShowingID      – shows.id
//  Format         – projection format (2D, 3D, IMAX, ...).
//  BasePriceCents – default price for seats without an override.
//  Seats          – every active seat that can be sold for the showing.
type Layout struct {
	ShowingID      uint64       `json:"showing_id"`
	Format         string       `json:"format"`
	BasePriceCents int64        `json:"base_price_cents"`
	Seats          []LayoutSeat `json:"seats"`
}

// LayoutSeat describes a sellable seat.  SeatType is one of STANDARD,
// VIP, ACCESSIBLE or COUPLE.
type LayoutSeat struct {
	SeatID     uint64 `json:"seat_id" db:"seat_id"`         // seats.id
	RowLabel   string `json:"row_label" db:"row_label"`     // seats.row_label
	SeatNumber uint32 `json:"seat_number" db:"seat_number"` // seats.seat_number
	SeatType   string `json:"seat_type" db:"seat_type"`     // seats.seat_type
	PriceCents int64  `json:"price_cents" db:"price_cents"` // show_seats.price_cents, 0 when unset
}

// Seat returns the seat with the given id.
func (l Layout) Seat(id uint64) (LayoutSeat, bool) {
	for _, s := range l.Seats {
		if s.SeatID == id {
			return s, true
		}
	}
	return LayoutSeat{}, false
}

// SeatIDs lists every seat id in layout order.
func (l Layout) SeatIDs() []uint64 {
	ids := make([]uint64, 0, len(l.Seats))
	for _, s := range l.Seats {
		ids = append(ids, s.SeatID)
	}
	return ids
}

// PriceOf returns the base price of a seat, honoring the showing default.
func (l Layout) PriceOf(s LayoutSeat) int64 {
	if s.PriceCents > 0 {
		return s.PriceCents
	}
	return l.BasePriceCents
}
