// Package pricing turns a seat selection into a priced quote: per-seat
// surcharges, voucher and loyalty discounts, tax and service fee.  All
// amounts are integer cents.
package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// Rates are the configured pricing parameters.  Surcharges are whole
// percentages keyed by upper-case format or seat type; the remaining rates
// are basis points of the discounted subtotal.
type Rates struct {
	FormatSurchargePct   map[string]int64
	SeatTypeSurchargePct map[string]int64
	TaxBps               int64
	ServiceFeeBps        int64
	MaxDiscountBps       int64
	PointValueCents      int64
}

// DiscountCalculator prices a voucher code against a subtotal.  Unknown
// codes must return an error wrapping apperr.ErrInvalidVoucher.
type DiscountCalculator interface {
	VoucherDiscount(ctx context.Context, code string, subtotalCents int64) (int64, error)
}

// PointsLedger is the loyalty balance of registered users.  Points are
// reserved for a sale when it is priced, then either redeemed when it is
// paid or released when it closes unpaid.
type PointsLedger interface {
	Balance(ctx context.Context, userID uint64) (int64, error)
	Reserve(ctx context.Context, userID uint64, points int64, saleID string) error
	Release(ctx context.Context, saleID string) error
	Redeem(ctx context.Context, saleID string) error
}

// Request describes what is being bought.
type Request struct {
	Layout      model.Layout
	SeatIDs     []uint64
	VoucherCode string
	UserID      *uint64
	PointsToUse int64
}

// Line is the price breakdown of one seat.
type Line struct {
	Seat      model.LayoutSeat
	Base      int64
	Surcharge int64
	Discount  int64
	Final     int64
}

// Quote is the full breakdown.  Discount = VoucherDiscount + PointsDiscount.
type Quote struct {
	Lines           []Line
	Subtotal        int64
	VoucherDiscount int64
	PointsDiscount  int64
	Discount        int64
	Tax             int64
	ServiceFee      int64
	Total           int64
	PointsRedeemed  int64
}

// Calculator prices quotes.  vouchers and points may be nil, in which case
// voucher codes are rejected and no points are available.
type Calculator struct {
	rates    Rates
	vouchers DiscountCalculator
	points   PointsLedger
}

func NewCalculator(rates Rates, vouchers DiscountCalculator, points PointsLedger) *Calculator {
	if rates.MaxDiscountBps <= 0 || rates.MaxDiscountBps > 10000 {
		rates.MaxDiscountBps = 5000
	}
	if rates.PointValueCents <= 0 {
		rates.PointValueCents = 1
	}
	return &Calculator{rates: rates, vouchers: vouchers, points: points}
}

// Ledger exposes the points ledger used for redemption at confirmation.
func (c *Calculator) Ledger() PointsLedger { return c.points }

// divRound divides with half-up rounding for non-negative operands.
func divRound(n, d int64) int64 {
	return (n + d/2) / d
}

// SeatPrice returns base and surcharge for one seat of a layout.
func (c *Calculator) SeatPrice(l model.Layout, s model.LayoutSeat) (base, surcharge int64) {
	base = l.PriceOf(s)
	f := c.rates.FormatSurchargePct[strings.ToUpper(l.Format)]
	t := c.rates.SeatTypeSurchargePct[strings.ToUpper(s.SeatType)]
	pre := divRound(base*(100+f)*(100+t), 10000)
	return base, pre - base
}

// Quote prices the request.  Seats missing from the layout yield
// apperr.ErrInvalidSeat.
func (c *Calculator) Quote(ctx context.Context, req Request) (Quote, error) {
	if len(req.SeatIDs) == 0 {
		return Quote{}, apperr.Validation("no seats to price")
	}
	if req.PointsToUse < 0 {
		return Quote{}, apperr.Validation("points_to_use must not be negative")
	}
	if req.PointsToUse > 0 && req.UserID == nil {
		return Quote{}, apperr.Validation("points require a registered user")
	}

	var q Quote
	q.Lines = make([]Line, 0, len(req.SeatIDs))
	for _, id := range req.SeatIDs {
		seat, ok := req.Layout.Seat(id)
		if !ok {
			return Quote{}, fmt.Errorf("seat %d: %w", id, apperr.ErrInvalidSeat)
		}
		base, sur := c.SeatPrice(req.Layout, seat)
		q.Lines = append(q.Lines, Line{Seat: seat, Base: base, Surcharge: sur})
		q.Subtotal += base + sur
	}

	maxDiscount := q.Subtotal * c.rates.MaxDiscountBps / 10000
	if code := strings.TrimSpace(req.VoucherCode); code != "" {
		if c.vouchers == nil {
			return Quote{}, fmt.Errorf("voucher %q: %w", code, apperr.ErrInvalidVoucher)
		}
		d, err := c.vouchers.VoucherDiscount(ctx, code, q.Subtotal)
		if err != nil {
			return Quote{}, err
		}
		q.VoucherDiscount = min(max(d, 0), maxDiscount)
	}

	if req.PointsToUse > 0 && c.points != nil {
		balance, err := c.points.Balance(ctx, *req.UserID)
		if err != nil {
			return Quote{}, err
		}
		room := (maxDiscount - q.VoucherDiscount) / c.rates.PointValueCents
		q.PointsRedeemed = max(min(req.PointsToUse, balance, room), 0)
		q.PointsDiscount = q.PointsRedeemed * c.rates.PointValueCents
	}
	q.Discount = q.VoucherDiscount + q.PointsDiscount

	c.spread(&q)

	net := q.Subtotal - q.Discount
	q.Tax = divRound(net*c.rates.TaxBps, 10000)
	q.ServiceFee = divRound(net*c.rates.ServiceFeeBps, 10000)
	q.Total = net + q.Tax + q.ServiceFee
	return q, nil
}

// spread distributes the discount over the lines in proportion to their
// price; rounding leftovers land on the last line.
func (c *Calculator) spread(q *Quote) {
	var given int64
	last := len(q.Lines) - 1
	for i := range q.Lines {
		ln := &q.Lines[i]
		pre := ln.Base + ln.Surcharge
		switch {
		case q.Subtotal == 0 || q.Discount == 0:
			ln.Discount = 0
		case i == last:
			ln.Discount = q.Discount - given
		default:
			ln.Discount = q.Discount * pre / q.Subtotal
		}
		given += ln.Discount
		ln.Final = pre - ln.Discount
	}
}
