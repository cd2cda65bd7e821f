package config

import "time"

// BookingConfig carries pricing rates, the voucher table and the expiry
// sweeper schedule.  Percentages are whole percent, rates in basis points.
type BookingConfig struct {
	FormatSurchargePct   map[string]int64 // BOOKING_FORMAT_SURCHARGES="3D:20,IMAX:35"
	SeatTypeSurchargePct map[string]int64 // BOOKING_SEAT_SURCHARGES="VIP:50,COUPLE:25"
	TaxBps               int64
	ServiceFeeBps        int64
	MaxDiscountBps       int64
	PointValueCents      int64
	Vouchers             string // VOUCHERS="WELCOME10:10%,FLAT500:500"
	LoyaltyPoints        string // LOYALTY_POINTS="42:500,7:1200" opening balances

	SweepInterval time.Duration
	SweepBatch    int
}

func LoadBookingConfig() BookingConfig {
	b := BookingConfig{
		FormatSurchargePct:   envPercentMap("BOOKING_FORMAT_SURCHARGES", "3D:20,IMAX:35"),
		SeatTypeSurchargePct: envPercentMap("BOOKING_SEAT_SURCHARGES", "VIP:50,COUPLE:25"),
		TaxBps:               envInt64("BOOKING_TAX_BPS", 900),
		ServiceFeeBps:        envInt64("BOOKING_SERVICE_FEE_BPS", 300),
		MaxDiscountBps:       envInt64("BOOKING_MAX_DISCOUNT_BPS", 5000),
		PointValueCents:      envInt64("BOOKING_POINT_VALUE_CENTS", 1),
		Vouchers:             envStr("VOUCHERS", ""),
		LoyaltyPoints:        envStr("LOYALTY_POINTS", ""),
		SweepInterval:        envDur("SWEEP_INTERVAL", 30*time.Second),
		SweepBatch:           envInt("SWEEP_BATCH", 100),
	}
	if b.MaxDiscountBps < 0 || b.MaxDiscountBps > 10000 {
		b.MaxDiscountBps = 5000
	}
	if b.SweepInterval <= 0 {
		b.SweepInterval = 30 * time.Second
	}
	if b.SweepBatch < 1 {
		b.SweepBatch = 100
	}
	return b
}
