package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

var ctx = context.Background()

func testLayout() model.Layout {
	return model.Layout{
		ShowingID:      7,
		Format:         "3d",
		BasePriceCents: 1000,
		Seats: []model.LayoutSeat{
			{SeatID: 1, RowLabel: "A", SeatNumber: 1, SeatType: "STANDARD"},
			{SeatID: 2, RowLabel: "A", SeatNumber: 2, SeatType: "VIP"},
			{SeatID: 3, RowLabel: "A", SeatNumber: 3, SeatType: "STANDARD", PriceCents: 1500},
			{SeatID: 4, RowLabel: "A", SeatNumber: 4, SeatType: "STANDARD", PriceCents: 999},
		},
	}
}

func testRates() Rates {
	return Rates{
		FormatSurchargePct:   map[string]int64{"3D": 20},
		SeatTypeSurchargePct: map[string]int64{"VIP": 50},
		TaxBps:               900,
		ServiceFeeBps:        300,
		MaxDiscountBps:       5000,
		PointValueCents:      1,
	}
}

func newCalc(t *testing.T, ledger PointsLedger) *Calculator {
	t.Helper()
	vouchers, err := ParseVoucherTable("WELCOME10:10%, FLAT500:500, BIG:100000")
	require.NoError(t, err)
	return NewCalculator(testRates(), vouchers, ledger)
}

func TestSeatPriceRoundsHalfUp(t *testing.T) {
	c := newCalc(t, nil)
	l := testLayout()

	base, sur := c.SeatPrice(l, l.Seats[1])
	assert.Equal(t, int64(1000), base)
	assert.Equal(t, int64(800), sur)

	base, sur = c.SeatPrice(l, l.Seats[3])
	assert.Equal(t, int64(999), base)
	assert.Equal(t, int64(200), sur) // 1198.8 -> 1199
}

func TestQuoteWithoutDiscount(t *testing.T) {
	q, err := newCalc(t, nil).Quote(ctx, Request{Layout: testLayout(), SeatIDs: []uint64{1, 2, 3}})
	require.NoError(t, err)

	assert.Equal(t, int64(4800), q.Subtotal)
	assert.Zero(t, q.Discount)
	assert.Equal(t, int64(432), q.Tax)
	assert.Equal(t, int64(144), q.ServiceFee)
	assert.Equal(t, int64(5376), q.Total)
	for _, ln := range q.Lines {
		assert.Equal(t, ln.Base+ln.Surcharge, ln.Final)
	}
}

func TestQuoteVoucherAndPointsCappedAtMaxDiscount(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.Credit(42, 5000)
	user := uint64(42)

	q, err := newCalc(t, ledger).Quote(ctx, Request{
		Layout:      testLayout(),
		SeatIDs:     []uint64{1, 2, 3},
		VoucherCode: "welcome10",
		UserID:      &user,
		PointsToUse: 3000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(480), q.VoucherDiscount)
	assert.Equal(t, int64(1920), q.PointsRedeemed)
	assert.Equal(t, int64(2400), q.Discount)
	assert.Equal(t, int64(216), q.Tax)
	assert.Equal(t, int64(72), q.ServiceFee)
	assert.Equal(t, int64(2688), q.Total)

	require.Len(t, q.Lines, 3)
	assert.Equal(t, []int64{600, 900, 900}, []int64{q.Lines[0].Discount, q.Lines[1].Discount, q.Lines[2].Discount})
	var sum int64
	for _, ln := range q.Lines {
		sum += ln.Final
	}
	assert.Equal(t, q.Subtotal-q.Discount, sum)
}

func TestQuotePointsLimitedByBalance(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.Credit(42, 100)
	user := uint64(42)

	q, err := newCalc(t, ledger).Quote(ctx, Request{Layout: testLayout(), SeatIDs: []uint64{1}, UserID: &user, PointsToUse: 300})
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.PointsRedeemed)
	assert.Equal(t, int64(100), q.Discount)
}

func TestQuoteFlatVoucherCapped(t *testing.T) {
	q, err := newCalc(t, nil).Quote(ctx, Request{Layout: testLayout(), SeatIDs: []uint64{1}, VoucherCode: "BIG"})
	require.NoError(t, err)
	assert.Equal(t, int64(600), q.Discount)
}

func TestQuoteErrors(t *testing.T) {
	c := newCalc(t, nil)

	_, err := c.Quote(ctx, Request{Layout: testLayout(), SeatIDs: []uint64{1}, VoucherCode: "NOPE"})
	assert.ErrorIs(t, err, apperr.ErrInvalidVoucher)

	_, err = c.Quote(ctx, Request{Layout: testLayout(), SeatIDs: []uint64{9}})
	assert.ErrorIs(t, err, apperr.ErrInvalidSeat)

	_, err = c.Quote(ctx, Request{Layout: testLayout(), SeatIDs: []uint64{1}, PointsToUse: 5})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = NewCalculator(testRates(), nil, nil).Quote(ctx, Request{Layout: testLayout(), SeatIDs: []uint64{1}, VoucherCode: "WELCOME10"})
	assert.ErrorIs(t, err, apperr.ErrInvalidVoucher)
}

func TestParseVoucherTableRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"NOVALUE", "X:abc", "P:150%", ":10", "Z:0"} {
		_, err := ParseVoucherTable(raw)
		assert.Error(t, err, raw)
	}
	tbl, err := ParseVoucherTable("")
	require.NoError(t, err)
	_, err = tbl.VoucherDiscount(ctx, "ANY", 100)
	assert.ErrorIs(t, err, apperr.ErrInvalidVoucher)
}

func TestMemoryLedgerReservations(t *testing.T) {
	l := NewMemoryLedger()
	l.Credit(1, 50)

	require.NoError(t, l.Reserve(ctx, 1, 30, "sale-1"))
	require.NoError(t, l.Reserve(ctx, 1, 30, "sale-1"))
	assert.ErrorIs(t, l.Reserve(ctx, 1, 30, "sale-2"), ErrInsufficientPoints)
	assert.ErrorIs(t, l.Reserve(ctx, 1, 30, "sale-2"), apperr.ErrValidation)

	bal, err := l.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), bal)

	require.NoError(t, l.Redeem(ctx, "sale-1"))
	require.NoError(t, l.Redeem(ctx, "sale-1"))
	require.NoError(t, l.Release(ctx, "sale-1"))
	bal, _ = l.Balance(ctx, 1)
	assert.Equal(t, int64(20), bal)

	require.NoError(t, l.Reserve(ctx, 1, 20, "sale-3"))
	require.NoError(t, l.Release(ctx, "sale-3"))
	require.NoError(t, l.Release(ctx, "sale-3"))
	bal, _ = l.Balance(ctx, 1)
	assert.Equal(t, int64(20), bal)

	assert.Error(t, l.Redeem(ctx, "sale-3"))
}

func TestMemoryLedgerSeed(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.Seed(" 42:500, 7:1200,"))
	bal, _ := l.Balance(ctx, 42)
	assert.Equal(t, int64(500), bal)
	bal, _ = l.Balance(ctx, 7)
	assert.Equal(t, int64(1200), bal)

	for _, raw := range []string{"42", "x:5", "42:-1", "42:abc"} {
		assert.Error(t, NewMemoryLedger().Seed(raw), raw)
	}
}
