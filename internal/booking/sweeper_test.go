package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/hold"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/queue"
)

func TestSweeperExpiresOverdueSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.acquire(t, "s1", 1, 2)
	overdue := f.create(t, "s1", 1, 2)

	f.clock.Advance(3 * time.Minute)
	f.acquire(t, "s2", 5)
	fresh := f.create(t, "s2", 5)

	sw := NewSweeper(f.engine, time.Minute, 10)
	n, err := sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(3 * time.Minute)
	n, err = sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.engine.Get(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SaleExpired, got.Status)
	assert.Equal(t, model.PaymentCancelled, got.PaymentStatus)
	assert.Nil(t, got.HoldDeadline)

	still, err := f.engine.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SalePending, still.Status)

	_, err = f.holds.Acquire(ctx, hold.AcquireRequest{ShowingID: showing, SeatIDs: []uint64{1, 2}, SessionID: "s3"})
	assert.NoError(t, err)
	assert.Contains(t, f.pub.types(), queue.TypeSaleExpired)

	_, err = f.engine.Confirm(ctx, overdue.ID, PaymentResult{Success: true})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestSweeperSkipsConfirmedSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.acquire(t, "s1", 1)
	s := f.create(t, "s1", 1)
	_, err := f.engine.Confirm(ctx, s.ID, PaymentResult{Success: true})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	n, err := NewSweeper(f.engine, time.Minute, 10).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.engine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SaleConfirmed, got.Status)
}

func TestSweeperDrainsInBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		f.acquire(t, "s1", i)
		f.create(t, "s1", i)
	}
	f.clock.Advance(10 * time.Minute)

	n, err := NewSweeper(f.engine, time.Minute, 2).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	active, err := f.sales.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSweeperStartStop(t *testing.T) {
	f := newFixture(t)
	sw := NewSweeper(f.engine, 5*time.Millisecond, 10)
	sw.Start(context.Background())
	sw.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	sw.Stop()
	sw.Stop()
}

func TestNewSaleCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		c := NewSaleCode()
		assert.Len(t, c, codeLength)
		assert.NotContains(t, c, "0")
		assert.NotContains(t, c, "O")
		assert.NotContains(t, c, "1")
		assert.NotContains(t, c, "I")
		assert.NotContains(t, c, "l")
		assert.False(t, seen[c])
		seen[c] = true
	}
}

func TestSweeperFreesSeatsWithCancelledContext(t *testing.T) {
	f := newRedisFixture(t)
	f.acquire(t, "s1", 1, 2)
	f.create(t, "s1", 1, 2)
	f.clock.Advance(6 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := NewSweeper(f.engine, time.Minute, 10).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.acquire(t, "s2", 1, 2)
}

func TestHoldSaleExpiryScenario(t *testing.T) {
	for name, mk := range fixtures() {
		t.Run(name, func(t *testing.T) {
			f := mk(t)
			ctx := context.Background()
			f.acquire(t, "A", 12, 13, 14)

			_, err := f.holds.Acquire(ctx, hold.AcquireRequest{ShowingID: showing, SeatIDs: []uint64{13, 15}, SessionID: "B"})
			var conflict *apperr.ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, []uint64{13}, conflict.SeatIDs)
			f.acquire(t, "B", 15, 16)

			s := f.create(t, "A", 12, 13, 14)
			require.NotNil(t, s.HoldDeadline)
			assert.True(t, f.clock.Now().Add(5*time.Minute).Equal(*s.HoldDeadline))

			f.clock.Advance(5*time.Minute + time.Second)
			n, err := NewSweeper(f.engine, time.Minute, 100).RunOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			f.acquire(t, "C", 12, 13, 14)
		})
	}
}
