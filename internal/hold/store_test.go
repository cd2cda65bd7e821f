package hold

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, clock *fakeClock) Store

func storeImplementations() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *fakeClock) Store {
			return NewMemoryStore().WithClock(clock.Now)
		},
		"redis": func(t *testing.T, clock *fakeClock) Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { rdb.Close() })
			return NewRedisStore(rdb, "holds").WithClock(clock.Now)
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store, clock *fakeClock)) {
	for name, factory := range storeImplementations() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			fn(t, factory(t, clock), clock)
		})
	}
}

const ttl = 5 * time.Minute

var ctx = context.Background()

func TestAcquireIsAllOrNothing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *fakeClock) {
		h, err := s.TryAcquire(ctx, 7, []uint64{12, 13, 14}, "A", ttl)
		require.NoError(t, err)
		assert.Equal(t, clock.Now().Add(ttl).UnixMilli(), h.ExpiresAt.UnixMilli())

		_, err = s.TryAcquire(ctx, 7, []uint64{13, 15}, "B", ttl)
		var ce *apperr.ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, []uint64{13}, ce.SeatIDs)

		// 15 must not have been taken by the failed call
		own, err := s.VerifyOwnership(ctx, 7, []uint64{15}, "B")
		require.NoError(t, err)
		assert.False(t, own[15])

		_, err = s.TryAcquire(ctx, 7, []uint64{15, 16}, "B", ttl)
		require.NoError(t, err)
	})
}

func TestAcquireSameSessionReplaces(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *fakeClock) {
		_, err := s.TryAcquire(ctx, 1, []uint64{1, 2}, "A", ttl)
		require.NoError(t, err)
		clock.Advance(time.Minute)
		h, err := s.TryAcquire(ctx, 1, []uint64{2, 3}, "A", ttl)
		require.NoError(t, err)
		assert.Equal(t, clock.Now().Add(ttl).UnixMilli(), h.ExpiresAt.UnixMilli())
	})
}

func TestShowingsAreIndependent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ *fakeClock) {
		_, err := s.TryAcquire(ctx, 1, []uint64{5}, "A", ttl)
		require.NoError(t, err)
		_, err = s.TryAcquire(ctx, 2, []uint64{5}, "B", ttl)
		require.NoError(t, err)
	})
}

func TestExpiredHoldIsAbsent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *fakeClock) {
		_, err := s.TryAcquire(ctx, 7, []uint64{1}, "A", ttl)
		require.NoError(t, err)

		clock.Advance(ttl)
		own, err := s.VerifyOwnership(ctx, 7, []uint64{1}, "A")
		require.NoError(t, err)
		assert.False(t, own[1])

		snap, err := s.Snapshot(ctx, 7, "B")
		require.NoError(t, err)
		assert.Empty(t, snap.HeldByOther)

		_, err = s.TryAcquire(ctx, 7, []uint64{1}, "B", ttl)
		require.NoError(t, err)
	})
}

func TestReleaseIsIdempotentAndOwnerOnly(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ *fakeClock) {
		_, err := s.TryAcquire(ctx, 7, []uint64{1, 2}, "A", ttl)
		require.NoError(t, err)

		require.NoError(t, s.Release(ctx, 7, []uint64{1, 2}, "B"))
		own, err := s.VerifyOwnership(ctx, 7, []uint64{1, 2}, "A")
		require.NoError(t, err)
		assert.Equal(t, map[uint64]bool{1: true, 2: true}, own)

		require.NoError(t, s.Release(ctx, 7, []uint64{1}, "A"))
		require.NoError(t, s.Release(ctx, 7, []uint64{1}, "A"))
		require.NoError(t, s.Release(ctx, 99, []uint64{1}, "A"))

		own, err = s.VerifyOwnership(ctx, 7, []uint64{1, 2}, "A")
		require.NoError(t, err)
		assert.Equal(t, map[uint64]bool{1: false, 2: true}, own)
	})
}

func TestExtend(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *fakeClock) {
		h, err := s.TryAcquire(ctx, 7, []uint64{1, 2}, "A", ttl)
		require.NoError(t, err)

		exp, err := s.Extend(ctx, 7, []uint64{1, 2}, "A", 2*time.Minute, 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, h.ExpiresAt.Add(2*time.Minute).UnixMilli(), exp.UnixMilli())

		_, err = s.Extend(ctx, 7, []uint64{1}, "B", time.Minute, 15*time.Minute)
		assert.ErrorIs(t, err, apperr.ErrNotOwner)

		snap, err := s.Snapshot(ctx, 7, "A")
		require.NoError(t, err)
		require.Len(t, snap.HeldBySelf, 2)
		assert.Equal(t, exp.UnixMilli(), snap.HeldBySelf[0].ExpiresAt.UnixMilli())

		// 7 + 9 = 16 minutes exceeds the 15 minute cap
		_, err = s.Extend(ctx, 7, []uint64{1, 2}, "A", 9*time.Minute, 15*time.Minute)
		assert.ErrorIs(t, err, apperr.ErrExtendLimit)

		_, err = s.Extend(ctx, 7, []uint64{1, 3}, "A", time.Minute, 15*time.Minute)
		assert.ErrorIs(t, err, apperr.ErrHoldExpired)

		snap, err = s.Snapshot(ctx, 7, "A")
		require.NoError(t, err)
		assert.Equal(t, exp.UnixMilli(), snap.HeldBySelf[0].ExpiresAt.UnixMilli(), "failed extends must not mutate")

		clock.Advance(8 * time.Minute)
		_, err = s.Extend(ctx, 7, []uint64{1}, "A", time.Minute, 15*time.Minute)
		assert.ErrorIs(t, err, apperr.ErrHoldExpired)
	})
}

func TestSnapshotClassifiesSeats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ *fakeClock) {
		_, err := s.TryAcquire(ctx, 7, []uint64{3, 1}, "A", ttl)
		require.NoError(t, err)
		_, err = s.TryAcquire(ctx, 7, []uint64{2}, "B", ttl)
		require.NoError(t, err)
		_, err = s.TryAcquire(ctx, 7, []uint64{4}, "C", ttl)
		require.NoError(t, err)
		_, err = s.Commit(ctx, 7, []uint64{4}, "C", "sale-1")
		require.NoError(t, err)

		snap, err := s.Snapshot(ctx, 7, "A")
		require.NoError(t, err)
		require.Len(t, snap.HeldBySelf, 2)
		assert.Equal(t, uint64(1), snap.HeldBySelf[0].SeatID)
		assert.Equal(t, uint64(3), snap.HeldBySelf[1].SeatID)
		require.Len(t, snap.HeldByOther, 1)
		assert.Equal(t, uint64(2), snap.HeldByOther[0].SeatID)
		assert.Equal(t, []uint64{4}, snap.Committed)
	})
}

func TestCommitLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, clock *fakeClock) {
		h, err := s.TryAcquire(ctx, 7, []uint64{12, 13, 14}, "A", ttl)
		require.NoError(t, err)

		_, err = s.Commit(ctx, 7, []uint64{12, 13, 15}, "A", "sale-1")
		var ce *apperr.ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, []uint64{15}, ce.SeatIDs)

		deadline, err := s.Commit(ctx, 7, []uint64{12, 13, 14}, "A", "sale-1")
		require.NoError(t, err)
		assert.Equal(t, h.ExpiresAt.UnixMilli(), deadline.UnixMilli())

		// committed seats outlive the hold TTL and belong to no session
		clock.Advance(time.Hour)
		_, err = s.TryAcquire(ctx, 7, []uint64{13}, "B", ttl)
		assert.ErrorIs(t, err, apperr.ErrConflict)
		require.NoError(t, s.Release(ctx, 7, []uint64{13}, "A"))
		_, err = s.Extend(ctx, 7, []uint64{13}, "A", time.Minute, time.Hour)
		assert.ErrorIs(t, err, apperr.ErrNotOwner)
		own, err := s.VerifyOwnership(ctx, 7, []uint64{13}, "A")
		require.NoError(t, err)
		assert.False(t, own[13])

		require.NoError(t, s.ReleaseSale(ctx, 7, []uint64{12, 13, 14}, "other-sale"))
		_, err = s.TryAcquire(ctx, 7, []uint64{13}, "B", ttl)
		assert.ErrorIs(t, err, apperr.ErrConflict)

		require.NoError(t, s.ReleaseSale(ctx, 7, []uint64{12, 13, 14}, "sale-1"))
		require.NoError(t, s.ReleaseSale(ctx, 7, []uint64{12, 13, 14}, "sale-1"))
		_, err = s.TryAcquire(ctx, 7, []uint64{12, 13, 14}, "B", ttl)
		require.NoError(t, err)
	})
}

func TestRevertRestoresHold(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ *fakeClock) {
		h, err := s.TryAcquire(ctx, 7, []uint64{1, 2}, "A", ttl)
		require.NoError(t, err)
		deadline, err := s.Commit(ctx, 7, []uint64{1, 2}, "A", "sale-1")
		require.NoError(t, err)

		require.NoError(t, s.Revert(ctx, 7, []uint64{1, 2}, "sale-1", "A", deadline))

		own, err := s.VerifyOwnership(ctx, 7, []uint64{1, 2}, "A")
		require.NoError(t, err)
		assert.Equal(t, map[uint64]bool{1: true, 2: true}, own)
		snap, err := s.Snapshot(ctx, 7, "A")
		require.NoError(t, err)
		assert.Empty(t, snap.Committed)
		assert.Equal(t, h.ExpiresAt.UnixMilli(), snap.HeldBySelf[0].ExpiresAt.UnixMilli())
	})
}

func TestRestoreOverwrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ *fakeClock) {
		_, err := s.TryAcquire(ctx, 7, []uint64{1}, "A", ttl)
		require.NoError(t, err)
		require.NoError(t, s.Restore(ctx, 7, []uint64{1, 2}, "sale-9"))

		snap, err := s.Snapshot(ctx, 7, "A")
		require.NoError(t, err)
		assert.Empty(t, snap.HeldBySelf)
		assert.Equal(t, []uint64{1, 2}, snap.Committed)

		require.NoError(t, s.ReleaseSale(ctx, 7, []uint64{1, 2}, "sale-9"))
		snap, err = s.Snapshot(ctx, 7, "A")
		require.NoError(t, err)
		assert.Empty(t, snap.Committed)
	})
}

func TestConcurrentOverlappingAcquire(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ *fakeClock) {
		const workers = 32
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []int
		)
		start := make(chan struct{})
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				session := string(rune('a' + i))
				_, err := s.TryAcquire(ctx, 3, []uint64{uint64(1000 + i), 1}, session, ttl)
				if err == nil {
					mu.Lock()
					winners = append(winners, i)
					mu.Unlock()
					return
				}
				var ce *apperr.ConflictError
				if assert.True(t, errors.As(err, &ce)) {
					assert.Equal(t, []uint64{1}, ce.SeatIDs)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		require.Len(t, winners, 1)
		snap, err := s.Snapshot(ctx, 3, "nobody")
		require.NoError(t, err)
		assert.Len(t, snap.HeldByOther, 2, "losers must not keep their uncontended seat")
		assert.Equal(t, uint64(1000+winners[0]), snap.HeldByOther[1].SeatID)
	})
}

func TestRedisStorePurgesStaleEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := newFakeClock()
	s := NewRedisStore(rdb, "holds").WithClock(clock.Now)

	_, err := s.TryAcquire(ctx, 7, []uint64{1}, "A", ttl)
	require.NoError(t, err)
	mr.HSet("holds:7", "2", "garbage")
	clock.Advance(ttl + time.Second)

	_, err = s.Snapshot(ctx, 7, "A")
	require.NoError(t, err)
	assert.False(t, mr.Exists("holds:7"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewRedisStore(rdb, "holds")

	mock.ExpectHGetAll("holds:7").SetErr(errors.New("connection reset"))
	_, err := s.Snapshot(ctx, 7, "A")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	mock.ExpectHMGet("holds:7", "1", "2").SetErr(errors.New("connection reset"))
	_, err = s.VerifyOwnership(ctx, 7, []uint64{1, 2}, "A")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	mock.ExpectHSet("holds:7", "1", "1772388000000|0|sale-1|").SetErr(errors.New("connection reset"))
	s.WithClock(newFakeClock().Now)
	err = s.Restore(ctx, 7, []uint64{1}, "sale-1")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func showingCount(s *MemoryStore) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.showings)
}

func TestMemoryStoreDropsEmptyShowings(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore().WithClock(clock.Now)

	_, err := s.TryAcquire(ctx, 1, []uint64{1, 2}, "A", ttl)
	require.NoError(t, err)
	_, err = s.TryAcquire(ctx, 2, []uint64{1}, "B", ttl)
	require.NoError(t, err)
	assert.Equal(t, 2, showingCount(s))

	require.NoError(t, s.Release(ctx, 1, []uint64{1, 2}, "A"))
	assert.Equal(t, 1, showingCount(s))

	clock.Advance(ttl + time.Second)
	_, err = s.Snapshot(ctx, 2, "B")
	require.NoError(t, err)
	assert.Zero(t, showingCount(s))

	own, err := s.VerifyOwnership(ctx, 3, []uint64{1}, "C")
	require.NoError(t, err)
	assert.False(t, own[1])
	assert.Zero(t, showingCount(s))
}

func TestMemoryStoreHoldsSurviveShowingChurn(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(seat uint64) {
			defer wg.Done()
			session := fmt.Sprint("s", seat)
			for n := 0; n < 200; n++ {
				_, err := s.TryAcquire(ctx, 9, []uint64{seat}, session, time.Minute)
				if !assert.NoError(t, err) {
					return
				}
				own, err := s.VerifyOwnership(ctx, 9, []uint64{seat}, session)
				if !assert.NoError(t, err) || !assert.True(t, own[seat]) {
					return
				}
				assert.NoError(t, s.Release(ctx, 9, []uint64{seat}, session))
			}
		}(uint64(i + 1))
	}
	wg.Wait()
	assert.Zero(t, showingCount(s))
}
