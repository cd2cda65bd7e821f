package hold

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// entry is a hold when expiresAt is set and a committed reservation when it
// is zero.
type entry struct {
	createdAt time.Time
	expiresAt time.Time
	saleID    string
	sessionID string
}

func (e entry) committed() bool { return e.expiresAt.IsZero() }

func (e entry) live(now time.Time) bool {
	return e.committed() || now.Before(e.expiresAt)
}

func (e entry) ownedBy(sessionID string) bool {
	return !e.committed() && e.sessionID == sessionID
}

type showingSeats struct {
	mu    sync.Mutex
	seats map[uint64]entry
	gone  bool // dropped from the store; callers must look it up again
}

// MemoryStore keeps holds in process memory.  Each showing has its own
// lock so traffic for different showings never contends.  A showing is
// dropped once its last entry is removed; expired entries go when the
// showing is next touched.  Holds do not survive a restart; committed
// seats are rebuilt with Restore.
type MemoryStore struct {
	mu       sync.Mutex
	showings map[uint64]*showingSeats
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{showings: make(map[uint64]*showingSeats), now: time.Now}
}

// WithClock replaces the time source.  Tests only.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// lock returns the showing's seats with sh.mu held.
func (s *MemoryStore) lock(id uint64) *showingSeats {
	for {
		s.mu.Lock()
		sh, ok := s.showings[id]
		if !ok {
			sh = &showingSeats{seats: make(map[uint64]entry)}
			s.showings[id] = sh
		}
		s.mu.Unlock()

		sh.mu.Lock()
		if !sh.gone {
			return sh
		}
		sh.mu.Unlock()
	}
}

// unlock releases sh.mu, first dropping the showing if it has no entries.
func (s *MemoryStore) unlock(id uint64, sh *showingSeats) {
	if len(sh.seats) == 0 {
		s.mu.Lock()
		if s.showings[id] == sh {
			delete(s.showings, id)
		}
		s.mu.Unlock()
		sh.gone = true
	}
	sh.mu.Unlock()
}

// lookup returns the live entry for a seat, deleting a stale one.
// Caller holds sh.mu.
func (sh *showingSeats) lookup(seatID uint64, now time.Time) (entry, bool) {
	e, ok := sh.seats[seatID]
	if !ok {
		return entry{}, false
	}
	if !e.live(now) {
		delete(sh.seats, seatID)
		return entry{}, false
	}
	return e, true
}

func (s *MemoryStore) TryAcquire(_ context.Context, showingID uint64, seatIDs []uint64, sessionID string, ttl time.Duration) (model.SeatHold, error) {
	sh := s.lock(showingID)
	defer s.unlock(showingID, sh)

	now := s.now()
	var taken []uint64
	for _, id := range seatIDs {
		if e, ok := sh.lookup(id, now); ok && !e.ownedBy(sessionID) {
			taken = append(taken, id)
		}
	}
	if len(taken) > 0 {
		return model.SeatHold{}, apperr.NewConflict(taken)
	}

	exp := now.Add(ttl)
	for _, id := range seatIDs {
		sh.seats[id] = entry{createdAt: now, expiresAt: exp, sessionID: sessionID}
	}
	return model.SeatHold{
		ShowingID: showingID,
		SeatIDs:   append([]uint64(nil), seatIDs...),
		SessionID: sessionID,
		ExpiresAt: exp,
		CreatedAt: now,
	}, nil
}

func (s *MemoryStore) Release(_ context.Context, showingID uint64, seatIDs []uint64, sessionID string) error {
	sh := s.lock(showingID)
	defer s.unlock(showingID, sh)

	now := s.now()
	for _, id := range seatIDs {
		if e, ok := sh.lookup(id, now); ok && e.ownedBy(sessionID) {
			delete(sh.seats, id)
		}
	}
	return nil
}

func (s *MemoryStore) Extend(_ context.Context, showingID uint64, seatIDs []uint64, sessionID string, additional, maxTotal time.Duration) (time.Time, error) {
	sh := s.lock(showingID)
	defer s.unlock(showingID, sh)

	now := s.now()
	var expired, overLimit bool
	for _, id := range seatIDs {
		e, ok := sh.lookup(id, now)
		if !ok {
			expired = true
			continue
		}
		if !e.ownedBy(sessionID) {
			return time.Time{}, apperr.ErrNotOwner
		}
		if e.expiresAt.Add(additional).After(e.createdAt.Add(maxTotal)) {
			overLimit = true
		}
	}
	if expired {
		return time.Time{}, apperr.ErrHoldExpired
	}
	if overLimit {
		return time.Time{}, apperr.ErrExtendLimit
	}

	var earliest time.Time
	for _, id := range seatIDs {
		e := sh.seats[id]
		e.expiresAt = e.expiresAt.Add(additional)
		sh.seats[id] = e
		if earliest.IsZero() || e.expiresAt.Before(earliest) {
			earliest = e.expiresAt
		}
	}
	return earliest, nil
}

func (s *MemoryStore) Snapshot(_ context.Context, showingID uint64, sessionID string) (Snapshot, error) {
	sh := s.lock(showingID)
	defer s.unlock(showingID, sh)

	now := s.now()
	var snap Snapshot
	for id := range sh.seats {
		e, ok := sh.lookup(id, now)
		switch {
		case !ok:
		case e.committed():
			snap.Committed = append(snap.Committed, id)
		case e.sessionID == sessionID:
			snap.HeldBySelf = append(snap.HeldBySelf, SeatExpiry{SeatID: id, ExpiresAt: e.expiresAt})
		default:
			snap.HeldByOther = append(snap.HeldByOther, SeatExpiry{SeatID: id, ExpiresAt: e.expiresAt})
		}
	}
	sortExpiries(snap.HeldBySelf)
	sortExpiries(snap.HeldByOther)
	sortIDs(snap.Committed)
	return snap, nil
}

func (s *MemoryStore) VerifyOwnership(_ context.Context, showingID uint64, seatIDs []uint64, sessionID string) (map[uint64]bool, error) {
	sh := s.lock(showingID)
	defer s.unlock(showingID, sh)

	now := s.now()
	out := make(map[uint64]bool, len(seatIDs))
	for _, id := range seatIDs {
		e, ok := sh.lookup(id, now)
		out[id] = ok && e.ownedBy(sessionID)
	}
	return out, nil
}

func (s *MemoryStore) Commit(_ context.Context, showingID uint64, seatIDs []uint64, sessionID, saleID string) (time.Time, error) {
	sh := s.lock(showingID)
	defer s.unlock(showingID, sh)

	now := s.now()
	var lost []uint64
	var deadline time.Time
	for _, id := range seatIDs {
		e, ok := sh.lookup(id, now)
		if !ok || !e.ownedBy(sessionID) {
			lost = append(lost, id)
			continue
		}
		if deadline.IsZero() || e.expiresAt.Before(deadline) {
			deadline = e.expiresAt
		}
	}
	if len(lost) > 0 {
		return time.Time{}, apperr.NewConflict(lost)
	}
	for _, id := range seatIDs {
		e := sh.seats[id]
		e.expiresAt = time.Time{}
		e.saleID = saleID
		sh.seats[id] = e
	}
	return deadline, nil
}

func (s *MemoryStore) Revert(_ context.Context, showingID uint64, seatIDs []uint64, saleID, sessionID string, expiresAt time.Time) error {
	sh := s.lock(showingID)
	defer s.unlock(showingID, sh)

	for _, id := range seatIDs {
		if e, ok := sh.seats[id]; ok && e.committed() && e.saleID == saleID {
			sh.seats[id] = entry{createdAt: e.createdAt, expiresAt: expiresAt, sessionID: sessionID}
		}
	}
	return nil
}

func (s *MemoryStore) ReleaseSale(_ context.Context, showingID uint64, seatIDs []uint64, saleID string) error {
	sh := s.lock(showingID)
	defer s.unlock(showingID, sh)

	for _, id := range seatIDs {
		if e, ok := sh.seats[id]; ok && e.committed() && e.saleID == saleID {
			delete(sh.seats, id)
		}
	}
	return nil
}

func (s *MemoryStore) Restore(_ context.Context, showingID uint64, seatIDs []uint64, saleID string) error {
	sh := s.lock(showingID)
	defer s.unlock(showingID, sh)

	now := s.now()
	for _, id := range seatIDs {
		sh.seats[id] = entry{createdAt: now, saleID: saleID}
	}
	return nil
}
