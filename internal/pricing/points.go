package pricing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
)

var ErrInsufficientPoints = fmt.Errorf("%w: insufficient loyalty points", apperr.ErrValidation)

type reservation struct {
	userID uint64
	points int64
}

// MemoryLedger is an in-process PointsLedger.  Points priced into a
// PENDING sale are reserved so two open sales cannot spend the same
// balance; Redeem settles the reservation and Release hands it back.
// Every call is idempotent per sale.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[uint64]int64
	held     map[uint64]int64
	reserved map[string]reservation
	redeemed map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: map[uint64]int64{},
		held:     map[uint64]int64{},
		reserved: map[string]reservation{},
		redeemed: map[string]struct{}{},
	}
}

// Credit adds points to a user's balance.
func (l *MemoryLedger) Credit(userID uint64, points int64) {
	l.mu.Lock()
	l.balances[userID] += points
	l.mu.Unlock()
}

// Seed credits balances from a string like "42:500,7:1200" (user id and
// points).  It is how LOYALTY_POINTS loads opening balances.
func (l *MemoryLedger) Seed(raw string) error {
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		user, pts, ok := strings.Cut(part, ":")
		if !ok {
			return fmt.Errorf("points %q: want USER:POINTS", part)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(user), 10, 64)
		if err != nil {
			return fmt.Errorf("points %q: bad user id", part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(pts), 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("points %q: bad amount", part)
		}
		l.Credit(id, n)
	}
	return nil
}

// Balance is the spendable balance: credited points minus those reserved
// by open sales.
func (l *MemoryLedger) Balance(_ context.Context, userID uint64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID] - l.held[userID], nil
}

func (l *MemoryLedger) Reserve(_ context.Context, userID uint64, points int64, saleID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if points <= 0 {
		return nil
	}
	if _, ok := l.reserved[saleID]; ok {
		return nil
	}
	if _, ok := l.redeemed[saleID]; ok {
		return nil
	}
	if l.balances[userID]-l.held[userID] < points {
		return ErrInsufficientPoints
	}
	l.reserved[saleID] = reservation{userID: userID, points: points}
	l.held[userID] += points
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, saleID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reserved[saleID]
	if !ok {
		return nil
	}
	delete(l.reserved, saleID)
	l.held[r.userID] -= r.points
	return nil
}

func (l *MemoryLedger) Redeem(_ context.Context, saleID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, done := l.redeemed[saleID]; done {
		return nil
	}
	r, ok := l.reserved[saleID]
	if !ok {
		return fmt.Errorf("redeem points of sale %s: no reservation", saleID)
	}
	delete(l.reserved, saleID)
	l.held[r.userID] -= r.points
	l.balances[r.userID] -= r.points
	l.redeemed[saleID] = struct{}{}
	return nil
}
