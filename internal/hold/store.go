// Package hold implements seat holds: short-lived, per-session claims on
// seats of a showing that guarantee a buyer can finish checkout without
// someone else taking the seats.
//
// A Store keeps one entry per (showing, seat).  An entry is either a hold
// owned by a session, with an expiry, or a committed reservation tied to a
// sale, which never expires on its own.  Every multi-seat mutation is
// all-or-nothing.
package hold

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// SeatExpiry pairs a held seat with the instant its hold lapses.
type SeatExpiry struct {
	SeatID    uint64    `json:"seat_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Snapshot is the live state of a showing as seen by one session.
type Snapshot struct {
	HeldBySelf  []SeatExpiry
	HeldByOther []SeatExpiry
	Committed   []uint64
}

// Store is the atomic seat-hold primitive.  Implementations must treat an
// entry past its expiry as absent.
type Store interface {
	// TryAcquire holds all seats for sessionID or none of them.  It fails
	// with *apperr.ConflictError naming only the seats held by another
	// session or committed to a sale.
	TryAcquire(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string, ttl time.Duration) (model.SeatHold, error)

	// Release drops the caller's uncommitted holds.  Missing entries are
	// not an error.
	Release(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string) error

	// Extend pushes every seat's expiry out by additional, without letting
	// it pass createdAt+maxTotal.  It returns the earliest new expiry and
	// mutates nothing on failure.
	Extend(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string, additional, maxTotal time.Duration) (time.Time, error)

	Snapshot(ctx context.Context, showingID uint64, sessionID string) (Snapshot, error)

	// VerifyOwnership reports per seat whether sessionID holds it right now.
	VerifyOwnership(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string) (map[uint64]bool, error)

	// Commit turns the caller's live holds into reservations for saleID and
	// returns the earliest original expiry.
	Commit(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID, saleID string) (time.Time, error)

	// Revert undoes Commit, restoring the holds with the given expiry.
	Revert(ctx context.Context, showingID uint64, seatIDs []uint64, saleID, sessionID string, expiresAt time.Time) error

	// ReleaseSale frees seats committed to saleID.
	ReleaseSale(ctx context.Context, showingID uint64, seatIDs []uint64, saleID string) error

	// Restore registers seats as committed to saleID regardless of their
	// current state.  Used to rebuild a volatile store after a restart.
	Restore(ctx context.Context, showingID uint64, seatIDs []uint64, saleID string) error
}

func sortExpiries(s []SeatExpiry) {
	sort.Slice(s, func(i, j int) bool { return s[i].SeatID < s[j].SeatID })
}

func sortIDs(ids []uint64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
