package hold

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/config"
	"github.com/iliyamo/cinema-ticketing/internal/layout"
	"github.com/iliyamo/cinema-ticketing/internal/metrics"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

const (
	HolderSelf  = "you"
	HolderOther = "another"
)

// AcquireRequest asks for a hold on a set of seats of one showing.
type AcquireRequest struct {
	ShowingID    uint64
	SeatIDs      []uint64
	SessionID    string
	ContactEmail string
}

// HeldSeat is a seat under a live hold, labelled by who holds it.
type HeldSeat struct {
	SeatID    uint64    `json:"seat_id"`
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Availability partitions the seats of a showing for one session.
type Availability struct {
	ShowingID uint64     `json:"showing_id"`
	Available []uint64   `json:"available"`
	Held      []HeldSeat `json:"held"`
	Reserved  []uint64   `json:"reserved"`
}

// Manager is the client-facing hold API.  It validates requests against
// the showing layout and applies the configured TTL and extension cap
// before delegating to the Store.
type Manager struct {
	store    Store
	layouts  layout.Provider
	ttl      time.Duration
	maxTotal time.Duration
}

func NewManager(store Store, layouts layout.Provider, cfg config.HoldConfig) *Manager {
	m := &Manager{store: store, layouts: layouts, ttl: cfg.TTL, maxTotal: cfg.MaxTotal}
	if m.ttl <= 0 {
		m.ttl = 5 * time.Minute
	}
	if m.maxTotal < m.ttl {
		m.maxTotal = 3 * m.ttl
	}
	return m
}

// TTL is the lifetime of a fresh hold.
func (m *Manager) TTL() time.Duration { return m.ttl }

// normalize checks the session and returns the seat ids without
// duplicates, in request order.
func normalize(seatIDs []uint64, sessionID string) ([]uint64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Validation("session_id is required")
	}
	if len(seatIDs) == 0 {
		return nil, apperr.Validation("seat_ids must not be empty")
	}
	seen := make(map[uint64]struct{}, len(seatIDs))
	out := make([]uint64, 0, len(seatIDs))
	for _, id := range seatIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// checkSeats ensures every seat belongs to the showing's layout.
func (m *Manager) checkSeats(ctx context.Context, showingID uint64, seatIDs []uint64) error {
	l, err := m.layouts.Layout(ctx, showingID)
	if err != nil {
		return err
	}
	var unknown []string
	for _, id := range seatIDs {
		if _, ok := l.Seat(id); !ok {
			unknown = append(unknown, fmt.Sprint(id))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("seats %s: %w", strings.Join(unknown, ","), apperr.ErrInvalidSeat)
	}
	return nil
}

// Acquire places an all-or-nothing hold on the requested seats.
func (m *Manager) Acquire(ctx context.Context, req AcquireRequest) (model.SeatHold, error) {
	seats, err := normalize(req.SeatIDs, req.SessionID)
	if err != nil {
		return model.SeatHold{}, err
	}
	if err := m.checkSeats(ctx, req.ShowingID, seats); err != nil {
		return model.SeatHold{}, err
	}
	h, err := m.store.TryAcquire(ctx, req.ShowingID, seats, req.SessionID, m.ttl)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			metrics.HoldConflicts.Inc()
			log.Debug().Uint64("showing_id", req.ShowingID).Err(err).Msg("hold conflict")
		}
		return model.SeatHold{}, err
	}
	h.ContactEmail = req.ContactEmail
	metrics.HoldsAcquired.Inc()
	metrics.HoldSeats.Observe(float64(len(seats)))
	return h, nil
}

// Release drops the session's holds on the given seats.
func (m *Manager) Release(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string) error {
	seats, err := normalize(seatIDs, sessionID)
	if err != nil {
		return err
	}
	return m.store.Release(ctx, showingID, seats, sessionID)
}

// Extend adds time to the session's holds, bounded by the configured
// maximum hold lifetime.
func (m *Manager) Extend(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string, additional time.Duration) (time.Time, error) {
	seats, err := normalize(seatIDs, sessionID)
	if err != nil {
		return time.Time{}, err
	}
	if additional <= 0 {
		return time.Time{}, apperr.Validation("additional time must be positive")
	}
	return m.store.Extend(ctx, showingID, seats, sessionID, additional, m.maxTotal)
}

// Availability lists free, held and reserved seats of a showing, labelling
// holds by whether sessionID owns them.
func (m *Manager) Availability(ctx context.Context, showingID uint64, sessionID string) (Availability, error) {
	l, err := m.layouts.Layout(ctx, showingID)
	if err != nil {
		return Availability{}, err
	}
	snap, err := m.store.Snapshot(ctx, showingID, sessionID)
	if err != nil {
		return Availability{}, err
	}

	out := Availability{
		ShowingID: showingID,
		Available: []uint64{},
		Held:      make([]HeldSeat, 0, len(snap.HeldBySelf)+len(snap.HeldByOther)),
		Reserved:  []uint64{},
	}
	taken := make(map[uint64]struct{})
	for _, s := range snap.HeldBySelf {
		taken[s.SeatID] = struct{}{}
		out.Held = append(out.Held, HeldSeat{SeatID: s.SeatID, Holder: HolderSelf, ExpiresAt: s.ExpiresAt})
	}
	for _, s := range snap.HeldByOther {
		taken[s.SeatID] = struct{}{}
		out.Held = append(out.Held, HeldSeat{SeatID: s.SeatID, Holder: HolderOther, ExpiresAt: s.ExpiresAt})
	}
	for _, id := range snap.Committed {
		taken[id] = struct{}{}
		out.Reserved = append(out.Reserved, id)
	}
	for _, id := range l.SeatIDs() {
		if _, ok := taken[id]; !ok {
			out.Available = append(out.Available, id)
		}
	}
	return out, nil
}

// Verify reports per seat whether sessionID currently holds it.
func (m *Manager) Verify(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string) (map[uint64]bool, error) {
	seats, err := normalize(seatIDs, sessionID)
	if err != nil {
		return nil, err
	}
	return m.store.VerifyOwnership(ctx, showingID, seats, sessionID)
}

func (m *Manager) Commit(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID, saleID string) (time.Time, error) {
	return m.store.Commit(ctx, showingID, seatIDs, sessionID, saleID)
}

func (m *Manager) Revert(ctx context.Context, showingID uint64, seatIDs []uint64, saleID, sessionID string, expiresAt time.Time) error {
	return m.store.Revert(ctx, showingID, seatIDs, saleID, sessionID, expiresAt)
}

func (m *Manager) ReleaseSale(ctx context.Context, showingID uint64, seatIDs []uint64, saleID string) error {
	return m.store.ReleaseSale(ctx, showingID, seatIDs, saleID)
}

func (m *Manager) Restore(ctx context.Context, showingID uint64, seatIDs []uint64, saleID string) error {
	return m.store.Restore(ctx, showingID, seatIDs, saleID)
}
