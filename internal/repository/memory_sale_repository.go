package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// MemorySaleRepo keeps sales in process memory with the same guarded
// semantics as SaleRepo.  Used by STORAGE=memory and by tests.
type MemorySaleRepo struct {
	mu    sync.Mutex
	sales map[string]*model.Sale
	codes map[string]string
}

func NewMemorySaleRepo() *MemorySaleRepo {
	return &MemorySaleRepo{sales: map[string]*model.Sale{}, codes: map[string]string{}}
}

func cloneSale(s *model.Sale) *model.Sale {
	c := *s
	c.Tickets = append([]model.Ticket(nil), s.Tickets...)
	if s.HoldDeadline != nil {
		d := *s.HoldDeadline
		c.HoldDeadline = &d
	}
	return &c
}

func (r *MemorySaleRepo) Create(_ context.Context, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sales[s.ID]; ok {
		return fmt.Errorf("sale %s already exists", s.ID)
	}
	if _, ok := r.codes[s.Code]; ok {
		return fmt.Errorf("sale code %s already exists", s.Code)
	}
	r.sales[s.ID] = cloneSale(s)
	r.codes[s.Code] = s.ID
	return nil
}

func (r *MemorySaleRepo) Get(_ context.Context, id string) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok {
		return nil, fmt.Errorf("sale %s: %w", id, apperr.ErrNotFound)
	}
	return cloneSale(s), nil
}

func (r *MemorySaleRepo) UpdateStatus(_ context.Context, id string, ch StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok || s.Status != ch.From {
		return ErrStaleUpdate
	}
	if ch.DeadlineBefore != nil && (s.HoldDeadline == nil || !s.HoldDeadline.Before(*ch.DeadlineBefore)) {
		return ErrStaleUpdate
	}
	s.Status = ch.To
	s.PaymentStatus = ch.Payment
	if ch.PaymentRef != nil {
		ref := *ch.PaymentRef
		s.PaymentRef = &ref
	}
	s.HoldDeadline = nil
	s.UpdatedAt = ch.At
	for i := range s.Tickets {
		s.Tickets[i].Status = ch.To
	}
	return nil
}

func (r *MemorySaleRepo) UpdateContact(_ context.Context, id string, b model.Buyer, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok || s.Status != model.SalePending {
		return ErrStaleUpdate
	}
	s.Buyer = b
	s.UpdatedAt = at
	return nil
}

func (r *MemorySaleRepo) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Sale
	for _, s := range r.sales {
		if s.Status == model.SalePending && s.HoldDeadline != nil && s.HoldDeadline.Before(now) {
			out = append(out, cloneSale(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HoldDeadline.Before(*out[j].HoldDeadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemorySaleRepo) ListActive(_ context.Context) ([]*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Sale
	for _, s := range r.sales {
		if s.Status == model.SalePending || s.Status == model.SaleConfirmed {
			out = append(out, cloneSale(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var (
	_ SaleStore = (*SaleRepo)(nil)
	_ SaleStore = (*MemorySaleRepo)(nil)
)
