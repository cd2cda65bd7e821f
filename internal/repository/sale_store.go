package repository

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// StatusChange moves a sale from one status to another.  The update only
// applies while the sale is in From and, when DeadlineBefore is set, its
// hold deadline is earlier than that instant.  Leaving PENDING always
// clears the hold deadline.
type StatusChange struct {
	From           model.SaleStatus
	To             model.SaleStatus
	Payment        model.PaymentStatus
	PaymentRef     *string
	DeadlineBefore *time.Time
	At             time.Time
}

// SaleStore is implemented by SaleRepo (SQL) and MemorySaleRepo.
type SaleStore interface {
	Create(ctx context.Context, s *model.Sale) error
	Get(ctx context.Context, id string) (*model.Sale, error)
	UpdateStatus(ctx context.Context, id string, ch StatusChange) error
	UpdateContact(ctx context.Context, id string, b model.Buyer, at time.Time) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.Sale, error)
	ListActive(ctx context.Context) ([]*model.Sale, error)
}
