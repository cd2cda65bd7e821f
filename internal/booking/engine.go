// Package booking turns verified seat holds into sales and drives them
// through payment to a terminal state.
//
//	PENDING --payment ok-------> CONFIRMED
//	PENDING --payment failed---> CANCELLED (payment FAILED)
//	PENDING --cancel-----------> CANCELLED (payment CANCELLED)
//	PENDING --deadline passed--> EXPIRED   (payment CANCELLED)
//
// Every transition is a conditional update guarded on PENDING, so a sale
// is never reopened and two racing transitions cannot both apply.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/layout"
	"github.com/iliyamo/cinema-ticketing/internal/metrics"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/pricing"
	"github.com/iliyamo/cinema-ticketing/internal/queue"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
)

// Holds is the part of the hold manager the engine relies on.
type Holds interface {
	Verify(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string) (map[uint64]bool, error)
	Commit(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID, saleID string) (time.Time, error)
	Revert(ctx context.Context, showingID uint64, seatIDs []uint64, saleID, sessionID string, expiresAt time.Time) error
	ReleaseSale(ctx context.Context, showingID uint64, seatIDs []uint64, saleID string) error
	Restore(ctx context.Context, showingID uint64, seatIDs []uint64, saleID string) error
}

// CreateRequest turns the session's hold on SeatIDs into a sale.
type CreateRequest struct {
	ShowingID   uint64
	SeatIDs     []uint64
	SessionID   string
	Buyer       model.Buyer
	UserID      *uint64
	VoucherCode string
	PointsToUse int64
}

// PaymentResult is what the payment gateway reports for a sale.
type PaymentResult struct {
	Success   bool
	Reference string
}

// UpdateRequest is a staff correction.  Nil fields are left unchanged.
type UpdateRequest struct {
	Name          *string
	Email         *string
	Phone         *string
	Status        *model.SaleStatus
	PaymentStatus *model.PaymentStatus
	PaymentRef    *string
}

type Engine struct {
	holds   Holds
	layouts layout.Provider
	sales   repository.SaleStore
	pricer  *pricing.Calculator
	events  queue.Publisher
	now     func() time.Time
	newCode func() string
}

func NewEngine(holds Holds, layouts layout.Provider, sales repository.SaleStore, pricer *pricing.Calculator, events queue.Publisher) *Engine {
	if events == nil {
		events = queue.LogPublisher{}
	}
	return &Engine{
		holds:   holds,
		layouts: layouts,
		sales:   sales,
		pricer:  pricer,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
		newCode: NewSaleCode,
	}
}

// WithClock replaces the time source.  Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func uniqueSorted(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func validateCreate(req CreateRequest) error {
	switch {
	case strings.TrimSpace(req.SessionID) == "":
		return apperr.Validation("session_id is required")
	case len(req.SeatIDs) == 0:
		return apperr.Validation("seat_ids must not be empty")
	case strings.TrimSpace(req.Buyer.Name) == "":
		return apperr.Validation("buyer name is required")
	case strings.TrimSpace(req.Buyer.Email) == "":
		return apperr.Validation("buyer email is required")
	}
	return nil
}

// Create verifies the hold, prices the seats, commits them to a new sale
// and persists it.  Nothing is left behind on failure: seats committed in
// the hold store are reverted if the sale cannot be stored.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*model.Sale, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	seats := uniqueSorted(req.SeatIDs)

	l, err := e.layouts.Layout(ctx, req.ShowingID)
	if err != nil {
		return nil, err
	}
	own, err := e.holds.Verify(ctx, req.ShowingID, seats, req.SessionID)
	if err != nil {
		return nil, err
	}
	var lost []uint64
	for _, id := range seats {
		if !own[id] {
			lost = append(lost, id)
		}
	}
	if len(lost) > 0 {
		metrics.HoldConflicts.Inc()
		return nil, apperr.NewConflict(lost)
	}

	q, err := e.pricer.Quote(ctx, pricing.Request{
		Layout:      l,
		SeatIDs:     seats,
		VoucherCode: req.VoucherCode,
		UserID:      req.UserID,
		PointsToUse: req.PointsToUse,
	})
	if err != nil {
		return nil, err
	}

	saleID := uuid.NewString()
	ledger := e.pricer.Ledger()
	if q.PointsRedeemed > 0 && ledger != nil {
		if err := ledger.Reserve(ctx, *req.UserID, q.PointsRedeemed, saleID); err != nil {
			return nil, err
		}
	}
	deadline, err := e.holds.Commit(ctx, req.ShowingID, seats, req.SessionID, saleID)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			metrics.HoldConflicts.Inc()
		}
		e.releasePoints(ctx, saleID, q.PointsRedeemed)
		return nil, err
	}

	s := e.buildSale(saleID, req, q, deadline)
	if err := e.sales.Create(ctx, s); err != nil {
		rctx, cancel := detach(ctx)
		defer cancel()
		if rerr := e.holds.Revert(rctx, req.ShowingID, seats, saleID, req.SessionID, deadline); rerr != nil {
			log.Error().Err(rerr).Str("sale_id", saleID).Msg("booking: revert after failed create")
		}
		e.releasePoints(ctx, saleID, q.PointsRedeemed)
		return nil, err
	}
	metrics.Sales.WithLabelValues("created").Inc()
	log.Info().Str("sale_id", s.ID).Str("code", s.Code).Uint64("showing_id", s.ShowingID).
		Int("seats", len(s.Tickets)).Int64("total_cents", s.TotalCents).Msg("sale created")

	e.publish(ctx, queue.PaymentRequested{
		SaleID:      s.ID,
		Code:        s.Code,
		AmountCents: s.TotalCents,
		BuyerName:   s.Buyer.Name,
		BuyerEmail:  s.Buyer.Email,
		Deadline:    deadline,
		RequestedAt: s.CreatedAt,
	})
	e.publish(ctx, saleEvent(queue.TypeSaleCreated, s, s.CreatedAt))
	return s, nil
}

func (e *Engine) buildSale(saleID string, req CreateRequest, q pricing.Quote, deadline time.Time) *model.Sale {
	now := e.now()
	s := &model.Sale{
		ID:              saleID,
		Code:            e.newCode(),
		UserID:          req.UserID,
		SessionID:       req.SessionID,
		Buyer:           req.Buyer,
		ShowingID:       req.ShowingID,
		SubtotalCents:   q.Subtotal,
		DiscountCents:   q.Discount,
		TaxCents:        q.Tax,
		ServiceFeeCents: q.ServiceFee,
		TotalCents:      q.Total,
		PointsRedeemed:  q.PointsRedeemed,
		Status:          model.SalePending,
		PaymentStatus:   model.PaymentPending,
		HoldDeadline:    &deadline,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if code := strings.TrimSpace(req.VoucherCode); code != "" {
		s.VoucherCode = &code
	}
	for _, ln := range q.Lines {
		s.Tickets = append(s.Tickets, model.Ticket{
			ID:             uuid.NewString(),
			SaleID:         saleID,
			ShowingID:      req.ShowingID,
			SeatID:         ln.Seat.SeatID,
			RowLabel:       ln.Seat.RowLabel,
			SeatNumber:     ln.Seat.SeatNumber,
			SeatType:       ln.Seat.SeatType,
			BaseCents:      ln.Base,
			SurchargeCents: ln.Surcharge,
			DiscountCents:  ln.Discount,
			FinalCents:     ln.Final,
			Status:         model.SalePending,
			CreatedAt:      now,
		})
	}
	return s
}

// Get returns a sale with its tickets.
func (e *Engine) Get(ctx context.Context, id string) (*model.Sale, error) {
	return e.sales.Get(ctx, id)
}

// Confirm applies the payment outcome.  A repeated report of the outcome
// already recorded returns the sale unchanged.
func (e *Engine) Confirm(ctx context.Context, id string, res PaymentResult) (*model.Sale, error) {
	s, err := e.sales.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Success {
		return e.confirm(ctx, s, res.Reference)
	}
	return e.failPayment(ctx, s, res.Reference)
}

func optRef(ref string) *string {
	if ref = strings.TrimSpace(ref); ref == "" {
		return nil
	}
	return &ref
}

func (e *Engine) confirm(ctx context.Context, s *model.Sale, ref string) (*model.Sale, error) {
	switch s.Status {
	case model.SaleConfirmed:
		return s, nil
	case model.SalePending:
	default:
		log.Warn().Str("sale_id", s.ID).Str("status", string(s.Status)).Str("payment_ref", ref).
			Msg("booking: payment succeeded for a closed sale; refund required")
		return nil, fmt.Errorf("confirm sale in %s: %w", s.Status, apperr.ErrInvalidTransition)
	}

	err := e.sales.UpdateStatus(ctx, s.ID, repository.StatusChange{
		From:       model.SalePending,
		To:         model.SaleConfirmed,
		Payment:    model.PaymentCompleted,
		PaymentRef: optRef(ref),
		At:         e.now(),
	})
	if errors.Is(err, repository.ErrStaleUpdate) {
		return e.resolveStale(ctx, s.ID, model.SaleConfirmed)
	}
	if err != nil {
		return nil, err
	}

	if s.PointsRedeemed > 0 {
		if ledger := e.pricer.Ledger(); ledger != nil {
			rctx, cancel := detach(ctx)
			err := ledger.Redeem(rctx, s.ID)
			cancel()
			if err != nil {
				log.Error().Err(err).Str("sale_id", s.ID).Int64("points", s.PointsRedeemed).Msg("booking: points redemption failed")
			}
		}
	}
	metrics.Sales.WithLabelValues("confirmed").Inc()
	return e.reloadAndPublish(ctx, s.ID, queue.TypeSaleConfirmed)
}

func (e *Engine) failPayment(ctx context.Context, s *model.Sale, ref string) (*model.Sale, error) {
	switch {
	case s.Status == model.SaleCancelled && s.PaymentStatus == model.PaymentFailed:
		return s, nil
	case s.Status != model.SalePending:
		return nil, fmt.Errorf("fail payment of sale in %s: %w", s.Status, apperr.ErrInvalidTransition)
	}
	err := e.sales.UpdateStatus(ctx, s.ID, repository.StatusChange{
		From:       model.SalePending,
		To:         model.SaleCancelled,
		Payment:    model.PaymentFailed,
		PaymentRef: optRef(ref),
		At:         e.now(),
	})
	if errors.Is(err, repository.ErrStaleUpdate) {
		return e.resolveStale(ctx, s.ID, model.SaleCancelled)
	}
	if err != nil {
		return nil, err
	}
	e.releaseSeats(ctx, s)
	metrics.Sales.WithLabelValues("failed").Inc()
	return e.reloadAndPublish(ctx, s.ID, queue.TypeSalePaymentFail)
}

// Cancel abandons a PENDING sale.  A non-empty sessionID must match the
// session that created the sale; staff cancel with an empty one.
func (e *Engine) Cancel(ctx context.Context, id, sessionID string) (*model.Sale, error) {
	s, err := e.sales.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sessionID != "" && s.SessionID != sessionID {
		return nil, apperr.ErrNotOwner
	}
	return e.cancel(ctx, s)
}

func (e *Engine) cancel(ctx context.Context, s *model.Sale) (*model.Sale, error) {
	if s.Status != model.SalePending {
		return nil, fmt.Errorf("cancel sale in %s: %w", s.Status, apperr.ErrInvalidTransition)
	}
	err := e.sales.UpdateStatus(ctx, s.ID, repository.StatusChange{
		From:    model.SalePending,
		To:      model.SaleCancelled,
		Payment: model.PaymentCancelled,
		At:      e.now(),
	})
	if errors.Is(err, repository.ErrStaleUpdate) {
		return e.resolveStale(ctx, s.ID, "")
	}
	if err != nil {
		return nil, err
	}
	e.releaseSeats(ctx, s)
	metrics.Sales.WithLabelValues("cancelled").Inc()
	return e.reloadAndPublish(ctx, s.ID, queue.TypeSaleCancelled)
}

// expire moves an overdue PENDING sale to EXPIRED.  With a non-nil
// deadlineBefore the update only applies if the hold deadline is still
// earlier than it.  A lost guard is reported as repository.ErrStaleUpdate.
func (e *Engine) expire(ctx context.Context, s *model.Sale, deadlineBefore *time.Time) error {
	err := e.sales.UpdateStatus(ctx, s.ID, repository.StatusChange{
		From:           model.SalePending,
		To:             model.SaleExpired,
		Payment:        model.PaymentCancelled,
		DeadlineBefore: deadlineBefore,
		At:             e.now(),
	})
	if err != nil {
		return err
	}
	e.releaseSeats(ctx, s)
	metrics.Sales.WithLabelValues("expired").Inc()
	s.Status, s.PaymentStatus, s.HoldDeadline = model.SaleExpired, model.PaymentCancelled, nil
	for i := range s.Tickets {
		s.Tickets[i].Status = model.SaleExpired
	}
	e.publish(ctx, saleEvent(queue.TypeSaleExpired, s, e.now()))
	return nil
}

// Update applies a staff correction to a PENDING sale.  Contact changes
// never re-run pricing.  Status and payment corrections go through the
// same guarded transitions as payment callbacks and cancellation.
func (e *Engine) Update(ctx context.Context, id string, req UpdateRequest) (*model.Sale, error) {
	s, err := e.sales.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != model.SalePending {
		return nil, fmt.Errorf("update sale in %s: %w", s.Status, apperr.ErrInvalidTransition)
	}
	action, err := correction(req)
	if err != nil {
		return nil, err
	}

	if req.Name != nil || req.Email != nil || req.Phone != nil {
		b := s.Buyer
		if req.Name != nil {
			b.Name = strings.TrimSpace(*req.Name)
		}
		if req.Email != nil {
			b.Email = strings.TrimSpace(*req.Email)
		}
		if req.Phone != nil {
			b.Phone = strings.TrimSpace(*req.Phone)
		}
		if b.Name == "" || b.Email == "" {
			return nil, apperr.Validation("buyer name and email must not be empty")
		}
		err := e.sales.UpdateContact(ctx, id, b, e.now())
		if errors.Is(err, repository.ErrStaleUpdate) {
			return nil, fmt.Errorf("update contact: %w", apperr.ErrInvalidTransition)
		}
		if err != nil {
			return nil, err
		}
		s.Buyer = b
	}

	ref := ""
	if req.PaymentRef != nil {
		ref = *req.PaymentRef
	}
	switch action {
	case actionConfirm:
		return e.confirm(ctx, s, ref)
	case actionFail:
		return e.failPayment(ctx, s, ref)
	case actionCancel:
		return e.cancel(ctx, s)
	case actionExpire:
		if err := e.expire(ctx, s, nil); err != nil {
			if errors.Is(err, repository.ErrStaleUpdate) {
				return e.resolveStale(ctx, id, model.SaleExpired)
			}
			return nil, err
		}
	}
	return e.sales.Get(ctx, id)
}

type action int

const (
	actionNone action = iota
	actionConfirm
	actionFail
	actionCancel
	actionExpire
)

// correction maps a requested status/payment pair onto one transition.
func correction(req UpdateRequest) (action, error) {
	byStatus, byPayment := actionNone, actionNone
	if req.Status != nil {
		switch *req.Status {
		case model.SalePending:
		case model.SaleConfirmed:
			byStatus = actionConfirm
		case model.SaleCancelled:
			byStatus = actionCancel
		case model.SaleExpired:
			byStatus = actionExpire
		default:
			return actionNone, apperr.Validation("unknown status %q", *req.Status)
		}
	}
	if req.PaymentStatus != nil {
		switch *req.PaymentStatus {
		case model.PaymentPending:
		case model.PaymentCompleted:
			byPayment = actionConfirm
		case model.PaymentFailed:
			byPayment = actionFail
		case model.PaymentCancelled:
			byPayment = actionCancel
		default:
			return actionNone, apperr.Validation("unknown payment_status %q", *req.PaymentStatus)
		}
	}
	switch {
	case byStatus == actionNone:
		return byPayment, nil
	case byPayment == actionNone || byPayment == byStatus:
		return byStatus, nil
	case byStatus == actionCancel && byPayment == actionFail:
		return actionFail, nil
	case byStatus == actionExpire && byPayment == actionCancel:
		return actionExpire, nil
	}
	return actionNone, apperr.Validation("status %s does not match payment_status %s", *req.Status, *req.PaymentStatus)
}

// RestoreHolds re-commits the seats of every PENDING and CONFIRMED sale
// into the hold store.  Called at startup so a volatile store never shows
// sold seats as free.
func (e *Engine) RestoreHolds(ctx context.Context) (int, error) {
	sales, err := e.sales.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range sales {
		if err := e.holds.Restore(ctx, s.ShowingID, s.SeatIDs(), s.ID); err != nil {
			return 0, fmt.Errorf("restore sale %s: %w", s.ID, err)
		}
	}
	return len(sales), nil
}

// resolveStale re-reads a sale after a guarded update lost a race.  If
// the sale ended up in want the call is treated as already done.
func (e *Engine) resolveStale(ctx context.Context, id string, want model.SaleStatus) (*model.Sale, error) {
	s, err := e.sales.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if want != "" && s.Status == want {
		return s, nil
	}
	return nil, fmt.Errorf("sale is %s: %w", s.Status, apperr.ErrInvalidTransition)
}

// cleanupTimeout bounds the hold store and ledger calls that undo or
// follow a sale transition.  They run detached from the caller's context:
// once the sale row has changed, an abandoned request must not leave its
// seats committed.
const cleanupTimeout = 5 * time.Second

func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

// releaseSeats frees the seats and loyalty points of a sale that closed
// unpaid.
func (e *Engine) releaseSeats(ctx context.Context, s *model.Sale) {
	rctx, cancel := detach(ctx)
	defer cancel()
	if err := e.holds.ReleaseSale(rctx, s.ShowingID, s.SeatIDs(), s.ID); err != nil {
		log.Error().Err(err).Str("sale_id", s.ID).Msg("booking: release seats failed")
	}
	e.releasePoints(ctx, s.ID, s.PointsRedeemed)
}

func (e *Engine) releasePoints(ctx context.Context, saleID string, points int64) {
	ledger := e.pricer.Ledger()
	if points <= 0 || ledger == nil {
		return
	}
	rctx, cancel := detach(ctx)
	defer cancel()
	if err := ledger.Release(rctx, saleID); err != nil {
		log.Error().Err(err).Str("sale_id", saleID).Int64("points", points).Msg("booking: release points failed")
	}
}

func (e *Engine) reloadAndPublish(ctx context.Context, id, eventType string) (*model.Sale, error) {
	s, err := e.sales.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Info().Str("sale_id", s.ID).Str("status", string(s.Status)).Str("payment_status", string(s.PaymentStatus)).Msg("sale updated")
	e.publish(ctx, saleEvent(eventType, s, s.UpdatedAt))
	return s, nil
}

func (e *Engine) publish(ctx context.Context, m queue.Message) {
	if err := e.events.Publish(ctx, m); err != nil {
		log.Warn().Err(err).Str("type", m.RoutingKey()).Msg("booking: publish event failed")
	}
}

func saleEvent(typ string, s *model.Sale, at time.Time) queue.SaleEvent {
	labels := make([]string, 0, len(s.Tickets))
	for _, t := range s.Tickets {
		labels = append(labels, fmt.Sprintf("%s%d", t.RowLabel, t.SeatNumber))
	}
	return queue.SaleEvent{
		Type:          typ,
		SaleID:        s.ID,
		Code:          s.Code,
		ShowingID:     s.ShowingID,
		UserID:        s.UserID,
		BuyerEmail:    s.Buyer.Email,
		SeatIDs:       s.SeatIDs(),
		SeatLabels:    labels,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		TotalCents:    s.TotalCents,
		OccurredAt:    at,
	}
}
