package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

var saleColumns = []string{
	"id", "code", "user_id", "session_id", "buyer_name", "buyer_email", "buyer_phone",
	"showing_id", "subtotal_cents", "discount_cents", "tax_cents", "service_fee_cents",
	"total_cents", "points_redeemed", "voucher_code", "status", "payment_status",
	"payment_ref", "hold_deadline", "created_at", "updated_at",
}

var ticketColumns = []string{
	"id", "sale_id", "showing_id", "seat_id", "row_label", "seat_number", "seat_type",
	"base_cents", "surcharge_cents", "discount_cents", "final_cents", "status", "created_at",
}

func namedList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = ":" + c
	}
	return strings.Join(out, ", ")
}

var (
	selectSale    = "SELECT " + strings.Join(saleColumns, ", ") + " FROM sales"
	selectTickets = "SELECT " + strings.Join(ticketColumns, ", ") + " FROM tickets"
	insertSale    = "INSERT INTO sales (" + strings.Join(saleColumns, ", ") + ") VALUES (" + namedList(saleColumns) + ")"
	insertTickets = "INSERT INTO tickets (" + strings.Join(ticketColumns, ", ") + ") VALUES (" + namedList(ticketColumns) + ")"
)

// SaleRepo stores sales in MySQL or Postgres.  Queries are written with
// '?' placeholders and rebound for the connection's driver.
type SaleRepo struct {
	db *sqlx.DB
}

// NewSaleRepo returns a SaleRepo bound to db.
func NewSaleRepo(db *sqlx.DB) *SaleRepo { return &SaleRepo{db: db} }

func dbErr(op string, err error) error {
	return fmt.Errorf("sales %s: %v: %w", op, err, apperr.ErrUnavailable)
}

// Create inserts the sale and all of its tickets in one transaction.
func (r *SaleRepo) Create(ctx context.Context, s *model.Sale) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return dbErr("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, insertSale, s); err != nil {
		return dbErr("insert sale", err)
	}
	if len(s.Tickets) > 0 {
		if _, err = tx.NamedExecContext(ctx, insertTickets, s.Tickets); err != nil {
			return dbErr("insert tickets", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return dbErr("commit", err)
	}
	committed = true
	return nil
}

// Get loads a sale with its tickets.
func (r *SaleRepo) Get(ctx context.Context, id string) (*model.Sale, error) {
	var s model.Sale
	if err := r.db.GetContext(ctx, &s, r.db.Rebind(selectSale+" WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sale %s: %w", id, apperr.ErrNotFound)
		}
		return nil, dbErr("get", err)
	}
	if err := r.db.SelectContext(ctx, &s.Tickets,
		r.db.Rebind(selectTickets+" WHERE sale_id = ? ORDER BY seat_id"), id); err != nil {
		return nil, dbErr("get tickets", err)
	}
	return &s, nil
}

// UpdateStatus applies a guarded transition to the sale and its tickets.
func (r *SaleRepo) UpdateStatus(ctx context.Context, id string, ch StatusChange) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return dbErr("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	q := `UPDATE sales
	      SET status = ?, payment_status = ?, payment_ref = COALESCE(?, payment_ref),
	          hold_deadline = NULL, updated_at = ?
	      WHERE id = ? AND status = ?`
	args := []interface{}{ch.To, ch.Payment, ch.PaymentRef, ch.At, id, ch.From}
	if ch.DeadlineBefore != nil {
		q += " AND hold_deadline < ?"
		args = append(args, *ch.DeadlineBefore)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
	if err != nil {
		return dbErr("update status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("update status", err)
	}
	if n == 0 {
		return ErrStaleUpdate
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tickets SET status = ? WHERE sale_id = ?`), ch.To, id); err != nil {
		return dbErr("update tickets", err)
	}
	if err := tx.Commit(); err != nil {
		return dbErr("commit", err)
	}
	committed = true
	return nil
}

// UpdateContact replaces the buyer fields of a PENDING sale.
func (r *SaleRepo) UpdateContact(ctx context.Context, id string, b model.Buyer, at time.Time) error {
	const q = `UPDATE sales SET buyer_name = ?, buyer_email = ?, buyer_phone = ?, updated_at = ?
	           WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), b.Name, b.Email, b.Phone, at, id, model.SalePending)
	if err != nil {
		return dbErr("update contact", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("update contact", err)
	}
	if n == 0 {
		return ErrStaleUpdate
	}
	return nil
}

// ListExpiredPending returns up to limit PENDING sales whose hold deadline
// is before now, oldest first.
func (r *SaleRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.Sale, error) {
	var sales []*model.Sale
	q := selectSale + " WHERE status = ? AND hold_deadline < ? ORDER BY hold_deadline LIMIT ?"
	if err := r.db.SelectContext(ctx, &sales, r.db.Rebind(q), model.SalePending, now, limit); err != nil {
		return nil, dbErr("list expired", err)
	}
	return sales, r.attachTickets(ctx, sales)
}

// ListActive returns every PENDING or CONFIRMED sale.  Used at startup to
// rebuild committed seats in a volatile hold store.
func (r *SaleRepo) ListActive(ctx context.Context) ([]*model.Sale, error) {
	var sales []*model.Sale
	q := selectSale + " WHERE status IN (?, ?)"
	if err := r.db.SelectContext(ctx, &sales, r.db.Rebind(q), model.SalePending, model.SaleConfirmed); err != nil {
		return nil, dbErr("list active", err)
	}
	return sales, r.attachTickets(ctx, sales)
}

func (r *SaleRepo) attachTickets(ctx context.Context, sales []*model.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, len(sales))
	byID := make(map[string]*model.Sale, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
		byID[s.ID] = s
	}
	q, args, err := sqlx.In(selectTickets+" WHERE sale_id IN (?) ORDER BY sale_id, seat_id", ids)
	if err != nil {
		return dbErr("list tickets", err)
	}
	var tickets []model.Ticket
	if err := r.db.SelectContext(ctx, &tickets, r.db.Rebind(q), args...); err != nil {
		return dbErr("list tickets", err)
	}
	for _, t := range tickets {
		if s, ok := byID[t.SaleID]; ok {
			s.Tickets = append(s.Tickets, t)
		}
	}
	return nil
}
