package layout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// SQLProvider reads layouts from the catalog tables:
//
//	shows(id, hall_id, format, base_price_cents)
//	seats(id, hall_id, row_label, seat_number, seat_type, is_active)
//	show_seats(show_id, seat_id, price_cents)  -- optional per-seat price
type SQLProvider struct {
	db *sqlx.DB
}

func NewSQLProvider(db *sqlx.DB) *SQLProvider {
	return &SQLProvider{db: db}
}

type showRow struct {
	ID             uint64 `db:"id"`
	Format         string `db:"format"`
	BasePriceCents int64  `db:"base_price_cents"`
}

func (p *SQLProvider) Layout(ctx context.Context, showingID uint64) (model.Layout, error) {
	const qShow = `SELECT id, COALESCE(format, '2D') AS format, base_price_cents
	               FROM shows WHERE id = ?`
	var sh showRow
	if err := p.db.GetContext(ctx, &sh, p.db.Rebind(qShow), showingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Layout{}, fmt.Errorf("showing %d: %w", showingID, apperr.ErrNotFound)
		}
		return model.Layout{}, fmt.Errorf("layout: load show: %v: %w", err, apperr.ErrUnavailable)
	}

	const qSeats = `SELECT s.id AS seat_id, s.row_label, s.seat_number, s.seat_type,
	                       COALESCE(ss.price_cents, 0) AS price_cents
	                FROM seats s
	                JOIN shows sh ON sh.hall_id = s.hall_id
	                LEFT JOIN show_seats ss ON ss.show_id = sh.id AND ss.seat_id = s.id
	                WHERE sh.id = ? AND s.is_active
	                ORDER BY s.row_label, s.seat_number`
	var seats []model.LayoutSeat
	if err := p.db.SelectContext(ctx, &seats, p.db.Rebind(qSeats), showingID); err != nil {
		return model.Layout{}, fmt.Errorf("layout: load seats: %v: %w", err, apperr.ErrUnavailable)
	}
	return model.Layout{
		ShowingID:      sh.ID,
		Format:         sh.Format,
		BasePriceCents: sh.BasePriceCents,
		Seats:          seats,
	}, nil
}
