package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Sales and tickets are owned by this service.  The catalog tables read by
// the layout provider (shows, seats, show_seats) belong to the catalog and
// are not created here.

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS sales (
		id                CHAR(36)        NOT NULL PRIMARY KEY,
		code              VARCHAR(32)     NOT NULL,
		user_id           BIGINT UNSIGNED NULL,
		session_id        VARCHAR(128)    NOT NULL,
		buyer_name        VARCHAR(255)    NOT NULL,
		buyer_email       VARCHAR(255)    NOT NULL,
		buyer_phone       VARCHAR(64)     NOT NULL DEFAULT '',
		showing_id        BIGINT UNSIGNED NOT NULL,
		subtotal_cents    BIGINT          NOT NULL,
		discount_cents    BIGINT          NOT NULL,
		tax_cents         BIGINT          NOT NULL,
		service_fee_cents BIGINT          NOT NULL,
		total_cents       BIGINT          NOT NULL,
		points_redeemed   BIGINT          NOT NULL DEFAULT 0,
		voucher_code      VARCHAR(64)     NULL,
		status            VARCHAR(16)     NOT NULL,
		payment_status    VARCHAR(16)     NOT NULL,
		payment_ref       VARCHAR(128)    NULL,
		hold_deadline     DATETIME(3)     NULL,
		created_at        DATETIME(3)     NOT NULL,
		updated_at        DATETIME(3)     NOT NULL,
		UNIQUE KEY uq_sales_code (code),
		KEY idx_sales_status_deadline (status, hold_deadline)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id              CHAR(36)        NOT NULL PRIMARY KEY,
		sale_id         CHAR(36)        NOT NULL,
		showing_id      BIGINT UNSIGNED NOT NULL,
		seat_id         BIGINT UNSIGNED NOT NULL,
		row_label       VARCHAR(8)      NOT NULL,
		seat_number     INT UNSIGNED    NOT NULL,
		seat_type       VARCHAR(16)     NOT NULL,
		base_cents      BIGINT          NOT NULL,
		surcharge_cents BIGINT          NOT NULL,
		discount_cents  BIGINT          NOT NULL,
		final_cents     BIGINT          NOT NULL,
		status          VARCHAR(16)     NOT NULL,
		created_at      DATETIME(3)     NOT NULL,
		KEY idx_tickets_sale (sale_id),
		KEY idx_tickets_showing_seat (showing_id, seat_id),
		CONSTRAINT fk_tickets_sale FOREIGN KEY (sale_id) REFERENCES sales(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS sales (
		id                UUID         PRIMARY KEY,
		code              VARCHAR(32)  NOT NULL UNIQUE,
		user_id           BIGINT       NULL,
		session_id        VARCHAR(128) NOT NULL,
		buyer_name        VARCHAR(255) NOT NULL,
		buyer_email       VARCHAR(255) NOT NULL,
		buyer_phone       VARCHAR(64)  NOT NULL DEFAULT '',
		showing_id        BIGINT       NOT NULL,
		subtotal_cents    BIGINT       NOT NULL,
		discount_cents    BIGINT       NOT NULL,
		tax_cents         BIGINT       NOT NULL,
		service_fee_cents BIGINT       NOT NULL,
		total_cents       BIGINT       NOT NULL,
		points_redeemed   BIGINT       NOT NULL DEFAULT 0,
		voucher_code      VARCHAR(64)  NULL,
		status            VARCHAR(16)  NOT NULL,
		payment_status    VARCHAR(16)  NOT NULL,
		payment_ref       VARCHAR(128) NULL,
		hold_deadline     TIMESTAMPTZ  NULL,
		created_at        TIMESTAMPTZ  NOT NULL,
		updated_at        TIMESTAMPTZ  NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_status_deadline ON sales (status, hold_deadline)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id              UUID        PRIMARY KEY,
		sale_id         UUID        NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		showing_id      BIGINT      NOT NULL,
		seat_id         BIGINT      NOT NULL,
		row_label       VARCHAR(8)  NOT NULL,
		seat_number     INTEGER     NOT NULL,
		seat_type       VARCHAR(16) NOT NULL,
		base_cents      BIGINT      NOT NULL,
		surcharge_cents BIGINT      NOT NULL,
		discount_cents  BIGINT      NOT NULL,
		final_cents     BIGINT      NOT NULL,
		status          VARCHAR(16) NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_sale ON tickets (sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_showing_seat ON tickets (showing_id, seat_id)`,
}

// Migrate creates the sales schema for the connection's driver.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	var stmts []string
	switch db.DriverName() {
	case "mysql":
		stmts = mysqlSchema
	case "postgres":
		stmts = postgresSchema
	default:
		return fmt.Errorf("database: no schema for driver %q", db.DriverName())
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("database: migrate: %w", err)
		}
	}
	return nil
}
