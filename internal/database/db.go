package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Params identifies a database server.  Driver is "mysql" or "postgres".
type Params struct {
	Driver string
	User   string
	Pass   string
	Host   string
	Port   string
	Name   string
}

// DSN renders the driver specific connection string.
func (p Params) DSN() (string, error) {
	switch p.Driver {
	case "mysql":
		auth := p.User
		if p.Pass != "" {
			auth = fmt.Sprintf("%s:%s", p.User, p.Pass)
		}
		// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
		// clientFoundRows=true -> guarded updates report matched rows
		return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
			auth, p.Host, p.Port, p.Name), nil
	case "postgres":
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(p.User, p.Pass),
			Host:     p.Host + ":" + p.Port,
			Path:     p.Name,
			RawQuery: "sslmode=disable&timezone=UTC",
		}
		if p.Pass == "" {
			u.User = url.User(p.User)
		}
		return u.String(), nil
	}
	return "", fmt.Errorf("database: unsupported driver %q", p.Driver)
}

// Open connects and verifies the connection.
func Open(p Params) (*sqlx.DB, error) {
	dsn, err := p.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(p.Driver, dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
