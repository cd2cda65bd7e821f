package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	dsn, err := Params{Driver: "mysql", User: "app", Pass: "pw", Host: "db", Port: "3306", Name: "cinema"}.DSN()
	require.NoError(t, err)
	assert.Equal(t, "app:pw@tcp(db:3306)/cinema?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true", dsn)

	dsn, err = Params{Driver: "postgres", User: "app", Host: "db", Port: "5432", Name: "cinema"}.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app@db:5432/cinema?sslmode=disable&timezone=UTC", dsn)

	_, err = Params{Driver: "sqlite"}.DSN()
	assert.Error(t, err)
}

func TestMigrateRunsEveryStatement(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "postgres")

	for range postgresSchema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUnknownDriver(t *testing.T) {
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	err = Migrate(context.Background(), sqlx.NewDb(raw, "sqlmock"))
	assert.Error(t, err)
}
