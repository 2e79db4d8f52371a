package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Store persists exam sessions, question snapshots and answers with bun. It
// runs on Postgres in production and on SQLite for single-node setups.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// OpenPostgres opens a bun database over pgdriver.
func OpenPostgres(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// OpenSQLite opens (and creates) a SQLite database file.
func OpenSQLite(ctx context.Context, path string) (*bun.DB, error) {
	if strings.TrimSpace(path) == "" {
		path = "exam.db"
	}
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA busy_timeout = 5000;`, `PRAGMA foreign_keys = ON;`} {
		if _, err := sqldb.ExecContext(ctx, pragma); err != nil {
			_ = sqldb.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation detects primary-key / unique constraint failures on both dialects.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
