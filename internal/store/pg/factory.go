// Package pg is the managed store backend on PostgreSQL. The schema is owned by
// the golang-migrate files under migrations/ and applied with `hamdam migrate up`.
package pg

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/hamdam/internal/store"
)

// DB implements store.Backend on Postgres.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Backend = (*DB)(nil)

// OpenDB opens a pgx-backed database/sql pool and checks connectivity.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// New wraps an open pool.
func New(db *sql.DB) *DB {
	return &DB{db: db, now: time.Now}
}

// NewPGStores creates all stores backed by Postgres (managed mode).
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres driver selected but HAMDAM_POSTGRES_DSN is not set")
	}
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return store.NewStores(New(db)), nil
}

func (s *DB) Close() error {
	return s.db.Close()
}
