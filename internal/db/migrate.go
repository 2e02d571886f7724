package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Options configures the connection pool.
type Options struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	db, err := sql.Open("postgres", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if opts.MaxConnections > 0 {
		db.SetMaxOpenConns(opts.MaxConnections)
	}
	if opts.MaxIdle > 0 {
		db.SetMaxIdleConns(opts.MaxIdle)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Migrate creates the hospitals and sessions tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
