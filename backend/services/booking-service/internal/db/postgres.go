package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	libdb "chargeslot/backend/libs/db"
)

//go:embed schema.sql
var schema string

// NewPostgres connects to Postgres using shared library helper.
func NewPostgres(dsn string, maxOpenConns int) (*sql.DB, error) {
	return libdb.NewPostgresDB(dsn, libdb.PoolOptions{MaxOpenConns: maxOpenConns})
}

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("db: apply schema: %w", err)
	}
	return nil
}
