// Package migrations manages the PostgreSQL schema for the money service.
// Migrations are additive and applied in order; the current revision is
// tracked in the schema_revisions table.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	revision int
	name     string
	stmts    []string
}

var all = []migration{
	{
		revision: 1,
		name:     "create balances",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS balances (
				account TEXT PRIMARY KEY,
				balance BIGINT NOT NULL DEFAULT 0,
				status INTEGER NOT NULL DEFAULT 0
			)`,
		},
	},
	{
		revision: 2,
		name:     "create transactions",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS transactions (
				uuid TEXT PRIMARY KEY,
				sender TEXT NOT NULL,
				receiver TEXT NOT NULL,
				amount BIGINT NOT NULL,
				object_uuid TEXT NOT NULL DEFAULT '',
				region_handle TEXT NOT NULL DEFAULT '',
				type INTEGER NOT NULL,
				time BIGINT NOT NULL,
				secure TEXT NOT NULL DEFAULT '',
				status INTEGER NOT NULL,
				description TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions (sender, time)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions (receiver, time)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_status_time ON transactions (status, time)`,
		},
	},
	{
		revision: 3,
		name:     "create userinfo",
		stmts: []string{`
			CREATE TABLE IF NOT EXISTS userinfo (
				account TEXT PRIMARY KEY,
				sim_address TEXT NOT NULL DEFAULT '',
				avatar_name TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT ''
			)`,
		},
	},
}

// Apply brings the schema up to the latest revision. It is safe to call on
// every startup; already-applied revisions are skipped.
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_revisions (
			revision INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create schema_revisions: %w", err)
	}

	var current sql.NullInt64
	if err := db.QueryRowContext(ctx, `
		SELECT MAX(revision) FROM schema_revisions
	`).Scan(&current); err != nil {
		return fmt.Errorf("read schema revision: %w", err)
	}

	for _, m := range all {
		if current.Valid && m.revision <= int(current.Int64) {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.revision, m.name, err)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_revisions (revision, name) VALUES ($1, $2)
	`, m.revision, m.name); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
