package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, letting the settlement
// engine run every repository write inside a single transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite allows a single writer; serialising at the pool keeps every
	// connection on the same pragmas and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			level INTEGER NOT NULL DEFAULT 1,
			total_donated REAL NOT NULL DEFAULT 0,
			donation_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone)`,

		`CREATE TABLE IF NOT EXISTS communities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			total_donations REAL NOT NULL DEFAULT 0,
			successful_requests INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			community_id TEXT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			target_amount REAL NOT NULL,
			funded_amount REAL NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'KES',
			deadline DATETIME,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_user ON requests(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_community ON requests(community_id)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			request_id TEXT,
			amount REAL NOT NULL,
			currency TEXT NOT NULL DEFAULT 'KES',
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			provider_ref TEXT NOT NULL DEFAULT '',
			external_ref TEXT,
			receipt TEXT NOT NULL DEFAULT '',
			invoice TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		// The idempotency guard: a provider correlation id settles at most once.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_completed_ref
			ON payments(external_ref) WHERE status = 'COMPLETED'`,
		`CREATE INDEX IF NOT EXISTS idx_payments_provider_ref ON payments(provider_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status_created ON payments(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_user ON payments(user_id)`,

		`CREATE TABLE IF NOT EXISTS donations (
			id TEXT PRIMARY KEY,
			payment_id TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL,
			donor_id TEXT NOT NULL,
			amount REAL NOT NULL,
			status TEXT NOT NULL,
			invoice TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (payment_id) REFERENCES payments(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_request ON donations(request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_donor ON donations(donor_id)`,

		`CREATE TABLE IF NOT EXISTS wallets (
			user_id TEXT PRIMARY KEY,
			balance REAL NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id TEXT PRIMARY KEY,
			payment_id TEXT NOT NULL,
			giver_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			amount REAL NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_giver ON ledger_entries(giver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_receiver ON ledger_entries(receiver_id)`,

		`CREATE TABLE IF NOT EXISTS points (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			payment_id TEXT NOT NULL UNIQUE,
			points INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (payment_id) REFERENCES payments(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_points_user ON points(user_id)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			delivered INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, delivered)`,

		`CREATE TABLE IF NOT EXISTS reconciliation_queue (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			external_ref TEXT NOT NULL,
			amount REAL NOT NULL,
			payer TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL,
			raw_payload TEXT NOT NULL DEFAULT '',
			resolved INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recon_resolved ON reconciliation_queue(resolved, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
