package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/changia/platform/internal/domain"
)

type WalletRepo struct {
	db DBTX
}

func NewWalletRepo(db DBTX) *WalletRepo {
	return &WalletRepo{db: db}
}

func (r *WalletRepo) WithTx(tx *sql.Tx) *WalletRepo {
	return &WalletRepo{db: tx}
}

// Credit adds to a user's balance, creating the wallet on first credit. The
// upsert keeps the increment atomic under concurrent settlements.
func (r *WalletRepo) Credit(ctx context.Context, userID string, amount float64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at) VALUES (?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance = balance + excluded.balance,
			updated_at = excluded.updated_at`,
		userID, amount, now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

// Debit withdraws from a user's balance. The balance may never go negative:
// the conditional update authorizes the debit and the caller must treat a
// false return as insufficient funds.
func (r *WalletRepo) Debit(ctx context.Context, userID string, amount float64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET balance = balance - ?, updated_at = ?
		WHERE user_id = ? AND balance >= ?`,
		amount, now.Format(time.RFC3339), userID, amount,
	)
	if err != nil {
		return false, fmt.Errorf("debit wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *WalletRepo) Get(ctx context.Context, userID string) (*domain.Wallet, error) {
	var w domain.Wallet
	var updatedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, balance, updated_at FROM wallets WHERE user_id = ?`,
		userID).Scan(&w.UserID, &w.Balance, &updatedAt)
	if err != nil {
		return nil, err
	}
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

type LedgerRepo struct {
	db DBTX
}

func NewLedgerRepo(db DBTX) *LedgerRepo {
	return &LedgerRepo{db: db}
}

func (r *LedgerRepo) WithTx(tx *sql.Tx) *LedgerRepo {
	return &LedgerRepo{db: tx}
}

func (r *LedgerRepo) Insert(ctx context.Context, e *domain.LedgerEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, payment_id, giver_id, receiver_id, amount, created_at)
		VALUES (?,?,?,?,?,?)`,
		e.ID, e.PaymentID, e.GiverID, e.ReceiverID, e.Amount,
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payment_id, giver_id, receiver_id, amount, created_at
		FROM ledger_entries
		WHERE giver_id = ? OR receiver_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.GiverID, &e.ReceiverID,
			&e.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SumCreditsByReceiver totals every ledger credit for a receiver. Audit
// invariant: matches the wallet balance absent withdrawals.
func (r *LedgerRepo) SumCreditsByReceiver(ctx context.Context, userID string) (float64, error) {
	var sum float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE receiver_id = ?`,
		userID).Scan(&sum)
	return sum, err
}
