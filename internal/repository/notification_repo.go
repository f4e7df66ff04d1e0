package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/changia/platform/internal/domain"
)

type NotificationRepo struct {
	db DBTX
}

func NewNotificationRepo(db DBTX) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) WithTx(tx *sql.Tx) *NotificationRepo {
	return &NotificationRepo{db: tx}
}

func (r *NotificationRepo) Insert(ctx context.Context, n *domain.Notification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, kind, title, body, delivered, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Body, boolToInt(n.Delivered),
		n.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListPendingByUser returns undelivered notifications for the external
// delivery worker, oldest first.
func (r *NotificationRepo) ListPendingByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, kind, title, body, delivered, created_at
		FROM notifications
		WHERE user_id = ? AND delivered = 0
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var kind, createdAt string
		var delivered int
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body,
			&delivered, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		n.Kind = domain.NotificationKind(kind)
		n.Delivered = delivered == 1
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepo) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET delivered = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (r *NotificationRepo) CountByKind(ctx context.Context, userID string, kind domain.NotificationKind) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND kind = ?`,
		userID, string(kind)).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type ReconciliationRepo struct {
	db DBTX
}

func NewReconciliationRepo(db DBTX) *ReconciliationRepo {
	return &ReconciliationRepo{db: db}
}

func (r *ReconciliationRepo) Insert(ctx context.Context, item *domain.ReconciliationItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reconciliation_queue
		(id, provider, external_ref, amount, payer, reason, raw_payload, resolved, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		item.ID, item.Provider, item.ExternalRef, item.Amount, item.Payer,
		item.Reason, item.RawPayload, boolToInt(item.Resolved),
		item.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation item: %w", err)
	}
	return nil
}

func (r *ReconciliationRepo) ListUnresolved(ctx context.Context, limit int) ([]domain.ReconciliationItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, provider, external_ref, amount, payer, reason, raw_payload, resolved, created_at
		FROM reconciliation_queue
		WHERE resolved = 0
		ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reconciliation queue: %w", err)
	}
	defer rows.Close()

	var out []domain.ReconciliationItem
	for rows.Next() {
		var item domain.ReconciliationItem
		var resolved int
		var createdAt string
		if err := rows.Scan(&item.ID, &item.Provider, &item.ExternalRef,
			&item.Amount, &item.Payer, &item.Reason, &item.RawPayload,
			&resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		item.Resolved = resolved == 1
		item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *ReconciliationRepo) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconciliation_queue WHERE resolved = 0`).Scan(&n)
	return n, err
}
