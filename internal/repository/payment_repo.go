package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/changia/platform/internal/domain"
)

type PaymentRepo struct {
	db DBTX
}

func NewPaymentRepo(db DBTX) *PaymentRepo {
	return &PaymentRepo{db: db}
}

// WithTx returns a copy of the repo scoped to the given transaction.
func (r *PaymentRepo) WithTx(tx *sql.Tx) *PaymentRepo {
	return &PaymentRepo{db: tx}
}

const paymentColumns = `id, user_id, request_id, amount, currency, method, status,
	phone, email, provider_ref, external_ref, receipt, invoice, created_at, updated_at`

func (r *PaymentRepo) Insert(ctx context.Context, p *domain.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.UserID, nullableString(p.RequestID), p.Amount, p.Currency,
		string(p.Method), string(p.Status), p.Phone, p.Email, p.ProviderRef,
		nullableString(p.ExternalRef), p.Receipt, p.Invoice,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	return scanPayment(row)
}

// GetByReference looks a payment up by any correlation handle a client or
// provider may hold: the internal id, the initiation-time provider ref, or
// the settled external ref. Used by the status-poll endpoint.
func (r *PaymentRepo) GetByReference(ctx context.Context, ref string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE id = ? OR provider_ref = ? OR external_ref = ?
		ORDER BY created_at DESC LIMIT 1`, ref, ref, ref)
	return scanPayment(row)
}

// GetCompletedByExternalRef returns the COMPLETED payment settled under the
// given provider correlation id, if any. This is the idempotency lookup.
func (r *PaymentRepo) GetCompletedByExternalRef(ctx context.Context, ref string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE external_ref = ? AND status = 'COMPLETED'`, ref)
	return scanPayment(row)
}

// GetPendingByProviderRef returns the most recent PENDING intent carrying the
// given initiation-time correlation id.
func (r *PaymentRepo) GetPendingByProviderRef(ctx context.Context, ref string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE provider_ref = ? AND status = 'PENDING'
		ORDER BY created_at DESC LIMIT 1`, ref)
	return scanPayment(row)
}

// GetPendingByInvoice returns the most recent PENDING intent carrying the
// given internal invoice (the account reference shown to paybill payers).
func (r *PaymentRepo) GetPendingByInvoice(ctx context.Context, invoice string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE invoice = ? AND status = 'PENDING'
		ORDER BY created_at DESC LIMIT 1`, invoice)
	return scanPayment(row)
}

// ListPendingByAmountPhone returns PENDING intents with a non-null request
// that match both amount and payer phone, created after the cutoff, newest
// first. This feeds the resolver's heuristic fallback only.
func (r *PaymentRepo) ListPendingByAmountPhone(ctx context.Context, amount float64, phone string, cutoff time.Time) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE status = 'PENDING'
		  AND request_id IS NOT NULL
		  AND amount = ?
		  AND phone = ?
		  AND created_at >= ?
		ORDER BY created_at DESC`,
		amount, phone, cutoff.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending intents: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// MarkCompleted flips a PENDING intent to COMPLETED, stamping the settled
// correlation id and the provider-confirmed amount so the row agrees with
// the donation written from it. Returns false when the intent was no longer
// pending, which callers must treat as "already settled", not as an error.
func (r *PaymentRepo) MarkCompleted(ctx context.Context, id, externalRef, receipt string, amount float64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = 'COMPLETED', external_ref = ?, receipt = ?, amount = ?, updated_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		externalRef, receipt, amount, now.Format(time.RFC3339), id,
	)
	if err != nil {
		return false, fmt.Errorf("complete payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkFailed records a provider-reported failure against a pending intent.
func (r *PaymentRepo) MarkFailed(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = 'FAILED', updated_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		now.Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("fail payment: %w", err)
	}
	return nil
}

func (r *PaymentRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	var method, status, createdAt, updatedAt string
	var requestID, externalRef sql.NullString

	err := row.Scan(
		&p.ID, &p.UserID, &requestID, &p.Amount, &p.Currency, &method, &status,
		&p.Phone, &p.Email, &p.ProviderRef, &externalRef, &p.Receipt, &p.Invoice,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	p.RequestID = requestID.String
	p.ExternalRef = externalRef.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &p, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
