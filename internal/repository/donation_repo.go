package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/changia/platform/internal/domain"
)

type DonationRepo struct {
	db DBTX
}

func NewDonationRepo(db DBTX) *DonationRepo {
	return &DonationRepo{db: db}
}

func (r *DonationRepo) WithTx(tx *sql.Tx) *DonationRepo {
	return &DonationRepo{db: tx}
}

const donationColumns = `id, payment_id, request_id, donor_id, amount, status, invoice, created_at`

func (r *DonationRepo) Insert(ctx context.Context, d *domain.Donation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO donations (`+donationColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.PaymentID, d.RequestID, d.DonorID, d.Amount,
		string(d.Status), d.Invoice, d.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func (r *DonationRepo) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Donation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE payment_id = ?`, paymentID)
	return scanDonation(row)
}

func (r *DonationRepo) ListByRequest(ctx context.Context, requestID string) ([]domain.Donation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+donationColumns+` FROM donations
		WHERE request_id = ? ORDER BY created_at DESC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query donations: %w", err)
	}
	defer rows.Close()
	return collectDonations(rows)
}

// SumCompletedByRequest returns the sum of completed donation amounts for a
// request. Reconciliation invariant: this must equal requests.funded_amount.
func (r *DonationRepo) SumCompletedByRequest(ctx context.Context, requestID string) (float64, error) {
	var sum float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM donations
		WHERE request_id = ? AND status = 'COMPLETED'`, requestID).Scan(&sum)
	return sum, err
}

// CountCompletedByDonor returns how many completed donations the donor has
// made. Zero means the next settlement earns the first-time bonus.
func (r *DonationRepo) CountCompletedByDonor(ctx context.Context, donorID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM donations
		WHERE donor_id = ? AND status = 'COMPLETED'`, donorID).Scan(&n)
	return n, err
}

// DonationDatesByDonor returns the distinct calendar days (UTC) on which the
// donor completed a donation, newest first. Feeds the streak computation.
func (r *DonationRepo) DonationDatesByDonor(ctx context.Context, donorID string, since time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT date(created_at) FROM donations
		WHERE donor_id = ? AND status = 'COMPLETED' AND created_at >= ?
		ORDER BY date(created_at) DESC`,
		donorID, since.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query donation dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		t, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DonationStats aggregates platform-wide donation totals for the dashboard.
type DonationStats struct {
	Count       int     `json:"count"`
	AmountTotal float64 `json:"amount_total"`
}

func (r *DonationRepo) GetStats(ctx context.Context) (*DonationStats, error) {
	s := &DonationStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM donations WHERE status = 'COMPLETED'
	`).Scan(&s.Count, &s.AmountTotal)
	return s, err
}

// --- helpers ---

func scanDonation(row rowScanner) (*domain.Donation, error) {
	var d domain.Donation
	var status, createdAt string
	err := row.Scan(&d.ID, &d.PaymentID, &d.RequestID, &d.DonorID, &d.Amount,
		&status, &d.Invoice, &createdAt)
	if err != nil {
		return nil, err
	}
	d.Status = domain.DonationStatus(status)
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &d, nil
}

func collectDonations(rows *sql.Rows) ([]domain.Donation, error) {
	var out []domain.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
