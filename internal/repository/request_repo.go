package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/changia/platform/internal/domain"
)

type RequestRepo struct {
	db DBTX
}

func NewRequestRepo(db DBTX) *RequestRepo {
	return &RequestRepo{db: db}
}

func (r *RequestRepo) WithTx(tx *sql.Tx) *RequestRepo {
	return &RequestRepo{db: tx}
}

const requestColumns = `id, user_id, community_id, title, description, target_amount,
	funded_amount, currency, deadline, status, created_at, updated_at`

func (r *RequestRepo) Insert(ctx context.Context, req *domain.Request) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO requests (`+requestColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.UserID, nullableString(req.CommunityID), req.Title,
		req.Description, req.TargetAmount, req.FundedAmount, req.Currency,
		formatNullableTime(req.Deadline), string(req.Status),
		req.CreatedAt.Format(time.RFC3339), req.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (r *RequestRepo) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	return scanRequest(row)
}

// AddFunding applies an atomic increment to a request's funded amount. The
// read-modify-write must never happen at the application layer: two payments
// settling against the same request concurrently would lose an update.
func (r *RequestRepo) AddFunding(ctx context.Context, id string, amount float64, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE requests SET funded_amount = funded_amount + ?, updated_at = ?
		WHERE id = ?`,
		amount, now.Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("add funding: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("add funding: request %s not found", id)
	}
	return nil
}

// MarkFunded transitions a request to FUNDED. Returns true only for the call
// that actually performed the transition, so the goal-reached notification
// fires exactly once.
func (r *RequestRepo) MarkFunded(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE requests SET status = 'FUNDED', updated_at = ?
		WHERE id = ? AND status NOT IN ('FUNDED', 'CLOSED', 'BLOCKED')`,
		now.Format(time.RFC3339), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark funded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

type RequestFilter struct {
	UserID      string
	CommunityID string
	Status      string
	Page        int
	Limit       int
}

func (r *RequestRepo) List(ctx context.Context, f RequestFilter) ([]domain.Request, int, error) {
	where, args := buildRequestWhere(f)

	var total int
	countSQL := "SELECT COUNT(*) FROM requests" + where
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	querySQL := `SELECT ` + requestColumns + ` FROM requests` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, offset)

	rows, err := r.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *req)
	}
	return out, total, rows.Err()
}

// FundingStats holds platform-wide request aggregates for the dashboard.
type FundingStats struct {
	Total       int     `json:"total"`
	Funded      int     `json:"funded"`
	Open        int     `json:"open"`
	TargetTotal float64 `json:"target_total"`
	FundedTotal float64 `json:"funded_total"`
}

func (r *RequestRepo) GetFundingStats(ctx context.Context) (*FundingStats, error) {
	s := &FundingStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status='FUNDED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN ('PENDING','PAID') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(target_amount), 0),
			COALESCE(SUM(funded_amount), 0)
		FROM requests
	`).Scan(&s.Total, &s.Funded, &s.Open, &s.TargetTotal, &s.FundedTotal)
	return s, err
}

// --- helpers ---

func buildRequestWhere(f RequestFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.CommunityID != "" {
		clauses = append(clauses, "community_id = ?")
		args = append(args, f.CommunityID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRequest(row rowScanner) (*domain.Request, error) {
	var req domain.Request
	var status, createdAt, updatedAt string
	var communityID, deadline sql.NullString

	err := row.Scan(
		&req.ID, &req.UserID, &communityID, &req.Title, &req.Description,
		&req.TargetAmount, &req.FundedAmount, &req.Currency, &deadline,
		&status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.CommunityID = communityID.String
	req.Status = domain.RequestStatus(status)
	req.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	req.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if deadline.Valid {
		t, _ := time.Parse(time.RFC3339, deadline.String)
		req.Deadline = &t
	}

	return &req, nil
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
