package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/changia/platform/internal/domain"
)

type PointsRepo struct {
	db DBTX
}

func NewPointsRepo(db DBTX) *PointsRepo {
	return &PointsRepo{db: db}
}

func (r *PointsRepo) WithTx(tx *sql.Tx) *PointsRepo {
	return &PointsRepo{db: tx}
}

func (r *PointsRepo) Insert(ctx context.Context, g *domain.PointsGrant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO points (id, user_id, payment_id, points, created_at)
		VALUES (?,?,?,?,?)`,
		g.ID, g.UserID, g.PaymentID, g.Points, g.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert points grant: %w", err)
	}
	return nil
}

// TotalForUser returns the user's cumulative score. Level must always be a
// pure function of this value, never an independently mutated counter.
func (r *PointsRepo) TotalForUser(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM points WHERE user_id = ?`,
		userID).Scan(&total)
	return total, err
}

func (r *PointsRepo) GetByPaymentID(ctx context.Context, paymentID string) (*domain.PointsGrant, error) {
	var g domain.PointsGrant
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, payment_id, points, created_at FROM points WHERE payment_id = ?`,
		paymentID).Scan(&g.ID, &g.UserID, &g.PaymentID, &g.Points, &createdAt)
	if err != nil {
		return nil, err
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &g, nil
}
