package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/changia/platform/internal/domain"
)

type UserRepo struct {
	db DBTX
}

func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) WithTx(tx *sql.Tx) *UserRepo {
	return &UserRepo{db: tx}
}

const userColumns = `id, full_name, phone, email, level, total_donated, donation_count, created_at`

func (r *UserRepo) Insert(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (`+userColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.FullName, u.Phone, u.Email, u.Level, u.TotalDonated,
		u.DonationCount, u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// ApplySettlement folds one settled donation into the donor's projection
// fields. Identity lives elsewhere, so the row is created on first donation
// if the external identity has never been seen here.
func (r *UserRepo) ApplySettlement(ctx context.Context, userID string, amount float64, level int, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, level, total_donated, donation_count, created_at)
		VALUES (?,?,?,1,?)
		ON CONFLICT(id) DO UPDATE SET
			level = excluded.level,
			total_donated = total_donated + excluded.total_donated,
			donation_count = donation_count + 1`,
		userID, level, amount, now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("apply settlement to user: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var createdAt string
	err := row.Scan(&u.ID, &u.FullName, &u.Phone, &u.Email, &u.Level,
		&u.TotalDonated, &u.DonationCount, &createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

type CommunityRepo struct {
	db DBTX
}

func NewCommunityRepo(db DBTX) *CommunityRepo {
	return &CommunityRepo{db: db}
}

func (r *CommunityRepo) WithTx(tx *sql.Tx) *CommunityRepo {
	return &CommunityRepo{db: tx}
}

const communityColumns = `id, name, description, total_donations, successful_requests, created_at`

func (r *CommunityRepo) Insert(ctx context.Context, c *domain.Community) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO communities (`+communityColumns+`) VALUES (?,?,?,?,?,?)`,
		c.ID, c.Name, c.Description, c.TotalDonations, c.SuccessfulRequests,
		c.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert community: %w", err)
	}
	return nil
}

func (r *CommunityRepo) GetByID(ctx context.Context, id string) (*domain.Community, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+communityColumns+` FROM communities WHERE id = ?`, id)
	return scanCommunity(row)
}

func (r *CommunityRepo) List(ctx context.Context) ([]domain.Community, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+communityColumns+` FROM communities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query communities: %w", err)
	}
	defer rows.Close()

	var out []domain.Community
	for rows.Next() {
		c, err := scanCommunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ApplySettlement bumps the community aggregates: donation volume always,
// successful request count only when this settlement funded the request.
func (r *CommunityRepo) ApplySettlement(ctx context.Context, id string, amount float64, funded bool) error {
	fundedDelta := 0
	if funded {
		fundedDelta = 1
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE communities SET
			total_donations = total_donations + ?,
			successful_requests = successful_requests + ?
		WHERE id = ?`,
		amount, fundedDelta, id,
	)
	if err != nil {
		return fmt.Errorf("apply settlement to community: %w", err)
	}
	return nil
}

func scanCommunity(row rowScanner) (*domain.Community, error) {
	var c domain.Community
	var createdAt string
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.TotalDonations,
		&c.SuccessfulRequests, &createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}
