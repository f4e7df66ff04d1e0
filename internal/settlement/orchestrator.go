// Package settlement applies a completed payment's financial and
// gamification effects to every affected aggregate in one atomic
// transaction. It is the only writer of payment status transitions,
// request funding, wallets, points, and the projection fields on users
// and communities.
package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/changia/platform/internal/domain"
	"github.com/changia/platform/internal/gamify"
	"github.com/changia/platform/internal/repository"
)

// streakLookback bounds how much donation history feeds the streak
// computation. Longer streaks than the top multiplier tier don't change the
// outcome.
const streakLookback = 35 * 24 * time.Hour

// Result describes one settlement, or the prior settlement when the event
// was a duplicate delivery.
type Result struct {
	PaymentID      string `json:"payment_id"`
	DonationID     string `json:"donation_id"`
	PointsEarned   int    `json:"points_earned"`
	NewLevel       int    `json:"new_level"`
	RequestFunded  bool   `json:"request_funded"`
	AlreadySettled bool   `json:"already_settled"`
}

// Engine orchestrates settlements over a single SQL database.
type Engine struct {
	db     *sql.DB
	margin float64

	payments      *repository.PaymentRepo
	requests      *repository.RequestRepo
	donations     *repository.DonationRepo
	wallets       *repository.WalletRepo
	ledger        *repository.LedgerRepo
	points        *repository.PointsRepo
	users         *repository.UserRepo
	communities   *repository.CommunityRepo
	notifications *repository.NotificationRepo
}

// NewEngine creates a settlement engine. margin is the funding threshold
// multiplier (funded >= target*margin marks a request FUNDED).
func NewEngine(db *sql.DB, margin float64) *Engine {
	return &Engine{
		db:            db,
		margin:        margin,
		payments:      repository.NewPaymentRepo(db),
		requests:      repository.NewRequestRepo(db),
		donations:     repository.NewDonationRepo(db),
		wallets:       repository.NewWalletRepo(db),
		ledger:        repository.NewLedgerRepo(db),
		points:        repository.NewPointsRepo(db),
		users:         repository.NewUserRepo(db),
		communities:   repository.NewCommunityRepo(db),
		notifications: repository.NewNotificationRepo(db),
	}
}

// AlreadySettled reports whether a provider correlation id has settled
// before, returning the prior settlement's identifiers when it has.
// Duplicate webhook deliveries short-circuit here.
func (e *Engine) AlreadySettled(ctx context.Context, externalRef string) (*Result, bool, error) {
	payment, err := e.payments.GetCompletedByExternalRef(ctx, externalRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	res := &Result{PaymentID: payment.ID, AlreadySettled: true}
	if d, err := e.donations.GetByPaymentID(ctx, payment.ID); err == nil {
		res.DonationID = d.ID
	}
	if g, err := e.points.GetByPaymentID(ctx, payment.ID); err == nil {
		res.PointsEarned = g.Points
	}
	if u, err := e.users.GetByID(ctx, payment.UserID); err == nil {
		res.NewLevel = u.Level
	}
	return res, true, nil
}

// Settle applies a resolved (intent, event) pair. All writes happen in one
// transaction: on any failure nothing persists, and a duplicate delivery
// resolves to the prior settlement instead of re-running side effects.
func (e *Engine) Settle(ctx context.Context, intent *domain.Payment, ev *domain.PaymentEvent) (*Result, error) {
	if intent == nil || ev == nil {
		return nil, fmt.Errorf("settle: nil intent or event")
	}
	if intent.RequestID == "" {
		return nil, fmt.Errorf("settle: intent has no associated request")
	}

	now := time.Now().UTC()
	amount := ev.Amount
	if amount <= 0 {
		amount = intent.Amount
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback()

	payments := e.payments.WithTx(tx)
	requests := e.requests.WithTx(tx)
	donations := e.donations.WithTx(tx)
	wallets := e.wallets.WithTx(tx)
	ledger := e.ledger.WithTx(tx)
	points := e.points.WithTx(tx)
	users := e.users.WithTx(tx)
	communities := e.communities.WithTx(tx)
	notifications := e.notifications.WithTx(tx)

	// Step 1: complete the payment. The unique index over completed external
	// refs makes this the idempotency guard: losing the race is "already
	// settled", never an error surfaced to the provider.
	payment := *intent
	payment.ExternalRef = ev.ExternalRef
	payment.Receipt = ev.Receipt
	payment.Amount = amount
	payment.Status = domain.PaymentCompleted
	payment.UpdatedAt = now

	if payment.ID == "" {
		payment.ID = uuid.NewString()
		payment.CreatedAt = now
		if payment.Invoice == "" {
			payment.Invoice = ev.Metadata["invoice"]
		}
		if err := payments.Insert(ctx, &payment); err != nil {
			if isUniqueViolation(err) {
				tx.Rollback()
				return e.AlreadySettledResult(ctx, ev.ExternalRef)
			}
			return nil, fmt.Errorf("insert completed payment: %w", err)
		}
	} else {
		ok, err := payments.MarkCompleted(ctx, payment.ID, ev.ExternalRef, ev.Receipt, amount, now)
		if err != nil {
			if isUniqueViolation(err) {
				tx.Rollback()
				return e.AlreadySettledResult(ctx, ev.ExternalRef)
			}
			return nil, fmt.Errorf("complete payment: %w", err)
		}
		if !ok {
			// The row left PENDING without us: a concurrent delivery settled
			// it. Release the transaction before reading the prior result.
			tx.Rollback()
			return e.AlreadySettledResult(ctx, ev.ExternalRef)
		}
	}

	request, err := requests.GetByID(ctx, payment.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", payment.RequestID, err)
	}

	// Donor history feeds the points rules; gathered before the new donation
	// row exists so the first-time bonus sees the pre-settlement count.
	priorDonations, err := donations.CountCompletedByDonor(ctx, payment.UserID)
	if err != nil {
		return nil, fmt.Errorf("count donor history: %w", err)
	}
	dates, err := donations.DonationDatesByDonor(ctx, payment.UserID, now.Add(-streakLookback))
	if err != nil {
		return nil, fmt.Errorf("load donation dates: %w", err)
	}

	// Step 2: the donation.
	donation := &domain.Donation{
		ID:        uuid.NewString(),
		PaymentID: payment.ID,
		RequestID: request.ID,
		DonorID:   payment.UserID,
		Amount:    amount,
		Status:    domain.DonationCompleted,
		Invoice:   payment.Invoice,
		CreatedAt: now,
	}
	if err := donations.Insert(ctx, donation); err != nil {
		return nil, fmt.Errorf("insert donation: %w", err)
	}

	// Step 3: atomic funding increment, then the threshold check.
	if err := requests.AddFunding(ctx, request.ID, amount, now); err != nil {
		return nil, fmt.Errorf("increment funding: %w", err)
	}
	request, err = requests.GetByID(ctx, request.ID)
	if err != nil {
		return nil, fmt.Errorf("reload request: %w", err)
	}

	crossed := false
	if request.FundedAmount >= request.TargetAmount*e.margin {
		crossed, err = requests.MarkFunded(ctx, request.ID, now)
		if err != nil {
			return nil, fmt.Errorf("mark funded: %w", err)
		}
	}

	// Step 4: credit the receiver's wallet.
	if err := wallets.Credit(ctx, request.UserID, amount, now); err != nil {
		return nil, fmt.Errorf("credit wallet: %w", err)
	}

	// Step 5: the immutable audit entry.
	entry := &domain.LedgerEntry{
		ID:         uuid.NewString(),
		PaymentID:  payment.ID,
		GiverID:    payment.UserID,
		ReceiverID: request.UserID,
		Amount:     amount,
		CreatedAt:  now,
	}
	if err := ledger.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	// Steps 6-7: points for this payment, then the level recomputed from the
	// full points ledger.
	earned := gamify.PointsForDonation(amount, gamify.DonorHistory{
		CompletedDonations: priorDonations,
		StreakDays:         gamify.StreakDays(dates, now),
	})
	grant := &domain.PointsGrant{
		ID:        uuid.NewString(),
		UserID:    payment.UserID,
		PaymentID: payment.ID,
		Points:    earned,
		CreatedAt: now,
	}
	if err := points.Insert(ctx, grant); err != nil {
		return nil, fmt.Errorf("insert points grant: %w", err)
	}
	total, err := points.TotalForUser(ctx, payment.UserID)
	if err != nil {
		return nil, fmt.Errorf("total points: %w", err)
	}
	level := gamify.LevelForPoints(total)
	if err := users.ApplySettlement(ctx, payment.UserID, amount, level, now); err != nil {
		return nil, fmt.Errorf("update donor projection: %w", err)
	}

	// Step 8: community aggregates.
	if request.CommunityID != "" {
		if err := communities.ApplySettlement(ctx, request.CommunityID, amount, crossed); err != nil {
			return nil, fmt.Errorf("update community: %w", err)
		}
	}

	// Step 9: notification rows for the external delivery worker.
	notify := []*domain.Notification{
		{
			ID:     uuid.NewString(),
			UserID: request.UserID,
			Kind:   domain.NotifyDonationReceived,
			Title:  "Donation received",
			Body: fmt.Sprintf("Your request %q received a donation of %.0f %s.",
				request.Title, amount, payment.Currency),
			CreatedAt: now,
		},
		{
			ID:     uuid.NewString(),
			UserID: payment.UserID,
			Kind:   domain.NotifyPointsEarned,
			Title:  "Points earned",
			Body: fmt.Sprintf("You earned %d points for your donation. You are now level %d.",
				earned, level),
			CreatedAt: now,
		},
	}
	if crossed {
		notify = append(notify, &domain.Notification{
			ID:     uuid.NewString(),
			UserID: request.UserID,
			Kind:   domain.NotifyGoalReached,
			Title:  "Goal reached",
			Body: fmt.Sprintf("Your request %q is fully funded: %.0f of %.0f %s.",
				request.Title, request.FundedAmount, request.TargetAmount, request.Currency),
			CreatedAt: now,
		})
	}
	for _, n := range notify {
		if err := notifications.Insert(ctx, n); err != nil {
			return nil, fmt.Errorf("insert notification: %w", err)
		}
	}

	// Step 10: commit, or nothing persists.
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}

	log.Printf("[settlement] settled %s: payment=%s donation=%s amount=%.2f points=%d level=%d funded=%t",
		ev.ExternalRef, payment.ID, donation.ID, amount, earned, level, crossed)

	return &Result{
		PaymentID:     payment.ID,
		DonationID:    donation.ID,
		PointsEarned:  earned,
		NewLevel:      level,
		RequestFunded: crossed,
	}, nil
}

// AlreadySettledResult loads the prior settlement for a correlation id after
// losing the settlement race. The prior transaction may not have committed
// yet; in that rare window the provider gets a retryable failure instead.
func (e *Engine) AlreadySettledResult(ctx context.Context, externalRef string) (*Result, error) {
	res, ok, err := e.AlreadySettled(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("settlement for %s in flight, retry", externalRef)
	}
	return res, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
