// Package resolver maps an inbound payment event to the pending donation
// intent it settles. Exact correlation ids always win; the heuristic fallback
// is narrowly scoped and never accepts an ambiguous match.
package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/changia/platform/internal/domain"
	"github.com/changia/platform/internal/repository"
)

type Outcome int

const (
	// Resolved means exactly one intent was attributed.
	Resolved Outcome = iota
	// Ambiguous means the fallback found several plausible intents. The
	// event must go to the reconciliation queue, not to settlement.
	Ambiguous
	// NotFound means nothing matched.
	NotFound
)

// Resolution is the outcome of matching an event against pending intents.
// Intent is set only for Resolved; an Intent with an empty ID was synthesized
// from trusted webhook metadata and has no pre-existing payment row.
type Resolution struct {
	Outcome    Outcome
	Intent     *domain.Payment
	Candidates []domain.Payment
}

type Resolver struct {
	payments *repository.PaymentRepo
	window   time.Duration
}

// New creates a resolver. window bounds how far back the heuristic fallback
// looks for a pending intent.
func New(payments *repository.PaymentRepo, window time.Duration) *Resolver {
	return &Resolver{payments: payments, window: window}
}

// Resolve attributes a payment event to a donation intent, strongest
// identifier first:
//
//  1. a PENDING intent persisted with this provider correlation id,
//  2. an internal payment id echoed back in webhook metadata,
//  3. request/user ids in webhook metadata (intent synthesized),
//  4. an intent whose invoice matches the paybill account reference,
//  5. recency-bounded heuristic: amount AND payer phone, newest first.
//
// More than one heuristic candidate is Ambiguous, never auto-settled.
func (r *Resolver) Resolve(ctx context.Context, ev *domain.PaymentEvent) (*Resolution, error) {
	if intent, err := r.payments.GetPendingByProviderRef(ctx, ev.ExternalRef); err == nil {
		return &Resolution{Outcome: Resolved, Intent: intent}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup by provider ref: %w", err)
	}

	if id := ev.Metadata["payment_id"]; id != "" {
		intent, err := r.payments.GetByID(ctx, id)
		if err == nil && intent.Status == domain.PaymentPending {
			return &Resolution{Outcome: Resolved, Intent: intent}, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup by payment id: %w", err)
		}
	}

	if reqID, userID := ev.Metadata["request_id"], ev.Metadata["user_id"]; reqID != "" && userID != "" {
		// The provider echoed our internal ids but no intent row exists
		// (direct paybill payment). Synthesize one; the settlement engine
		// inserts it, with the unique completed-ref index as the guard.
		return &Resolution{Outcome: Resolved, Intent: &domain.Payment{
			UserID:    userID,
			RequestID: reqID,
			Amount:    ev.Amount,
			Currency:  ev.Currency,
			Method:    methodForProvider(ev.Provider),
			Phone:     ev.Payer,
		}}, nil
	}

	if invoice := ev.Metadata["invoice"]; invoice != "" {
		intent, err := r.payments.GetPendingByInvoice(ctx, invoice)
		if err == nil {
			return &Resolution{Outcome: Resolved, Intent: intent}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup by invoice: %w", err)
		}
	}

	if ev.Payer == "" || ev.Amount <= 0 {
		return &Resolution{Outcome: NotFound}, nil
	}

	// created_at is stored as UTC text, so the cutoff must be UTC too or
	// the lexicographic comparison breaks on non-UTC hosts.
	cutoff := time.Now().UTC().Add(-r.window)
	candidates, err := r.payments.ListPendingByAmountPhone(ctx, ev.Amount, ev.Payer, cutoff)
	if err != nil {
		return nil, fmt.Errorf("heuristic lookup: %w", err)
	}

	switch len(candidates) {
	case 0:
		return &Resolution{Outcome: NotFound}, nil
	case 1:
		intent := candidates[0]
		log.Printf("[resolver] heuristic match %s -> intent %s (amount=%.2f phone=%s)",
			ev.ExternalRef, intent.ID, ev.Amount, ev.Payer)
		return &Resolution{Outcome: Resolved, Intent: &intent}, nil
	default:
		log.Printf("[resolver] ambiguous match for %s: %d candidates share amount=%.2f phone=%s",
			ev.ExternalRef, len(candidates), ev.Amount, ev.Payer)
		return &Resolution{Outcome: Ambiguous, Candidates: candidates}, nil
	}
}

func methodForProvider(provider string) domain.PaymentMethod {
	switch provider {
	case "mpesa":
		return domain.MethodMpesa
	case "paystack":
		return domain.MethodPaystack
	default:
		return domain.MethodKopoKopo
	}
}
