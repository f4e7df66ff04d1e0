package api

import (
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/changia/platform/internal/domain"
	"github.com/changia/platform/internal/provider"
	"github.com/changia/platform/internal/resolver"
)

// maxWebhookBody caps what we read from a provider callback.
const maxWebhookBody = 1 << 20

// HandleWebhook is the single settlement entry point for all providers.
// Response policy: a non-200 status tells the provider to redeliver, so it
// is reserved for transient faults (settlement write failures) and, under
// strict verification, for failed signatures. Everything else is
// acknowledged with 200 so the provider stops retrying.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	adapter, ok := h.adapters[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider: "+name)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	ev, err := adapter.ParseAndVerify(body, r.Header)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrInvalidSignature):
			log.Printf("[webhook] %s: signature verification failed", name)
			if h.strictSignature {
				writeError(w, http.StatusUnauthorized, "invalid signature")
				return
			}
			h.queueForReconciliation(r, name, ev, "invalid_signature", body)
			writeJSON(w, http.StatusOK, map[string]string{"status": "rejected", "reason": "invalid_signature"})
		case errors.Is(err, provider.ErrMalformedPayload):
			log.Printf("[webhook] %s: malformed payload: %v", name, err)
			h.queueForReconciliation(r, name, nil, "malformed_payload", body)
			writeJSON(w, http.StatusOK, map[string]string{"status": "rejected", "reason": "malformed_payload"})
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if !ev.Succeeded {
		// The provider reported a failed or cancelled charge. Close out
		// the pending intent if we can find it; always acknowledge.
		if intent, err := h.payments.GetPendingByProviderRef(r.Context(), ev.ExternalRef); err == nil {
			if err := h.payments.MarkFailed(r.Context(), intent.ID, time.Now().UTC()); err != nil {
				log.Printf("[webhook] %s: mark failed %s: %v", name, intent.ID, err)
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("[webhook] %s: lookup pending intent: %v", name, err)
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":          "acknowledged",
			"provider_status": ev.ProviderStatus,
		})
		return
	}

	// Idempotency guard: a completed payment with this external ref means
	// an earlier delivery already settled. Report the prior result.
	if prior, settled, err := h.engine.AlreadySettled(r.Context(), ev.ExternalRef); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if settled {
		writeJSON(w, http.StatusOK, map[string]any{"status": "already_processed", "result": prior})
		return
	}

	resolution, err := h.resolver.Resolve(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch resolution.Outcome {
	case resolver.Resolved:
		result, err := h.engine.Settle(r.Context(), resolution.Intent, ev)
		if err != nil {
			// Settlement write failures are the one case where we want
			// the provider to redeliver.
			log.Printf("[webhook] %s: settlement failed for %s: %v", name, ev.ExternalRef, err)
			writeError(w, http.StatusInternalServerError, "settlement failed")
			return
		}
		status := "processed"
		if result.AlreadySettled {
			status = "already_processed"
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": status, "result": result})

	case resolver.Ambiguous:
		log.Printf("[webhook] %s: ambiguous match for %s (%d candidates)", name, ev.ExternalRef, len(resolution.Candidates))
		h.queueForReconciliation(r, name, ev, "ambiguous_match", body)
		writeJSON(w, http.StatusOK, map[string]string{"status": "queued", "reason": "ambiguous_match"})

	default:
		log.Printf("[webhook] %s: no matching intent for %s", name, ev.ExternalRef)
		h.queueForReconciliation(r, name, ev, "no_matching_intent", body)
		writeJSON(w, http.StatusOK, map[string]string{"status": "queued", "reason": "no_matching_intent"})
	}
}

func (h *Handlers) queueForReconciliation(r *http.Request, providerName string, ev *domain.PaymentEvent, reason string, raw []byte) {
	item := &domain.ReconciliationItem{
		ID:         uuid.NewString(),
		Provider:   providerName,
		Reason:     reason,
		RawPayload: string(raw),
		CreatedAt:  time.Now().UTC(),
	}
	if ev != nil {
		item.ExternalRef = ev.ExternalRef
		item.Amount = ev.Amount
		item.Payer = ev.Payer
	}
	if err := h.recon.Insert(r.Context(), item); err != nil {
		log.Printf("[webhook] %s: queue reconciliation item: %v", providerName, err)
	}
}
