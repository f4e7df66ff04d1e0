package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/changia/platform/internal/domain"
	"github.com/changia/platform/internal/provider"
	"github.com/changia/platform/internal/repository"
	"github.com/changia/platform/internal/resolver"
	"github.com/changia/platform/internal/settlement"
)

// STKPusher initiates a mobile-money push payment.
type STKPusher interface {
	STKPush(ctx context.Context, phone string, amount float64, accountRef string) (*provider.STKPushResult, error)
}

// CheckoutInitializer registers a pending card charge and returns the
// redirect for the donor's browser.
type CheckoutInitializer interface {
	InitializeTransaction(ctx context.Context, email string, amount float64, code, reference string, metadata map[string]string) (*provider.CheckoutResult, error)
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	adapters map[string]provider.Adapter
	resolver *resolver.Resolver
	engine   *settlement.Engine

	stk      STKPusher
	checkout CheckoutInitializer

	payments      *repository.PaymentRepo
	requests      *repository.RequestRepo
	donations     *repository.DonationRepo
	wallets       *repository.WalletRepo
	points        *repository.PointsRepo
	users         *repository.UserRepo
	communities   *repository.CommunityRepo
	notifications *repository.NotificationRepo
	recon         *repository.ReconciliationRepo

	strictSignature bool
	paybillNumber   string
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- Requests ---

type createRequestBody struct {
	UserID       string  `json:"user_id"`
	CommunityID  string  `json:"community_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	TargetAmount float64 `json:"target_amount"`
}

func (h *Handlers) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.UserID == "" || body.Title == "" {
		writeError(w, http.StatusBadRequest, "user_id and title are required")
		return
	}
	if body.TargetAmount <= 0 {
		writeError(w, http.StatusBadRequest, "target_amount must be positive")
		return
	}

	now := time.Now().UTC()
	req := &domain.Request{
		ID:           uuid.NewString(),
		UserID:       body.UserID,
		CommunityID:  body.CommunityID,
		Title:        body.Title,
		Description:  body.Description,
		TargetAmount: body.TargetAmount,
		Currency:     "KES",
		Status:       domain.RequestPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.requests.Insert(r.Context(), req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RequestFilter{
		UserID:      q.Get("user_id"),
		CommunityID: q.Get("community_id"),
		Status:      q.Get("status"),
		Page:        parseIntDefault(q.Get("page"), 1),
		Limit:       parseIntDefault(q.Get("limit"), 50),
	}

	reqs, total, err := h.requests.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requests": reqs,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

func (h *Handlers) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := h.requests.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}

	donations, err := h.donations.ListByRequest(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"request":   req,
		"donations": donations,
	})
}

// --- Status poll ---

// GetPaymentStatus serves the secondary status channel: it reads the same
// payment and donation rows the webhook path writes, never a separate store.
func (h *Handlers) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	payment, err := h.payments.GetByReference(r.Context(), ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"payment": payment}
	if payment.Status == domain.PaymentCompleted {
		if d, err := h.donations.GetByPaymentID(r.Context(), payment.ID); err == nil {
			resp["donation"] = d
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Users & wallets ---

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	total, err := h.points.TotalForUser(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":         user,
		"total_points": total,
	})
}

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wallet, err := h.wallets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No credits yet: an empty wallet, not an error.
			writeJSON(w, http.StatusOK, domain.Wallet{UserID: id})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// --- Communities ---

func (h *Handlers) ListCommunities(w http.ResponseWriter, r *http.Request) {
	communities, err := h.communities.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"communities": communities})
}

// --- Notifications ---

func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	items, err := h.notifications.ListPendingByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handlers) MarkNotificationDelivered(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.notifications.MarkDelivered(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

// --- Reconciliation queue ---

func (h *Handlers) ListReconciliation(w http.ResponseWriter, r *http.Request) {
	items, err := h.recon.ListUnresolved(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// --- Dashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	funding, err := h.requests.GetFundingStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	donations, err := h.donations.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	unresolved, err := h.recon.CountUnresolved(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requests":               funding,
		"donations":              donations,
		"reconciliation_backlog": unresolved,
	})
}
