package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/changia/platform/internal/domain"
)

type initiateDonationBody struct {
	UserID    string  `json:"user_id"`
	RequestID string  `json:"request_id"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	Phone     string  `json:"phone,omitempty"`
	Email     string  `json:"email,omitempty"`
}

// InitiateDonation creates the pending payment intent and, for push-based
// methods, triggers the provider charge. The intent row is what the webhook
// path later resolves against, so it must exist before the provider can
// call back.
func (h *Handlers) InitiateDonation(w http.ResponseWriter, r *http.Request) {
	var body initiateDonationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.UserID == "" || body.RequestID == "" {
		writeError(w, http.StatusBadRequest, "user_id and request_id are required")
		return
	}
	if body.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	req, err := h.requests.GetByID(r.Context(), body.RequestID)
	if err != nil {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if req.Status != domain.RequestPending && req.Status != domain.RequestPaid {
		writeError(w, http.StatusConflict, "request is not accepting donations")
		return
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:        uuid.NewString(),
		UserID:    body.UserID,
		RequestID: body.RequestID,
		Amount:    body.Amount,
		Currency:  "KES",
		Status:    domain.PaymentPending,
		Invoice:   newInvoice(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	method := domain.PaymentMethod(strings.ToUpper(body.Method))
	switch method {
	case domain.MethodMpesa:
		if body.Phone == "" {
			writeError(w, http.StatusBadRequest, "phone is required for MPESA")
			return
		}
		res, err := h.stk.STKPush(r.Context(), body.Phone, body.Amount, payment.Invoice)
		if err != nil {
			log.Printf("[donations] stk push failed: %v", err)
			writeError(w, http.StatusBadGateway, "payment provider unavailable")
			return
		}
		payment.Method = domain.MethodMpesa
		payment.Phone = body.Phone
		payment.ProviderRef = res.CheckoutRequestID
		if err := h.payments.Insert(r.Context(), payment); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"payment_id":   payment.ID,
			"provider_ref": payment.ProviderRef,
			"status":       payment.Status,
			"message":      "STK push sent, complete the prompt on your phone",
		})

	case domain.MethodPaystack:
		if body.Email == "" {
			writeError(w, http.StatusBadRequest, "email is required for PAYSTACK")
			return
		}
		reference := uuid.NewString()
		meta := map[string]string{
			"payment_id": payment.ID,
			"request_id": body.RequestID,
			"user_id":    body.UserID,
		}
		res, err := h.checkout.InitializeTransaction(r.Context(), body.Email, body.Amount, payment.Currency, reference, meta)
		if err != nil {
			log.Printf("[donations] paystack init failed: %v", err)
			writeError(w, http.StatusBadGateway, "payment provider unavailable")
			return
		}
		payment.Method = domain.MethodPaystack
		payment.ProviderRef = res.Reference
		if err := h.payments.Insert(r.Context(), payment); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"payment_id":        payment.ID,
			"provider_ref":      payment.ProviderRef,
			"status":            payment.Status,
			"authorization_url": res.AuthorizationURL,
		})

	case domain.MethodKopoKopo:
		// Paybill donations are donor-initiated: we only record the
		// intent and hand back the payment instructions. The invoice is
		// what the donor keys in as the account reference.
		payment.Method = domain.MethodKopoKopo
		payment.Phone = body.Phone
		if err := h.payments.Insert(r.Context(), payment); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"payment_id": payment.ID,
			"status":     payment.Status,
			"paybill":    h.paybillNumber,
			"invoice":    payment.Invoice,
			"message":    fmt.Sprintf("pay to paybill %s with account number %s", h.paybillNumber, payment.Invoice),
		})

	default:
		writeError(w, http.StatusBadRequest, "unsupported payment method: "+body.Method)
	}
}

func newInvoice() string {
	return "CHG-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
