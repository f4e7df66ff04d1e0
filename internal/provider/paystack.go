package provider

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/changia/platform/internal/currency"
	"github.com/changia/platform/internal/domain"
)

// PaystackAdapter handles card-gateway charge webhooks. Paystack signs the
// raw body with HMAC-SHA512 under the secret key (X-Paystack-Signature) and
// reports amounts in minor units.
type PaystackAdapter struct {
	secretKey string
}

func NewPaystackAdapter(secretKey string) *PaystackAdapter {
	return &PaystackAdapter{secretKey: secretKey}
}

func (a *PaystackAdapter) Name() string { return "paystack" }

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Status    string `json:"status"`
		PaidAt    string `json:"paid_at"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
		Metadata map[string]any `json:"metadata"`
	} `json:"data"`
}

func (a *PaystackAdapter) ParseAndVerify(body []byte, header http.Header) (*domain.PaymentEvent, error) {
	if a.secretKey == "" {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha512.New, []byte(a.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	got := strings.TrimSpace(header.Get("X-Paystack-Signature"))
	if !hmac.Equal([]byte(expected), []byte(got)) {
		return nil, ErrInvalidSignature
	}

	var payload paystackWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	data := payload.Data
	if data.Reference == "" {
		return nil, fmt.Errorf("%w: missing charge reference", ErrMalformedPayload)
	}

	code := data.Currency
	if code == "" {
		code = "KES"
	}
	amount, err := currency.FromMinorUnits(data.Amount, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	occurredAt := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
		occurredAt = t
	}

	return &domain.PaymentEvent{
		Provider:       a.Name(),
		ExternalRef:    data.Reference,
		Amount:         amount,
		Currency:       code,
		Payer:          data.Customer.Email,
		Metadata:       stringifyMetadata(data.Metadata),
		Succeeded:      payload.Event == "charge.success" && strings.EqualFold(data.Status, "success"),
		ProviderStatus: data.Status,
		OccurredAt:     occurredAt,
	}, nil
}
