package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/changia/platform/internal/domain"
)

// KopoKopoAdapter handles paybill/till webhook events. Kopo Kopo signs the
// raw body with HMAC-SHA256 under the API key; the hex digest arrives in
// X-KopoKopo-Signature.
type KopoKopoAdapter struct {
	apiKey string
}

func NewKopoKopoAdapter(apiKey string) *KopoKopoAdapter {
	return &KopoKopoAdapter{apiKey: apiKey}
}

func (a *KopoKopoAdapter) Name() string { return "kopokopo" }

type kopoKopoWebhook struct {
	Topic string `json:"topic"`
	Event struct {
		Type     string `json:"type"`
		Resource struct {
			ID                string         `json:"id"`
			Reference         string         `json:"reference"`
			AccountReference  string         `json:"account_reference"`
			SenderPhoneNumber string         `json:"sender_phone_number"`
			Amount            string         `json:"amount"`
			Currency          string         `json:"currency"`
			TillNumber        string         `json:"till_number"`
			Status            string         `json:"status"`
			Metadata          map[string]any `json:"metadata"`
			OriginationTime   string         `json:"origination_time"`
		} `json:"resource"`
	} `json:"event"`
}

func (a *KopoKopoAdapter) ParseAndVerify(body []byte, header http.Header) (*domain.PaymentEvent, error) {
	if a.apiKey == "" {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.apiKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	got := strings.TrimSpace(header.Get("X-KopoKopo-Signature"))
	if !hmac.Equal([]byte(expected), []byte(got)) {
		return nil, ErrInvalidSignature
	}

	var payload kopoKopoWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	res := payload.Event.Resource
	if res.Reference == "" {
		return nil, fmt.Errorf("%w: missing transaction reference", ErrMalformedPayload)
	}

	amount, err := strconv.ParseFloat(res.Amount, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad amount %q", ErrMalformedPayload, res.Amount)
	}

	occurredAt := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, res.OriginationTime); err == nil {
		occurredAt = t
	}

	currency := res.Currency
	if currency == "" {
		currency = "KES"
	}

	meta := stringifyMetadata(res.Metadata)
	if res.AccountReference != "" {
		if meta == nil {
			meta = map[string]string{}
		}
		meta["invoice"] = res.AccountReference
	}

	return &domain.PaymentEvent{
		Provider:       a.Name(),
		ExternalRef:    res.Reference,
		Amount:         amount,
		Currency:       currency,
		Payer:          strings.TrimPrefix(res.SenderPhoneNumber, "+"),
		Metadata:       meta,
		Succeeded:      strings.EqualFold(res.Status, "Received") || strings.EqualFold(res.Status, "Success"),
		ProviderStatus: res.Status,
		OccurredAt:     occurredAt,
	}, nil
}
