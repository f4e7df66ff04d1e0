package provider

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/changia/platform/internal/domain"
)

// MpesaAdapter handles Daraja STK push result callbacks. Daraja does not sign
// callback bodies, so authenticity rests on a shared secret carried in a
// header that only we and the configured callback URL know.
type MpesaAdapter struct {
	callbackSecret string
}

func NewMpesaAdapter(callbackSecret string) *MpesaAdapter {
	return &MpesaAdapter{callbackSecret: callbackSecret}
}

func (a *MpesaAdapter) Name() string { return "mpesa" }

type stkCallbackBody struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (a *MpesaAdapter) ParseAndVerify(body []byte, header http.Header) (*domain.PaymentEvent, error) {
	token := header.Get("X-Callback-Token")
	if a.callbackSecret == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(a.callbackSecret)) != 1 {
		return nil, ErrInvalidSignature
	}

	var payload stkCallbackBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	cb := payload.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedPayload)
	}

	ev := &domain.PaymentEvent{
		Provider:       a.Name(),
		ExternalRef:    cb.CheckoutRequestID,
		Currency:       "KES",
		Succeeded:      cb.ResultCode == 0,
		ProviderStatus: fmt.Sprintf("%d:%s", cb.ResultCode, cb.ResultDesc),
		OccurredAt:     time.Now().UTC(),
		Metadata: map[string]string{
			"merchant_request_id": cb.MerchantRequestID,
		},
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if f, ok := item.Value.(float64); ok {
				ev.Amount = f
			}
		case "MpesaReceiptNumber":
			if s, ok := item.Value.(string); ok {
				ev.Receipt = s
			}
		case "PhoneNumber":
			switch v := item.Value.(type) {
			case float64:
				ev.Payer = fmt.Sprintf("%.0f", v)
			case string:
				ev.Payer = v
			}
		}
	}

	return ev, nil
}
