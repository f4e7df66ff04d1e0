package provider

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"
)

const paystackPayload = `{
  "event": "charge.success",
  "data": {
    "reference": "ps_ref_8827112",
    "amount": 250000,
    "currency": "KES",
    "status": "success",
    "paid_at": "2026-08-21T09:15:00Z",
    "customer": {"email": "mercy.njeri@example.com"},
    "metadata": {"payment_id": "pay-123", "request_id": "req-school-fees"}
  }
}`

func signPaystack(t *testing.T, key string, body []byte) http.Header {
	t.Helper()
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	h := http.Header{}
	h.Set("X-Paystack-Signature", hex.EncodeToString(mac.Sum(nil)))
	return h
}

func TestPaystackParseAndVerify(t *testing.T) {
	adapter := NewPaystackAdapter("sk_test_abc")
	body := []byte(paystackPayload)

	ev, err := adapter.ParseAndVerify(body, signPaystack(t, "sk_test_abc", body))
	if err != nil {
		t.Fatalf("ParseAndVerify() error = %v", err)
	}
	if !ev.Succeeded {
		t.Error("expected Succeeded for charge.success")
	}
	if ev.ExternalRef != "ps_ref_8827112" {
		t.Errorf("ExternalRef = %q", ev.ExternalRef)
	}
	if ev.Amount != 2500 {
		t.Errorf("Amount = %v, want 2500 (minor units normalized)", ev.Amount)
	}
	if ev.Metadata["payment_id"] != "pay-123" {
		t.Errorf("Metadata[payment_id] = %q", ev.Metadata["payment_id"])
	}
	if ev.Payer != "mercy.njeri@example.com" {
		t.Errorf("Payer = %q", ev.Payer)
	}
}

func TestPaystackRejectsBadSignature(t *testing.T) {
	adapter := NewPaystackAdapter("sk_test_abc")
	body := []byte(paystackPayload)

	_, err := adapter.ParseAndVerify(body, signPaystack(t, "sk_wrong", body))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("error = %v, want ErrInvalidSignature", err)
	}
}

func TestPaystackFailedChargeNotSucceeded(t *testing.T) {
	adapter := NewPaystackAdapter("sk_test_abc")
	body := []byte(`{"event":"charge.failed","data":{"reference":"ps_ref_1","amount":10000,"currency":"KES","status":"failed"}}`)

	ev, err := adapter.ParseAndVerify(body, signPaystack(t, "sk_test_abc", body))
	if err != nil {
		t.Fatalf("ParseAndVerify() error = %v", err)
	}
	if ev.Succeeded {
		t.Error("charge.failed must not be marked succeeded")
	}
}

func TestPaystackRejectsMalformedPayload(t *testing.T) {
	adapter := NewPaystackAdapter("sk_test_abc")

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{{"},
		{"missing reference", `{"event":"charge.success","data":{"amount":10000,"status":"success"}}`},
		{"unsupported currency", `{"event":"charge.success","data":{"reference":"r1","amount":10000,"currency":"XXX","status":"success"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := []byte(tt.body)
			_, err := adapter.ParseAndVerify(body, signPaystack(t, "sk_test_abc", body))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}
