// Package provider turns raw, provider-specific webhook deliveries into
// canonical payment events, and hosts the outbound payment-initiation
// clients. Adapters are pure: parse and verify, no side effects.
package provider

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/changia/platform/internal/domain"
)

var (
	// ErrInvalidSignature means the webhook failed its authenticity check.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedPayload means the body could not be parsed into a payment
	// event. Provider retries will not fix it.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Adapter converts one provider's webhook delivery into a canonical
// PaymentEvent, verifying authenticity first.
type Adapter interface {
	Name() string
	ParseAndVerify(body []byte, header http.Header) (*domain.PaymentEvent, error)
}

// metaString pulls a string out of a loosely-typed metadata map.
func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%.0f", s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func stringifyMetadata(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k := range m {
		out[k] = metaString(m, k)
	}
	return out
}
