package domain

import "time"

// PaymentEvent is the canonical form of a provider webhook notification,
// produced by a provider adapter after authenticity has been verified.
// ExternalRef is the provider's correlation id for the transaction and is
// used as the idempotency key downstream.
type PaymentEvent struct {
	Provider       string            `json:"provider"`
	ExternalRef    string            `json:"external_ref"`
	Receipt        string            `json:"receipt,omitempty"`
	Amount         float64           `json:"amount"`
	Currency       string            `json:"currency"`
	Payer          string            `json:"payer,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Succeeded      bool              `json:"succeeded"`
	ProviderStatus string            `json:"provider_status"`
	OccurredAt     time.Time         `json:"occurred_at"`
}
