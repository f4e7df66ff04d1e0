package domain

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

type PaymentMethod string

const (
	MethodMpesa    PaymentMethod = "MPESA"
	MethodKopoKopo PaymentMethod = "KOPOKOPO"
	MethodPaystack PaymentMethod = "PAYSTACK"
)

// Payment is one attempt to move money. A PENDING row doubles as the donation
// intent created at initiation time; the settlement engine transitions it to
// COMPLETED exactly once. ExternalRef is the provider correlation id and the
// idempotency key: unique among COMPLETED payments.
type Payment struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	RequestID   string        `json:"request_id,omitempty"`
	Amount      float64       `json:"amount"`
	Currency    string        `json:"currency"`
	Method      PaymentMethod `json:"method"`
	Status      PaymentStatus `json:"status"`
	Phone       string        `json:"phone,omitempty"`
	Email       string        `json:"email,omitempty"`
	ProviderRef string        `json:"provider_ref,omitempty"`
	ExternalRef string        `json:"external_ref,omitempty"`
	Receipt     string        `json:"receipt,omitempty"`
	Invoice     string        `json:"invoice,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
