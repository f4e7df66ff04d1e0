package domain

import "time"

type DonationStatus string

const (
	DonationCompleted DonationStatus = "COMPLETED"
	DonationRefunded  DonationStatus = "REFUNDED"
)

// Donation is the settled effect of a completed Payment against a Request.
// One Payment settles at most one Donation (payment_id is unique).
type Donation struct {
	ID        string         `json:"id"`
	PaymentID string         `json:"payment_id"`
	RequestID string         `json:"request_id"`
	DonorID   string         `json:"donor_id"`
	Amount    float64        `json:"amount"`
	Status    DonationStatus `json:"status"`
	Invoice   string         `json:"invoice,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PointsGrant records the points earned for a single completed payment.
// The 1:1 link to the payment prevents duplicate grants on webhook retry.
type PointsGrant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PaymentID string    `json:"payment_id"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}
