package domain

import "time"

type NotificationKind string

const (
	NotifyDonationReceived NotificationKind = "DONATION_RECEIVED"
	NotifyPointsEarned     NotificationKind = "POINTS_EARNED"
	NotifyGoalReached      NotificationKind = "GOAL_REACHED"
)

// Notification is a fire-and-forget row consumed by the external delivery
// worker (SMS/email/push). The engine's obligation ends at row creation.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Delivered bool             `json:"delivered"`
	CreatedAt time.Time        `json:"created_at"`
}

// ReconciliationItem is an inbound payment event that could not be attributed
// to a pending donation intent. Queued for manual or async resolution,
// never silently dropped.
type ReconciliationItem struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ExternalRef string    `json:"external_ref"`
	Amount      float64   `json:"amount"`
	Payer       string    `json:"payer,omitempty"`
	Reason      string    `json:"reason"`
	RawPayload  string    `json:"raw_payload,omitempty"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"created_at"`
}
