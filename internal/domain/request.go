package domain

import "time"

type RequestStatus string

const (
	RequestPending RequestStatus = "PENDING"
	RequestPaid    RequestStatus = "PAID"
	RequestFunded  RequestStatus = "FUNDED"
	RequestClosed  RequestStatus = "CLOSED"
	RequestBlocked RequestStatus = "BLOCKED"
)

// Request is a funding ask posted by a user. FundedAmount is mutated only by
// the settlement engine, as an atomic increment inside the settlement
// transaction; it must always equal the sum of completed donations.
type Request struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	CommunityID  string        `json:"community_id,omitempty"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	TargetAmount float64       `json:"target_amount"`
	FundedAmount float64       `json:"funded_amount"`
	Currency     string        `json:"currency"`
	Deadline     *time.Time    `json:"deadline,omitempty"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
