package domain

import "time"

// User carries the aggregate projection fields the settlement engine maintains.
// Identity and sessions live with an external provider; the id is opaque here.
// Level is derived: it must always be recomputable from the points ledger.
type User struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone,omitempty"`
	Email         string    `json:"email,omitempty"`
	Level         int       `json:"level"`
	TotalDonated  float64   `json:"total_donated"`
	DonationCount int       `json:"donation_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Community aggregates the requests posted under it.
type Community struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	TotalDonations     float64   `json:"total_donations"`
	SuccessfulRequests int       `json:"successful_requests"`
	CreatedAt          time.Time `json:"created_at"`
}
