package domain

import "time"

// Wallet holds a user's running balance. Credited when the user is the
// receiver of funds; only mutated inside the settlement transaction or by an
// authorized withdrawal debit.
type Wallet struct {
	UserID    string    `json:"user_id"`
	Balance   float64   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerEntry is an immutable giver-to-receiver money movement, kept
// separately from the wallet's mutable balance for audit and reconciliation.
type LedgerEntry struct {
	ID         string    `json:"id"`
	PaymentID  string    `json:"payment_id"`
	GiverID    string    `json:"giver_id"`
	ReceiverID string    `json:"receiver_id"`
	Amount     float64   `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}
