package domain

import (
	"time"
)

// RiskRating is a customer's risk classification.
type RiskRating string

const (
	RiskLow    RiskRating = "low"
	RiskMedium RiskRating = "medium"
	RiskHigh   RiskRating = "high"
)

// Rank orders ratings from low to high. Unknown ratings sort last.
func (r RiskRating) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 3
	}
}

// Customer is the owner of one or more accounts.
type Customer struct {
	ID          string     `json:"customerId" validate:"required"`
	FullName    string     `json:"fullName"`
	DateOfBirth time.Time  `json:"dateOfBirth"`
	Country     string     `json:"country" validate:"required"`
	RiskRating  RiskRating `json:"riskRating" validate:"required,oneof=low medium high"`
}

// Account belongs to exactly one customer.
type Account struct {
	ID          string    `json:"accountId" validate:"required"`
	CustomerID  string    `json:"customerId" validate:"required"`
	AccountType string    `json:"accountType"`
	Currency    string    `json:"currency" validate:"omitempty,len=3"`
	Balance     float64   `json:"balance"`
	OpenedDate  time.Time `json:"openedDate"`
}

// Transaction is a single booked movement on an account.
type Transaction struct {
	ID        string    `json:"transactionId" validate:"required"`
	AccountID string    `json:"accountId" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`

	// Transaction type (e.g., "ATM", "POS", "TRANSFER")
	Type string `json:"transactionType"`

	Amount   float64 `json:"amount" validate:"gt=0"`
	Currency string  `json:"currency" validate:"omitempty,len=3"`

	// Country where the transaction was executed.
	Country string `json:"country" validate:"required"`
}

// Day returns the calendar day of the transaction timestamp as YYYY-MM-DD.
func (t *Transaction) Day() string {
	return t.Timestamp.Format(time.DateOnly)
}
