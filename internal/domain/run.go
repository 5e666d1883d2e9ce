package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Run status values.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is the persisted record of one pipeline execution.
// A failed run carries Error and never has flags attached.
type Run struct {
	ID                  string     `json:"id"`
	Status              string     `json:"status"`
	StartedAt           time.Time  `json:"startedAt"`
	CompletedAt         time.Time  `json:"completedAt"`
	TransactionCount    int        `json:"transactionCount"`
	FlagCount           int        `json:"flagCount"`
	FlaggedTransactions int        `json:"flaggedTransactions"`
	RuleStats           []RuleStat `json:"ruleStats,omitempty"`
	Warnings            []string   `json:"warnings,omitempty"`
	Error               string     `json:"error,omitempty"`
	Report              *Report    `json:"report,omitempty"`
}

// Report holds the summary aggregates rendered by the dashboard.
type Report struct {
	RunID               string           `json:"runId"`
	GeneratedAt         time.Time        `json:"generatedAt"`
	TotalTransactions   int              `json:"totalTransactions"`
	TotalAmount         decimal.Decimal  `json:"totalAmount"`
	FlaggedTransactions int              `json:"flaggedTransactions"`
	FlagCount           int              `json:"flagCount"`
	FlagRatio           float64          `json:"flagRatio"` // percent
	FlagsByType         []TypeCount      `json:"flagsByType"`
	FlagsByRisk         []RiskCount      `json:"flagsByRisk"`
	TopCustomers        []CustomerVolume `json:"topCustomers"`
	TransactionsPerHour []HourCount      `json:"transactionsPerHour"`

	// FlaggedDetail is joined against the run's own input, so it stays
	// valid after later runs replace the stored snapshot.
	FlaggedDetail []FlaggedTransaction `json:"flaggedDetail"`
}

// TypeCount is the number of flags of one type.
type TypeCount struct {
	FlagType FlagType `json:"flagType"`
	Count    int      `json:"count"`
}

// RiskCount is the number of flags raised on customers of one risk rating.
type RiskCount struct {
	RiskRating RiskRating `json:"riskRating"`
	FlagCount  int        `json:"flagCount"`
}

// CustomerVolume is a customer's summed transaction amount.
type CustomerVolume struct {
	CustomerID string          `json:"customerId"`
	Amount     decimal.Decimal `json:"amount"`
}

// HourCount is the number of transactions booked in one hour of day.
type HourCount struct {
	Hour             int `json:"hour"`
	TransactionCount int `json:"transactionCount"`
}

// FlaggedTransaction is one row of the flagged transactions detail table.
type FlaggedTransaction struct {
	Flag        Flag        `json:"flag"`
	Transaction Transaction `json:"transaction"`
	CustomerID  string      `json:"customerId"`
}
