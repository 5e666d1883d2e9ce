package domain

import (
	"time"
)

// FlagType names the detection strategy that produced a flag.
type FlagType string

const (
	FlagHighValue   FlagType = "high_value"
	FlagCrossBorder FlagType = "cross_border"
	FlagFrequentTx  FlagType = "frequent_tx"
)

// FlagCandidate is a rule hit that has not been numbered yet.
type FlagCandidate struct {
	TransactionID string    `json:"transactionId"`
	Type          FlagType  `json:"flagType"`
	Reason        string    `json:"flagReason"`
	FlaggedAt     time.Time `json:"flaggedAt"`
}

// Flag is one row of the flag ledger.
type Flag struct {
	ID            string    `json:"flagId"`
	TransactionID string    `json:"transactionId"`
	Type          FlagType  `json:"flagType"`
	Reason        string    `json:"flagReason"`
	FlaggedAt     time.Time `json:"flaggedAt"`
}

// Ledger is the complete output of one engine run.
type Ledger struct {
	RunID       string     `json:"runId"`
	EvaluatedAt time.Time  `json:"evaluatedAt"`
	Flags       []Flag     `json:"flags"`
	RuleStats   []RuleStat `json:"ruleStats"`
	Warnings    []string   `json:"warnings,omitempty"`
}

// RuleStat records how one rule behaved during a run.
type RuleStat struct {
	RuleID     string   `json:"ruleId"`
	FlagType   FlagType `json:"flagType"`
	Candidates int      `json:"candidates"`
	ProcessMs  int64    `json:"processMs"`
}

// FlaggedTransactionCount returns the number of distinct flagged transactions.
func (l *Ledger) FlaggedTransactionCount() int {
	seen := make(map[string]struct{}, len(l.Flags))
	for _, f := range l.Flags {
		seen[f.TransactionID] = struct{}{}
	}
	return len(seen)
}
