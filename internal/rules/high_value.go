package rules

import (
	"context"

	"github.com/opensource-finance/txmon/internal/domain"
)

// HighValueRule flags transactions whose amount is strictly above a threshold.
// Amounts are compared in raw units regardless of currency.
type HighValueRule struct {
	threshold float64
	reason    string
}

type highValueParams struct {
	Threshold float64 `validate:"gte=0"`
}

// NewHighValueRule creates a high-value rule. A negative threshold is a
// configuration error.
func NewHighValueRule(threshold float64) (*HighValueRule, error) {
	if err := validateParams(domain.RuleHighValue, highValueParams{Threshold: threshold}); err != nil {
		return nil, err
	}
	return &HighValueRule{
		threshold: threshold,
		reason:    "Transaction amount exceeds " + formatAmount(threshold),
	}, nil
}

func (r *HighValueRule) ID() string                { return domain.RuleHighValue }
func (r *HighValueRule) FlagType() domain.FlagType { return domain.FlagHighValue }

// Threshold returns the configured threshold.
func (r *HighValueRule) Threshold() float64 { return r.threshold }

func (r *HighValueRule) Describe() map[string]any {
	return map[string]any{"threshold": r.threshold}
}

// Evaluate flags every transaction with amount > threshold.
func (r *HighValueRule) Evaluate(ctx context.Context, in *Input) ([]domain.FlagCandidate, error) {
	var out []domain.FlagCandidate
	for i := range in.Snapshot.Transactions {
		tx := &in.Snapshot.Transactions[i]
		if tx.Amount > r.threshold {
			out = append(out, domain.FlagCandidate{
				TransactionID: tx.ID,
				Type:          domain.FlagHighValue,
				Reason:        r.reason,
				FlaggedAt:     in.Now,
			})
		}
	}
	return out, nil
}
