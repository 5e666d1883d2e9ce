package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/txmon/internal/domain"
)

// FrequencyRule flags accounts with an unusually busy day: when an account
// books more than maxPerDay transactions on one calendar day, every
// transaction of that day is flagged, not only the ones past the limit.
type FrequencyRule struct {
	maxPerDay int
}

type frequencyParams struct {
	MaxPerDay int `validate:"gt=0"`
}

// NewFrequencyRule creates a frequency rule. maxPerDay must be positive.
func NewFrequencyRule(maxPerDay int) (*FrequencyRule, error) {
	if err := validateParams(domain.RuleFrequentTx, frequencyParams{MaxPerDay: maxPerDay}); err != nil {
		return nil, err
	}
	return &FrequencyRule{maxPerDay: maxPerDay}, nil
}

func (r *FrequencyRule) ID() string                { return domain.RuleFrequentTx }
func (r *FrequencyRule) FlagType() domain.FlagType { return domain.FlagFrequentTx }

// MaxPerDay returns the configured daily limit.
func (r *FrequencyRule) MaxPerDay() int { return r.maxPerDay }

func (r *FrequencyRule) Describe() map[string]any {
	return map[string]any{"maxPerDay": r.maxPerDay}
}

type dayKey struct {
	accountID string
	day       string
}

// Evaluate partitions transactions by (account, day). Partitions are emitted
// in order of first appearance, transactions in input order.
func (r *FrequencyRule) Evaluate(ctx context.Context, in *Input) ([]domain.FlagCandidate, error) {
	txs := in.Snapshot.Transactions

	var order []dayKey
	partitions := make(map[dayKey][]int)
	for i := range txs {
		k := dayKey{accountID: txs[i].AccountID, day: txs[i].Day()}
		if _, ok := partitions[k]; !ok {
			order = append(order, k)
		}
		partitions[k] = append(partitions[k], i)
	}

	var out []domain.FlagCandidate
	for _, k := range order {
		members := partitions[k]
		if len(members) <= r.maxPerDay {
			continue
		}

		reason := fmt.Sprintf("More than %d transactions on %s", r.maxPerDay, k.day)
		for _, i := range members {
			out = append(out, domain.FlagCandidate{
				TransactionID: txs[i].ID,
				Type:          domain.FlagFrequentTx,
				Reason:        reason,
				FlaggedAt:     in.Now,
			})
		}
	}
	return out, nil
}
