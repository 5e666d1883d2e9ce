package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/txmon/internal/domain"
)

// CrossBorderRule flags transactions executed outside the owning customer's
// home country. Country codes are compared exactly (case-sensitive).
type CrossBorderRule struct{}

// NewCrossBorderRule creates a cross-border rule.
func NewCrossBorderRule() *CrossBorderRule {
	return &CrossBorderRule{}
}

func (r *CrossBorderRule) ID() string                { return domain.RuleCrossBorder }
func (r *CrossBorderRule) FlagType() domain.FlagType { return domain.FlagCrossBorder }

// Evaluate resolves each transaction's home country through the run index.
// An unresolvable account or customer aborts evaluation with a
// *domain.ReferentialIntegrityError rather than skipping the transaction.
func (r *CrossBorderRule) Evaluate(ctx context.Context, in *Input) ([]domain.FlagCandidate, error) {
	var out []domain.FlagCandidate
	for i := range in.Snapshot.Transactions {
		tx := &in.Snapshot.Transactions[i]

		_, cust, err := in.Index.OwnerOf(tx)
		if err != nil {
			return nil, err
		}

		if tx.Country != cust.Country {
			out = append(out, domain.FlagCandidate{
				TransactionID: tx.ID,
				Type:          domain.FlagCrossBorder,
				Reason:        fmt.Sprintf("Transaction country %s differs from home country %s", tx.Country, cust.Country),
				FlaggedAt:     in.Now,
			})
		}
	}
	return out, nil
}
