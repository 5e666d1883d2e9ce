package rules

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/txmon/internal/domain"
)

// ExpressionRule flags transactions for which a CEL expression evaluates to
// true. The expression sees the transaction joined with its account and
// customer.
type ExpressionRule struct {
	id       string
	flagType domain.FlagType
	expr     string
	reason   string
	program  cel.Program
}

type expressionParams struct {
	ID         string `validate:"required"`
	FlagType   string `validate:"required"`
	Expression string `validate:"required"`
}

var exprEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("transaction_id", cel.StringType),
		cel.Variable("account_id", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("hour", cel.IntType),
		// Account and customer fields, resolved through the run index
		cel.Variable("account_type", cel.StringType),
		cel.Variable("account_currency", cel.StringType),
		cel.Variable("balance", cel.DoubleType),
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("home_country", cel.StringType),
		cel.Variable("risk_rating", cel.StringType),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create CEL environment: %v", err))
	}
	exprEnv = env
}

// NewExpressionRule compiles cfg into a rule. Compile failures and non-bool
// expressions are reported as *domain.ConfigurationError.
func NewExpressionRule(cfg domain.ExpressionRuleConfig) (*ExpressionRule, error) {
	params := expressionParams{ID: cfg.ID, FlagType: string(cfg.FlagType), Expression: cfg.Expression}
	if err := validateParams(cfg.ID, params); err != nil {
		return nil, err
	}

	ast, issues := exprEnv.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, &domain.ConfigurationError{RuleID: cfg.ID, Field: "expression", Reason: issues.Err().Error()}
	}
	if ast.OutputType() != cel.BoolType {
		return nil, &domain.ConfigurationError{
			RuleID: cfg.ID,
			Field:  "expression",
			Reason: fmt.Sprintf("must return bool, got %s", ast.OutputType()),
		}
	}

	program, err := exprEnv.Program(ast)
	if err != nil {
		return nil, &domain.ConfigurationError{RuleID: cfg.ID, Field: "expression", Reason: err.Error()}
	}

	reason := cfg.Reason
	if reason == "" {
		reason = "Matched expression: " + cfg.Expression
	}

	return &ExpressionRule{
		id:       cfg.ID,
		flagType: cfg.FlagType,
		expr:     cfg.Expression,
		reason:   reason,
		program:  program,
	}, nil
}

func (r *ExpressionRule) ID() string                { return r.id }
func (r *ExpressionRule) FlagType() domain.FlagType { return r.flagType }

func (r *ExpressionRule) Describe() map[string]any {
	return map[string]any{"expression": r.expr, "reason": r.reason}
}

// Evaluate runs the program once per transaction in input order.
func (r *ExpressionRule) Evaluate(ctx context.Context, in *Input) ([]domain.FlagCandidate, error) {
	var out []domain.FlagCandidate
	for i := range in.Snapshot.Transactions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tx := &in.Snapshot.Transactions[i]

		acct, cust, err := in.Index.OwnerOf(tx)
		if err != nil {
			return nil, err
		}

		val, _, err := r.program.Eval(activation(tx, acct, cust))
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		if val != types.True {
			continue
		}

		out = append(out, domain.FlagCandidate{
			TransactionID: tx.ID,
			Type:          r.flagType,
			Reason:        r.reason,
			FlaggedAt:     in.Now,
		})
	}
	return out, nil
}

func activation(tx *domain.Transaction, acct *domain.Account, cust *domain.Customer) map[string]any {
	return map[string]any{
		"transaction_id":   tx.ID,
		"account_id":       tx.AccountID,
		"amount":           tx.Amount,
		"currency":         tx.Currency,
		"country":          tx.Country,
		"tx_type":          tx.Type,
		"hour":             int64(tx.Timestamp.Hour()),
		"account_type":     acct.AccountType,
		"account_currency": acct.Currency,
		"balance":          acct.Balance,
		"customer_id":      cust.ID,
		"home_country":     cust.Country,
		"risk_rating":      string(cust.RiskRating),
	}
}
