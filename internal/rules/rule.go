package rules

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/opensource-finance/txmon/internal/domain"
)

// Rule is a single detection strategy. Evaluate must not modify the input
// and must return the same candidates for the same input.
type Rule interface {
	// ID is the unique rule identifier within an engine.
	ID() string

	// FlagType is the type of every candidate the rule emits.
	FlagType() domain.FlagType

	// Evaluate returns the transactions selected by the rule, in emission order.
	Evaluate(ctx context.Context, in *Input) ([]domain.FlagCandidate, error)
}

// Describer is implemented by rules that can explain their parameters.
type Describer interface {
	Describe() map[string]any
}

// Input is the read-only data shared by all rules of one run.
type Input struct {
	Snapshot *domain.Snapshot
	Index    *domain.Index

	// Now is the evaluation time stamped on every candidate.
	Now time.Time
}

// NewInput builds the run input, including its lookup index.
func NewInput(snap *domain.Snapshot, now time.Time) *Input {
	if snap == nil {
		snap = &domain.Snapshot{}
	}
	return &Input{
		Snapshot: snap,
		Index:    domain.NewIndex(snap),
		Now:      now,
	}
}

var validate = validator.New()

// validateParams checks a rule parameter struct and converts failures into
// a *domain.ConfigurationError.
func validateParams(ruleID string, params any) error {
	err := validate.Struct(params)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &domain.ConfigurationError{
			RuleID: ruleID,
			Field:  fe.Field(),
			Reason: fmt.Sprintf("failed %q constraint (got %v)", fe.Tag()+paramSuffix(fe.Param()), fe.Value()),
		}
	}
	return &domain.ConfigurationError{RuleID: ruleID, Reason: err.Error()}
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// formatAmount renders a threshold without a trailing ".0" (10000, 10000.5).
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
