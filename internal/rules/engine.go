// Package rules provides the detection rules and the engine that runs them.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/txmon/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/opensource-finance/txmon/internal/rules")

// Engine evaluates an ordered set of rules against a snapshot and numbers
// the combined output into a flag ledger.
type Engine struct {
	rules      []Rule
	maxWorkers int

	// Clock stamps flagged_at. One reading is taken per run.
	Clock func() time.Time
}

// NewEngine creates an engine for rules in the given order.
// Rule IDs must be unique.
func NewEngine(rules []Rule, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.ID()]; dup {
			return nil, &domain.ConfigurationError{RuleID: r.ID(), Field: "id", Reason: "duplicate rule id"}
		}
		seen[r.ID()] = struct{}{}
	}

	return &Engine{
		rules:      append([]Rule(nil), rules...),
		maxWorkers: maxWorkers,
		Clock:      time.Now,
	}, nil
}

// NewEngineFromConfig builds the rule set from cfg and wraps it in an engine.
func NewEngineFromConfig(cfg domain.RulesConfig) (*Engine, error) {
	rules, err := BuildRules(cfg)
	if err != nil {
		return nil, err
	}
	return NewEngine(rules, cfg.MaxWorkers)
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

type ruleResult struct {
	candidates []domain.FlagCandidate
	err        error
	elapsed    time.Duration
}

// Run evaluates every rule against snap. Rules run concurrently, but their
// outputs are concatenated in rule order before numbering, so the ledger is
// independent of scheduling. The first failing rule (in rule order) aborts
// the run and no ledger is returned.
func (e *Engine) Run(ctx context.Context, snap *domain.Snapshot) (*domain.Ledger, error) {
	ctx, span := tracer.Start(ctx, "rules.Run")
	defer span.End()

	in := NewInput(snap, e.Clock())
	span.SetAttributes(
		attribute.Int("txmon.transactions", len(in.Snapshot.Transactions)),
		attribute.Int("txmon.rules", len(e.rules)),
	)

	results := make([]ruleResult, len(e.rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range e.rules {
		wg.Add(1)
		go func(idx int, r Rule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			cands, err := r.Evaluate(ctx, in)
			results[idx] = ruleResult{candidates: cands, err: err, elapsed: time.Since(start)}
		}(i, rule)
	}
	wg.Wait()

	ledger := &domain.Ledger{
		RunID:       uuid.New().String(),
		EvaluatedAt: in.Now,
		RuleStats:   make([]domain.RuleStat, len(e.rules)),
	}

	batches := make([][]domain.FlagCandidate, len(e.rules))
	for i, r := range e.rules {
		res := results[i]
		if res.err != nil {
			err := fmt.Errorf("rule %s: %w", r.ID(), res.err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "rule evaluation failed")
			return nil, err
		}
		batches[i] = res.candidates
		ledger.RuleStats[i] = domain.RuleStat{
			RuleID:     r.ID(),
			FlagType:   r.FlagType(),
			Candidates: len(res.candidates),
			ProcessMs:  res.elapsed.Milliseconds(),
		}
	}

	ledger.Flags = Aggregate(NewSequence(), batches)

	if len(in.Snapshot.Transactions) == 0 {
		slog.Warn("rule engine received no transactions", "run_id", ledger.RunID)
		ledger.Warnings = append(ledger.Warnings, domain.WarnEmptyInput)
	}

	span.SetAttributes(attribute.Int("txmon.flags", len(ledger.Flags)))
	return ledger, nil
}
