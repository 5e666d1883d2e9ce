// Package pipeline runs one complete monitoring pass: evaluate, persist,
// export, summarize and announce.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/txmon/internal/bus"
	"github.com/opensource-finance/txmon/internal/dataset"
	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/opensource-finance/txmon/internal/reporting"
	"github.com/opensource-finance/txmon/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/opensource-finance/txmon/internal/pipeline")

var (
	// ErrNoEngine is returned by New when no engine is supplied.
	ErrNoEngine = errors.New("pipeline requires a rule engine")

	// ErrNoRepository is returned by Report when neither cache nor
	// repository can serve the request.
	ErrNoRepository = errors.New("no repository configured")

	// ErrNoReport is returned by Report for runs that never produced one.
	ErrNoReport = errors.New("run has no report")
)

// Options configures optional pipeline stages.
type Options struct {
	// ExportDir receives the processed CSVs. Empty disables export.
	ExportDir string

	// ReportTTL is how long reports stay cached.
	ReportTTL time.Duration

	// TopCustomers bounds the top customers table of the report.
	TopCustomers int
}

// Pipeline wires the rule engine to its collaborators. Repository, cache and
// bus are optional; a nil collaborator skips its stage.
type Pipeline struct {
	engine *rules.Engine
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	opts   Options

	// mu allows one pass at a time; each pass replaces the stored snapshot.
	mu sync.Mutex
}

// New creates a pipeline.
func New(engine *rules.Engine, repo domain.Repository, cache domain.Cache, eventBus domain.EventBus, opts Options) (*Pipeline, error) {
	if engine == nil {
		return nil, ErrNoEngine
	}
	if opts.TopCustomers <= 0 {
		opts.TopCustomers = reporting.DefaultTopCustomers
	}
	return &Pipeline{
		engine: engine,
		repo:   repo,
		cache:  cache,
		bus:    eventBus,
		opts:   opts,
	}, nil
}

// Engine returns the rule engine.
func (p *Pipeline) Engine() *rules.Engine {
	return p.engine
}

// Result is the outcome of a successful Execute.
type Result struct {
	Run    *domain.Run
	Flags  []domain.Flag
	Report *domain.Report
}

// Execute runs the engine over snap and persists the outcome. The ledger is
// written only once it is complete. When the engine fails, a failed run
// without flags is recorded and the engine error is returned.
func (p *Pipeline) Execute(ctx context.Context, snap *domain.Snapshot) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Execute")
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	if snap == nil {
		snap = &domain.Snapshot{}
	}
	start := time.Now()

	ledger, err := p.engine.Run(ctx, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine failed")
		p.recordFailure(ctx, snap, start, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("txmon.run_id", ledger.RunID))

	report := reporting.Build(ledger.RunID, snap, ledger.Flags, reporting.Options{
		TopCustomers: p.opts.TopCustomers,
		Now:          func() time.Time { return ledger.EvaluatedAt },
	})

	run := &domain.Run{
		ID:                  ledger.RunID,
		Status:              domain.RunStatusCompleted,
		StartedAt:           start,
		CompletedAt:         time.Now(),
		TransactionCount:    len(snap.Transactions),
		FlagCount:           len(ledger.Flags),
		FlaggedTransactions: ledger.FlaggedTransactionCount(),
		RuleStats:           ledger.RuleStats,
		Warnings:            ledger.Warnings,
		Report:              report,
	}

	if p.repo != nil {
		if err := p.repo.ReplaceSnapshot(ctx, snap); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to store snapshot: %w", err)
		}
		if err := p.repo.SaveRun(ctx, run, ledger.Flags); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to store run: %w", err)
		}
	}

	// The run is durable once saved; a failed export is reported but does
	// not fail it.
	if p.opts.ExportDir != "" {
		if err := dataset.Export(p.opts.ExportDir, snap, ledger.Flags); err != nil {
			span.RecordError(err)
			slog.Warn("failed to export dataset",
				"run_id", run.ID,
				"dir", p.opts.ExportDir,
				"error", err,
			)
		}
	}

	if p.cache != nil {
		if err := p.cache.SetReport(ctx, run.ID, report, p.opts.ReportTTL); err != nil {
			slog.Warn("failed to cache report", "run_id", run.ID, "error", err)
		}
	}

	p.announce(ctx, run, ledger.Flags)

	slog.Info("run completed",
		"run_id", run.ID,
		"transaction_count", run.TransactionCount,
		"flag_count", run.FlagCount,
		"flagged_transactions", run.FlaggedTransactions,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{Run: run, Flags: ledger.Flags, Report: report}, nil
}

func (p *Pipeline) recordFailure(ctx context.Context, snap *domain.Snapshot, start time.Time, cause error) {
	run := &domain.Run{
		ID:               uuid.New().String(),
		Status:           domain.RunStatusFailed,
		StartedAt:        start,
		CompletedAt:      time.Now(),
		TransactionCount: len(snap.Transactions),
		Error:            cause.Error(),
	}

	slog.Error("run failed",
		"run_id", run.ID,
		"error", cause,
	)

	if p.repo != nil {
		if err := p.repo.SaveRun(ctx, run, nil); err != nil {
			slog.Error("failed to record failed run", "run_id", run.ID, "error", err)
		}
	}

	if p.bus != nil {
		if err := bus.PublishJSON(ctx, p.bus, domain.TopicRunFailed, runEvent(run)); err != nil {
			slog.Error("failed to publish run failure", "run_id", run.ID, "error", err)
		}
	}
}

// announce publishes the completion event and one event per flag. Bus
// failures are logged; the run is already durable at this point.
func (p *Pipeline) announce(ctx context.Context, run *domain.Run, flags []domain.Flag) {
	if p.bus == nil {
		return
	}

	for _, f := range flags {
		if err := bus.PublishJSON(ctx, p.bus, domain.TopicFlagRaised, domain.FlagEvent{RunID: run.ID, Flag: f}); err != nil {
			slog.Error("failed to publish flag",
				"run_id", run.ID,
				"flag_id", f.ID,
				"error", err,
			)
			break
		}
	}

	if err := bus.PublishJSON(ctx, p.bus, domain.TopicRunCompleted, runEvent(run)); err != nil {
		slog.Error("failed to publish run completion", "run_id", run.ID, "error", err)
	}
}

func runEvent(run *domain.Run) domain.RunEvent {
	return domain.RunEvent{
		RunID:               run.ID,
		Status:              run.Status,
		TransactionCount:    run.TransactionCount,
		FlagCount:           run.FlagCount,
		FlaggedTransactions: run.FlaggedTransactions,
		Error:               run.Error,
	}
}

// Report returns the report of a run, preferring the cache and falling back
// to the repository. A report loaded from the repository is re-cached.
func (p *Pipeline) Report(ctx context.Context, runID string) (*domain.Report, error) {
	if p.cache != nil {
		report, err := p.cache.GetReport(ctx, runID)
		if err != nil {
			slog.Warn("report cache lookup failed", "run_id", runID, "error", err)
		} else if report != nil {
			return report, nil
		}
	}

	if p.repo == nil {
		return nil, ErrNoRepository
	}
	run, err := p.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Report == nil {
		return nil, ErrNoReport
	}

	if p.cache != nil {
		if err := p.cache.SetReport(ctx, runID, run.Report, p.opts.ReportTTL); err != nil {
			slog.Warn("failed to cache report", "run_id", runID, "error", err)
		}
	}
	return run.Report, nil
}
