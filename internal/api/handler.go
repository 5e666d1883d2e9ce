package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/opensource-finance/txmon/internal/bus"
	"github.com/opensource-finance/txmon/internal/dataset"
	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/opensource-finance/txmon/internal/pipeline"
	"github.com/opensource-finance/txmon/internal/reporting"
	"github.com/opensource-finance/txmon/internal/repository"
	"github.com/opensource-finance/txmon/internal/rules"
	"github.com/opensource-finance/txmon/internal/synth"
)

var validate = validator.New()

// Handler holds dependencies for API handlers.
type Handler struct {
	pipeline *pipeline.Pipeline
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(p *pipeline.Pipeline, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		pipeline: p,
		repo:     repo,
		cache:    cache,
		bus:      bus,
		version:  version,
	}
}

// RunRequest is the request body for POST /runs. An empty body runs over
// the stored snapshot.
type RunRequest struct {
	// Generate replaces the stored snapshot with synthetic data first.
	Generate *GenerateRequest `json:"generate,omitempty"`

	// Async queues the run on the event bus and returns immediately.
	Async bool `json:"async,omitempty"`
}

// GenerateRequest parameterizes synthetic data generation.
type GenerateRequest struct {
	Customers int    `json:"customers" validate:"gte=1,lte=100000"`
	Seed      int64  `json:"seed"`
	BaseDate  string `json:"baseDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// RunResponse is the response for POST /runs.
type RunResponse struct {
	Run      *domain.Run `json:"run"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// CreateRun handles POST /runs.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if req.Async {
		h.queueRun(w, r, req)
		return
	}

	var snap *domain.Snapshot
	switch {
	case req.Generate != nil:
		cfg, err := generateConfig(req.Generate)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		snap = synth.Generate(cfg)

	case h.repo != nil:
		var err error
		snap, err = h.repo.LoadSnapshot(ctx)
		if err != nil {
			slog.Error("failed to load snapshot", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load snapshot")
			return
		}

	default:
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	res, err := h.pipeline.Execute(ctx, snap)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrReferentialIntegrity) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	resp := RunResponse{Run: res.Run}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) queueRun(w http.ResponseWriter, r *http.Request, req RunRequest) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}
	if req.Generate != nil {
		writeError(w, http.StatusBadRequest, "generate cannot be combined with async")
		return
	}

	runReq := domain.RunRequest{
		RequestID:   GetRequestID(r.Context()),
		RequestedBy: r.RemoteAddr,
	}
	if runReq.RequestID == "" {
		runReq.RequestID = uuid.New().String()
	}

	if err := bus.PublishJSON(r.Context(), h.bus, domain.TopicRunRequested, runReq); err != nil {
		slog.Error("failed to queue run", "request_id", runReq.RequestID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue run")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"requestId": runReq.RequestID,
		"status":    "queued",
	})
}

func generateConfig(req *GenerateRequest) (synth.Config, error) {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return synth.Config{}, fmt.Errorf("generate.%s: failed %q validation", verrs[0].Field(), verrs[0].Tag())
		}
		return synth.Config{}, err
	}

	cfg := synth.Config{Customers: req.Customers, Seed: req.Seed}
	if req.BaseDate != "" {
		d, err := time.Parse(time.DateOnly, req.BaseDate)
		if err != nil {
			return synth.Config{}, fmt.Errorf("generate.baseDate: %w", err)
		}
		cfg.BaseDate = d
	}
	return cfg, nil
}

// ListRuns handles GET /runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	limit := repository.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.repo.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	// The list omits reports; fetch a run for its report.
	for _, run := range runs {
		run.Report = nil
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	runID := chi.URLParam(r, "id")
	run, err := h.repo.GetRun(r.Context(), runID)
	if err != nil {
		h.writeLookupError(w, "run", runID, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListFlags handles GET /runs/{id}/flags. ?format=csv returns the ledger in
// the transaction_flags.csv layout.
func (h *Handler) ListFlags(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	runID := chi.URLParam(r, "id")
	flags, err := h.repo.ListFlags(r.Context(), runID)
	if err != nil {
		h.writeLookupError(w, "run", runID, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dataset.FlagsFile))
		w.WriteHeader(http.StatusOK)
		if err := dataset.WriteFlags(w, flags); err != nil {
			slog.Error("failed to write flags csv", "run_id", runID, "error", err)
		}
		return
	}

	if flags == nil {
		flags = []domain.Flag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runId": runID,
		"flags": flags,
		"count": len(flags),
	})
}

// GetReport handles GET /runs/{id}/report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	report, err := h.pipeline.Report(r.Context(), runID)
	if err != nil {
		h.writeLookupError(w, "report", runID, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GetReportXLSX handles GET /runs/{id}/report.xlsx.
func (h *Handler) GetReportXLSX(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	report, err := h.pipeline.Report(ctx, runID)
	if err != nil {
		h.writeLookupError(w, "report", runID, err)
		return
	}

	w.Header().Set("Content-Type", reporting.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report-"+runID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	if err := reporting.WriteXLSX(w, report); err != nil {
		slog.Error("failed to write report workbook", "run_id", runID, "error", err)
	}
}

// RuleInfo describes one configured rule.
type RuleInfo struct {
	ID         string          `json:"id"`
	FlagType   domain.FlagType `json:"flagType"`
	Order      int             `json:"order"`
	Parameters map[string]any  `json:"parameters,omitempty"`
}

// ListRules handles GET /rules. Rules are listed in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	configured := h.pipeline.Engine().Rules()

	out := make([]RuleInfo, len(configured))
	for i, rule := range configured {
		out[i] = RuleInfo{ID: rule.ID(), FlagType: rule.FlagType(), Order: i + 1}
		if d, ok := rule.(rules.Describer); ok {
			out[i].Parameters = d.Describe()
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": out,
		"count": len(out),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, what, id string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, pipeline.ErrNoReport):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, pipeline.ErrNoRepository):
		writeError(w, http.StatusServiceUnavailable, "repository not available")
	default:
		slog.Error("lookup failed", "kind", what, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load "+what)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
