// Package worker runs monitoring passes requested over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/opensource-finance/txmon/internal/pipeline"
)

// SnapshotLoader supplies the input of a requested run.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context) (*domain.Snapshot, error)
}

// Worker executes the pipeline once per TopicRunRequested message.
type Worker struct {
	bus      domain.EventBus
	source   SnapshotLoader
	pipeline *pipeline.Pipeline

	// runMu serializes passes; each one replaces the stored snapshot.
	runMu sync.Mutex

	mu            sync.Mutex
	subscriptions []domain.Subscription
	processed     int
	failed        int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorker creates a worker. source is usually the repository.
func NewWorker(bus domain.EventBus, source SnapshotLoader, p *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		source:   source,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to run requests.
func (w *Worker) Start() error {
	if w.source == nil || w.pipeline == nil {
		return errors.New("worker requires a snapshot source and a pipeline")
	}

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRunRequested, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker started", "topic", domain.TopicRunRequested)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.RunRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			slog.Error("failed to parse run request",
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
	}
	if req.RequestID == "" {
		req.RequestID = msg.ID
	}

	_, err := w.Process(ctx, req)
	return err
}

// Process loads the current snapshot and runs the pipeline over it.
func (w *Worker) Process(ctx context.Context, req domain.RunRequest) (*pipeline.Result, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	start := time.Now()
	slog.Debug("processing run request",
		"request_id", req.RequestID,
		"requested_by", req.RequestedBy,
	)

	snap, err := w.source.LoadSnapshot(ctx)
	if err != nil {
		w.record(false)
		slog.Error("failed to load snapshot",
			"request_id", req.RequestID,
			"error", err,
		)
		return nil, err
	}

	res, err := w.pipeline.Execute(ctx, snap)
	if err != nil {
		w.record(false)
		return nil, err
	}
	w.record(true)

	slog.Info("run request processed",
		"request_id", req.RequestID,
		"run_id", res.Run.ID,
		"flag_count", res.Run.FlagCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (w *Worker) record(ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ok {
		w.processed++
	} else {
		w.failed++
	}
}

// Stop unsubscribes and waits for an in-flight run to finish.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	// Wait for an in-flight pass to finish.
	w.runMu.Lock()
	w.runMu.Unlock()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int      `json:"processed"`
	Failed            int      `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed,
		Failed:            w.failed,
	}
}
