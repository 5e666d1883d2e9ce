// txmon - Rule-based transaction monitoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/opensource-finance/txmon/internal/api"
	"github.com/opensource-finance/txmon/internal/bus"
	"github.com/opensource-finance/txmon/internal/cache"
	"github.com/opensource-finance/txmon/internal/dataset"
	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/opensource-finance/txmon/internal/pipeline"
	"github.com/opensource-finance/txmon/internal/repository"
	"github.com/opensource-finance/txmon/internal/rules"
	"github.com/opensource-finance/txmon/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := domain.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	slog.SetDefault(cfg.Logging.Logger(os.Stdout))

	slog.Info("starting txmon",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"high_value_threshold", cfg.Rules.HighValue.Threshold,
		"max_per_day", cfg.Rules.Frequency.MaxPerDay,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Build the rule set first: invalid parameters stop startup before any
	// data is touched.
	engine, err := rules.NewEngineFromConfig(cfg.Rules)
	if err != nil {
		slog.Error("invalid rule configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", len(engine.Rules()))

	// Initialize Repository
	if cfg.Repository.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Repository.SQLitePath), 0755); err != nil {
			slog.Error("failed to create database directory", "error", err)
			os.Exit(1)
		}
	}
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	if err := importInputIfEmpty(ctx, repo, cfg.Dataset.InputDir); err != nil {
		slog.Error("failed to import input data", "dir", cfg.Dataset.InputDir, "error", err)
		os.Exit(1)
	}

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	p, err := pipeline.New(engine, repo, cacheImpl, busImpl, pipeline.Options{
		ExportDir:    cfg.Dataset.ExportDir,
		ReportTTL:    cfg.Cache.ReportTTL,
		TopCustomers: cfg.Report.TopCustomers,
	})
	if err != nil {
		slog.Error("failed to initialize pipeline", "error", err)
		os.Exit(1)
	}

	// Async worker serves POST /runs {"async": true}
	asyncWorker := worker.NewWorker(busImpl, repo, p)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, p, repo, cacheImpl, busImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("txmon is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, engine, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	slog.Info("txmon shutdown complete")
}

// importInputIfEmpty seeds an empty repository from the CSVs in dir.
// A missing directory is not an error.
func importInputIfEmpty(ctx context.Context, repo domain.Repository, dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dir, dataset.TransactionsFile)); errors.Is(err, os.ErrNotExist) {
		slog.Info("no input data to import", "dir", dir)
		return nil
	}

	current, err := repo.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if !current.IsEmpty() {
		return nil
	}

	snap, err := dataset.ReadSnapshot(dir)
	if err != nil {
		return err
	}
	if err := repo.ReplaceSnapshot(ctx, snap); err != nil {
		return err
	}

	slog.Info("input data imported",
		"dir", dir,
		"customers", len(snap.Customers),
		"accounts", len(snap.Accounts),
		"transactions", len(snap.Transactions),
	)
	return nil
}

func printBanner(cfg *domain.Config, engine *rules.Engine, version string) {
	fmt.Println()
	fmt.Println("  txmon - transaction monitoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Print("  Rules:   ")
	for _, r := range engine.Rules() {
		fmt.Printf(" %s", r.ID())
	}
	fmt.Println()
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /runs                   - Run the monitoring pipeline")
	fmt.Println("    GET  /runs                   - List runs")
	fmt.Println("    GET  /runs/{id}              - Get run by ID")
	fmt.Println("    GET  /runs/{id}/flags        - Flag ledger (?format=csv)")
	fmt.Println("    GET  /runs/{id}/report       - Summary report")
	fmt.Println("    GET  /runs/{id}/report.xlsx  - Summary report workbook")
	fmt.Println("    GET  /rules                  - Configured rules")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
