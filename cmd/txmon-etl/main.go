// txmon-etl runs one batch monitoring pass from the command line.
//
// Usage:
//
//	go run ./cmd/txmon-etl -generate 3000 -seed 42
//	go run ./cmd/txmon-etl -input ./data/raw -xlsx report.xlsx
//
// This tool:
//  1. Generates synthetic data (optionally saving the raw CSVs) or reads CSVs
//  2. Evaluates the configured rules over the snapshot
//  3. Stores snapshot, run and flag ledger in the database
//  4. Exports the processed CSVs and prints the summary report
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/opensource-finance/txmon/internal/dataset"
	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/opensource-finance/txmon/internal/pipeline"
	"github.com/opensource-finance/txmon/internal/reporting"
	"github.com/opensource-finance/txmon/internal/repository"
	"github.com/opensource-finance/txmon/internal/rules"
	"github.com/opensource-finance/txmon/internal/synth"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (default: $TXMON_CONFIG_PATH)")
	inputDir := flag.String("input", "", "Directory with customers.csv, accounts.csv and transactions.csv")
	generate := flag.Int("generate", 0, "Generate N synthetic customers instead of reading -input")
	seed := flag.Int64("seed", 1, "Seed for -generate")
	baseDate := flag.String("date", "", "Booking day for generated transactions (YYYY-MM-DD, default today)")
	rawDir := flag.String("raw", "", "Write generated data as CSVs to this directory")
	exportDir := flag.String("export", "", "Processed CSV directory (default from config)")
	dbPath := flag.String("db", "", "SQLite database path (default from config)")
	noDB := flag.Bool("no-db", false, "Skip the database")
	xlsxPath := flag.String("xlsx", "", "Write the summary report workbook to this file")
	flag.Parse()

	cfg, err := domain.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.Logging.Logger(os.Stderr))

	if *inputDir == "" && *generate == 0 {
		*inputDir = cfg.Dataset.InputDir
	}
	if *exportDir != "" {
		cfg.Dataset.ExportDir = *exportDir
	}
	if *dbPath != "" {
		cfg.Repository.Driver = "sqlite"
		cfg.Repository.SQLitePath = *dbPath
	}

	ctx := context.Background()
	start := time.Now()

	// Rules are validated before any data is read.
	engine, err := rules.NewEngineFromConfig(cfg.Rules)
	if err != nil {
		fmt.Printf("ERROR: invalid rule configuration: %v\n", err)
		os.Exit(1)
	}

	var snap *domain.Snapshot
	if *generate > 0 {
		gcfg := synth.Config{Customers: *generate, Seed: *seed}
		if *baseDate != "" {
			d, err := time.Parse(time.DateOnly, *baseDate)
			if err != nil {
				fmt.Printf("ERROR: invalid -date: %v\n", err)
				os.Exit(1)
			}
			gcfg.BaseDate = d
		}
		snap = synth.Generate(gcfg)
		fmt.Printf("✓ Generated %d customers, %d accounts, %d transactions (seed %d)\n",
			len(snap.Customers), len(snap.Accounts), len(snap.Transactions), *seed)

		if *rawDir != "" {
			if err := dataset.WriteSnapshot(*rawDir, snap); err != nil {
				fmt.Printf("ERROR: failed to write raw data: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✓ Raw data written to %s\n", *rawDir)
		}
	} else {
		snap, err = dataset.ReadSnapshot(*inputDir)
		if err != nil {
			fmt.Printf("ERROR: failed to read input: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Loaded %d customers, %d accounts, %d transactions from %s\n",
			len(snap.Customers), len(snap.Accounts), len(snap.Transactions), *inputDir)
	}

	var repo domain.Repository
	if !*noDB {
		if cfg.Repository.Driver == "sqlite" {
			if err := os.MkdirAll(filepath.Dir(cfg.Repository.SQLitePath), 0755); err != nil {
				fmt.Printf("ERROR: %v\n", err)
				os.Exit(1)
			}
		}
		repo, err = repository.New(cfg.Repository)
		if err != nil {
			fmt.Printf("ERROR: failed to open database: %v\n", err)
			os.Exit(1)
		}
		defer repo.Close()
	}

	p, err := pipeline.New(engine, repo, nil, nil, pipeline.Options{
		ExportDir:    cfg.Dataset.ExportDir,
		TopCustomers: cfg.Report.TopCustomers,
	})
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	res, err := p.Execute(ctx, snap)
	if err != nil {
		fmt.Printf("ERROR: run failed: %v\n", err)
		os.Exit(1)
	}

	if *xlsxPath != "" {
		if err := writeWorkbook(*xlsxPath, res); err != nil {
			fmt.Printf("ERROR: failed to write workbook: %v\n", err)
			os.Exit(1)
		}
	}

	printSummary(res, time.Since(start))
	if cfg.Dataset.ExportDir != "" {
		fmt.Printf("\nProcessed CSVs: %s\n", cfg.Dataset.ExportDir)
	}
	if repo != nil {
		fmt.Printf("Database:       %s\n", cfg.Repository.Driver)
	}
	if *xlsxPath != "" {
		fmt.Printf("Workbook:       %s\n", *xlsxPath)
	}
}

func writeWorkbook(path string, res *pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := reporting.WriteXLSX(f, res.Report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(res *pipeline.Result, elapsed time.Duration) {
	r := res.Report

	fmt.Println()
	fmt.Println("RUN SUMMARY")
	fmt.Printf("   Run ID:               %s\n", res.Run.ID)
	fmt.Printf("   Transactions:         %d\n", r.TotalTransactions)
	fmt.Printf("   Total amount:         %s\n", r.TotalAmount.StringFixed(2))
	fmt.Printf("   Flags:                %d\n", r.FlagCount)
	fmt.Printf("   Flagged transactions: %d (%.2f%%)\n", r.FlaggedTransactions, r.FlagRatio)
	fmt.Printf("   Duration:             %s\n", elapsed.Round(time.Millisecond))

	for _, w := range res.Run.Warnings {
		fmt.Printf("   Warning:              %s\n", w)
	}

	fmt.Println("\nFLAGS BY TYPE")
	for _, t := range r.FlagsByType {
		fmt.Printf("   %-14s %6d\n", t.FlagType, t.Count)
	}

	fmt.Println("\nFLAGS BY RISK RATING")
	for _, rc := range r.FlagsByRisk {
		fmt.Printf("   %-14s %6d\n", rc.RiskRating, rc.FlagCount)
	}

	fmt.Printf("\nTOP %d CUSTOMERS BY VOLUME\n", len(r.TopCustomers))
	for i, c := range r.TopCustomers {
		fmt.Printf("   %2d. %-10s %14s\n", i+1, c.CustomerID, c.Amount.StringFixed(2))
	}

	fmt.Println("\nRULES")
	for _, s := range res.Run.RuleStats {
		fmt.Printf("   %-14s %6d candidates  %4d ms\n", s.RuleID, s.Candidates, s.ProcessMs)
	}
}
