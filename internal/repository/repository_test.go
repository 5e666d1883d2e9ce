package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "txmon-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testSnapshot() *domain.Snapshot {
	ts := time.Date(2025, 2, 10, 9, 30, 0, 0, time.UTC)
	return &domain.Snapshot{
		Customers: []domain.Customer{
			{ID: "CUST0002", FullName: "Leyla Aliyeva", DateOfBirth: time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), Country: "AZ", RiskRating: domain.RiskMedium},
			{ID: "CUST0001", FullName: "Murad Hasanov", Country: "AZ", RiskRating: domain.RiskLow},
		},
		Accounts: []domain.Account{
			{ID: "ACC00001", CustomerID: "CUST0001", AccountType: "checking", Currency: "AZN", Balance: 1234.56, OpenedDate: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		Transactions: []domain.Transaction{
			{ID: "TXN0000002", AccountID: "ACC00001", Timestamp: ts, Type: "POS", Amount: 15000, Currency: "AZN", Country: "TR"},
			{ID: "TXN0000001", AccountID: "ACC00001", Timestamp: ts.Add(time.Hour), Type: "ATM", Amount: 40, Currency: "AZN", Country: "AZ"},
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("ReplaceAndLoadSnapshot", func(t *testing.T) {
		snap := testSnapshot()
		if err := repo.ReplaceSnapshot(ctx, snap); err != nil {
			t.Fatalf("ReplaceSnapshot failed: %v", err)
		}

		loaded, err := repo.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}

		if len(loaded.Customers) != 2 || len(loaded.Accounts) != 1 || len(loaded.Transactions) != 2 {
			t.Fatalf("unexpected sizes: %d customers, %d accounts, %d transactions",
				len(loaded.Customers), len(loaded.Accounts), len(loaded.Transactions))
		}

		// Row order survives the round trip.
		if loaded.Customers[0].ID != "CUST0002" || loaded.Transactions[0].ID != "TXN0000002" {
			t.Errorf("row order not preserved: %s, %s", loaded.Customers[0].ID, loaded.Transactions[0].ID)
		}
		if loaded.Customers[0].RiskRating != domain.RiskMedium {
			t.Errorf("expected medium risk, got %s", loaded.Customers[0].RiskRating)
		}
		if !loaded.Customers[0].DateOfBirth.Equal(snap.Customers[0].DateOfBirth) {
			t.Errorf("date of birth mismatch: %v", loaded.Customers[0].DateOfBirth)
		}
		if !loaded.Customers[1].DateOfBirth.IsZero() {
			t.Errorf("expected zero date of birth, got %v", loaded.Customers[1].DateOfBirth)
		}
		if loaded.Accounts[0].Balance != 1234.56 {
			t.Errorf("expected balance 1234.56, got %v", loaded.Accounts[0].Balance)
		}
		tx := loaded.Transactions[0]
		if tx.Amount != 15000 || tx.Country != "TR" || !tx.Timestamp.Equal(snap.Transactions[0].Timestamp) {
			t.Errorf("unexpected transaction %+v", tx)
		}
	})

	t.Run("ReplaceSnapshotOverwrites", func(t *testing.T) {
		snap := testSnapshot()
		snap.Transactions = snap.Transactions[:1]
		if err := repo.ReplaceSnapshot(ctx, snap); err != nil {
			t.Fatalf("ReplaceSnapshot failed: %v", err)
		}

		loaded, err := repo.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if len(loaded.Transactions) != 1 {
			t.Errorf("expected 1 transaction after replace, got %d", len(loaded.Transactions))
		}
	})

	t.Run("DuplicateIDsKeepLastRow", func(t *testing.T) {
		snap := testSnapshot()
		snap.Customers = append(snap.Customers, domain.Customer{ID: "CUST0001", FullName: "Renamed", Country: "GE", RiskRating: domain.RiskHigh})
		if err := repo.ReplaceSnapshot(ctx, snap); err != nil {
			t.Fatalf("ReplaceSnapshot failed: %v", err)
		}

		loaded, _ := repo.LoadSnapshot(ctx)
		if len(loaded.Customers) != 2 {
			t.Fatalf("expected 2 customers, got %d", len(loaded.Customers))
		}
		if c := loaded.Customers[1]; c.ID != "CUST0001" || c.Country != "GE" {
			t.Errorf("expected last CUST0001 row, got %+v", c)
		}
	})

	t.Run("SaveAndGetRun", func(t *testing.T) {
		started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		flagged := started.Add(time.Second)

		run := &domain.Run{
			ID:                  "run-001",
			Status:              domain.RunStatusCompleted,
			StartedAt:           started,
			CompletedAt:         started.Add(2 * time.Second),
			TransactionCount:    2,
			FlagCount:           2,
			FlaggedTransactions: 1,
			RuleStats:           []domain.RuleStat{{RuleID: domain.RuleHighValue, FlagType: domain.FlagHighValue, Candidates: 1}},
			Report: &domain.Report{
				RunID:       "run-001",
				TotalAmount: decimal.RequireFromString("15040"),
				FlagRatio:   50,
			},
		}
		flags := []domain.Flag{
			{ID: "FLAG000001", TransactionID: "TXN0000002", Type: domain.FlagHighValue, Reason: "Transaction amount exceeds 10000", FlaggedAt: flagged},
			{ID: "FLAG000002", TransactionID: "TXN0000002", Type: domain.FlagCrossBorder, Reason: "Transaction country TR differs from home country AZ", FlaggedAt: flagged},
		}

		if err := repo.SaveRun(ctx, run, flags); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		got, err := repo.GetRun(ctx, "run-001")
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.Status != domain.RunStatusCompleted || got.FlagCount != 2 || got.FlaggedTransactions != 1 {
			t.Errorf("unexpected run %+v", got)
		}
		if len(got.RuleStats) != 1 || got.RuleStats[0].RuleID != domain.RuleHighValue {
			t.Errorf("rule stats not restored: %+v", got.RuleStats)
		}
		if got.Report == nil || !got.Report.TotalAmount.Equal(decimal.NewFromInt(15040)) {
			t.Errorf("report not restored: %+v", got.Report)
		}

		ledger, err := repo.ListFlags(ctx, "run-001")
		if err != nil {
			t.Fatalf("ListFlags failed: %v", err)
		}
		if len(ledger) != 2 {
			t.Fatalf("expected 2 flags, got %d", len(ledger))
		}
		if ledger[0].ID != "FLAG000001" || ledger[1].Type != domain.FlagCrossBorder {
			t.Errorf("unexpected ledger %+v", ledger)
		}
		if !ledger[0].FlaggedAt.Equal(flagged) {
			t.Errorf("flagged_at mismatch: %v", ledger[0].FlaggedAt)
		}
	})

	t.Run("SaveRunIsAtomic", func(t *testing.T) {
		run := &domain.Run{ID: "run-dup", Status: domain.RunStatusCompleted, StartedAt: time.Now(), CompletedAt: time.Now()}
		flags := []domain.Flag{
			{ID: "FLAG000001", TransactionID: "A", Type: domain.FlagHighValue, FlaggedAt: time.Now()},
			{ID: "FLAG000001", TransactionID: "B", Type: domain.FlagHighValue, FlaggedAt: time.Now()},
		}

		if err := repo.SaveRun(ctx, run, flags); err == nil {
			t.Fatal("expected duplicate flag id to fail")
		}
		if _, err := repo.GetRun(ctx, "run-dup"); !errors.Is(err, ErrNotFound) {
			t.Errorf("run should not exist after failed save, got %v", err)
		}
	})

	t.Run("FailedRunHasNoFlags", func(t *testing.T) {
		run := &domain.Run{
			ID:          "run-failed",
			Status:      domain.RunStatusFailed,
			StartedAt:   time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
			CompletedAt: time.Date(2025, 3, 2, 0, 0, 1, 0, time.UTC),
			Error:       "rule cross_border: transaction TXN1 references unknown account \"ACC9\"",
		}
		if err := repo.SaveRun(ctx, run, nil); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		flags, err := repo.ListFlags(ctx, "run-failed")
		if err != nil {
			t.Fatalf("ListFlags failed: %v", err)
		}
		if len(flags) != 0 {
			t.Errorf("expected no flags, got %d", len(flags))
		}

		got, _ := repo.GetRun(ctx, "run-failed")
		if got.Error != run.Error || got.Report != nil {
			t.Errorf("unexpected failed run %+v", got)
		}
	})

	t.Run("ListRunsNewestFirst", func(t *testing.T) {
		runs, err := repo.ListRuns(ctx, 10)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID != "run-failed" || runs[1].ID != "run-001" {
			t.Errorf("unexpected order %s, %s", runs[0].ID, runs[1].ID)
		}

		limited, _ := repo.ListRuns(ctx, 1)
		if len(limited) != 1 {
			t.Errorf("expected limit to apply, got %d", len(limited))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetRun(ctx, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.ListFlags(ctx, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		if err := repo.SaveRun(ctx, &domain.Run{}, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := repo.ReplaceSnapshot(ctx, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestGetRunCorruptColumns(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t).(*SQLRepository)

	for _, column := range []string{"rule_stats", "warnings"} {
		t.Run(column, func(t *testing.T) {
			run := &domain.Run{
				ID:        "run-corrupt-" + column,
				Status:    domain.RunStatusCompleted,
				StartedAt: time.Now(),
				Warnings:  []string{domain.WarnEmptyInput},
			}
			if err := repo.SaveRun(ctx, run, nil); err != nil {
				t.Fatalf("SaveRun failed: %v", err)
			}
			if _, err := repo.db.ExecContext(ctx, `UPDATE runs SET `+column+` = '{not json' WHERE id = ?`, run.ID); err != nil {
				t.Fatalf("failed to corrupt %s: %v", column, err)
			}

			if _, err := repo.GetRun(ctx, run.ID); err == nil {
				t.Errorf("expected error for corrupt %s", column)
			}
			if _, err := repo.ListRuns(ctx, 10); err == nil {
				t.Errorf("expected ListRuns error for corrupt %s", column)
			}

			if _, err := repo.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
				t.Fatalf("cleanup failed: %v", err)
			}
		})
	}
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM runs WHERE id = ?", "SELECT * FROM runs WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM runs", "SELECT * FROM runs"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind should be a no-op, got %q", got)
	}
}
