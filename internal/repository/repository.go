// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/txmon/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultListLimit bounds ListRuns when no limit is given.
const DefaultListLimit = 50

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceSnapshot swaps the stored customers, accounts and transactions for
// those of snap in a single transaction. Repeated IDs keep the last row.
func (r *SQLRepository) ReplaceSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: snapshot is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"transactions", "accounts", "customers"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	custStmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO customers (id, seq, full_name, date_of_birth, country, risk_rating)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seq = excluded.seq,
			full_name = excluded.full_name,
			date_of_birth = excluded.date_of_birth,
			country = excluded.country,
			risk_rating = excluded.risk_rating
	`))
	if err != nil {
		return err
	}
	defer custStmt.Close()

	for i, c := range snap.Customers {
		if _, err := custStmt.ExecContext(ctx,
			c.ID, i, c.FullName, nullTime(c.DateOfBirth), c.Country, string(c.RiskRating),
		); err != nil {
			return fmt.Errorf("failed to insert customer %s: %w", c.ID, err)
		}
	}

	acctStmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO accounts (id, seq, customer_id, account_type, currency, balance, opened_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seq = excluded.seq,
			customer_id = excluded.customer_id,
			account_type = excluded.account_type,
			currency = excluded.currency,
			balance = excluded.balance,
			opened_date = excluded.opened_date
	`))
	if err != nil {
		return err
	}
	defer acctStmt.Close()

	for i, a := range snap.Accounts {
		if _, err := acctStmt.ExecContext(ctx,
			a.ID, i, a.CustomerID, a.AccountType, a.Currency, a.Balance, nullTime(a.OpenedDate),
		); err != nil {
			return fmt.Errorf("failed to insert account %s: %w", a.ID, err)
		}
	}

	txStmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO transactions (id, seq, account_id, timestamp, transaction_type, amount, currency, country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seq = excluded.seq,
			account_id = excluded.account_id,
			timestamp = excluded.timestamp,
			transaction_type = excluded.transaction_type,
			amount = excluded.amount,
			currency = excluded.currency,
			country = excluded.country
	`))
	if err != nil {
		return err
	}
	defer txStmt.Close()

	for i, t := range snap.Transactions {
		if _, err := txStmt.ExecContext(ctx,
			t.ID, i, t.AccountID, t.Timestamp, t.Type, t.Amount, t.Currency, t.Country,
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot reads the stored snapshot in its original row order.
func (r *SQLRepository) LoadSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}

	custRows, err := r.db.QueryContext(ctx, `
		SELECT id, full_name, date_of_birth, country, risk_rating
		FROM customers
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer custRows.Close()

	for custRows.Next() {
		var c domain.Customer
		var dob sql.NullTime
		var risk string
		if err := custRows.Scan(&c.ID, &c.FullName, &dob, &c.Country, &risk); err != nil {
			return nil, err
		}
		c.DateOfBirth = dob.Time
		c.RiskRating = domain.RiskRating(risk)
		snap.Customers = append(snap.Customers, c)
	}
	if err := custRows.Err(); err != nil {
		return nil, err
	}

	acctRows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id, account_type, currency, balance, opened_date
		FROM accounts
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer acctRows.Close()

	for acctRows.Next() {
		var a domain.Account
		var opened sql.NullTime
		if err := acctRows.Scan(&a.ID, &a.CustomerID, &a.AccountType, &a.Currency, &a.Balance, &opened); err != nil {
			return nil, err
		}
		a.OpenedDate = opened.Time
		snap.Accounts = append(snap.Accounts, a)
	}
	if err := acctRows.Err(); err != nil {
		return nil, err
	}

	txRows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, timestamp, transaction_type, amount, currency, country
		FROM transactions
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer txRows.Close()

	for txRows.Next() {
		var t domain.Transaction
		if err := txRows.Scan(&t.ID, &t.AccountID, &t.Timestamp, &t.Type, &t.Amount, &t.Currency, &t.Country); err != nil {
			return nil, err
		}
		snap.Transactions = append(snap.Transactions, t)
	}

	return snap, txRows.Err()
}

// SaveRun stores a run and its complete flag ledger in one transaction.
// Either everything is written or nothing is.
func (r *SQLRepository) SaveRun(ctx context.Context, run *domain.Run, flags []domain.Flag) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run ID is required", ErrInvalidInput)
	}

	ruleStats, err := json.Marshal(run.RuleStats)
	if err != nil {
		return fmt.Errorf("failed to encode rule stats: %w", err)
	}
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	var report any
	if run.Report != nil {
		b, err := json.Marshal(run.Report)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		report = string(b)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO runs (
			id, status, started_at, completed_at, transaction_count, flag_count,
			flagged_transactions, rule_stats, warnings, error, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := tx.ExecContext(ctx, r.rebind(query),
		run.ID, run.Status, run.StartedAt.UTC(), run.CompletedAt.UTC(),
		run.TransactionCount, run.FlagCount, run.FlaggedTransactions,
		string(ruleStats), string(warnings), run.Error, report,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(flags) > 0 {
		stmt, err := tx.PrepareContext(ctx, r.rebind(`
			INSERT INTO transaction_flags (
				run_id, flag_id, seq, transaction_id, flag_type, flag_reason, flagged_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, f := range flags {
			if _, err := stmt.ExecContext(ctx,
				run.ID, f.ID, i, f.TransactionID, string(f.Type), f.Reason, f.FlaggedAt.UTC(),
			); err != nil {
				return fmt.Errorf("failed to insert flag %s: %w", f.ID, err)
			}
		}
	}

	return tx.Commit()
}

const runColumns = `
	id, status, started_at, completed_at, transaction_count, flag_count,
	flagged_transactions, rule_stats, warnings, error, report
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*domain.Run, error) {
	var run domain.Run
	var ruleStats, warnings string
	var report sql.NullString

	if err := s.Scan(
		&run.ID, &run.Status, &run.StartedAt, &run.CompletedAt,
		&run.TransactionCount, &run.FlagCount, &run.FlaggedTransactions,
		&ruleStats, &warnings, &run.Error, &report,
	); err != nil {
		return nil, err
	}

	if ruleStats != "" {
		if err := json.Unmarshal([]byte(ruleStats), &run.RuleStats); err != nil {
			return nil, fmt.Errorf("failed to parse rule stats of run %s: %w", run.ID, err)
		}
	}
	if warnings != "" {
		if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
			return nil, fmt.Errorf("failed to parse warnings of run %s: %w", run.ID, err)
		}
	}

	if report.Valid && report.String != "" {
		var rep domain.Report
		if err := json.Unmarshal([]byte(report.String), &rep); err != nil {
			return nil, fmt.Errorf("failed to parse report of run %s: %w", run.ID, err)
		}
		run.Report = &rep
	}

	return &run, nil
}

// GetRun retrieves a run by ID.
func (r *SQLRepository) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, r.rebind(query), runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *SQLRepository) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// ListFlags returns the ledger of a run in flag ID order.
func (r *SQLRepository) ListFlags(ctx context.Context, runID string) ([]domain.Flag, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM runs WHERE id = ?`), runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	query := `
		SELECT flag_id, transaction_id, flag_type, flag_reason, flagged_at
		FROM transaction_flags
		WHERE run_id = ?
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flags := []domain.Flag{}
	for rows.Next() {
		var f domain.Flag
		var flagType string
		if err := rows.Scan(&f.ID, &f.TransactionID, &flagType, &f.Reason, &f.FlaggedAt); err != nil {
			return nil, err
		}
		f.Type = domain.FlagType(flagType)
		flags = append(flags, f)
	}

	return flags, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
