package repository

// Schema definitions for the txmon database.
// Compatible with both SQLite and PostgreSQL.

// seq columns keep the input row order, which the frequency rule's output
// order depends on.

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    full_name TEXT NOT NULL,
    date_of_birth TIMESTAMP,
    country TEXT NOT NULL,
    risk_rating TEXT NOT NULL
);
`

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    customer_id TEXT NOT NULL,
    account_type TEXT NOT NULL,
    currency TEXT NOT NULL,
    balance DOUBLE PRECISION NOT NULL,
    opened_date TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_accounts_customer ON accounts(customer_id);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    account_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    transaction_type TEXT NOT NULL,
    amount DOUBLE PRECISION NOT NULL,
    currency TEXT NOT NULL,
    country TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

// schemaRuns stores one row per pipeline execution. Rule stats, warnings
// and the report are JSON documents.
const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP NOT NULL,
    transaction_count INTEGER NOT NULL,
    flag_count INTEGER NOT NULL,
    flagged_transactions INTEGER NOT NULL,
    rule_stats TEXT NOT NULL,
    warnings TEXT NOT NULL,
    error TEXT NOT NULL,
    report TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

const schemaTransactionFlags = `
CREATE TABLE IF NOT EXISTS transaction_flags (
    run_id TEXT NOT NULL REFERENCES runs(id),
    flag_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    transaction_id TEXT NOT NULL,
    flag_type TEXT NOT NULL,
    flag_reason TEXT NOT NULL,
    flagged_at TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id, flag_id)
);

CREATE INDEX IF NOT EXISTS idx_transaction_flags_tx ON transaction_flags(transaction_id);
CREATE INDEX IF NOT EXISTS idx_transaction_flags_type ON transaction_flags(run_id, flag_type);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCustomers,
		schemaAccounts,
		schemaTransactions,
		schemaRuns,
		schemaTransactionFlags,
	}
}
