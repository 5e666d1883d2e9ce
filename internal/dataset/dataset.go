// Package dataset reads and writes the CSV files exchanged with the
// monitoring pipeline: customers, accounts, transactions and the flag ledger.
package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// File names inside a dataset directory.
const (
	CustomersFile    = "customers.csv"
	AccountsFile     = "accounts.csv"
	TransactionsFile = "transactions.csv"
	FlagsFile        = "transaction_flags.csv"
)

// Column headers, in file order.
var (
	CustomerColumns    = []string{"customer_id", "full_name", "date_of_birth", "country", "risk_rating"}
	AccountColumns     = []string{"account_id", "customer_id", "account_type", "currency", "balance", "opened_date"}
	TransactionColumns = []string{"transaction_id", "account_id", "timestamp", "transaction_type", "amount", "currency", "country"}
	FlagColumns        = []string{"flag_id", "transaction_id", "flag_type", "flag_reason", "flagged_at"}
)

// Output layouts. Transaction timestamps at UTC offset use TimestampLayout;
// any other offset is written with ZonedTimestampLayout. Fractional seconds
// are kept and whole seconds print as "2006-01-02 15:04:05".
const (
	DateLayout           = time.DateOnly
	TimestampLayout      = "2006-01-02 15:04:05.999999999"
	ZonedTimestampLayout = "2006-01-02 15:04:05.999999999-07:00"
	FlaggedAtLayout      = "2006-01-02 15:04:05.000000"
)

// ErrMissingColumn is wrapped when a header lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// RowError reports a malformed or invalid row. Line is 1-based and counts
// the header.
type RowError struct {
	File string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Accepted timestamp layouts, tried in order. Values without a zone are UTC.
var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	ZonedTimestampLayout,
	time.DateOnly,
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// parseOptionalTime treats an empty cell as the zero time.
func parseOptionalTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}

func parseAmount(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", field, s)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatTimestamp writes t so that parseTime returns the same instant and
// offset.
func formatTimestamp(t time.Time) string {
	if _, offset := t.Zone(); offset != 0 {
		return t.Format(ZonedTimestampLayout)
	}
	return t.Format(TimestampLayout)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
