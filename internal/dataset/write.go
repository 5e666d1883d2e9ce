package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opensource-finance/txmon/internal/domain"
)

func writeAll(w io.Writer, columns []string, n int, row func(i int) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCustomers writes customers with the standard header.
func WriteCustomers(w io.Writer, customers []domain.Customer) error {
	return writeAll(w, CustomerColumns, len(customers), func(i int) []string {
		c := customers[i]
		return []string{c.ID, c.FullName, formatDate(c.DateOfBirth), c.Country, string(c.RiskRating)}
	})
}

// WriteAccounts writes accounts with the standard header.
func WriteAccounts(w io.Writer, accounts []domain.Account) error {
	return writeAll(w, AccountColumns, len(accounts), func(i int) []string {
		a := accounts[i]
		return []string{a.ID, a.CustomerID, a.AccountType, a.Currency, formatFloat(a.Balance), formatDate(a.OpenedDate)}
	})
}

// WriteTransactions writes transactions with the standard header.
func WriteTransactions(w io.Writer, txs []domain.Transaction) error {
	return writeAll(w, TransactionColumns, len(txs), func(i int) []string {
		t := txs[i]
		return []string{t.ID, t.AccountID, formatTimestamp(t.Timestamp), t.Type, formatFloat(t.Amount), t.Currency, t.Country}
	})
}

// WriteFlags writes a flag ledger with the standard header.
func WriteFlags(w io.Writer, flags []domain.Flag) error {
	return writeAll(w, FlagColumns, len(flags), func(i int) []string {
		f := flags[i]
		return []string{f.ID, f.TransactionID, string(f.Type), f.Reason, f.FlaggedAt.Format(FlaggedAtLayout)}
	})
}

// WriteSnapshot writes the three input files into dir, creating it if needed.
func WriteSnapshot(dir string, snap *domain.Snapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := writeFile(dir, CustomersFile, func(w io.Writer) error { return WriteCustomers(w, snap.Customers) }); err != nil {
		return err
	}
	if err := writeFile(dir, AccountsFile, func(w io.Writer) error { return WriteAccounts(w, snap.Accounts) }); err != nil {
		return err
	}
	return writeFile(dir, TransactionsFile, func(w io.Writer) error { return WriteTransactions(w, snap.Transactions) })
}

// Export writes the processed snapshot and its flag ledger into dir.
func Export(dir string, snap *domain.Snapshot, flags []domain.Flag) error {
	if err := WriteSnapshot(dir, snap); err != nil {
		return err
	}
	return writeFile(dir, FlagsFile, func(w io.Writer) error { return WriteFlags(w, flags) })
}

// writeFile writes to a temporary file and renames it into place so readers
// never see a partial file.
func writeFile(dir, name string, fn func(io.Writer) error) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	tmpPath := tmp.Name()

	if err := fn(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}
