package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/opensource-finance/txmon/internal/domain"
)

var validate = validator.New()

// header maps column names to positions.
type header map[string]int

func readHeader(r *csv.Reader, file string, required []string) (header, error) {
	names, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &RowError{File: file, Line: 1, Err: errors.New("empty file")}
		}
		return nil, &RowError{File: file, Line: 1, Err: err}
	}

	h := make(header, len(names))
	for i, n := range names {
		h[strings.TrimSpace(strings.TrimPrefix(n, "\ufeff"))] = i
	}
	for _, col := range required {
		if _, ok := h[col]; !ok {
			return nil, &RowError{File: file, Line: 1, Err: fmt.Errorf("%w %q", ErrMissingColumn, col)}
		}
	}
	return h, nil
}

func (h header) get(rec []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// eachRow reads every record after the header and passes it to fn.
func eachRow(r io.Reader, file string, required []string, fn func(h header, rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	h, err := readHeader(cr, file, required)
	if err != nil {
		return err
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return &RowError{File: file, Line: line, Err: err}
		}
		if err := fn(h, rec); err != nil {
			return &RowError{File: file, Line: line, Err: err}
		}
	}
}

func validateRow(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q validation (got %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return err
	}
	return nil
}

// ReadCustomers parses a customers CSV.
func ReadCustomers(r io.Reader) ([]domain.Customer, error) {
	var out []domain.Customer
	err := eachRow(r, CustomersFile, CustomerColumns, func(h header, rec []string) error {
		dob, err := parseOptionalTime(h.get(rec, "date_of_birth"))
		if err != nil {
			return fmt.Errorf("date_of_birth: %w", err)
		}
		c := domain.Customer{
			ID:          h.get(rec, "customer_id"),
			FullName:    h.get(rec, "full_name"),
			DateOfBirth: dob,
			Country:     h.get(rec, "country"),
			RiskRating:  domain.RiskRating(h.get(rec, "risk_rating")),
		}
		if err := validateRow(c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// ReadAccounts parses an accounts CSV.
func ReadAccounts(r io.Reader) ([]domain.Account, error) {
	var out []domain.Account
	err := eachRow(r, AccountsFile, AccountColumns, func(h header, rec []string) error {
		balance, err := parseAmount("balance", h.get(rec, "balance"))
		if err != nil {
			return err
		}
		opened, err := parseOptionalTime(h.get(rec, "opened_date"))
		if err != nil {
			return fmt.Errorf("opened_date: %w", err)
		}
		a := domain.Account{
			ID:          h.get(rec, "account_id"),
			CustomerID:  h.get(rec, "customer_id"),
			AccountType: h.get(rec, "account_type"),
			Currency:    h.get(rec, "currency"),
			Balance:     balance,
			OpenedDate:  opened,
		}
		if err := validateRow(a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

// ReadTransactions parses a transactions CSV.
func ReadTransactions(r io.Reader) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := eachRow(r, TransactionsFile, TransactionColumns, func(h header, rec []string) error {
		amount, err := parseAmount("amount", h.get(rec, "amount"))
		if err != nil {
			return err
		}
		ts, err := parseTime(h.get(rec, "timestamp"))
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t := domain.Transaction{
			ID:        h.get(rec, "transaction_id"),
			AccountID: h.get(rec, "account_id"),
			Timestamp: ts,
			Type:      h.get(rec, "transaction_type"),
			Amount:    amount,
			Currency:  h.get(rec, "currency"),
			Country:   h.get(rec, "country"),
		}
		if err := validateRow(t); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

// ReadFlags parses a flag ledger CSV.
func ReadFlags(r io.Reader) ([]domain.Flag, error) {
	var out []domain.Flag
	err := eachRow(r, FlagsFile, FlagColumns, func(h header, rec []string) error {
		at, err := parseTime(h.get(rec, "flagged_at"))
		if err != nil {
			return fmt.Errorf("flagged_at: %w", err)
		}
		f := domain.Flag{
			ID:            h.get(rec, "flag_id"),
			TransactionID: h.get(rec, "transaction_id"),
			Type:          domain.FlagType(h.get(rec, "flag_type")),
			Reason:        h.get(rec, "flag_reason"),
			FlaggedAt:     at,
		}
		if f.ID == "" || f.TransactionID == "" || f.Type == "" {
			return errors.New("flag_id, transaction_id and flag_type are required")
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

// ReadSnapshot loads customers.csv, accounts.csv and transactions.csv from dir.
func ReadSnapshot(dir string) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}

	if err := readFile(dir, CustomersFile, func(r io.Reader) (err error) {
		snap.Customers, err = ReadCustomers(r)
		return err
	}); err != nil {
		return nil, err
	}
	if err := readFile(dir, AccountsFile, func(r io.Reader) (err error) {
		snap.Accounts, err = ReadAccounts(r)
		return err
	}); err != nil {
		return nil, err
	}
	if err := readFile(dir, TransactionsFile, func(r io.Reader) (err error) {
		snap.Transactions, err = ReadTransactions(r)
		return err
	}); err != nil {
		return nil, err
	}

	return snap, nil
}

func readFile(dir, name string, fn func(io.Reader) error) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()
	return fn(f)
}
