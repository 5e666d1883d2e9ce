// Package reporting computes the summary aggregates of a flag ledger.
package reporting

import (
	"sort"
	"time"

	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultTopCustomers is the size of the top customers table.
const DefaultTopCustomers = 10

// Options tunes report generation.
type Options struct {
	// TopCustomers limits the top customers table. Zero means DefaultTopCustomers.
	TopCustomers int

	// Now stamps GeneratedAt. Nil means time.Now.
	Now func() time.Time
}

// Build computes the report of one run. Joins are inner joins: a flag,
// transaction or account whose reference does not resolve is left out of the
// aggregate that needs it and never fails the report.
func Build(runID string, snap *domain.Snapshot, flags []domain.Flag, opts Options) *domain.Report {
	if snap == nil {
		snap = &domain.Snapshot{}
	}
	if opts.TopCustomers <= 0 {
		opts.TopCustomers = DefaultTopCustomers
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	idx := domain.NewIndex(snap)

	total := decimal.Zero
	for i := range snap.Transactions {
		total = total.Add(decimal.NewFromFloat(snap.Transactions[i].Amount))
	}

	flagged := distinctTransactions(flags)

	return &domain.Report{
		RunID:               runID,
		GeneratedAt:         now(),
		TotalTransactions:   len(snap.Transactions),
		TotalAmount:         total,
		FlaggedTransactions: flagged,
		FlagCount:           len(flags),
		FlagRatio:           FlagRatio(flagged, len(snap.Transactions)),
		FlagsByType:         FlagsByType(flags),
		FlagsByRisk:         FlagsByRisk(snap, idx, flags),
		TopCustomers:        TopCustomers(snap, idx, opts.TopCustomers),
		TransactionsPerHour: TransactionsPerHour(snap),
		FlaggedDetail:       FlaggedDetail(snap, flags),
	}
}

// FlagRatio returns flagged/total as a percentage, 0 when total is 0.
func FlagRatio(flagged, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(flagged*100) / float64(total)
}

func distinctTransactions(flags []domain.Flag) int {
	seen := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		seen[f.TransactionID] = struct{}{}
	}
	return len(seen)
}

// FlagsByType counts flags per type, most frequent first.
func FlagsByType(flags []domain.Flag) []domain.TypeCount {
	counts := make(map[domain.FlagType]int)
	for _, f := range flags {
		counts[f.Type]++
	}

	out := make([]domain.TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, domain.TypeCount{FlagType: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].FlagType < out[j].FlagType
	})
	return out
}

// FlagsByRisk counts flags per customer risk rating through
// flag -> transaction -> account -> customer.
func FlagsByRisk(snap *domain.Snapshot, idx *domain.Index, flags []domain.Flag) []domain.RiskCount {
	txByID := transactionsByID(snap)

	counts := make(map[domain.RiskRating]int)
	for _, f := range flags {
		tx, ok := txByID[f.TransactionID]
		if !ok {
			continue
		}
		_, cust, err := idx.OwnerOf(tx)
		if err != nil {
			continue
		}
		counts[cust.RiskRating]++
	}

	out := make([]domain.RiskCount, 0, len(counts))
	for r, c := range counts {
		out = append(out, domain.RiskCount{RiskRating: r, FlagCount: c})
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].RiskRating.Rank(), out[j].RiskRating.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].RiskRating < out[j].RiskRating
	})
	return out
}

// TopCustomers sums transaction amounts per owning customer and returns the
// n largest. Equal amounts keep customer_id order.
func TopCustomers(snap *domain.Snapshot, idx *domain.Index, n int) []domain.CustomerVolume {
	sums := make(map[string]decimal.Decimal)
	for i := range snap.Transactions {
		tx := &snap.Transactions[i]
		custID, ok := idx.CustomerIDOf(tx)
		if !ok {
			continue
		}
		sums[custID] = sums[custID].Add(decimal.NewFromFloat(tx.Amount))
	}

	out := make([]domain.CustomerVolume, 0, len(sums))
	for id, amt := range sums {
		out = append(out, domain.CustomerVolume{CustomerID: id, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.GreaterThan(out[j].Amount) })

	if len(out) > n {
		out = out[:n]
	}
	return out
}

// TransactionsPerHour returns a 24-bucket histogram of transaction hours.
func TransactionsPerHour(snap *domain.Snapshot) []domain.HourCount {
	out := make([]domain.HourCount, 24)
	for h := range out {
		out[h].Hour = h
	}
	for i := range snap.Transactions {
		out[snap.Transactions[i].Timestamp.Hour()].TransactionCount++
	}
	return out
}

// FlaggedDetail joins each flag with its transaction and owning customer,
// newest transaction first. Flags whose transaction is unknown are dropped.
func FlaggedDetail(snap *domain.Snapshot, flags []domain.Flag) []domain.FlaggedTransaction {
	if snap == nil {
		return nil
	}
	idx := domain.NewIndex(snap)
	txByID := transactionsByID(snap)

	out := make([]domain.FlaggedTransaction, 0, len(flags))
	for _, f := range flags {
		tx, ok := txByID[f.TransactionID]
		if !ok {
			continue
		}
		custID, ok := idx.CustomerIDOf(tx)
		if !ok {
			continue
		}
		out = append(out, domain.FlaggedTransaction{Flag: f, Transaction: *tx, CustomerID: custID})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Transaction.Timestamp.After(out[j].Transaction.Timestamp)
	})
	return out
}

func transactionsByID(snap *domain.Snapshot) map[string]*domain.Transaction {
	m := make(map[string]*domain.Transaction, len(snap.Transactions))
	for i := range snap.Transactions {
		m[snap.Transactions[i].ID] = &snap.Transactions[i]
	}
	return m
}
