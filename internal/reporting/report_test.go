package reporting

import (
	"bytes"
	"testing"
	"time"

	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var day = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

func fixture() (*domain.Snapshot, []domain.Flag) {
	snap := &domain.Snapshot{
		Customers: []domain.Customer{
			{ID: "CUST0001", Country: "AZ", RiskRating: domain.RiskLow},
			{ID: "CUST0002", Country: "AZ", RiskRating: domain.RiskHigh},
			{ID: "CUST0003", Country: "TR", RiskRating: domain.RiskMedium},
		},
		Accounts: []domain.Account{
			{ID: "ACC00001", CustomerID: "CUST0001"},
			{ID: "ACC00002", CustomerID: "CUST0002"},
			{ID: "ACC00003", CustomerID: "CUST0003"},
			{ID: "ACC00004", CustomerID: "CUST9999"}, // dangling customer
		},
		Transactions: []domain.Transaction{
			{ID: "TXN0000001", AccountID: "ACC00001", Timestamp: day.Add(1 * time.Hour), Amount: 100.10, Country: "AZ"},
			{ID: "TXN0000002", AccountID: "ACC00002", Timestamp: day.Add(2 * time.Hour), Amount: 15000, Country: "TR"},
			{ID: "TXN0000003", AccountID: "ACC00003", Timestamp: day.Add(2 * time.Hour), Amount: 200.20, Country: "TR"},
			{ID: "TXN0000004", AccountID: "ACC00004", Timestamp: day.Add(23 * time.Hour), Amount: 50, Country: "AZ"},
			{ID: "TXN0000005", AccountID: "ACC99999", Timestamp: day.Add(5 * time.Hour), Amount: 70, Country: "AZ"},
		},
	}
	flags := []domain.Flag{
		{ID: "FLAG000001", TransactionID: "TXN0000002", Type: domain.FlagHighValue},
		{ID: "FLAG000002", TransactionID: "TXN0000002", Type: domain.FlagCrossBorder},
		{ID: "FLAG000003", TransactionID: "TXN0000004", Type: domain.FlagCrossBorder},
		{ID: "FLAG000004", TransactionID: "TXN0000005", Type: domain.FlagCrossBorder},
		{ID: "FLAG000005", TransactionID: "TXN0000001", Type: domain.FlagFrequentTx},
	}
	return snap, flags
}

func TestBuild(t *testing.T) {
	snap, flags := fixture()
	generated := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	r := Build("run-1", snap, flags, Options{Now: func() time.Time { return generated }})

	if r.RunID != "run-1" || !r.GeneratedAt.Equal(generated) {
		t.Errorf("unexpected header %s %v", r.RunID, r.GeneratedAt)
	}
	if r.TotalTransactions != 5 {
		t.Errorf("expected 5 transactions, got %d", r.TotalTransactions)
	}
	if want := decimal.RequireFromString("15420.3"); !r.TotalAmount.Equal(want) {
		t.Errorf("expected total %s, got %s", want, r.TotalAmount)
	}
	if r.FlagCount != 5 {
		t.Errorf("expected 5 flags, got %d", r.FlagCount)
	}
	if r.FlaggedTransactions != 4 {
		t.Errorf("expected 4 flagged transactions, got %d", r.FlaggedTransactions)
	}
	if r.FlagRatio != 80 {
		t.Errorf("expected ratio 80, got %v", r.FlagRatio)
	}
	if len(r.FlaggedDetail) != 4 {
		t.Errorf("expected 4 detail rows, got %d", len(r.FlaggedDetail))
	}
}

func TestBuildEmpty(t *testing.T) {
	r := Build("empty", &domain.Snapshot{}, nil, Options{})

	if r.FlagRatio != 0 {
		t.Errorf("expected ratio 0, got %v", r.FlagRatio)
	}
	if r.TotalTransactions != 0 || r.FlagCount != 0 || r.FlaggedTransactions != 0 {
		t.Errorf("expected zero totals, got %+v", r)
	}
	if !r.TotalAmount.IsZero() {
		t.Errorf("expected zero amount, got %s", r.TotalAmount)
	}
	if len(r.TopCustomers) != 0 || len(r.FlagsByType) != 0 || len(r.FlagsByRisk) != 0 {
		t.Errorf("expected empty tables")
	}
}

func TestFlagsByType(t *testing.T) {
	_, flags := fixture()
	got := FlagsByType(flags)

	want := []domain.TypeCount{
		{FlagType: domain.FlagCrossBorder, Count: 3},
		{FlagType: domain.FlagFrequentTx, Count: 1},
		{FlagType: domain.FlagHighValue, Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFlagsByRiskSkipsDanglingReferences(t *testing.T) {
	snap, flags := fixture()
	got := FlagsByRisk(snap, domain.NewIndex(snap), flags)

	// TXN0000004 has an unknown customer and TXN0000005 an unknown account.
	want := []domain.RiskCount{
		{RiskRating: domain.RiskLow, FlagCount: 1},
		{RiskRating: domain.RiskHigh, FlagCount: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTopCustomers(t *testing.T) {
	snap, _ := fixture()
	got := TopCustomers(snap, domain.NewIndex(snap), 10)

	// CUST9999 has no customer row but still owns ACC00004: the join is
	// transaction -> account only.
	wantIDs := []string{"CUST0002", "CUST0003", "CUST0001", "CUST9999"}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d customers, got %d", len(wantIDs), len(got))
	}
	for i, id := range wantIDs {
		if got[i].CustomerID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].CustomerID)
		}
	}
}

func TestTopCustomersTiesAndLimit(t *testing.T) {
	snap := &domain.Snapshot{}
	for _, id := range []string{"C3", "C1", "C2", "C4"} {
		snap.Accounts = append(snap.Accounts, domain.Account{ID: "A" + id, CustomerID: id})
		snap.Transactions = append(snap.Transactions, domain.Transaction{ID: "T" + id, AccountID: "A" + id, Amount: 10})
	}

	got := TopCustomers(snap, domain.NewIndex(snap), 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 customers, got %d", len(got))
	}
	for i, id := range []string{"C1", "C2", "C3"} {
		if got[i].CustomerID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].CustomerID)
		}
	}
}

func TestTransactionsPerHour(t *testing.T) {
	snap, _ := fixture()
	got := TransactionsPerHour(snap)

	if len(got) != 24 {
		t.Fatalf("expected 24 buckets, got %d", len(got))
	}
	if got[2].TransactionCount != 2 || got[23].TransactionCount != 1 || got[0].TransactionCount != 0 {
		t.Errorf("unexpected histogram %+v", got)
	}
}

func TestFlaggedDetail(t *testing.T) {
	snap, flags := fixture()
	got := FlaggedDetail(snap, flags)

	// TXN0000005 has no account and is dropped; newest first.
	wantFlags := []string{"FLAG000003", "FLAG000001", "FLAG000002", "FLAG000005"}
	if len(got) != len(wantFlags) {
		t.Fatalf("expected %d rows, got %d", len(wantFlags), len(got))
	}
	for i, id := range wantFlags {
		if got[i].Flag.ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].Flag.ID)
		}
	}
	if got[1].CustomerID != "CUST0002" {
		t.Errorf("expected CUST0002, got %s", got[1].CustomerID)
	}
}

func TestWriteXLSX(t *testing.T) {
	snap, flags := fixture()
	r := Build("run-1", snap, flags, Options{})

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, r); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 6 || sheets[0] != SheetSummary {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	v, err := f.GetCellValue(SheetSummary, "B2")
	if err != nil || v != "run-1" {
		t.Errorf("expected run id in B2, got %q (%v)", v, err)
	}

	rows, err := f.GetRows(SheetFlagged)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("expected header + 4 rows, got %d", len(rows))
	}
}
