package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the MIME type of WriteXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet names of the exported workbook.
const (
	SheetSummary      = "Summary"
	SheetFlagsByType  = "Flags by type"
	SheetFlagsByRisk  = "Flags by risk"
	SheetTopCustomers = "Top customers"
	SheetPerHour      = "Transactions per hour"
	SheetFlagged      = "Flagged transactions"
)

// WriteXLSX renders a report as a workbook with one sheet per table.
func WriteXLSX(w io.Writer, report *domain.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}

	summary := [][]any{
		{"Metric", "Value"},
		{"Run ID", report.RunID},
		{"Generated at", report.GeneratedAt.Format(time.RFC3339)},
		{"Total transactions", report.TotalTransactions},
		{"Total amount", report.TotalAmount.InexactFloat64()},
		{"Flagged transactions", report.FlaggedTransactions},
		{"Flags", report.FlagCount},
		{"Flag ratio (%)", report.FlagRatio},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return err
	}

	byType := [][]any{{"Flag type", "Count"}}
	for _, t := range report.FlagsByType {
		byType = append(byType, []any{string(t.FlagType), t.Count})
	}
	if err := addSheet(f, SheetFlagsByType, byType); err != nil {
		return err
	}

	byRisk := [][]any{{"Risk rating", "Flags"}}
	for _, r := range report.FlagsByRisk {
		byRisk = append(byRisk, []any{string(r.RiskRating), r.FlagCount})
	}
	if err := addSheet(f, SheetFlagsByRisk, byRisk); err != nil {
		return err
	}

	top := [][]any{{"Customer ID", "Total amount"}}
	for _, c := range report.TopCustomers {
		top = append(top, []any{c.CustomerID, c.Amount.InexactFloat64()})
	}
	if err := addSheet(f, SheetTopCustomers, top); err != nil {
		return err
	}

	hours := [][]any{{"Hour", "Transactions"}}
	for _, h := range report.TransactionsPerHour {
		hours = append(hours, []any{h.Hour, h.TransactionCount})
	}
	if err := addSheet(f, SheetPerHour, hours); err != nil {
		return err
	}

	flagged := [][]any{{"Flag ID", "Transaction ID", "Customer ID", "Timestamp", "Amount", "Currency", "Country", "Flag type", "Reason"}}
	for _, d := range report.FlaggedDetail {
		flagged = append(flagged, []any{
			d.Flag.ID,
			d.Transaction.ID,
			d.CustomerID,
			d.Transaction.Timestamp.Format(time.DateTime),
			d.Transaction.Amount,
			d.Transaction.Currency,
			d.Transaction.Country,
			string(d.Flag.Type),
			d.Flag.Reason,
		})
	}
	if err := addSheet(f, SheetFlagged, flagged); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func addSheet(f *excelize.File, name string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", name, err)
	}
	return writeRows(f, name, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
