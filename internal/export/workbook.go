package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"envelopes/internal/core"
	"envelopes/internal/services"
)

const (
	summarySheet   = "Summary"
	envelopesSheet = "Envelopes"

	// Built-in excelize number format "#,##0.00".
	amountFormat = 4

	// Header in row 1, January..December in rows 2..13.
	totalRow = 14
)

var monthsPerYear = decimal.NewFromInt(12)

// WriteYearWorkbook renders the yearly summary and the user's envelopes as
// an .xlsx workbook into w.
func WriteYearWorkbook(w io.Writer, summary services.YearOverview, envelopes []core.Envelope) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	amounts, err := f.NewStyle(&excelize.Style{NumFmt: amountFormat})
	if err != nil {
		return fmt.Errorf("create amount style: %w", err)
	}

	rows := yearRows(summary)
	if err := writeRows(f, summarySheet, rows); err != nil {
		return err
	}
	for _, r := range []int{1, totalRow} {
		if err := styleRow(f, summarySheet, r, len(summaryHeader), bold); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(summarySheet, "B2", fmt.Sprintf("D%d", totalRow), amounts); err != nil {
		return fmt.Errorf("style amounts: %w", err)
	}
	if err := f.SetCellStyle(summarySheet, fmt.Sprintf("C%d", totalRow+2), fmt.Sprintf("C%d", len(rows)), amounts); err != nil {
		return fmt.Errorf("style highlights: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "B", "D", 14); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.NewSheet(envelopesSheet); err != nil {
		return fmt.Errorf("create envelopes sheet: %w", err)
	}
	envRows := [][]any{{"Envelope", "Type", "Monthly budget", "Yearly budget"}}
	for _, e := range envelopes {
		kind := "Informational"
		if e.Fixed {
			kind = "Fixed"
		}
		row := []any{e.Title, kind, "", ""}
		if e.HasBudget() {
			row[2] = money(*e.Budget)
			row[3] = money(e.Budget.Mul(monthsPerYear))
		}
		envRows = append(envRows, row)
	}
	if err := writeRows(f, envelopesSheet, envRows); err != nil {
		return err
	}
	if err := styleRow(f, envelopesSheet, 1, 4, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(envelopesSheet, "A", "D", 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	last, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), last, style); err != nil {
		return fmt.Errorf("style %s row %d: %w", sheet, row, err)
	}
	return nil
}
