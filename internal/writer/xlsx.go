package writer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/releve-converter/internal/models"
)

// SheetName is the worksheet holding the statement rows.
const SheetName = "Releve"

// XLSXWriter writes the statement as a spreadsheet. The control sum row
// carries SUM formulas over the transaction rows so the sheet recomputes when
// edited.
type XLSXWriter struct{}

func (w *XLSXWriter) Extension() string { return ".xlsx" }

func (w *XLSXWriter) Write(out io.Writer, stmt *models.Statement) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	dateFmt := "dd/mm/yyyy"
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	amountFmt := "#,##0.00"
	amountStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &amountFmt})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	// Write header row
	for i, name := range models.RowHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(SheetName, cell, name)
	}
	f.SetCellStyle(SheetName, "A1", "E1", bold)

	rows := stmt.Rows()
	n := len(stmt.Transactions())
	// row 2 is the opening balance, transactions follow
	firstTxn, lastTxn := 3, 2+n

	for i, row := range rows {
		r := i + 2
		cell := func(col int) string {
			c, _ := excelize.CoordinatesToCellName(col, r)
			return c
		}

		f.SetCellValue(SheetName, cell(1), row.Date)
		if row.ValueDate != nil {
			f.SetCellValue(SheetName, cell(2), *row.ValueDate)
		}
		if row.Debit.Valid {
			f.SetCellValue(SheetName, cell(3), row.Debit.Decimal.InexactFloat64())
		}
		if row.Credit.Valid {
			f.SetCellValue(SheetName, cell(4), row.Credit.Decimal.InexactFloat64())
		}
		f.SetCellValue(SheetName, cell(5), row.Description)

		if row.Description == models.ControlSumLabel && row.Synthetic && n > 0 {
			if err := f.SetCellFormula(SheetName, cell(3), fmt.Sprintf("SUM(C%d:C%d)", firstTxn, lastTxn)); err != nil {
				return fmt.Errorf("failed to set formula: %w", err)
			}
			if err := f.SetCellFormula(SheetName, cell(4), fmt.Sprintf("SUM(D%d:D%d)", firstTxn, lastTxn)); err != nil {
				return fmt.Errorf("failed to set formula: %w", err)
			}
		}
		if row.Synthetic {
			f.SetCellStyle(SheetName, cell(5), cell(5), bold)
		}
	}

	last := len(rows) + 1
	f.SetCellStyle(SheetName, "A2", fmt.Sprintf("B%d", last), dateStyle)
	f.SetCellStyle(SheetName, "C2", fmt.Sprintf("D%d", last), amountStyle)

	f.SetColWidth(SheetName, "A", "B", 12)
	f.SetColWidth(SheetName, "C", "D", 14)
	f.SetColWidth(SheetName, "E", "E", 60)

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}
