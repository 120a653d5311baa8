package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/releve-converter/internal/models"
)

const dateLayout = "02/01/2006"

// CSVWriter writes the tabular projection of a statement.
type CSVWriter struct {
	Separator     rune // 0 means ';'
	Decimal       rune // 0 means ','
	IncludeHeader bool
}

func (w *CSVWriter) Extension() string { return ".csv" }

// Write writes the statement rows in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, stmt *models.Statement) error {
	writer := csv.NewWriter(out)
	writer.Comma = w.separator()

	// Write metadata as comments (CSV header rows)
	if w.IncludeHeader {
		meta := [][]string{
			{"# Devise", stmt.Currency()},
			{"# Solde initial", w.formatAmount(decimal.NewNullDecimal(stmt.Opening().Amount))},
			{"# Solde final", w.formatAmount(decimal.NewNullDecimal(stmt.Closing().Amount))},
		}
		if err := writer.WriteAll(meta); err != nil {
			return fmt.Errorf("failed to write CSV metadata: %w", err)
		}
	}

	if err := writer.Write(models.RowHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range stmt.Rows() {
		valueDate := ""
		if row.ValueDate != nil {
			valueDate = row.ValueDate.Format(dateLayout)
		}
		rec := []string{
			row.Date.Format(dateLayout),
			valueDate,
			w.formatAmount(row.Debit),
			w.formatAmount(row.Credit),
			row.Description,
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (w *CSVWriter) separator() rune {
	if w.Separator == 0 {
		return ';'
	}
	return w.Separator
}

func (w *CSVWriter) formatAmount(amount decimal.NullDecimal) string {
	if !amount.Valid {
		return ""
	}
	sep := w.Decimal
	if sep == 0 {
		sep = ','
	}
	return strings.Replace(amount.Decimal.StringFixed(2), ".", string(sep), 1)
}
