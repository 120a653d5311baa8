// Package writer serializes reconciled statements.
package writer

import (
	"fmt"
	"io"
	"os"

	"github.com/insightdelivered/releve-converter/internal/models"
)

// Writer serializes a statement.
type Writer interface {
	Write(out io.Writer, stmt *models.Statement) error
	// Extension is the file extension of the format, with the dot.
	Extension() string
}

// New returns the writer for format: "csv", "xlsx" or "json". CSV amounts use
// decimalSep, normally the statement locale's decimal separator.
func New(format string, csvSeparator, decimalSep rune) (Writer, error) {
	switch format {
	case "csv":
		return &CSVWriter{Separator: csvSeparator, Decimal: decimalSep, IncludeHeader: true}, nil
	case "xlsx":
		return &XLSXWriter{}, nil
	case "json":
		return &JSONWriter{Indent: true}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteToFile writes the statement to a file at the given path.
func WriteToFile(w Writer, path string, stmt *models.Statement) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	if err := w.Write(f, stmt); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
