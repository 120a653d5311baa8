package writer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/insightdelivered/releve-converter/internal/models"
)

// JSONWriter writes the statement model as JSON.
type JSONWriter struct {
	Indent bool
}

func (w *JSONWriter) Extension() string { return ".json" }

func (w *JSONWriter) Write(out io.Writer, stmt *models.Statement) error {
	enc := json.NewEncoder(out)
	if w.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(stmt); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}
