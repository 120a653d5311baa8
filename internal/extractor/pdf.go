package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable is returned when no method produced statement-like text.
var ErrUnreadable = errors.New("no readable text could be extracted from PDF")

// PDF extracts layout-preserving text from statement PDFs.
type PDF struct {
	// Pdftotext is the poppler binary; empty means "pdftotext" on PATH.
	Pdftotext string
}

// Lines returns the text lines of the PDF at path. pdftotext -layout is tried
// first because it keeps the horizontal position of every glyph; the Go
// library is the fallback when poppler is not installed.
func (p PDF) Lines(ctx context.Context, path string) ([]string, error) {
	lines, toolErr := p.withPdftotext(ctx, path)
	if toolErr == nil && isReadableText(lines) {
		return lines, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines, libErr := withLibrary(path)
	if libErr == nil && isReadableText(lines) {
		return lines, nil
	}

	if libErr != nil {
		return nil, fmt.Errorf("PDF text extraction failed: %w (pdftotext: %v)", libErr, toolErr)
	}
	return nil, fmt.Errorf("%w: the file may be image-based/scanned", ErrUnreadable)
}

func (p PDF) withPdftotext(ctx context.Context, path string) ([]string, error) {
	bin := p.Pdftotext
	if bin == "" {
		bin = "pdftotext"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("pdftotext not available: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-layout", "-enc", "UTF-8", path, "-")
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return ReadLines(bytes.NewReader(out))
}

// withLibrary rebuilds fixed-width lines from glyph coordinates.
func withLibrary(path string) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		lines = append(lines, layoutPage(page.Content().Text)...)
		// pdftotext separates pages with a form feed; keep the same shape
		lines = append(lines, "\f")
	}
	return lines, nil
}

type glyph struct {
	x, y, w float64
	s       string
}

// layoutPage groups glyphs into rows by Y and places each on a column grid
// whose pitch is the page's median glyph width.
func layoutPage(texts []pdf.Text) []string {
	glyphs := make([]glyph, 0, len(texts))
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		glyphs = append(glyphs, glyph{x: t.X, y: t.Y, w: t.W, s: t.S})
	}
	if len(glyphs) == 0 {
		return nil
	}

	pitch := medianWidth(glyphs)
	minX := math.Inf(1)
	rowMap := make(map[int][]glyph)
	for _, g := range glyphs {
		minX = math.Min(minX, g.x)
		// Round Y to nearest integer to group into rows
		yKey := int(math.Round(g.y))
		rowMap[yKey] = append(rowMap[yKey], g)
	}

	// PDF Y goes bottom-to-top
	yKeys := make([]int, 0, len(rowMap))
	for y := range rowMap {
		yKeys = append(yKeys, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(yKeys)))

	lines := make([]string, 0, len(yKeys))
	prevY := 0
	for i, y := range yKeys {
		// a gap of several text rows is a blank line in the layout output
		if i > 0 {
			for gap := prevY - y; gap > 24; gap -= 12 {
				lines = append(lines, "")
			}
		}
		prevY = y

		items := rowMap[y]
		sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })
		var row []rune
		for _, g := range items {
			col := int(math.Round((g.x - minX) / pitch))
			for len(row) < col {
				row = append(row, ' ')
			}
			// overlapping glyphs are appended rather than lost
			row = append(row, []rune(g.s)...)
		}
		lines = append(lines, strings.TrimRight(string(row), " "))
	}
	return lines
}

func medianWidth(glyphs []glyph) float64 {
	ws := make([]float64, 0, len(glyphs))
	for _, g := range glyphs {
		n := float64(len([]rune(g.s)))
		if g.w > 0 && n > 0 {
			ws = append(ws, g.w/n)
		}
	}
	if len(ws) == 0 {
		return 5
	}
	sort.Float64s(ws)
	m := ws[len(ws)/2]
	if m <= 0 {
		return 5
	}
	return m
}

// textQuality returns the ratio of readable characters (letters of the
// French alphabet, digits, punctuation, whitespace) to total characters.
func textQuality(lines []string) float64 {
	total := 0
	readable := 0
	for _, line := range lines {
		for _, r := range line {
			total++
			if r <= unicode.MaxLatin1 && (unicode.IsLetter(r) || unicode.IsDigit(r) ||
				unicode.IsSpace(r) || unicode.IsPunct(r)) || r == '€' {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// commonWords appear on every page of a BNP statement.
var commonWords = []string{
	"solde", "date", "valeur", "debit", "débit", "credit", "crédit",
	"total", "operation", "opération", "releve", "relevé", "compte",
}

func containsCommonWords(lines []string) bool {
	combined := strings.ToLower(strings.Join(lines, " "))
	for _, word := range commonWords {
		if strings.Contains(combined, word) {
			return true
		}
	}
	return false
}

// isReadableText checks that there is enough text, that it is not binary
// garbage and that it looks like a statement.
func isReadableText(lines []string) bool {
	n := 0
	for _, l := range lines {
		n += len(strings.TrimSpace(l))
	}
	if n <= 50 {
		return false
	}
	if textQuality(lines) <= 0.6 {
		return false
	}
	return containsCommonWords(lines)
}
