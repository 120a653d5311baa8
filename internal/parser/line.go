package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Line is one normalised input line. Column offsets everywhere in this package
// are rune offsets into Line, which is how pdftotext lays characters out.
type Line struct {
	Num    int // 1-based
	Text   string
	runes  []rune
	folded string // lower case, accents removed, one rune per rune of Text
}

// NewLine normalises raw: form feeds and carriage returns are dropped and the
// text is composed (NFC) so that accented letters occupy a single column.
func NewLine(num int, raw string) Line {
	raw = strings.TrimRight(raw, "\r\n")
	raw = strings.ReplaceAll(raw, "\f", "")
	text := norm.NFC.String(raw)
	rs := []rune(text)
	return Line{Num: num, Text: text, runes: rs, folded: fold(rs)}
}

// NewLines numbers and normalises a statement's lines.
func NewLines(raw []string) []Line {
	lines := make([]Line, len(raw))
	for i, s := range raw {
		lines[i] = NewLine(i+1, s)
	}
	return lines
}

// SplitLines splits extracted text on line terminators.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// Width is the visible length of the line in columns.
func (l Line) Width() int { return len(l.runes) }

// slice returns the text between two columns, clamped to the line.
func (l Line) slice(start, end int) string {
	if end < 0 || end > len(l.runes) {
		end = len(l.runes)
	}
	if start < 0 {
		start = 0
	}
	if start >= end {
		return ""
	}
	return string(l.runes[start:end])
}

// column converts a byte offset into folded to a rune column.
func (l Line) column(byteOffset int) int {
	return utf8.RuneCountInString(l.folded[:byteOffset])
}

// fold lower-cases and strips diacritics rune by rune, keeping the rune count
// so that match positions in the folded text are columns of the original.
func fold(rs []rune) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	var b strings.Builder
	b.Grow(len(rs))
	for _, r := range rs {
		if r < utf8.RuneSelf {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		out := r
		if s, _, err := transform.String(t, string(r)); err == nil && utf8.RuneCountInString(s) == 1 {
			out, _ = utf8.DecodeRuneInString(s)
		}
		b.WriteRune(unicode.ToLower(out))
	}
	return b.String()
}
