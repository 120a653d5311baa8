package parser

import (
	"regexp"
	"strings"
)

// Column is a half-open range of rune offsets. End < 0 means open-ended.
type Column struct {
	Start int
	End   int
}

// Contains reports whether col falls inside the range.
func (c Column) Contains(col int) bool {
	return col >= c.Start && (c.End < 0 || col < c.End)
}

// LayoutMetrics are the column boundaries of one page's table, derived from
// its header line. A value is never modified once built; a new header yields a
// new value.
type LayoutMetrics struct {
	Date        Column
	Description Column
	ValueDate   Column
	Debit       Column
	Credit      Column
	Width       int
	HeaderLine  int
}

// Valid reports whether the metrics come from a detected header.
func (m LayoutMetrics) Valid() bool {
	return m.Width > 0
}

// ColumnIndicatesCredit reports whether an amount whose decimal separator sits
// at col is in the credit column. The document encodes direction by position
// only, never by sign.
func (m LayoutMetrics) ColumnIndicatesCredit(col int) bool {
	return col >= m.Credit.Start
}

// centsWidth is the width of the decimal separator plus two digits; amounts
// are right aligned under their label so the separator sits that far before
// the label's end.
const centsWidth = 3

type label struct {
	name    string
	pattern *regexp.Regexp
}

// tolerantLabel matches word with any spaces between its letters, an artifact
// of text extraction ("D ate", "N ature").
func tolerantLabel(word string) label {
	parts := make([]string, 0, len(word))
	for _, r := range word {
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return label{name: word, pattern: regexp.MustCompile(strings.Join(parts, `\s*`))}
}

var headerLabels = []label{
	tolerantLabel("date"),
	tolerantLabel("nature"),
	tolerantLabel("valeur"),
	tolerantLabel("debit"),
	tolerantLabel("credit"),
}

var leadingDateLabel = regexp.MustCompile(`^\s*` + headerLabels[0].pattern.String())

// LayoutDetector finds column boundaries from a table header line.
type LayoutDetector struct{}

// Detect locates the five labels, in order, and derives the columns from their
// positions. It fails with *LayoutDetectionError naming the labels it could
// not find.
func (LayoutDetector) Detect(l Line) (LayoutMetrics, error) {
	type span struct{ start, end int }
	spans := make([]span, 0, len(headerLabels))
	var missing []string

	from := 0
	for _, lb := range headerLabels {
		if from > len(l.folded) {
			missing = append(missing, lb.name)
			continue
		}
		loc := lb.pattern.FindStringIndex(l.folded[from:])
		if loc == nil {
			missing = append(missing, lb.name)
			continue
		}
		spans = append(spans, span{l.column(from + loc[0]), l.column(from + loc[1])})
		from += loc[1]
	}
	if len(missing) > 0 {
		return LayoutMetrics{}, &LayoutDetectionError{LineNum: l.Num, Line: l.Text, Missing: missing}
	}

	nature, valeur, debit, credit := spans[1], spans[2], spans[3], spans[4]

	split := (debit.end+credit.end)/2 - centsWidth
	if split <= valeur.end+1 {
		split = valeur.end + 2
	}

	m := LayoutMetrics{
		Date:        Column{0, nature.start},
		Description: Column{nature.start, valeur.start - 1},
		ValueDate:   Column{valeur.start - 1, valeur.end + 1},
		Debit:       Column{valeur.end + 1, split},
		Credit:      Column{split, -1},
		Width:       l.Width(),
		HeaderLine:  l.Num,
	}
	if m.Description.End <= m.Description.Start {
		return LayoutMetrics{}, &LayoutDetectionError{LineNum: l.Num, Line: l.Text, Missing: []string{"nature"}}
	}
	return m, nil
}

// LooksLikeHeader reports whether l is expected to be a header: it starts with
// the date label and carries at least three of the five labels. Detection
// failing on such a line is fatal rather than "not a header".
func (LayoutDetector) LooksLikeHeader(l Line) bool {
	if !leadingDateLabel.MatchString(l.folded) {
		return false
	}
	found := 0
	for _, lb := range headerLabels {
		if lb.pattern.MatchString(l.folded) {
			found++
		}
	}
	return found >= 3
}
