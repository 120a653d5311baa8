package parser

import (
	"regexp"
	"strings"
)

// LineKind is the category of a line in the statement table.
type LineKind int

const (
	KindBlank LineKind = iota
	KindHeader
	KindTableEnd
	KindBalance
	KindContent
)

func (k LineKind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindHeader:
		return "header"
	case KindTableEnd:
		return "table_end"
	case KindBalance:
		return "balance"
	case KindContent:
		return "content"
	default:
		return "unknown"
	}
}

// Classification is what the classifier learned about one line.
type Classification struct {
	Kind LineKind
	Line Line

	// Header
	Layout LayoutMetrics

	// Table end. Final markers (subtotal rows) end the whole table; the others
	// only end the current page's table.
	Final  bool
	Reason string

	// Content. Empty strings mean the token is absent.
	Date        string
	ValueDate   string
	Description []string
	Amount      string
	AmountCol   int  // column of the amount's decimal separator
	Credit      bool // amount sits in the credit column
}

var (
	subtotalPattern  = regexp.MustCompile(`total des (montants|operations)\b`)
	fullDatePattern  = regexp.MustCompile(`\b(\d{2})\.(\d{2})\.(\d{4})\b`)
	directionPattern = regexp.MustCompile(`\b(crediteur|debiteur)\b`)
	dayMonthPattern  = regexp.MustCompile(`^\d{2}\.\d{2}$`)
	bareCodePattern  = regexp.MustCompile(`^\d+$`)
)

// Classifier categorises lines against the current page layout.
type Classifier struct {
	detector LayoutDetector
	money    *regexp.Regexp
	rule     CreditRule
	footers  []*regexp.Regexp
}

// NewClassifier builds a classifier for the locale. A nil rule means ColumnRule.
func NewClassifier(loc Locale, rule CreditRule, footers []*regexp.Regexp) *Classifier {
	if rule == nil {
		rule = ColumnRule{}
	}
	return &Classifier{money: loc.moneyPattern(), rule: rule, footers: footers}
}

// Classify categorises l. m may be the zero value before any header was seen,
// in which case content lines carry no tokens. The only error is a
// *LayoutDetectionError for a line that looks like a header but is not one.
func (c *Classifier) Classify(l Line, m LayoutMetrics) (Classification, error) {
	out := Classification{Line: l}

	if l.Width() < 2 {
		out.Kind = KindBlank
		return out, nil
	}

	if subtotalPattern.MatchString(l.folded) {
		out.Kind, out.Final, out.Reason = KindTableEnd, true, "subtotal"
		return out, nil
	}

	if layout, err := c.detector.Detect(l); err == nil {
		out.Kind, out.Layout = KindHeader, layout
		return out, nil
	} else if c.detector.LooksLikeHeader(l) {
		return out, err
	}

	if IsBalanceLine(l) {
		out.Kind = KindBalance
		return out, nil
	}

	for _, f := range c.footers {
		if f.MatchString(l.Text) {
			out.Kind, out.Reason = KindTableEnd, "footer"
			return out, nil
		}
	}

	out.Kind = KindContent
	if !m.Valid() {
		return out, nil
	}

	date := strings.TrimSpace(l.slice(m.Date.Start, m.Date.End))
	desc := strings.Fields(l.slice(m.Description.Start, m.Description.End))
	valueDate := strings.TrimSpace(l.slice(m.ValueDate.Start, m.ValueDate.End))
	tail := l.slice(m.Debit.Start, -1)
	amount := strings.TrimSpace(tail)

	if date == "" && len(desc) == 0 && valueDate == "" && bareCodePattern.MatchString(amount) {
		out.Kind, out.Reason = KindTableEnd, "artifact"
		return out, nil
	}

	if dayMonthPattern.MatchString(date) {
		out.Date = date
		if dayMonthPattern.MatchString(valueDate) {
			out.ValueDate = valueDate
		}
	}
	out.Description = desc

	if c.money.MatchString(amount) {
		lead := len([]rune(tail)) - len([]rune(strings.TrimLeft(tail, " \t")))
		out.Amount = amount
		out.AmountCol = m.Debit.Start + lead + len([]rune(amount)) - centsWidth
		out.Credit = c.rule.IndicatesCredit(m, l, out.AmountCol)
	}
	return out, nil
}

// IsBalanceLine reports whether l states an opening or closing balance: a
// DD.MM.YYYY date and a creditor or debtor direction word.
func IsBalanceLine(l Line) bool {
	return fullDatePattern.MatchString(l.folded) && directionPattern.MatchString(l.folded)
}

// CreditRule decides whether an amount is a credit from its position.
type CreditRule interface {
	IndicatesCredit(m LayoutMetrics, l Line, col int) bool
}

// ColumnRule places amounts by the header-derived credit column.
type ColumnRule struct{}

func (ColumnRule) IndicatesCredit(m LayoutMetrics, _ Line, col int) bool {
	return m.ColumnIndicatesCredit(col)
}

// WidthRule reproduces the print-layout heuristic where credit lines are the
// long ones: pdftotext pads a line up to its right-most glyph, so a line at
// least Threshold columns wide ends in the credit column.
type WidthRule struct {
	Threshold int
}

func (r WidthRule) IndicatesCredit(_ LayoutMetrics, l Line, _ int) bool {
	return l.Width() >= r.Threshold
}
