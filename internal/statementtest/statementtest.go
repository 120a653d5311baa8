// Package statementtest synthesizes fixed-width statement text the way
// pdftotext -layout renders BNP statements, for use in tests.
package statementtest

import (
	"strings"
)

// Layout places the header labels. Date, Nature and Valeur are start columns;
// DebitEnd and CreditEnd are the exclusive end columns of the right aligned
// "Débit" and "Crédit" labels, under which amounts are right aligned too.
type Layout struct {
	Date      int
	Nature    int
	Valeur    int
	DebitEnd  int
	CreditEnd int
}

var (
	Portrait = Layout{Date: 1, Nature: 12, Valeur: 64, DebitEnd: 85, CreditEnd: 102}
	Shifted  = Layout{Date: 3, Nature: 15, Valeur: 70, DebitEnd: 93, CreditEnd: 112}
)

type canvas []rune

func (c *canvas) put(col int, s string) {
	rs := []rune(s)
	for len(*c) < col+len(rs) {
		*c = append(*c, ' ')
	}
	copy((*c)[col:], rs)
}

func (c *canvas) right(end int, s string) {
	if s == "" {
		return
	}
	c.put(end-len([]rune(s)), s)
}

func (c canvas) String() string {
	return strings.TrimRight(string(c), " ")
}

// Header renders the table header line.
func (l Layout) Header() string {
	var c canvas
	c.put(l.Date, "Date")
	c.put(l.Nature, "Nature des opérations")
	c.put(l.Valeur, "Valeur")
	c.right(l.DebitEnd, "Débit")
	c.right(l.CreditEnd, "Crédit")
	return c.String()
}

// Row renders a table line. Empty arguments leave their column blank.
func (l Layout) Row(date, desc, valueDate, debit, credit string) string {
	var c canvas
	if date != "" {
		c.put(l.Date, date)
	}
	if desc != "" {
		c.put(l.Nature, desc)
	}
	if valueDate != "" {
		c.put(l.Valeur, valueDate)
	}
	c.right(l.DebitEnd, debit)
	c.right(l.CreditEnd, credit)
	return c.String()
}

// Continuation renders a description-only line.
func (l Layout) Continuation(desc string) string {
	return l.Row("", desc, "", "", "")
}

// Balance renders "SOLDE <DIRECTION> AU <date>" with the amount in the credit
// column.
func (l Layout) Balance(direction, date, amount string) string {
	var c canvas
	c.put(l.Nature, "SOLDE "+direction+" AU "+date)
	c.right(l.CreditEnd, amount)
	return c.String()
}

// Subtotal renders the printed totals row.
func (l Layout) Subtotal(debit, credit string) string {
	var c canvas
	c.put(l.Nature, "TOTAL DES OPERATIONS")
	c.right(l.DebitEnd, debit)
	c.right(l.CreditEnd, credit)
	return c.String()
}

// Document accumulates the lines of a synthetic statement.
type Document struct {
	Layout Layout
	lines  []string
}

// NewDocument starts a statement with the usual preamble.
func NewDocument(l Layout, currency string) *Document {
	d := &Document{Layout: l}
	d.lines = append(d.lines,
		"                                   BNP PARIBAS",
		"RELEVE DE COMPTE CHEQUES",
		"        Monnaie du compte : "+currency,
		"",
	)
	return d
}

// Add appends raw lines.
func (d *Document) Add(lines ...string) *Document {
	d.lines = append(d.lines, lines...)
	return d
}

// Header appends a header line for the current layout.
func (d *Document) Header() *Document {
	return d.Add(d.Layout.Header())
}

// Page switches layout and appends its header, as at a page break.
func (d *Document) Page(l Layout) *Document {
	d.Layout = l
	return d.Header()
}

// Row appends a table line.
func (d *Document) Row(date, desc, valueDate, debit, credit string) *Document {
	return d.Add(d.Layout.Row(date, desc, valueDate, debit, credit))
}

// Continuation appends a description-only line.
func (d *Document) Continuation(desc string) *Document {
	return d.Add(d.Layout.Continuation(desc))
}

// Balance appends a balance line.
func (d *Document) Balance(direction, date, amount string) *Document {
	return d.Add(d.Layout.Balance(direction, date, amount))
}

// Subtotal appends the printed totals row.
func (d *Document) Subtotal(debit, credit string) *Document {
	return d.Add(d.Layout.Subtotal(debit, credit))
}

// Blank appends n empty lines.
func (d *Document) Blank(n int) *Document {
	for range n {
		d.lines = append(d.lines, "")
	}
	return d
}

// Lines returns a copy of the document's lines.
func (d *Document) Lines() []string {
	return append([]string(nil), d.lines...)
}

// Text joins the lines with newlines.
func (d *Document) Text() string {
	return strings.Join(d.lines, "\n") + "\n"
}
