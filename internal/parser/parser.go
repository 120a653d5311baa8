// Package parser reconstructs the transactions of a BNP statement from its
// fixed-width text rendering and reconciles them against the balances and
// totals the statement prints.
package parser

import (
	"context"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/releve-converter/internal/logger"
	"github.com/insightdelivered/releve-converter/internal/models"
)

// Options configure a Parser.
type Options struct {
	Locale Locale
	// BlankRunThreshold is the number of consecutive blank lines tolerated
	// inside a table; one more ends the page's table.
	BlankRunThreshold int
	Tolerance         decimal.Decimal
	// Diagnostic logs amount and reconciliation failures instead of failing.
	// Never enable it for unattended runs.
	Diagnostic      bool
	CreditRule      CreditRule
	FooterPatterns  []*regexp.Regexp
	DefaultCurrency string
}

// DefaultOptions returns strict French-locale options.
func DefaultOptions() Options {
	return Options{
		Locale:            French,
		BlankRunThreshold: 2,
		Tolerance:         decimal.New(1, -2),
		CreditRule:        ColumnRule{},
		DefaultCurrency:   "EUR",
	}
}

func (o Options) validate() error {
	if err := o.Locale.validate(); err != nil {
		return fmt.Errorf("invalid locale: %w", err)
	}
	if o.BlankRunThreshold < 1 {
		return fmt.Errorf("blank run threshold must be positive, got %d", o.BlankRunThreshold)
	}
	if o.Tolerance.IsNegative() {
		return fmt.Errorf("tolerance cannot be negative, got %s", o.Tolerance)
	}
	return nil
}

// Parser converts statement lines into a reconciled Statement. A Parser holds
// no per-document state and may be shared between goroutines.
type Parser struct {
	opts       Options
	classifier *Classifier
}

// New validates opts and returns a Parser.
func New(opts Options) (*Parser, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.CreditRule == nil {
		opts.CreditRule = ColumnRule{}
	}
	return &Parser{
		opts:       opts,
		classifier: NewClassifier(opts.Locale, opts.CreditRule, opts.FooterPatterns),
	}, nil
}

// Options returns the parser's configuration.
func (p *Parser) Options() Options { return p.opts }

// ParseText splits text into lines and parses them.
func (p *Parser) ParseText(ctx context.Context, text string) (*models.Statement, error) {
	return p.Parse(ctx, SplitLines(text))
}

// Parse reads one statement in a single forward pass: the preamble up to the
// opening balance, the transaction table up to the printed subtotal line, then
// the closing balance. Any failure aborts the statement; no partial result is
// returned.
func (p *Parser) Parse(ctx context.Context, raw []string) (*models.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With().Str("component", "parser").Logger()
	lines := NewLines(raw)

	currency := ""
	var layout LayoutMetrics
	var opening *Line
	i := 0
	for ; i < len(lines) && opening == nil; i++ {
		l := lines[i]
		if currency == "" {
			currency = findCurrency(l.folded)
		}
		c, err := p.classifier.Classify(l, layout)
		if err != nil {
			return nil, err
		}
		switch {
		case c.Kind == KindHeader:
			layout = c.Layout
			log.Debug().Str("event", "page_header").Int("line", l.Num).Msg("layout detected")
		case c.Kind == KindBalance:
			opening = &lines[i]
		case c.Kind == KindTableEnd && c.Final:
			return nil, &MissingSectionError{Section: "opening balance", LineNum: l.Num}
		}
	}
	if opening == nil {
		if !layout.Valid() {
			return nil, &LayoutDetectionError{Missing: labelNames()}
		}
		return nil, &MissingSectionError{Section: "opening balance"}
	}
	if currency == "" {
		currency = p.opts.DefaultCurrency
	}

	open, err := NewReconciler(log, p.opts).ParseBalance(*opening)
	if err != nil {
		return nil, err
	}

	asm := NewAssembler(log, p.opts, open.Date, layout)
	seenHeader := layout.Valid()
	var subtotal *Line
	for ; i < len(lines); i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		c, err := p.classifier.Classify(lines[i], asm.Layout())
		if err != nil {
			return nil, err
		}
		if c.Kind == KindHeader {
			seenHeader = true
		}
		if err := asm.Feed(c); err != nil {
			return nil, err
		}
		if asm.Done() {
			subtotal = &lines[i]
			i++
			break
		}
	}
	if !seenHeader {
		return nil, &LayoutDetectionError{Missing: labelNames()}
	}
	if subtotal == nil {
		return nil, &MissingSectionError{Section: "printed subtotal"}
	}

	var closing *Line
	for ; i < len(lines); i++ {
		if IsBalanceLine(lines[i]) {
			closing = &lines[i]
			break
		}
	}
	if closing == nil {
		return nil, &MissingSectionError{Section: "closing balance", LineNum: subtotal.Num}
	}

	stmt, err := NewReconciler(log, p.opts).Reconcile(ReconcileInput{
		Currency:     currency,
		Opening:      *opening,
		Closing:      *closing,
		Subtotal:     *subtotal,
		Transactions: asm.Transactions(),
		Accumulated:  asm.Totals(),
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("transactions", len(stmt.Transactions())).
		Str("currency", stmt.Currency()).
		Msg("statement parsed")
	return stmt, nil
}

func labelNames() []string {
	names := make([]string, len(headerLabels))
	for i, lb := range headerLabels {
		names[i] = lb.name
	}
	return names
}
