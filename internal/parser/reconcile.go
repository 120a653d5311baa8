package parser

import (
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/releve-converter/internal/models"
)

// Reconciler reads the balance and subtotal lines and checks that the
// transactions account for them.
type Reconciler struct {
	log        zerolog.Logger
	locale     Locale
	tolerance  decimal.Decimal
	diagnostic bool
	numeric    *regexp.Regexp
	groupEnd   *regexp.Regexp
}

// NewReconciler returns a reconciler for the locale and tolerance of opts.
func NewReconciler(log zerolog.Logger, opts Options) *Reconciler {
	seps := regexp.QuoteMeta(string(opts.Locale.Decimal) + string(opts.Locale.Thousands))
	return &Reconciler{
		log:        log,
		locale:     opts.Locale,
		tolerance:  opts.Tolerance,
		diagnostic: opts.Diagnostic,
		numeric:    regexp.MustCompile(`^[\d` + seps + `]+$`),
		groupEnd:   regexp.MustCompile(`[` + seps + `]\d{2}$`),
	}
}

// ReconcileInput is everything the reconciliation step consumes.
type ReconcileInput struct {
	Currency     string
	Opening      Line
	Closing      Line
	Subtotal     Line
	Transactions []models.Transaction
	Accumulated  models.Totals // running sums kept while reading the table
}

// ParseBalance reads a line such as "SOLDE CREDITEUR AU 01.03.2019 1.000,00".
// Debtor balances come back negative.
func (r *Reconciler) ParseBalance(l Line) (models.Balance, error) {
	dateLoc := fullDatePattern.FindStringIndex(l.folded)
	dirLoc := directionPattern.FindStringIndex(l.folded)
	if dateLoc == nil || dirLoc == nil {
		return models.Balance{}, &MissingSectionError{Section: "balance", LineNum: l.Num}
	}

	date, err := parseFullDate(l.folded[dateLoc[0]:dateLoc[1]], l.Num)
	if err != nil {
		return models.Balance{}, err
	}

	cut := l.column(max(dateLoc[1], dirLoc[1]))
	token := strings.TrimSpace(l.slice(cut, -1))
	amount, err := r.locale.Parse(token)
	if err != nil {
		return models.Balance{}, r.amountError(err, l, cut)
	}
	if l.folded[dirLoc[0]:dirLoc[1]] == "debiteur" {
		amount = amount.Neg()
	}

	return models.Balance{
		Date:   date,
		Amount: amount,
		Label:  collapseSpaces(l.slice(0, cut)),
	}, nil
}

// ParseSubtotal reads the document's printed debit and credit totals. Dates
// and words are skipped; numeric tokens accumulate until one ends in a
// separator and two digits, which closes an amount. The first two amounts are
// the debit and the credit total.
func (r *Reconciler) ParseSubtotal(l Line) (models.Totals, error) {
	var groups []string
	var cur []string
	for _, f := range strings.Fields(l.Text) {
		if fullDatePattern.MatchString(f) || !r.numeric.MatchString(f) {
			cur = nil
			continue
		}
		cur = append(cur, f)
		if r.groupEnd.MatchString(f) {
			groups = append(groups, strings.Join(cur, ""))
			cur = nil
		}
	}
	if len(groups) < 2 {
		return models.Totals{}, &AmountParseError{Token: strings.TrimSpace(l.Text), LineNum: l.Num, Line: l.Text}
	}

	debit, err := r.locale.Parse(groups[0])
	if err != nil {
		return models.Totals{}, r.amountError(err, l, 0)
	}
	credit, err := r.locale.Parse(groups[1])
	if err != nil {
		return models.Totals{}, r.amountError(err, l, 0)
	}
	return models.Totals{Debit: debit, Credit: credit}, nil
}

// Reconcile parses the balance and subtotal lines, checks the debit subtotal,
// the credit subtotal and the balance equation, and builds the statement.
// Failing checks are returned together; in diagnostic mode they are logged
// and the statement is built anyway.
func (r *Reconciler) Reconcile(in ReconcileInput) (*models.Statement, error) {
	opening, err := r.ParseBalance(in.Opening)
	if err != nil {
		return nil, err
	}
	closing, err := r.ParseBalance(in.Closing)
	if err != nil {
		return nil, err
	}
	printed, err := r.ParseSubtotal(in.Subtotal)
	if err != nil {
		return nil, err
	}

	var sums models.Totals
	for _, t := range in.Transactions {
		sums = sums.Add(t)
	}
	if !sums.Debit.Equal(in.Accumulated.Debit) || !sums.Credit.Equal(in.Accumulated.Credit) {
		r.log.Debug().Str("event", "diagnostic").
			Str("accumulated_debit", in.Accumulated.Debit.StringFixed(2)).
			Str("accumulated_credit", in.Accumulated.Credit.StringFixed(2)).
			Str("transaction_debit", sums.Debit.StringFixed(2)).
			Str("transaction_credit", sums.Credit.StringFixed(2)).
			Msg("running sums include discarded amounts")
	}

	movement := opening.Amount.Sub(printed.Debit).Add(printed.Credit)
	errs := []error{
		r.check(CheckDebitSubtotal, printed.Debit, sums.Debit),
		r.check(CheckCreditSubtotal, printed.Credit, sums.Credit),
		r.check(CheckBalance, closing.Amount, movement),
	}
	if err := errors.Join(errs...); err != nil {
		if !r.diagnostic {
			return nil, err
		}
		r.log.Warn().Str("event", "diagnostic").Err(err).Msg("reconciliation failures tolerated")
	}

	return models.NewStatement(in.Currency, opening, closing, in.Transactions, printed, in.Accumulated), nil
}

func (r *Reconciler) check(c Check, expected, actual decimal.Decimal) error {
	ok := actual.Sub(expected).Abs().LessThanOrEqual(r.tolerance)
	r.log.Debug().
		Str("event", "invariant_check").
		Str("check", string(c)).
		Str("expected", expected.StringFixed(2)).
		Str("actual", actual.StringFixed(2)).
		Bool("ok", ok).
		Msg("reconciliation check")
	if ok {
		return nil
	}
	return &ReconciliationMismatchError{Check: c, Expected: expected, Actual: actual}
}

func (r *Reconciler) amountError(err error, l Line, col int) error {
	var ape *AmountParseError
	if errors.As(err, &ape) {
		ape.LineNum, ape.Column, ape.Line = l.Num, col, l.Text
	}
	return err
}
