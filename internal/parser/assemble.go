package parser

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/releve-converter/internal/models"
)

// State is a phase of transaction assembly.
type State int

const (
	StateSeekingDate State = iota
	StateAccumulatingDescription
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateSeekingDate:
		return "seeking_date"
	case StateAccumulatingDescription:
		return "accumulating_description"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// Assembler turns classified table lines into transactions. It is a single-use
// state machine; all of its state is local to one statement.
type Assembler struct {
	log        zerolog.Logger
	locale     Locale
	threshold  int
	diagnostic bool
	reference  time.Time // opening balance date, anchors the year of DD.MM dates

	state  State
	layout LayoutMetrics
	active bool // inside a page's table
	done   bool
	blanks int

	draft    models.Transaction
	hasDraft bool
	desc     []string

	txns []models.Transaction
	sums models.Totals
}

// NewAssembler returns an assembler in StateSeekingDate. layout may be the
// zero value when no header has been seen yet.
func NewAssembler(log zerolog.Logger, opts Options, reference time.Time, layout LayoutMetrics) *Assembler {
	return &Assembler{
		log:        log,
		locale:     opts.Locale,
		threshold:  opts.BlankRunThreshold,
		diagnostic: opts.Diagnostic,
		reference:  reference,
		layout:     layout,
		active:     layout.Valid(),
	}
}

// State returns the current state.
func (a *Assembler) State() State { return a.state }

// Layout returns the metrics of the current page.
func (a *Assembler) Layout() LayoutMetrics { return a.layout }

// Done reports whether the final table-end marker was consumed.
func (a *Assembler) Done() bool { return a.done }

// Transactions returns the committed transactions in document order.
func (a *Assembler) Transactions() []models.Transaction { return a.txns }

// Totals returns the running debit and credit sums of every amount read,
// including amounts of transactions that were later discarded.
func (a *Assembler) Totals() models.Totals { return a.sums }

// Feed consumes one classified line.
func (a *Assembler) Feed(c Classification) error {
	if a.done {
		return nil
	}

	if c.Kind == KindBlank {
		a.blanks++
		if a.active && a.blanks > a.threshold {
			a.endPage(c, "blank_run")
		}
		return nil
	}
	a.blanks = 0

	switch c.Kind {
	case KindHeader:
		a.layout = c.Layout
		a.active = true
		a.log.Debug().
			Str("event", "page_header").
			Int("line", c.Line.Num).
			Int("debit_start", c.Layout.Debit.Start).
			Int("credit_start", c.Layout.Credit.Start).
			Msg("layout detected")
	case KindTableEnd:
		if c.Final {
			a.flush()
			a.done = true
			a.log.Debug().Str("event", "table_end").Int("line", c.Line.Num).
				Str("reason", c.Reason).Bool("final", true).Msg("table ended")
			return nil
		}
		a.endPage(c, c.Reason)
	case KindBalance:
		a.skip(c, "balance line")
	case KindContent:
		if !a.active {
			a.skip(c, "outside table")
			return nil
		}
		return a.content(c)
	}
	return nil
}

// Flush commits the transaction in progress if it is filled. Called when the
// line stream ends.
func (a *Assembler) Flush() {
	a.flush()
}

func (a *Assembler) content(c Classification) error {
	if c.Date != "" {
		if err := a.startDated(c); err != nil {
			return err
		}
	}

	if c.Amount != "" {
		if err := a.amount(c); err != nil {
			return err
		}
	}

	a.desc = append(a.desc, c.Description...)
	if a.hasDraft && a.state == StateSeekingDate {
		a.transition(StateAccumulatingDescription, c.Line.Num)
	}
	return nil
}

func (a *Assembler) startDated(c Classification) error {
	if a.draft.Filled() {
		a.commit(c.Line.Num)
	} else if a.hasDraft {
		a.discard(c.Line.Num)
	}

	date, err := resolveDayMonth(c.Date, a.reference, c.Line.Num)
	if err != nil {
		return err
	}
	a.draft = models.Transaction{Date: date}
	if c.ValueDate != "" {
		vd, err := resolveDayMonth(c.ValueDate, a.reference, c.Line.Num)
		if err != nil {
			return err
		}
		a.draft.ValueDate = &vd
	}
	a.hasDraft = true
	a.desc = nil
	return nil
}

func (a *Assembler) amount(c Classification) error {
	if a.draft.Filled() {
		date, valueDate := a.draft.Date, a.draft.ValueDate
		a.commit(c.Line.Num)
		// stacked entries share the date line above them
		a.draft = models.Transaction{Date: date, ValueDate: valueDate}
		a.hasDraft = true
	}

	v, err := a.locale.Parse(c.Amount)
	if err != nil {
		var ape *AmountParseError
		if errors.As(err, &ape) {
			ape.LineNum, ape.Column, ape.Line = c.Line.Num, c.AmountCol, c.Line.Text
		}
		if a.diagnostic {
			a.log.Warn().Str("event", "diagnostic").Err(err).
				Int("line", c.Line.Num).Int("column", c.AmountCol).
				Str("raw", c.Amount).Str("text", c.Line.Text).
				Msg("amount skipped")
			return nil
		}
		return err
	}

	amt := decimal.NewNullDecimal(v)
	if c.Credit {
		a.draft.Credit, a.draft.Debit = amt, decimal.NullDecimal{}
		a.sums.Credit = a.sums.Credit.Add(v)
	} else {
		a.draft.Debit, a.draft.Credit = amt, decimal.NullDecimal{}
		a.sums.Debit = a.sums.Debit.Add(v)
	}
	a.draft.Line = c.Line.Num
	a.hasDraft = true

	a.log.Debug().
		Str("event", "amount").
		Int("line", c.Line.Num).
		Int("column", c.AmountCol).
		Str("raw", c.Amount).
		Str("value", v.StringFixed(2)).
		Bool("credit", c.Credit).
		Msg("amount read")
	return nil
}

func (a *Assembler) endPage(c Classification, reason string) {
	a.flush()
	a.active = false
	a.log.Debug().Str("event", "table_end").Int("line", c.Line.Num).
		Str("reason", reason).Bool("final", false).Msg("page table ended")
}

func (a *Assembler) flush() {
	if a.draft.Filled() {
		a.commit(0)
	}
}

func (a *Assembler) commit(lineNum int) {
	a.transition(StateCommitting, lineNum)

	t := a.draft
	if t.Description == "" {
		t.Description = strings.Join(a.desc, " ")
	}
	t.OperationDate = extractOperationDate(t.Description)
	a.txns = append(a.txns, t)

	ev := a.log.Debug().
		Str("event", "commit").
		Int("line", t.Line).
		Str("date", t.Date.Format("2006-01-02")).
		Str("description", t.Description)
	if t.Debit.Valid {
		ev = ev.Str("debit", t.Debit.Decimal.StringFixed(2))
	}
	if t.Credit.Valid {
		ev = ev.Str("credit", t.Credit.Decimal.StringFixed(2))
	}
	ev.Msg("transaction committed")

	a.reset()
	a.transition(StateSeekingDate, lineNum)
}

func (a *Assembler) discard(lineNum int) {
	a.log.Debug().Str("event", "discard").Int("line", lineNum).
		Str("description", strings.Join(a.desc, " ")).Msg("incomplete transaction discarded")
	a.reset()
	a.transition(StateSeekingDate, lineNum)
}

func (a *Assembler) reset() {
	a.draft = models.Transaction{}
	a.hasDraft = false
	a.desc = nil
}

func (a *Assembler) skip(c Classification, reason string) {
	a.log.Debug().Str("event", "skip").Int("line", c.Line.Num).Str("reason", reason).Msg("line skipped")
}

func (a *Assembler) transition(to State, lineNum int) {
	if a.state == to {
		return
	}
	a.log.Debug().Str("event", "transition").Int("line", lineNum).
		Str("from", a.state.String()).Str("to", to.String()).Msg("state change")
	a.state = to
}
