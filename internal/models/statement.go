package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Labels of the synthetic rows that close the table.
const (
	ControlSumLabel = "SOMME DE CONTROLE"
	TotalLabel      = "TOTAL DES MONTANTS"
)

// RowHeader is the column order expected by table and spreadsheet consumers.
var RowHeader = []string{"Date", "Date_Valeur", "Débit", "Crédit", "Opération"}

// Statement is the reconciled content of one bank statement. It is built once
// by the reconciliation step and never modified afterwards.
type Statement struct {
	currency     string
	opening      Balance
	closing      Balance
	transactions []Transaction
	printed      Totals
	control      Totals
}

// NewStatement copies its inputs into an immutable Statement.
func NewStatement(currency string, opening, closing Balance, txns []Transaction, printed, control Totals) *Statement {
	cp := make([]Transaction, len(txns))
	copy(cp, txns)
	return &Statement{
		currency:     currency,
		opening:      opening,
		closing:      closing,
		transactions: cp,
		printed:      printed,
		control:      control,
	}
}

func (s *Statement) Currency() string { return s.currency }
func (s *Statement) Opening() Balance  { return s.opening }
func (s *Statement) Closing() Balance  { return s.closing }

// Printed returns the subtotals read from the document's own total line.
func (s *Statement) Printed() Totals { return s.printed }

// Control returns the totals accumulated while reading the table.
func (s *Statement) Control() Totals { return s.control }

// Transactions returns a copy of the transactions in document order.
func (s *Statement) Transactions() []Transaction {
	cp := make([]Transaction, len(s.transactions))
	copy(cp, s.transactions)
	return cp
}

// Row is one line of the tabular projection of a statement.
type Row struct {
	Date        time.Time
	ValueDate   *time.Time
	Debit       decimal.NullDecimal
	Credit      decimal.NullDecimal
	Description string
	Synthetic   bool
}

// Rows projects the statement the way the document prints it: the opening
// balance, the transactions, the control sum, the printed total and the
// closing balance.
func (s *Statement) Rows() []Row {
	rows := make([]Row, 0, len(s.transactions)+4)
	rows = append(rows, balanceRow(s.opening))
	for _, t := range s.transactions {
		rows = append(rows, Row{
			Date:        t.Date,
			ValueDate:   t.ValueDate,
			Debit:       t.Debit,
			Credit:      t.Credit,
			Description: t.Description,
		})
	}
	rows = append(rows,
		totalsRow(s.closing.Date, s.control, ControlSumLabel),
		totalsRow(s.closing.Date, s.printed, TotalLabel),
		balanceRow(s.closing),
	)
	return rows
}

func totalsRow(date time.Time, t Totals, label string) Row {
	return Row{
		Date:        date,
		Debit:       decimal.NewNullDecimal(t.Debit),
		Credit:      decimal.NewNullDecimal(t.Credit),
		Description: label,
		Synthetic:   true,
	}
}

func balanceRow(b Balance) Row {
	row := Row{Date: b.Date, Description: b.Label, Synthetic: true}
	if b.Debtor() {
		row.Debit = decimal.NewNullDecimal(b.Amount.Neg())
	} else {
		row.Credit = decimal.NewNullDecimal(b.Amount)
	}
	return row
}

type statementJSON struct {
	Currency     string        `json:"currency"`
	Opening      Balance       `json:"openingBalance"`
	Closing      Balance       `json:"closingBalance"`
	Transactions []Transaction `json:"transactions"`
	Printed      Totals        `json:"printedTotals"`
	Control      Totals        `json:"controlTotals"`
}

// MarshalJSON exposes the unexported fields.
func (s *Statement) MarshalJSON() ([]byte, error) {
	txns := s.transactions
	if txns == nil {
		txns = []Transaction{}
	}
	return json.Marshal(statementJSON{
		Currency:     s.currency,
		Opening:      s.opening,
		Closing:      s.closing,
		Transactions: txns,
		Printed:      s.printed,
		Control:      s.control,
	})
}
