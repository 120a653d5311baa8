package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single dated debit or credit movement.
type Transaction struct {
	Date          time.Time           `json:"date"`
	ValueDate     *time.Time          `json:"valueDate,omitempty"`
	OperationDate *time.Time          `json:"operationDate,omitempty"` // purchase date printed in the description
	Description   string              `json:"description"`
	Debit         decimal.NullDecimal `json:"debit"`
	Credit        decimal.NullDecimal `json:"credit"`
	Line          int                 `json:"line"` // 1-based source line of the first amount
}

// Filled reports whether the transaction has a date and exactly one strictly
// positive amount.
func (t Transaction) Filled() bool {
	if t.Date.IsZero() {
		return false
	}
	debit := t.Debit.Valid && t.Debit.Decimal.IsPositive()
	credit := t.Credit.Valid && t.Credit.Decimal.IsPositive()
	return debit != credit
}

// Balance is an opening or closing balance. Amount is signed: debtor balances
// are negative.
type Balance struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Label  string          `json:"label"`
}

// Debtor reports whether the account was overdrawn.
func (b Balance) Debtor() bool {
	return b.Amount.IsNegative()
}

// Totals holds a debit and a credit aggregate.
type Totals struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// Add returns the totals with the transaction's amounts added.
func (t Totals) Add(txn Transaction) Totals {
	if txn.Debit.Valid {
		t.Debit = t.Debit.Add(txn.Debit.Decimal)
	}
	if txn.Credit.Valid {
		t.Credit = t.Credit.Add(txn.Credit.Decimal)
	}
	return t
}
