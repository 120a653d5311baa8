package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinels matched with errors.Is. Every typed error below unwraps to one of
// them.
var (
	ErrLayoutDetection        = errors.New("layout detection failed")
	ErrAmountParse            = errors.New("amount parse failed")
	ErrMalformedDate          = errors.New("malformed date")
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")
	ErrMissingSection         = errors.New("missing statement section")

	ErrDebitMismatch   = errors.New("debit subtotal mismatch")
	ErrCreditMismatch  = errors.New("credit subtotal mismatch")
	ErrBalanceMismatch = errors.New("balance equation mismatch")
)

// LayoutDetectionError reports a header line whose column labels could not be
// located.
type LayoutDetectionError struct {
	LineNum int
	Line    string
	Missing []string
}

func (e *LayoutDetectionError) Error() string {
	if e.LineNum == 0 {
		return fmt.Sprintf("no table header found (labels %s)", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("line %d: header labels not found: %s", e.LineNum, strings.Join(e.Missing, ", "))
}

func (e *LayoutDetectionError) Unwrap() error { return ErrLayoutDetection }

// AmountParseError reports a monetary token that no separator convention
// could read.
type AmountParseError struct {
	Token   string
	LineNum int
	Column  int
	Line    string
}

func (e *AmountParseError) Error() string {
	if e.LineNum == 0 {
		return fmt.Sprintf("cannot parse amount %q", e.Token)
	}
	return fmt.Sprintf("line %d col %d: cannot parse amount %q", e.LineNum, e.Column, e.Token)
}

func (e *AmountParseError) Unwrap() error { return ErrAmountParse }

// MalformedDateError reports a date-shaped token that is not a calendar date.
type MalformedDateError struct {
	Token   string
	LineNum int
	Err     error
}

func (e *MalformedDateError) Error() string {
	msg := fmt.Sprintf("line %d: malformed date %q", e.LineNum, e.Token)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedDateError) Unwrap() error { return ErrMalformedDate }

// Check names one of the three reconciliation invariants.
type Check string

const (
	CheckDebitSubtotal  Check = "debit_subtotal"
	CheckCreditSubtotal Check = "credit_subtotal"
	CheckBalance        Check = "balance"
)

func (c Check) sentinel() error {
	switch c {
	case CheckDebitSubtotal:
		return ErrDebitMismatch
	case CheckCreditSubtotal:
		return ErrCreditMismatch
	default:
		return ErrBalanceMismatch
	}
}

// ReconciliationMismatchError reports an invariant that failed outside the
// tolerance.
type ReconciliationMismatchError struct {
	Check    Check
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

// Difference is Actual minus Expected.
func (e *ReconciliationMismatchError) Difference() decimal.Decimal {
	return e.Actual.Sub(e.Expected)
}

func (e *ReconciliationMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s (difference %s)",
		e.Check, e.Expected.StringFixed(2), e.Actual.StringFixed(2), e.Difference().StringFixed(2))
}

func (e *ReconciliationMismatchError) Unwrap() []error {
	return []error{ErrReconciliationMismatch, e.Check.sentinel()}
}

// MissingSectionError reports a statement part that never appeared.
type MissingSectionError struct {
	Section string
	LineNum int
}

func (e *MissingSectionError) Error() string {
	if e.LineNum > 0 {
		return fmt.Sprintf("line %d: %s not found", e.LineNum, e.Section)
	}
	return e.Section + " not found"
}

func (e *MissingSectionError) Unwrap() error { return ErrMissingSection }

// Kind returns a stable name for the error family of err, or "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLayoutDetection):
		return "layout_detection"
	case errors.Is(err, ErrAmountParse):
		return "amount_parse"
	case errors.Is(err, ErrMalformedDate):
		return "malformed_date"
	case errors.Is(err, ErrReconciliationMismatch):
		return "reconciliation_mismatch"
	case errors.Is(err, ErrMissingSection):
		return "missing_section"
	default:
		return "internal"
	}
}
