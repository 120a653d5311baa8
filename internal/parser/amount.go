package parser

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Locale holds the separators used to print amounts.
type Locale struct {
	Decimal   rune
	Thousands rune
}

// French is the convention of the statements this package reads: 1.234,56.
var French = Locale{Decimal: ',', Thousands: '.'}

func (l Locale) validate() error {
	if l.Decimal == 0 || l.Thousands == 0 {
		return errors.New("locale separators must be set")
	}
	if l.Decimal == l.Thousands {
		return errors.New("decimal and thousands separators must differ")
	}
	if unicode.IsDigit(l.Decimal) || unicode.IsDigit(l.Thousands) {
		return errors.New("separators cannot be digits")
	}
	return nil
}

// Parse reads token under the locale, see ParseAmount.
func (l Locale) Parse(token string) (decimal.Decimal, error) {
	return ParseAmount(token, l.Decimal, l.Thousands)
}

// moneyPattern is the monetary-token grammar: a digit group, separators or
// stray spaces, then a separator and two digits.
func (l Locale) moneyPattern() *regexp.Regexp {
	seps := regexp.QuoteMeta(string(l.Decimal) + string(l.Thousands))
	return regexp.MustCompile(`^\d[\d\s` + seps + `]*[` + seps + `]\d{2}$`)
}

// ParseAmount converts a printed amount like "1.234,56" to a decimal.
// Whitespace between digit groups is ignored. When the token does not read
// under the given separators it is retried with their roles swapped, which
// accepts "1,234.56" or "500.00" in a comma locale. A token that reads under
// neither convention is an *AmountParseError, never zero.
func ParseAmount(token string, decimalPoint, thousandsSep rune) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, token)

	if cleaned != "" {
		if d, ok := parseWith(cleaned, decimalPoint, thousandsSep); ok {
			return d, nil
		}
		if d, ok := parseWith(cleaned, thousandsSep, decimalPoint); ok {
			return d, nil
		}
	}
	return decimal.Zero, &AmountParseError{Token: token}
}

func parseWith(s string, decimalPoint, thousandsSep rune) (decimal.Decimal, bool) {
	sign := ""
	if s[0] == '-' || s[0] == '+' {
		sign, s = s[:1], s[1:]
	}

	intPart, frac := s, ""
	if i := strings.LastIndex(s, string(decimalPoint)); i >= 0 {
		intPart, frac = s[:i], s[i+len(string(decimalPoint)):]
		if !allDigits(frac) {
			return decimal.Zero, false
		}
	}

	groups := strings.Split(intPart, string(thousandsSep))
	for i, g := range groups {
		if !allDigits(g) {
			return decimal.Zero, false
		}
		if len(groups) > 1 && ((i == 0 && len(g) > 3) || (i > 0 && len(g) != 3)) {
			return decimal.Zero, false
		}
	}

	digits := strings.Join(groups, "")
	if frac != "" {
		digits += "." + frac
	}
	d, err := decimal.NewFromString(sign + digits)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
