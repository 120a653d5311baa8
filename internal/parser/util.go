package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Date patterns found in BNP statements.
var (
	// DD/MM/YY, the purchase date card payments print inside the description
	datePatternSlash = regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{2})\b`)
	// Monnaie du compte : EUR
	currencyPattern = regexp.MustCompile(`monnaie du compte\s*:\s*([a-z]{3})\b`)
)

const (
	layoutFullDate = "02.01.2006"
	layoutSlash    = "02/01/06"
)

// parseFullDate parses a DD.MM.YYYY token.
func parseFullDate(token string, lineNum int) (time.Time, error) {
	t, err := time.Parse(layoutFullDate, token)
	if err != nil {
		return time.Time{}, &MalformedDateError{Token: token, LineNum: lineNum, Err: err}
	}
	return t, nil
}

// resolveDayMonth turns a DD.MM token into the date nearest to ref, trying
// the year before, the year of and the year after ref. A statement opened in
// December lists January operations; one opened on 01.03 may carry a 28.02
// value date.
func resolveDayMonth(token string, ref time.Time, lineNum int) (time.Time, error) {
	if ref.IsZero() {
		return time.Time{}, &MalformedDateError{Token: token, LineNum: lineNum}
	}
	var (
		best    time.Time
		bestGap time.Duration
		lastErr error
	)
	for year := ref.Year() - 1; year <= ref.Year()+1; year++ {
		t, err := time.Parse(layoutFullDate, fmt.Sprintf("%s.%04d", token, year))
		if err != nil {
			lastErr = err
			continue
		}
		gap := t.Sub(ref).Abs()
		if best.IsZero() || gap < bestGap {
			best, bestGap = t, gap
		}
	}
	if best.IsZero() {
		return time.Time{}, &MalformedDateError{Token: token, LineNum: lineNum, Err: lastErr}
	}
	return best, nil
}

// extractOperationDate returns the first DD/MM/YY date in a description.
func extractOperationDate(desc string) *time.Time {
	for _, m := range datePatternSlash.FindAllString(desc, -1) {
		if t, err := time.Parse(layoutSlash, m); err == nil {
			return &t
		}
	}
	return nil
}

// findCurrency reads the account currency from a folded preamble line.
func findCurrency(folded string) string {
	if m := currencyPattern.FindStringSubmatch(folded); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// collapseSpaces trims s and reduces inner whitespace runs to one space.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
