package parser

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/releve-converter/internal/logger"
	"github.com/insightdelivered/releve-converter/internal/models"
	"github.com/insightdelivered/releve-converter/internal/statementtest"
)

func newParser(t *testing.T, mutate ...func(*Options)) *Parser {
	t.Helper()
	opts := DefaultOptions()
	opts.FooterPatterns = []*regexp.Regexp{regexp.MustCompile(`(?i)au capital de`)}
	for _, m := range mutate {
		m(&opts)
	}
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

func scenarioDocument(closing string) *statementtest.Document {
	return statementtest.NewDocument(statementtest.Portrait, "EUR").
		Header().
		Balance("CREDITEUR", "01.03.2019", "1.000,00").
		Row("05.03", "VIREMENT SALAIRE", "05.03", "", "500,00").
		Blank(1).
		Subtotal("0,00", "500,00").
		Blank(1).
		Balance("CREDITEUR", "31.03.2019", closing)
}

func TestParse_Scenario(t *testing.T) {
	stmt, err := newParser(t).Parse(context.Background(), scenarioDocument("1.500,00").Lines())
	require.NoError(t, err)

	assert.Equal(t, "EUR", stmt.Currency())
	txns := stmt.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, "VIREMENT SALAIRE", txns[0].Description)
	assert.True(t, txns[0].Credit.Decimal.Equal(dec("500")))
	assert.False(t, txns[0].Debit.Valid)
	assert.True(t, stmt.Printed().Debit.IsZero())
	assert.True(t, stmt.Printed().Credit.Equal(dec("500")))

	rows := stmt.Rows()
	require.Len(t, rows, 5)
	assert.Equal(t, models.ControlSumLabel, rows[2].Description)
	assert.Equal(t, models.TotalLabel, rows[3].Description)
	assert.True(t, rows[4].Credit.Decimal.Equal(dec("1500")))
}

func TestParse_Mismatch(t *testing.T) {
	stmt, err := newParser(t).Parse(context.Background(), scenarioDocument("1.600,00").Lines())
	assert.Nil(t, stmt)
	assert.ErrorIs(t, err, ErrReconciliationMismatch)
	assert.ErrorIs(t, err, ErrBalanceMismatch)
}

func TestParse_DiagnosticTolerates(t *testing.T) {
	p := newParser(t, func(o *Options) { o.Diagnostic = true })

	stmt, err := p.Parse(context.Background(), scenarioDocument("1.600,00").Lines())
	require.NoError(t, err)
	assert.True(t, stmt.Closing().Amount.Equal(dec("1600")))
}

func TestParse_MultiPage(t *testing.T) {
	doc := statementtest.NewDocument(statementtest.Portrait, "EUR").
		Header().
		Balance("CREDITEUR", "01.03.2019", "1.000,00").
		Row("05.03", "VIREMENT SALAIRE", "05.03", "", "500,00").
		Row("07.03", "PRLV SEPA EDF", "07.03", "", "").
		Add("   BNP PARIBAS SA au capital de 2 499 597 122 euros").
		Row("", "", "", "3104812", "").
		Page(statementtest.Shifted).
		Row("", "REF 1234", "", "45,00", "").
		Row("10.03", "CB CARREFOUR 09/03/19", "10.03", "1.234,56", "").
		Row("", "CB AUCHAN", "", "20,00", "").
		Subtotal("1.299,56", "500,00").
		Blank(2).
		Balance("CREDITEUR", "31.03.2019", "200,44")

	stmt, err := newParser(t).Parse(context.Background(), doc.Lines())
	require.NoError(t, err)

	txns := stmt.Transactions()
	require.Len(t, txns, 4)
	assert.Equal(t, "VIREMENT SALAIRE", txns[0].Description)
	assert.Equal(t, "PRLV SEPA EDF REF 1234", txns[1].Description)
	assert.True(t, txns[1].Debit.Decimal.Equal(dec("45")))
	assert.Equal(t, "CB CARREFOUR 09/03/19", txns[2].Description)
	require.NotNil(t, txns[2].OperationDate)
	assert.Equal(t, time.Date(2019, time.March, 9, 0, 0, 0, 0, time.UTC), *txns[2].OperationDate)
	assert.Equal(t, "CB AUCHAN", txns[3].Description)
	assert.Equal(t, 10, txns[3].Date.Day())
	assert.True(t, stmt.Control().Debit.Equal(dec("1299.56")))
}

func TestParse_DebtorOpening(t *testing.T) {
	doc := statementtest.NewDocument(statementtest.Portrait, "EUR").
		Header().
		Balance("DEBITEUR", "01.03.2019", "200,00").
		Row("05.03", "VIREMENT SALAIRE", "05.03", "", "500,00").
		Subtotal("0,00", "500,00").
		Balance("CREDITEUR", "31.03.2019", "300,00")

	stmt, err := newParser(t).Parse(context.Background(), doc.Lines())
	require.NoError(t, err)
	assert.True(t, stmt.Opening().Amount.Equal(dec("-200")))
	assert.True(t, stmt.Opening().Debtor())
	assert.True(t, stmt.Rows()[0].Debit.Decimal.Equal(dec("200")))
}

func TestParse_MissingSections(t *testing.T) {
	p := statementtest.Portrait

	tests := []struct {
		name    string
		doc     *statementtest.Document
		section string
	}{
		{
			"opening balance",
			statementtest.NewDocument(p, "EUR").Header().
				Row("05.03", "VIREMENT", "05.03", "", "500,00").
				Subtotal("0,00", "500,00").
				Balance("CREDITEUR", "31.03.2019", "500,00"),
			"opening balance",
		},
		{
			"printed subtotal",
			statementtest.NewDocument(p, "EUR").Header().
				Balance("CREDITEUR", "01.03.2019", "0,00").
				Row("05.03", "VIREMENT", "05.03", "", "500,00"),
			"printed subtotal",
		},
		{
			"closing balance",
			statementtest.NewDocument(p, "EUR").Header().
				Balance("CREDITEUR", "01.03.2019", "0,00").
				Row("05.03", "VIREMENT", "05.03", "", "500,00").
				Subtotal("0,00", "500,00"),
			"closing balance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newParser(t).Parse(context.Background(), tt.doc.Lines())
			require.ErrorIs(t, err, ErrMissingSection)

			var mse *MissingSectionError
			require.ErrorAs(t, err, &mse)
			assert.Equal(t, tt.section, mse.Section)
			assert.Equal(t, "missing_section", Kind(err))
		})
	}
}

func TestParse_NoHeader(t *testing.T) {
	doc := statementtest.NewDocument(statementtest.Portrait, "EUR").
		Balance("CREDITEUR", "01.03.2019", "1.000,00").
		Row("05.03", "VIREMENT SALAIRE", "05.03", "", "500,00").
		Subtotal("0,00", "500,00").
		Balance("CREDITEUR", "31.03.2019", "1.500,00")

	_, err := newParser(t).Parse(context.Background(), doc.Lines())

	var lde *LayoutDetectionError
	require.ErrorAs(t, err, &lde)
	assert.Zero(t, lde.LineNum)
	assert.Equal(t, "layout_detection", Kind(err))
}

func TestParse_BrokenHeader(t *testing.T) {
	doc := statementtest.NewDocument(statementtest.Portrait, "EUR").
		Header().
		Balance("CREDITEUR", "01.03.2019", "1.000,00").
		Row("05.03", "VIREMENT SALAIRE", "05.03", "", "500,00").
		Add("Date   Nature des opérations   Valeur").
		Subtotal("0,00", "500,00").
		Balance("CREDITEUR", "31.03.2019", "1.500,00")

	_, err := newParser(t).Parse(context.Background(), doc.Lines())

	var lde *LayoutDetectionError
	require.ErrorAs(t, err, &lde)
	assert.Equal(t, 8, lde.LineNum)
	assert.Equal(t, []string{"debit", "credit"}, lde.Missing)
}

func TestParse_DefaultCurrency(t *testing.T) {
	lines := scenarioDocument("1.500,00").Lines()
	for i, l := range lines {
		if strings.Contains(l, "Monnaie") {
			lines[i] = ""
		}
	}

	stmt, err := newParser(t, func(o *Options) { o.DefaultCurrency = "XPF" }).Parse(context.Background(), lines)
	require.NoError(t, err)
	assert.Equal(t, "XPF", stmt.Currency())
}

func TestParse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newParser(t).Parse(ctx, scenarioDocument("1.500,00").Lines())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_LogsThroughContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), zerolog.New(buf).Level(zerolog.DebugLevel))

	_, err := newParser(t).ParseText(ctx, scenarioDocument("1.500,00").Text())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"component":"parser"`)
	assert.Contains(t, out, `"event":"invariant_check"`)
	assert.Contains(t, out, `"message":"statement parsed"`)
}

func TestParse_SharedParser(t *testing.T) {
	p := newParser(t)
	lines := scenarioDocument("1.500,00").Lines()

	done := make(chan error, 8)
	for range 8 {
		go func() {
			_, err := p.Parse(context.Background(), lines)
			done <- err
		}()
	}
	for range 8 {
		assert.NoError(t, <-done)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"threshold", func(o *Options) { o.BlankRunThreshold = 0 }},
		{"tolerance", func(o *Options) { o.Tolerance = decimal.NewFromInt(-1) }},
		{"locale", func(o *Options) { o.Locale = Locale{Decimal: ',', Thousands: ','} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := New(opts)
			assert.Error(t, err)
		})
	}
}

// frenchAmount formats cents as 1.234,56.
func frenchAmount(cents int64) string {
	s := strconv.FormatInt(cents/100, 10)
	var groups []string
	for len(s) > 3 {
		groups = append([]string{s[len(s)-3:]}, groups...)
		s = s[:len(s)-3]
	}
	groups = append([]string{s}, groups...)
	return strings.Join(groups, ".") + fmt.Sprintf(",%02d", cents%100)
}

func TestParse_Conservation(t *testing.T) {
	rng := rand.New(rand.NewPCG(2019, 3))

	for run := range 20 {
		t.Run(strconv.Itoa(run), func(t *testing.T) {
			opening := rng.Int64N(500000)
			doc := statementtest.NewDocument(statementtest.Portrait, "EUR").
				Header().
				Balance("CREDITEUR", "01.03.2019", frenchAmount(opening))

			var debits, credits int64
			n := 1 + rng.IntN(25)
			for i := range n {
				day := fmt.Sprintf("%02d.03", 2+i)
				amount := 1 + rng.Int64N(2000000)
				if rng.IntN(2) == 0 {
					debits += amount
					doc.Row(day, fmt.Sprintf("OPERATION %d", i), day, frenchAmount(amount), "")
				} else {
					credits += amount
					doc.Row(day, fmt.Sprintf("OPERATION %d", i), day, "", frenchAmount(amount))
				}
				if rng.IntN(3) == 0 {
					doc.Continuation("REF " + strconv.Itoa(rng.IntN(99999)))
				}
			}

			closing := opening - debits + credits
			direction := "CREDITEUR"
			if closing < 0 {
				direction = "DEBITEUR"
			}
			doc.Subtotal(frenchAmount(debits), frenchAmount(credits)).
				Balance(direction, "31.03.2019", frenchAmount(abs(closing)))

			stmt, err := newParser(t).Parse(context.Background(), doc.Lines())
			require.NoError(t, err)
			require.Len(t, stmt.Transactions(), n)

			var sums models.Totals
			for _, txn := range stmt.Transactions() {
				sums = sums.Add(txn)
			}
			got := stmt.Opening().Amount.Sub(sums.Debit).Add(sums.Credit)
			assert.True(t, got.Equal(stmt.Closing().Amount), "%s != %s", got, stmt.Closing().Amount)
			assert.True(t, stmt.Closing().Amount.Equal(decimal.New(closing, -2)))
		})
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
