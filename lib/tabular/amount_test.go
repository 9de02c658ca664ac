package tabular

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in     string
		expect string
		ok     bool
	}{
		{"1.234,56 €", "1234.56", true},
		{"-1,234.56", "-1234.56", true},
		{"42,5", "42.5", true},
		{"108,00 €", "108", true},
		{"+12.30", "12.3", true},
		{"1.234", "1.234", true},
		{"EUR 7", "7", true},
		{"", "", false},
		{"-", "", false},
		{"N/A", "", false},
		{"1.2.3", "", false},
	}
	for _, test := range cases {
		d, ok := ParseAmount(test.in)
		require.Equal(t, test.ok, ok, "input %q", test.in)
		if !ok {
			continue
		}
		expect, err := decimal.NewFromString(test.expect)
		require.NoError(t, err)
		require.True(t, expect.Equal(d), "input %q: got %s want %s", test.in, d, expect)
	}
}

func TestNormalizeAmountsDropsInvalid(t *testing.T) {
	table := FromRecords([][]string{
		{"Betrag", "Empfänger"},
		{"1.234,56 €", "a"},
		{"kaputt", "b"},
		{"-50,00", "c"},
	})

	out, err := table.NormalizeAmounts("Betrag", true)
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())

	col, ok := out.Column("Betrag")
	require.True(t, ok)
	require.Equal(t, KindDecimal, col.Values[0].Kind())
	require.Equal(t, "1234.56", col.Values[0].Decimal().String())
	require.Equal(t, "-50", col.Values[1].Decimal().String())
}

func TestNormalizeAmountsCoercesInvalidToZero(t *testing.T) {
	table := FromRecords([][]string{
		{"Betrag"},
		{"kaputt"},
		{"7,50"},
	})

	out, err := table.NormalizeAmounts("Betrag", false)
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())

	col, _ := out.Column("Betrag")
	require.True(t, col.Values[0].Decimal().IsZero())
	require.Equal(t, "7.5", col.Values[1].Decimal().String())
}

func TestNormalizeAmountsMissingColumn(t *testing.T) {
	table := FromRecords([][]string{{"Datum"}, {"1.1.2024"}})
	_, err := table.NormalizeAmounts("Betrag", true)
	require.Error(t, err)
}
