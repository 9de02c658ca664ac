package crawler

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"readtx/lib/tabular"
)

func normalizeBase(t *testing.T) *Base {
	t.Helper()
	return &Base{
		cfg: Config{
			Name:  "testbank",
			Since: localDay(2024, time.January, 1),
			Until: localDay(2024, time.December, 31),
		},
		log: slog.Default(),
	}
}

func TestClassifyColumn(t *testing.T) {
	cases := []struct {
		in        string
		canonical string
		ok        bool
	}{
		{"Datum", ColDate, true},
		{"Buchungstag", ColDate, true},
		{"BRUTTO", ColAmount, true},
		{"Betrag [EUR]", ColAmount, true},
		{" Name ", ColPayee, true},
		{"Typ", ColPurpose, true},
		{"Verwendungszweck 2", ColOverflow, true},
		{"Kategorie", "", false},
	}
	for _, test := range cases {
		canonical, ok := classifyColumn(test.in)
		require.Equal(t, test.ok, ok, "input %q", test.in)
		require.Equal(t, test.canonical, canonical, "input %q", test.in)
	}
}

func TestNormalizeTransactions(t *testing.T) {
	base := normalizeBase(t)
	table := tabular.FromRecords([][]string{
		{"Buchungstag", "Brutto", "Name", "Kategorie"},
		{"15.06.2024", "1.234,56 €", "REWE Markt", "Lebensmittel"},
		{"15.06.2023", "-50,00", "Vermieter", "Miete"},
		{"01.06.2024", "kaputt", "Irgendwer", ""},
	})

	out, err := base.NormalizeTransactions(table, NormalizeOptions{
		DropInvalidAmounts: true,
		ProjectFull:        true,
	})
	require.NoError(t, err)
	require.Equal(t, Schema, out.ColumnNames())
	require.Equal(t, 1, out.NumRows())

	date, _ := out.Column(ColDate)
	require.Equal(t, localDay(2024, time.June, 15), date.Values[0].Date())
	amount, _ := out.Column(ColAmount)
	require.Equal(t, "1234.56", amount.Values[0].Decimal().String())
	payee, _ := out.Column(ColPayee)
	require.Equal(t, "REWE Markt", payee.Values[0].Text())
	purpose, _ := out.Column(ColPurpose)
	require.True(t, purpose.Values[0].IsMissing())
	overflow, _ := out.Column(ColOverflow)
	require.Equal(t, "Kategorie: Lebensmittel", overflow.Values[0].Text())
}

func TestNormalizeTransactionsFoldsAllLeftovers(t *testing.T) {
	base := normalizeBase(t)
	table := tabular.FromRecords([][]string{
		{"Datum", "Betrag", "Kategorie", "Filiale"},
		{"15.06.2024", "-5,00", "Lebensmittel", "Dresden"},
		{"16.06.2024", "-6,00", "", ""},
	})

	out, err := base.NormalizeTransactions(table, NormalizeOptions{})
	require.NoError(t, err)

	overflow, ok := out.Column(ColOverflow)
	require.True(t, ok)
	require.Equal(t, "Kategorie: Lebensmittel; Filiale: Dresden", overflow.Values[0].Text())
	require.True(t, overflow.Values[1].IsMissing(), "all-empty leftovers stay missing")

	// without ProjectFull only the columns the export had show up
	require.Equal(t, []string{ColDate, ColAmount, ColOverflow}, out.ColumnNames())
}

func TestNormalizeTransactionsMergesExistingOverflow(t *testing.T) {
	base := normalizeBase(t)
	table := tabular.FromRecords([][]string{
		{"Datum", "Betrag", "Verwendungszweck 2", "Hinweis"},
		{"15.06.2024", "-5,00", "Stückzahl: 2", "storniert"},
	})

	out, err := base.NormalizeTransactions(table, NormalizeOptions{})
	require.NoError(t, err)

	overflow, _ := out.Column(ColOverflow)
	require.Equal(t, "Stückzahl: 2; Hinweis: storniert", overflow.Values[0].Text())
}

func TestNormalizeTransactionsCoercesAmounts(t *testing.T) {
	base := normalizeBase(t)
	table := tabular.FromRecords([][]string{
		{"Datum", "Betrag"},
		{"15.06.2024", "kaputt"},
	})

	out, err := base.NormalizeTransactions(table, NormalizeOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())

	amount, _ := out.Column(ColAmount)
	require.True(t, amount.Values[0].Decimal().IsZero())
}

func TestNormalizeTransactionsRecords(t *testing.T) {
	base := normalizeBase(t)
	table := tabular.FromRecords([][]string{
		{"Datum", "Betrag", "Beschreibung"},
		{"02.01.2024", "-12,30", "Einkauf"},
		{"03.01.2024", "+7,00", "Erstattung"},
	})

	out, err := base.NormalizeTransactions(table, NormalizeOptions{ProjectFull: true})
	require.NoError(t, err)

	expect := [][]string{
		{"Datum", "Betrag", "Empfänger", "Verwendungszweck", "Verwendungszweck 2"},
		{"02.01.2024", "-12.3", "", "Einkauf", ""},
		{"03.01.2024", "7", "", "Erstattung", ""},
	}
	if diff := cmp.Diff(expect, out.Records()); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}
