package tabular

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRenameSkipsMissingColumns(t *testing.T) {
	table := FromRecords([][]string{
		{"Brutto", "Name"},
		{"1", "a"},
	})
	out := table.Rename(map[string]string{
		"Brutto":   "Betrag",
		"Nicht da": "Egal",
		"Name":     "Empfänger",
	})
	require.Equal(t, []string{"Betrag", "Empfänger"}, out.ColumnNames())
}

func TestSelectSynthesizesMissing(t *testing.T) {
	table := FromRecords([][]string{
		{"Datum", "Betrag"},
		{"1.1.2024", "5"},
	})

	_, err := table.Select([]string{"Datum", "Empfänger"}, SelectOptions{})
	require.Error(t, err)

	out, err := table.Select([]string{"Datum", "Empfänger"}, SelectOptions{Synthesize: true})
	require.NoError(t, err)
	require.Equal(t, []string{"Datum", "Empfänger"}, out.ColumnNames())
	col, _ := out.Column("Empfänger")
	require.True(t, col.Values[0].IsMissing())
}

func TestSelectFoldsCase(t *testing.T) {
	table := FromRecords([][]string{
		{"DATUM"},
		{"1.1.2024"},
	})
	out, err := table.Select([]string{"Datum"}, SelectOptions{Fold: true})
	require.NoError(t, err)
	require.Equal(t, []string{"Datum"}, out.ColumnNames())
}

func TestKeepAndDropMatching(t *testing.T) {
	table := FromRecords([][]string{
		{"Verwendungszweck"},
		{"REWE Markt Dresden"},
		{"Miete Januar"},
		{"rewe sagt danke"},
	})

	kept, err := table.KeepMatching("Verwendungszweck", []string{"rewe"}, MatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, kept.NumRows())

	dropped, err := table.DropMatching("Verwendungszweck", []string{"rewe"}, MatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, dropped.NumRows())
}

func TestMatchingEscapesLiterals(t *testing.T) {
	table := FromRecords([][]string{
		{"Typ"},
		{"Betrag [EUR]"},
		{"Betrag X"},
	})
	kept, err := table.KeepMatching("Typ", []string{"[EUR]"}, MatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, kept.NumRows())
}

func TestMatchingWholeWord(t *testing.T) {
	table := FromRecords([][]string{
		{"Empfänger"},
		{"real"},
		{"realistisch"},
	})
	kept, err := table.KeepMatching("Empfänger", []string{"real"}, MatchOptions{WholeWord: true})
	require.NoError(t, err)
	require.Equal(t, 1, kept.NumRows())
}

func TestMatchingMissingRows(t *testing.T) {
	table, err := New(Column{
		Name:   "Hinweis",
		Values: []Value{String("Memo"), Missing(KindString)},
	})
	require.NoError(t, err)

	kept, err := table.DropMatching("Hinweis", []string{"Memo"}, MatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, kept.NumRows())

	kept, err = table.DropMatching("Hinweis", []string{"Memo"}, MatchOptions{DropMissing: true})
	require.NoError(t, err)
	require.Equal(t, 0, kept.NumRows())
}

func TestConcatAlignsColumns(t *testing.T) {
	left := FromRecords([][]string{
		{"Datum", "Betrag"},
		{"1.1.2024", "5"},
	})
	right := FromRecords([][]string{
		{"Betrag", "WKN"},
		{"7", "840400"},
	})

	out := left.Concat(right)
	require.Equal(t, []string{"Datum", "Betrag", "WKN"}, out.ColumnNames())
	require.Equal(t, 2, out.NumRows())

	expect := [][]string{
		{"Datum", "Betrag", "WKN"},
		{"1.1.2024", "5", ""},
		{"", "7", "840400"},
	}
	if diff := cmp.Diff(expect, out.Records()); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestOuterMergeKeepsBothSides(t *testing.T) {
	left := FromRecords([][]string{
		{"Datum", "Betrag", "Empfänger"},
		{"01.01.2024", "-5", "a"},
		{"02.01.2024", "-6", "b"},
	})
	right := FromRecords([][]string{
		{"Datum", "Betrag", "Artikel"},
		{"01.01.2024", "-5", "Buch"},
		{"03.01.2024", "-9", "Kabel"},
	})

	out, err := left.OuterMerge(right)
	require.NoError(t, err)
	require.Equal(t, []string{"Datum", "Betrag", "Empfänger", "Artikel"}, out.ColumnNames())
	require.Equal(t, 3, out.NumRows())

	expect := [][]string{
		{"Datum", "Betrag", "Empfänger", "Artikel"},
		{"01.01.2024", "-5", "a", "Buch"},
		{"02.01.2024", "-6", "b", ""},
		{"03.01.2024", "-9", "", "Kabel"},
	}
	if diff := cmp.Diff(expect, out.Records()); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestOuterMergeNoSharedColumns(t *testing.T) {
	left := FromRecords([][]string{{"A"}, {"1"}})
	right := FromRecords([][]string{{"B"}, {"2"}})
	_, err := left.OuterMerge(right)
	require.Error(t, err)
}

func TestOuterMergeMatchesEachRowOnce(t *testing.T) {
	left := FromRecords([][]string{
		{"Betrag"},
		{"-5"},
		{"-5"},
	})
	right := FromRecords([][]string{
		{"Betrag", "Artikel"},
		{"-5", "Buch"},
	})
	out, err := left.OuterMerge(right)
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())

	col, _ := out.Column("Artikel")
	require.Equal(t, "Buch", col.Values[0].Text())
	require.True(t, col.Values[1].IsMissing())
}

func TestPromoteHeader(t *testing.T) {
	table := FromRecords([][]string{
		{"Spalte1", "Spalte2"},
		{"Kontoauszug", ""},
		{"Datum", "Betrag "},
		{"01.01.2024", "-5"},
	})

	out := table.PromoteHeader("Datum")
	require.Equal(t, []string{"Datum", "Betrag"}, out.ColumnNames())
	require.Equal(t, 1, out.NumRows())

	// already headed: unchanged
	again := out.PromoteHeader("Datum")
	require.Equal(t, out.Records(), again.Records())

	// key not present: unchanged
	same := table.PromoteHeader("Buchungstag")
	require.Equal(t, table.Records(), same.Records())
}

func TestSetColumnReplacesAndAppends(t *testing.T) {
	table := FromRecords([][]string{
		{"Betrag"},
		{"5"},
	})

	out, err := table.SetColumn(Column{Name: "Betrag", Values: []Value{String("7")}})
	require.NoError(t, err)
	col, _ := out.Column("Betrag")
	require.Equal(t, "7", col.Values[0].Text())

	out, err = out.SetColumn(Column{Name: "WKN", Values: []Value{String("840400")}})
	require.NoError(t, err)
	require.Equal(t, []string{"Betrag", "WKN"}, out.ColumnNames())

	_, err = out.SetColumn(Column{Name: "WKN", Values: nil})
	require.Error(t, err)
}
