package ingest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"readtx/lib/testutil"
)

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteDownload(t, dir, "umsaetze.csv",
		"Datum;Betrag;Empfänger\n01.01.2024;-5,00;\"Bäcker; Dresden\"\n")

	table, err := ReadCSV(path, ';')
	require.NoError(t, err)
	require.Equal(t, []string{"Datum", "Betrag", "Empfänger"}, table.ColumnNames())
	require.Equal(t, 1, table.NumRows())

	col, ok := table.Column("Empfänger")
	require.True(t, ok)
	require.Equal(t, "Bäcker; Dresden", col.Values[0].Text())
}

func TestReadCSVRaggedRows(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteDownload(t, dir, "ragged.csv",
		"Datum,Betrag\n01.01.2024,-5,extra\n02.01.2024\n")

	table, err := ReadCSV(path, ',')
	require.NoError(t, err)
	require.Equal(t, 2, table.NumRows())
}

func TestReadXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Datum", "Betrag"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"01.01.2024", "-5,00"}))
	require.NoError(t, f.SaveAs(path))

	table, err := ReadXLSX(path)
	require.NoError(t, err)
	require.Equal(t, []string{"Datum", "Betrag"}, table.ColumnNames())
	require.Equal(t, 1, table.NumRows())
}

func TestReadFileDispatch(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteDownload(t, dir, "a.csv", "Datum\n01.01.2024\n")

	table, supported, err := ReadFile(csvPath, ';')
	require.NoError(t, err)
	require.True(t, supported)
	require.Equal(t, 1, table.NumRows())

	strayPath := testutil.WriteDownload(t, dir, "notes.txt", "nichts")
	table, supported, err = ReadFile(strayPath, ';')
	require.NoError(t, err)
	require.False(t, supported)
	require.Nil(t, table)
}
