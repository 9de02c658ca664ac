package crawler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"readtx/lib/testutil"
)

func TestReadTempFilesSingle(t *testing.T) {
	base := watchBase(t)
	testutil.WriteDownload(t, base.DownloadDir(), "umsaetze.csv",
		"Datum;Betrag\n01.01.2024;-5,00\n")

	require.NoError(t, base.ReadTempFiles(context.Background(), ReadOptions{}))

	table, ok := base.Data().Single()
	require.True(t, ok)
	require.Equal(t, 1, table.NumRows())
	require.Equal(t, []string{"Datum", "Betrag"}, table.ColumnNames())
}

func TestReadTempFilesByFile(t *testing.T) {
	base := watchBase(t)
	testutil.WriteDownload(t, base.DownloadDir(), "a.csv", "Datum\n01.01.2024\n")
	testutil.WriteDownload(t, base.DownloadDir(), "b.csv", "Datum\n02.01.2024\n")

	require.NoError(t, base.ReadTempFiles(context.Background(), ReadOptions{}))

	byFile, ok := base.Data().ByFile()
	require.True(t, ok)
	require.Len(t, byFile, 2)
	require.Contains(t, byFile, "a.csv")
	require.Contains(t, byFile, "b.csv")
}

func TestReadTempFilesCustomComma(t *testing.T) {
	base := watchBase(t)
	testutil.WriteDownload(t, base.DownloadDir(), "export.csv",
		"Datum,Betrag\n01.01.2024,-5.00\n")

	require.NoError(t, base.ReadTempFiles(context.Background(), ReadOptions{Comma: ','}))

	table, ok := base.Data().Single()
	require.True(t, ok)
	require.Equal(t, []string{"Datum", "Betrag"}, table.ColumnNames())
}

func TestReadTempFilesSkipsUnsupported(t *testing.T) {
	base := watchBase(t)
	testutil.WriteDownload(t, base.DownloadDir(), "umsaetze.csv", "Datum\n01.01.2024\n")
	testutil.WriteDownload(t, base.DownloadDir(), "hinweise.pdf", "%PDF")

	require.NoError(t, base.ReadTempFiles(context.Background(), ReadOptions{}))

	_, ok := base.Data().Single()
	require.True(t, ok, "the lone supported file still counts as single")
}

func TestReadTempFilesEmptyDir(t *testing.T) {
	base := watchBase(t)

	err := base.ReadTempFiles(context.Background(), ReadOptions{
		MaxRetries: 2,
		RetryWait:  time.Millisecond,
	})
	require.ErrorContains(t, err, "no downloads appeared")
}

func TestReadTempFilesStuckMarker(t *testing.T) {
	base := watchBase(t)
	testutil.WriteDownload(t, base.DownloadDir(), "umsaetze.csv.crdownload", "halb")

	err := base.ReadTempFiles(context.Background(), ReadOptions{
		DownloadTimeout: 50 * time.Millisecond,
		Interval:        10 * time.Millisecond,
	})
	require.ErrorContains(t, err, "still in progress")
}

func TestReadTempFilesWaitsForMarker(t *testing.T) {
	base := watchBase(t)
	testutil.WriteDownload(t, base.DownloadDir(), "umsaetze.csv", "Datum\n01.01.2024\n")
	marker := testutil.WriteDownload(t, base.DownloadDir(), "weitere.csv.crdownload", "halb")

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.Rename(marker, filepath.Join(base.DownloadDir(), "weitere.csv"))
	}()

	require.NoError(t, base.ReadTempFiles(context.Background(), ReadOptions{
		DownloadTimeout: 2 * time.Second,
		Interval:        10 * time.Millisecond,
	}))

	byFile, ok := base.Data().ByFile()
	require.True(t, ok)
	require.Len(t, byFile, 2)
}
