// Package ingest reads downloaded export files (CSV, XLS, XLSX) into
// tables.
package ingest

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"readtx/lib/tabular"
)

const maxXlsRows = 1 << 16

// ReadCSV parses a delimited file. Vendors are sloppy about quoting and
// trailing fields, so parsing is deliberately lenient.
func ReadCSV(path string, comma rune) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ingest: parse %s: %w", path, err)
	}
	return tabular.FromRecords(records), nil
}

// ReadXLSX reads the first sheet of a modern Excel file.
func ReadXLSX(path string) (*tabular.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	// Close reports recoverable style problems common in bank-generated
	// workbooks; the cell values are already read at that point.
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	return tabular.FromRecords(rows), nil
}

// ReadXLS reads the first sheet of a legacy Excel file.
func ReadXLS(path string) (*tabular.Table, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	records := wb.ReadAllCells(maxXlsRows)
	return tabular.FromRecords(records), nil
}

// ReadFile dispatches on the file extension. Unsupported extensions
// report supported=false rather than an error; download directories can
// contain stray artifacts that should simply be skipped.
func ReadFile(path string, comma rune) (t *tabular.Table, supported bool, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		t, err = ReadCSV(path, comma)
	case ".xlsx":
		t, err = ReadXLSX(path)
	case ".xls":
		t, err = ReadXLS(path)
	default:
		slog.Debug("skipping file with unsupported extension", "file", filepath.Base(path))
		return nil, false, nil
	}
	return t, true, err
}
