package crawler

import (
	"sort"

	"readtx/lib/tabular"
)

// Data is what a download produced: either one table, or one table per
// downloaded file. A tagged variant instead of an any-typed slot so the
// two shapes cannot be confused downstream.
type Data struct {
	single *tabular.Table
	byFile map[string]*tabular.Table
}

func SingleTable(t *tabular.Table) Data {
	return Data{single: t}
}

func TablesByFile(m map[string]*tabular.Table) Data {
	return Data{byFile: m}
}

func (d Data) IsZero() bool {
	return d.single == nil && len(d.byFile) == 0
}

func (d Data) Single() (*tabular.Table, bool) {
	return d.single, d.single != nil
}

func (d Data) ByFile() (map[string]*tabular.Table, bool) {
	return d.byFile, len(d.byFile) > 0
}

// Merged flattens the data into one table, concatenating per-file
// tables in sorted filename order.
func (d Data) Merged() (*tabular.Table, bool) {
	if d.single != nil {
		return d.single, true
	}
	if len(d.byFile) == 0 {
		return nil, false
	}
	files := make([]string, 0, len(d.byFile))
	for file := range d.byFile {
		files = append(files, file)
	}
	sort.Strings(files)
	out := d.byFile[files[0]]
	for _, file := range files[1:] {
		out = out.Concat(d.byFile[file])
	}
	return out, true
}

// Rows reports the total row count across all tables.
func (d Data) Rows() int {
	if d.single != nil {
		return d.single.NumRows()
	}
	n := 0
	for _, t := range d.byFile {
		n += t.NumRows()
	}
	return n
}
