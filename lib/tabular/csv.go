package tabular

import (
	"encoding/csv"
	"io"
)

// WriteCSV writes the table with the given delimiter, header first.
// Cells render through Value.Text, so dates come out as dd.mm.yyyy and
// missing cells as empty fields.
func (t *Table) WriteCSV(w io.Writer, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	err := cw.WriteAll(t.Records())
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
