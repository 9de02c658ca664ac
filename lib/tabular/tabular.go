// Package tabular implements the small typed row-set the crawlers pass
// around: named, ordered columns of string, decimal or date cells, plus
// the operations vendor exports need on their way to the canonical
// transaction schema (renaming, projection, row matching, concatenation,
// outer merging, header promotion).
package tabular

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Kind int

const (
	KindString Kind = iota
	KindDecimal
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	default:
		return "string"
	}
}

// Value is a single cell. The zero value is a missing string cell.
type Value struct {
	kind    Kind
	present bool
	str     string
	dec     decimal.Decimal
	date    time.Time
}

func String(s string) Value {
	return Value{kind: KindString, present: true, str: s}
}

func Decimal(d decimal.Decimal) Value {
	return Value{kind: KindDecimal, present: true, dec: d}
}

func Date(t time.Time) Value {
	return Value{kind: KindDate, present: true, date: t}
}

// Missing returns the missing marker for the given kind. Missing cells
// keep a kind so synthesized columns still render consistently.
func Missing(kind Kind) Value {
	return Value{kind: kind}
}

func (v Value) Kind() Kind               { return v.kind }
func (v Value) IsMissing() bool          { return !v.present }
func (v Value) Str() string              { return v.str }
func (v Value) Decimal() decimal.Decimal { return v.dec }
func (v Value) Date() time.Time          { return v.date }

// Text renders the cell the way it appears in CSV output: dates as
// dd.mm.yyyy, decimals in plain notation, missing cells as the empty
// string.
func (v Value) Text() string {
	if !v.present {
		return ""
	}
	switch v.kind {
	case KindDecimal:
		return v.dec.String()
	case KindDate:
		return v.date.Format("02.01.2006")
	default:
		return v.str
	}
}

func (v Value) Equal(o Value) bool {
	if v.present != o.present || v.kind != o.kind {
		return false
	}
	if !v.present {
		return true
	}
	switch v.kind {
	case KindDecimal:
		return v.dec.Equal(o.dec)
	case KindDate:
		return v.date.Equal(o.date)
	default:
		return v.str == o.str
	}
}

func errNoColumn(op, column string) error {
	return fmt.Errorf("tabular: %s: no column %q", op, column)
}

type Column struct {
	Name   string
	Values []Value
}

// Table owns an ordered set of equally sized columns.
type Table struct {
	cols []Column
}

func New(cols ...Column) (*Table, error) {
	if len(cols) == 0 {
		return &Table{}, nil
	}
	n := len(cols[0].Values)
	seen := map[string]bool{}
	for _, c := range cols {
		if len(c.Values) != n {
			return nil, fmt.Errorf("tabular: column %q has %d rows, want %d", c.Name, len(c.Values), n)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("tabular: duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	return &Table{cols: cols}, nil
}

// FromRecords builds a string table from raw records, the first record
// being the header. Short records are padded with missing cells, long
// ones truncated to the header width.
func FromRecords(records [][]string) *Table {
	if len(records) == 0 {
		return &Table{}
	}
	header := records[0]
	cols := make([]Column, len(header))
	for i, name := range header {
		cols[i] = Column{Name: name, Values: make([]Value, 0, len(records)-1)}
	}
	for _, rec := range records[1:] {
		for i := range header {
			if i < len(rec) {
				cols[i].Values = append(cols[i].Values, String(rec[i]))
			} else {
				cols[i].Values = append(cols[i].Values, Missing(KindString))
			}
		}
	}
	return &Table{cols: cols}
}

func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0].Values)
}

func (t *Table) NumCols() int {
	return len(t.cols)
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

func (t *Table) index(name string) int {
	for i, c := range t.cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) Column(name string) (Column, bool) {
	i := t.index(name)
	if i < 0 {
		return Column{}, false
	}
	return t.cols[i], true
}

func (t *Table) HasColumn(name string) bool {
	return t.index(name) >= 0
}

// Row returns the cells of row i in column order.
func (t *Table) Row(i int) []Value {
	row := make([]Value, len(t.cols))
	for j, c := range t.cols {
		row[j] = c.Values[i]
	}
	return row
}

func (t *Table) Clone() *Table {
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		vals := make([]Value, len(c.Values))
		copy(vals, c.Values)
		cols[i] = Column{Name: c.Name, Values: vals}
	}
	return &Table{cols: cols}
}

// WithColumn returns a copy of t with c appended.
func (t *Table) WithColumn(c Column) (*Table, error) {
	if t.NumCols() > 0 && len(c.Values) != t.NumRows() {
		return nil, fmt.Errorf("tabular: column %q has %d rows, want %d", c.Name, len(c.Values), t.NumRows())
	}
	if t.index(c.Name) >= 0 {
		return nil, fmt.Errorf("tabular: duplicate column %q", c.Name)
	}
	out := t.Clone()
	out.cols = append(out.cols, c)
	return out, nil
}

// SetColumn replaces an existing column's values, or appends the column
// when no column of that name exists yet.
func (t *Table) SetColumn(c Column) (*Table, error) {
	if t.NumCols() > 0 && len(c.Values) != t.NumRows() {
		return nil, fmt.Errorf("tabular: column %q has %d rows, want %d", c.Name, len(c.Values), t.NumRows())
	}
	out := t.Clone()
	i := out.index(c.Name)
	if i >= 0 {
		out.cols[i] = c
	} else {
		out.cols = append(out.cols, c)
	}
	return out, nil
}

// Records renders the table back into raw records, header first. This is
// the representation tests diff against and previews render from.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, t.NumRows()+1)
	out = append(out, t.ColumnNames())
	for i := 0; i < t.NumRows(); i++ {
		rec := make([]string, len(t.cols))
		for j, c := range t.cols {
			rec[j] = c.Values[i].Text()
		}
		out = append(out, rec)
	}
	return out
}
