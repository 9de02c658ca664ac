package tabular

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"readtx/lib/textutil"
)

// Rename renames columns in place of a copy. Old names that are not
// present are logged as a warning and skipped, since vendors add and
// remove export columns without notice.
func (t *Table) Rename(mapping map[string]string) *Table {
	out := t.Clone()
	olds := make([]string, 0, len(mapping))
	for old := range mapping {
		olds = append(olds, old)
	}
	sort.Strings(olds)
	for _, old := range olds {
		i := out.index(old)
		if i < 0 {
			slog.Warn("rename: column not present", "column", old)
			continue
		}
		out.cols[i].Name = mapping[old]
	}
	return out
}

type SelectOptions struct {
	// Synthesize all-missing columns for requested names the table does
	// not have, instead of failing.
	Synthesize bool
	// Fold matches column names case-insensitively.
	Fold bool
}

// Select projects the table onto the given columns, in the given order.
func (t *Table) Select(names []string, opts SelectOptions) (*Table, error) {
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		i := t.index(name)
		if i < 0 && opts.Fold {
			for j, c := range t.cols {
				if strings.EqualFold(c.Name, name) {
					i = j
					break
				}
			}
		}
		if i < 0 {
			if !opts.Synthesize {
				return nil, fmt.Errorf("tabular: select: no column %q", name)
			}
			vals := make([]Value, t.NumRows())
			for j := range vals {
				vals[j] = Missing(KindString)
			}
			cols = append(cols, Column{Name: name, Values: vals})
			continue
		}
		vals := make([]Value, len(t.cols[i].Values))
		copy(vals, t.cols[i].Values)
		cols = append(cols, Column{Name: name, Values: vals})
	}
	return New(cols...)
}

type MatchOptions struct {
	// Regex treats needles as regular expressions instead of literal
	// substrings.
	Regex bool
	// WholeWord anchors each needle at word boundaries.
	WholeWord bool
	// DropMissing drops rows whose target cell is missing. By default
	// missing cells are retained; a row without a counterparty is still
	// a transaction.
	DropMissing bool
}

func compileNeedles(needles []string, opts MatchOptions) (*regexp.Regexp, error) {
	if len(needles) == 0 {
		return nil, fmt.Errorf("tabular: no needles given")
	}
	parts := make([]string, len(needles))
	for i, n := range needles {
		p := n
		if !opts.Regex {
			p = regexp.QuoteMeta(n)
		}
		if opts.WholeWord {
			p = `\b(?:` + p + `)\b`
		}
		parts[i] = `(?:` + p + `)`
	}
	return regexp.Compile(`(?i)` + strings.Join(parts, "|"))
}

func (t *Table) matchRows(column string, needles []string, opts MatchOptions) (match []bool, missing []bool, err error) {
	col, ok := t.Column(column)
	if !ok {
		return nil, nil, fmt.Errorf("tabular: match: no column %q", column)
	}
	re, err := compileNeedles(needles, opts)
	if err != nil {
		return nil, nil, err
	}
	match = make([]bool, len(col.Values))
	missing = make([]bool, len(col.Values))
	for i, v := range col.Values {
		if v.IsMissing() {
			missing[i] = true
			continue
		}
		match[i] = re.MatchString(v.Text())
	}
	return match, missing, nil
}

// KeepMatching keeps rows whose cell in the named column matches any of
// the needles. Rows with a missing cell are kept unless DropMissing.
func (t *Table) KeepMatching(column string, needles []string, opts MatchOptions) (*Table, error) {
	match, missing, err := t.matchRows(column, needles, opts)
	if err != nil {
		return nil, err
	}
	return t.Filter(func(i int, _ []Value) bool {
		if missing[i] {
			return !opts.DropMissing
		}
		return match[i]
	}), nil
}

// DropMatching drops rows whose cell in the named column matches any of
// the needles. Rows with a missing cell are kept unless DropMissing.
func (t *Table) DropMatching(column string, needles []string, opts MatchOptions) (*Table, error) {
	match, missing, err := t.matchRows(column, needles, opts)
	if err != nil {
		return nil, err
	}
	return t.Filter(func(i int, _ []Value) bool {
		if missing[i] {
			return !opts.DropMissing
		}
		return !match[i]
	}), nil
}

// Filter keeps rows for which keep returns true.
func (t *Table) Filter(keep func(i int, row []Value) bool) *Table {
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = Column{Name: c.Name}
	}
	for i := 0; i < t.NumRows(); i++ {
		row := t.Row(i)
		if !keep(i, row) {
			continue
		}
		for j := range cols {
			cols[j].Values = append(cols[j].Values, row[j])
		}
	}
	return &Table{cols: cols}
}

// Concat appends other's rows to t. The result carries t's columns in
// t's order, followed by columns only other has; cells a side does not
// have are missing.
func (t *Table) Concat(other *Table) *Table {
	names := t.ColumnNames()
	for _, n := range other.ColumnNames() {
		if t.index(n) < 0 {
			names = append(names, n)
		}
	}
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n}
	}
	appendSide := func(src *Table) {
		for i := 0; i < src.NumRows(); i++ {
			for j, n := range names {
				c, ok := src.Column(n)
				if !ok {
					cols[j].Values = append(cols[j].Values, Missing(KindString))
					continue
				}
				cols[j].Values = append(cols[j].Values, c.Values[i])
			}
		}
	}
	appendSide(t)
	appendSide(other)
	return &Table{cols: cols}
}

func mergeKey(row []Value, idx []int) string {
	parts := make([]string, len(idx))
	for i, j := range idx {
		parts[i] = textutil.NormalizeName(row[j].Text())
	}
	return strings.Join(parts, "\x1f")
}

// OuterMerge joins t with other on their shared columns, keeping all
// rows of both sides. Left rows without a partner get missing cells for
// other's extra columns; unmatched right rows are appended afterwards.
func (t *Table) OuterMerge(other *Table) (*Table, error) {
	var shared []string
	for _, n := range t.ColumnNames() {
		if other.index(n) >= 0 {
			shared = append(shared, n)
		}
	}
	if len(shared) == 0 {
		return nil, fmt.Errorf("tabular: outer merge: no shared columns")
	}

	names := t.ColumnNames()
	for _, n := range other.ColumnNames() {
		if t.index(n) < 0 {
			names = append(names, n)
		}
	}

	leftKeyIdx := make([]int, len(shared))
	rightKeyIdx := make([]int, len(shared))
	for i, n := range shared {
		leftKeyIdx[i] = t.index(n)
		rightKeyIdx[i] = other.index(n)
	}

	rightRows := map[string][]int{}
	for i := 0; i < other.NumRows(); i++ {
		k := mergeKey(other.Row(i), rightKeyIdx)
		rightRows[k] = append(rightRows[k], i)
	}
	rightUsed := make([]bool, other.NumRows())

	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n}
	}
	emit := func(left, right []Value) {
		for j, n := range names {
			if i := t.index(n); i >= 0 && left != nil {
				cols[j].Values = append(cols[j].Values, left[i])
				continue
			}
			if i := other.index(n); i >= 0 && right != nil {
				cols[j].Values = append(cols[j].Values, right[i])
				continue
			}
			cols[j].Values = append(cols[j].Values, Missing(KindString))
		}
	}

	for i := 0; i < t.NumRows(); i++ {
		left := t.Row(i)
		partners := rightRows[mergeKey(left, leftKeyIdx)]
		matched := false
		for _, ri := range partners {
			if rightUsed[ri] {
				continue
			}
			rightUsed[ri] = true
			emit(left, other.Row(ri))
			matched = true
			break
		}
		if !matched {
			emit(left, nil)
		}
	}
	for i := 0; i < other.NumRows(); i++ {
		if rightUsed[i] {
			continue
		}
		emit(nil, other.Row(i))
	}
	return &Table{cols: cols}, nil
}

// PromoteHeader scans the first column for a cell equal to key (case
// insensitive) and promotes that row to be the header, discarding the
// rows above it. Spreadsheet exports often carry preamble rows (account
// metadata, date ranges) above the real header. A table whose first
// column is already named key, and a table without a matching cell, are
// returned unchanged.
func (t *Table) PromoteHeader(key string) *Table {
	if t.NumCols() == 0 {
		return t
	}
	if strings.EqualFold(strings.TrimSpace(t.cols[0].Name), key) {
		return t
	}
	found := -1
	for i, v := range t.cols[0].Values {
		if strings.EqualFold(strings.TrimSpace(v.Text()), key) {
			found = i
			break
		}
	}
	if found < 0 {
		slog.Debug("promote header: key not found", "key", key)
		return t
	}
	cols := make([]Column, len(t.cols))
	for j, c := range t.cols {
		name := textutil.CollapseWhitespace(c.Values[found].Text())
		vals := make([]Value, len(c.Values)-found-1)
		copy(vals, c.Values[found+1:])
		cols[j] = Column{Name: name, Values: vals}
	}
	return &Table{cols: cols}
}
