package tabular

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	amountJunk = regexp.MustCompile(`[^0-9,.\-]+`)
	// "1.234,56" style: dots are thousands separators
	dotGrouping = regexp.MustCompile(`\.\d{3,},\d{1,2}$`)
	// "1,234.56" style: commas are thousands separators
	commaGrouping = regexp.MustCompile(`,\d{3,}\.\d{1,2}$`)
)

// ParseAmount parses a locale-ambiguous currency string ("1.234,56 €",
// "-1,234.56", "42,5") into a decimal. Currency signs and padding are
// stripped first, then the grouping style is guessed from the tail of
// the string; a bare dot or comma with no grouping evidence is read as
// the decimal point. This is a heuristic: a value like "1.234" with no
// fraction digits is read as one point two three four. Reports false
// for anything that still fails to parse.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = amountJunk.ReplaceAllString(s, "")
	switch {
	case s == "" || s == "-":
		return decimal.Decimal{}, false
	case dotGrouping.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case commaGrouping.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// NormalizeAmounts parses the named column into decimal cells. Cells
// that cannot be parsed become missing; with removeInvalid their rows
// are dropped, otherwise they are coerced to zero.
func (t *Table) NormalizeAmounts(column string, removeInvalid bool) (*Table, error) {
	out := t.Clone()
	i := out.index(column)
	if i < 0 {
		return nil, errNoColumn("normalize amounts", column)
	}

	invalid := make([]bool, out.NumRows())
	nInvalid := 0
	for j, v := range out.cols[i].Values {
		if v.Kind() == KindDecimal {
			continue
		}
		d, ok := ParseAmount(v.Text())
		if !ok {
			invalid[j] = true
			nInvalid++
			if removeInvalid {
				continue
			}
			out.cols[i].Values[j] = Decimal(decimal.Zero)
			continue
		}
		out.cols[i].Values[j] = Decimal(d)
	}
	if nInvalid > 0 {
		slog.Debug("normalized amounts",
			"column", column,
			"invalid", nInvalid,
			"removed", removeInvalid,
		)
	}
	if !removeInvalid {
		return out, nil
	}
	return out.Filter(func(j int, _ []Value) bool {
		return !invalid[j]
	}), nil
}
