package tabular

import (
	"log/slog"
	"strings"
	"time"

	"readtx/lib/timezone"
)

// DateOrder disambiguates numeric dates like 03.04.2024. German portals
// are day-first, which is the default; Amex exports are month-first.
type DateOrder int

const (
	DayFirst DateOrder = iota
	MonthFirst
)

// non-padded layouts also accept zero-padded input
var dayFirstLayouts = []string{
	"2.1.2006",
	"2/1/2006",
	"2-1-2006",
	"2.1.06",
}

var monthFirstLayouts = []string{
	"1.2.2006",
	"1/2/2006",
	"1-2-2006",
	"1/2/06",
}

var isoLayouts = []string{
	"2006-1-2",
	"2006-1-2 15:04:05",
	time.RFC3339,
}

// ParseDate parses a date string at day precision in the portal
// timezone. ISO formats are accepted regardless of order.
func ParseDate(s string, order DateOrder) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	layouts := dayFirstLayouts
	if order == MonthFirst {
		layouts = monthFirstLayouts
	}
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, s, timezone.Location); err == nil {
			return timezone.Midnight(t), true
		}
	}
	for _, l := range isoLayouts {
		if t, err := time.ParseInLocation(l, s, timezone.Location); err == nil {
			return timezone.Midnight(t), true
		}
	}
	return time.Time{}, false
}

// NormalizeDates parses the named column into date cells and keeps only
// rows with since <= date <= until (either bound may be zero to leave
// that side open). Rows that do not parse are always dropped, a default
// date would silently corrupt the series. Unparseable and out-of-range
// drops are reported as separate counters.
func (t *Table) NormalizeDates(column string, order DateOrder, since, until time.Time) (*Table, error) {
	out := t.Clone()
	i := out.index(column)
	if i < 0 {
		return nil, errNoColumn("normalize dates", column)
	}

	drop := make([]bool, out.NumRows())
	nUnparseable, nOutOfRange := 0, 0
	for j, v := range out.cols[i].Values {
		var d time.Time
		if v.Kind() == KindDate && !v.IsMissing() {
			d = v.Date()
		} else {
			var ok bool
			d, ok = ParseDate(v.Text(), order)
			if !ok {
				drop[j] = true
				nUnparseable++
				continue
			}
			out.cols[i].Values[j] = Date(d)
		}
		if (!since.IsZero() && d.Before(since)) || (!until.IsZero() && d.After(until)) {
			drop[j] = true
			nOutOfRange++
		}
	}
	if nUnparseable > 0 || nOutOfRange > 0 {
		slog.Info("normalized dates",
			"column", column,
			"dropped_unparseable", nUnparseable,
			"dropped_out_of_range", nOutOfRange,
		)
	}
	return out.Filter(func(j int, _ []Value) bool {
		return !drop[j]
	}), nil
}
