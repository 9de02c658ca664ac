package crawler

import (
	"time"

	"readtx/lib/timezone"
)

// Span is one closed sub-interval of the configured window.
type Span struct {
	From time.Time
	To   time.Time
}

// SplitMonths cuts [since, until] into spans of at most the given
// number of months. Several portals cap export ranges, or silently
// truncate longer ones, so downloads are requested one span at a time.
func SplitMonths(since, until time.Time, months int) []Span {
	if months <= 0 {
		months = 12
	}
	var spans []Span
	current := since
	for !current.After(until) {
		next := current.AddDate(0, months, 0)
		end := next.AddDate(0, 0, -1)
		if end.After(until) {
			end = until
		}
		spans = append(spans, Span{From: current, To: end})
		current = next
	}
	return spans
}

// SplitYears cuts [since, until] into calendar-year spans. Past years
// are returned whole even when since or until falls mid-year; that way
// a cached yearly export stays reusable across windows. The current
// year is capped at today.
func SplitYears(since, until time.Time) []Span {
	today := timezone.Midnight(timezone.Now())
	var spans []Span
	for year := since.Year(); year <= until.Year(); year++ {
		span := Span{
			From: time.Date(year, time.January, 1, 0, 0, 0, 0, timezone.Location),
			To:   time.Date(year, time.December, 31, 0, 0, 0, 0, timezone.Location),
		}
		if year == today.Year() && span.To.After(today) {
			span.To = today
		}
		if span.From.After(span.To) {
			continue
		}
		spans = append(spans, span)
	}
	return spans
}
