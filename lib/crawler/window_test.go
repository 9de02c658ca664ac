package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"readtx/lib/timezone"
)

func localDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, timezone.Location)
}

func TestSplitMonths(t *testing.T) {
	spans := SplitMonths(localDay(2024, time.January, 1), localDay(2024, time.May, 15), 2)
	require.Equal(t, []Span{
		{From: localDay(2024, time.January, 1), To: localDay(2024, time.February, 29)},
		{From: localDay(2024, time.March, 1), To: localDay(2024, time.April, 30)},
		{From: localDay(2024, time.May, 1), To: localDay(2024, time.May, 15)},
	}, spans)
}

func TestSplitMonthsSingleSpan(t *testing.T) {
	spans := SplitMonths(localDay(2024, time.March, 5), localDay(2024, time.March, 20), 6)
	require.Equal(t, []Span{
		{From: localDay(2024, time.March, 5), To: localDay(2024, time.March, 20)},
	}, spans)
}

func TestSplitYearsWholePastYears(t *testing.T) {
	spans := SplitYears(localDay(2023, time.June, 15), localDay(2024, time.February, 10))
	require.Equal(t, []Span{
		{From: localDay(2023, time.January, 1), To: localDay(2023, time.December, 31)},
		{From: localDay(2024, time.January, 1), To: localDay(2024, time.December, 31)},
	}, spans)
}

func TestSplitYearsCapsCurrentYear(t *testing.T) {
	today := timezone.Midnight(timezone.Now())
	spans := SplitYears(localDay(today.Year(), time.January, 1), today)
	require.Len(t, spans, 1)
	require.Equal(t, localDay(today.Year(), time.January, 1), spans[0].From)
	require.Equal(t, today, spans[0].To)
}
