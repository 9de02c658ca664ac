package traderepublic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"readtx/lib/browser"
	"readtx/lib/crawler"
	"readtx/lib/tabular"
	"readtx/lib/testutil"
	"readtx/lib/timezone"
)

func newTestCrawler(t *testing.T, session *testutil.FakeSession) *Crawler {
	t.Helper()
	base, err := crawler.NewBase(context.Background(), crawler.Config{
		Name:       Name,
		OutputPath: t.TempDir(),
		Since:      time.Date(2024, time.September, 15, 0, 0, 0, 0, timezone.Location),
		Until:      time.Date(2024, time.October, 31, 0, 0, 0, 0, timezone.Location),
	}, func(ctx context.Context, downloadDir string) (browser.Session, error) {
		return session, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })
	return &Crawler{Base: base}
}

func TestSplitSubtitle(t *testing.T) {
	date, purpose, ok := splitSubtitle("24.10.", "Kauforder", 2024)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, time.October, 24, 0, 0, 0, 0, timezone.Location), date)
	require.Equal(t, "Kauforder", purpose)

	date, purpose, ok = splitSubtitle("24.10. - Ausgeführt", "Sparplan ausgeführt", 2023)
	require.True(t, ok)
	require.Equal(t, 2023, date.Year())
	require.Equal(t, "Sparplan ausgeführt Ausgeführt", purpose)

	_, purpose, ok = splitSubtitle("Gestern", "Zinsen", 2024)
	require.False(t, ok)
	require.Equal(t, "Zinsen", purpose)
}

func TestSignedAmount(t *testing.T) {
	require.Equal(t, "-25,50 €", signedAmount("25,50 €"))
	require.Equal(t, "10,00 €", signedAmount("+10,00 €"))
	require.Equal(t, "", signedAmount("  "))
}

func TestIsOrder(t *testing.T) {
	require.True(t, isOrder("Kauforder Ausgeführt"))
	require.True(t, isOrder("Sparplan ausgeführt"))
	require.False(t, isOrder("Zinsen"))
}

func TestUpdateYearFromDivider(t *testing.T) {
	c := newTestCrawler(t, &testutil.FakeSession{})

	require.Equal(t, 2023, updateYearFromDivider("Oktober 2023", 2024, c))
	require.Equal(t, 2024, updateYearFromDivider("September", 2024, c))
	require.Equal(t, timezone.Now().Year(), updateYearFromDivider("Dieser Monat", 2020, c))
	require.Equal(t, 2024, updateYearFromDivider("???", 2024, c))
}

func TestProcessEntriesStopsAtWindow(t *testing.T) {
	c := newTestCrawler(t, &testutil.FakeSession{})

	entries := []rawEntry{
		{Class: "timeline__entry -isMonthDivider", Text: "Oktober 2024"},
		{Class: "timeline__entry", Title: "Kauforder", Subtitle: "24.10. - Ausgeführt", Price: "100,00 €"},
		{Class: "timeline__entry", Title: "REWE sagt danke", Subtitle: "20.10.", Price: "25,50 €"},
		{Class: "timeline__entry", Title: "Zinsen", Subtitle: "01.10.", Price: "+3,21 €"},
		{Class: "timeline__entry -isMonthDivider", Text: "September 2024"},
		{Class: "timeline__entry", Title: "Einzahlung", Subtitle: "01.09.", Price: "+500,00 €"},
	}

	table, err := c.processEntries(context.Background(), entries)
	require.NoError(t, err)
	require.Equal(t, 3, table.NumRows(), "entries older than the window stop the parse")

	date, _ := table.Column(crawler.ColDate)
	require.Equal(t, time.Date(2024, time.October, 24, 0, 0, 0, 0, timezone.Location), date.Values[0].Date())

	amount, _ := table.Column(crawler.ColAmount)
	require.Equal(t, "-100,00 €", amount.Values[0].Text())
	require.Equal(t, "3,21 €", amount.Values[2].Text())

	purpose, _ := table.Column(crawler.ColPurpose)
	require.Equal(t, "Kauforder Ausgeführt", purpose.Values[0].Text())
}

func TestMatchGroceries(t *testing.T) {
	table := tabular.FromRecords([][]string{
		{crawler.ColPayee, crawler.ColPurpose},
		{"Trade Republic", "REWE sagt danke"},
		{"Trade Republic", "Zinsen"},
	})

	out := matchGroceries(table)
	payee, _ := out.Column(crawler.ColPayee)
	require.Equal(t, "REWE sagt danke", payee.Values[0].Text())
	require.Equal(t, "Trade Republic", payee.Values[1].Text())
}

func TestMarkTransfers(t *testing.T) {
	table := tabular.FromRecords([][]string{
		{crawler.ColPayee, crawler.ColPurpose},
		{"Einzahlung", "Einzahlung"},
		{"Max", "Auszahlung auf Bankkonto"},
		{"REWE", "Kartenzahlung"},
	})

	out := markTransfers(table)
	payee, _ := out.Column(crawler.ColPayee)
	require.Equal(t, "Umbuchung", payee.Values[0].Text())
	require.Equal(t, "Umbuchung", payee.Values[1].Text())
	require.Equal(t, "REWE", payee.Values[2].Text())
}
