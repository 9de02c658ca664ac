package ariva

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
		Since:      time.Date(2024, time.January, 1, 0, 0, 0, 0, timezone.Location),
		Until:      time.Date(2024, time.December, 31, 0, 0, 0, 0, timezone.Location),
	}, func(ctx context.Context, downloadDir string) (browser.Session, error) {
		return session, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })
	return &Crawler{Base: base}
}

func TestWknFromFilename(t *testing.T) {
	cases := []struct {
		in     string
		expect string
	}{
		{"wkn_840400_historic.csv", "840400"},
		{"wkn_a1ewww_historic.csv", "A1EWWW"},
		{"etf110_kurse.csv", "ETF110"},
		{"kurse.csv", "UNKNOWN"},
		{"wkn_84-0400_historic.csv", "UNKNOWN"},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, wknFromFilename(test.in), "input %q", test.in)
	}
}

func TestProcessDataMergesQuotePages(t *testing.T) {
	c := newTestCrawler(t, &testutil.FakeSession{})
	c.SetData(crawler.TablesByFile(map[string]*tabular.Table{
		"wkn_840400_historic.csv": tabular.FromRecords([][]string{
			{"Datum", "Erster", "Hoch", "Tief", "Schlusskurs", "Stuecke", "Volumen"},
			{"02.01.2024", "41,00", "42,10", "40,90", "41,99", "1000", "41990"},
			{"03.01.2024", "42,00", "42,50", "41,80", "42,20", "900", "37980"},
		}),
		"wkn_a1ewww_historic.csv": tabular.FromRecords([][]string{
			{"Datum", "Erster", "Hoch", "Tief", "Schlusskurs", "Stuecke", "Volumen"},
			{"02.01.2024", "101,00", "102,00", "100,50", "101,50", "10", "1015"},
			{"02.01.2023", "90,00", "91,00", "89,00", "90,50", "10", "905"},
		}),
	}))

	require.NoError(t, c.ProcessData(context.Background()))

	out, ok := c.Data().Single()
	require.True(t, ok)
	require.Equal(t, []string{"Datum", "Schlusskurs", "Hoch", "Tief", "WKN"}, out.ColumnNames())
	require.Equal(t, 3, out.NumRows(), "rows outside the window are dropped")

	wkn, _ := out.Column("WKN")
	require.Equal(t, "840400", wkn.Values[0].Text())
	require.Equal(t, "A1EWWW", wkn.Values[2].Text())

	closing, _ := out.Column("Schlusskurs")
	require.Equal(t, tabular.KindDecimal, closing.Values[0].Kind())
	require.Equal(t, "41.99", closing.Values[0].Decimal().String())
}
