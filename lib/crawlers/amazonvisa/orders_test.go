package amazonvisa

import (
	"context"
	"strings"
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

func TestParseGermanDate(t *testing.T) {
	cases := []struct {
		in       string
		fallback int
		expect   time.Time
		ok       bool
	}{
		{"24. Oktober 2024", 2020, time.Date(2024, time.October, 24, 0, 0, 0, 0, timezone.Location), true},
		{"3. März", 2024, time.Date(2024, time.March, 3, 0, 0, 0, 0, timezone.Location), true},
		{"1.Mai 2024", 2020, time.Date(2024, time.May, 1, 0, 0, 0, 0, timezone.Location), true},
		{"Oktober", 2024, time.Time{}, false},
		{"24. Brumaire 2024", 2024, time.Time{}, false},
	}
	for _, test := range cases {
		got, ok := parseGermanDate(test.in, test.fallback)
		require.Equal(t, test.ok, ok, "input %q", test.in)
		if ok {
			require.Equal(t, test.expect, got, "input %q", test.in)
		}
	}
}

const orderPageHTML = `
<div class="order-card js-order-card">
  <span>BESTELLUNG AUFGEGEBEN</span><span>24. Oktober 2024</span>
  <span>SUMME</span><span>108,00 €</span>
  <span>BESTELLNR. 028-1234567-7654321</span>
  <div class="yohtmlc-product-title">Ein außergewöhnlich langer Produkttitel der gekürzt werden muss</div>
  <div class="yohtmlc-product-title">Kabel</div>
</div>
<div class="order-card js-order-card">
  <span>BESTELLUNG AUFGEGEBEN</span><span>3. Oktober</span>
  <span>SUMME</span><span>19,99 €</span>
  <span>BESTELLNR. 028-0000000-0000000</span>
  <a href="/gp/product/dp/B0123">Buch</a>
</div>
<div class="order-card js-order-card">
  <span>irgendein werbebanner ohne bestellung</span>
</div>`

func TestParseOrderPage(t *testing.T) {
	c := newTestCrawler(t, &testutil.FakeSession{Source: orderPageHTML})

	orders, err := c.parseOrderPage(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	first := orders[0]
	require.Equal(t, time.Date(2024, time.October, 24, 0, 0, 0, 0, timezone.Location), first.date)
	require.Equal(t, "108", first.amount.String())
	require.Equal(t, "028-1234567-7654321", first.number)
	require.Contains(t, first.items, " | Kabel")
	require.LessOrEqual(t, len(strings.Split(first.items, " | ")[0]), itemMaxChars)

	second := orders[1]
	require.Equal(t, time.Date(2024, time.October, 3, 0, 0, 0, 0, timezone.Location), second.date)
	require.Equal(t, "19.99", second.amount.String())
	require.Equal(t, "Buch", second.items, "product links fill in when no title block exists")
}

func TestParseOrderPageMinifiedMarkup(t *testing.T) {
	// shipped markup carries no whitespace between the label spans and
	// their values, so the flattened card text glues them together
	const minified = `<div class="order-card js-order-card"><span>BESTELLUNG AUFGEGEBEN</span>` +
		`<span>5. Juni 2024</span><span>SUMME</span><span>7,50 €</span>` +
		`<span>BESTELLNR. 302-1111111-2222222</span><a href="/dp/B0999">Stift</a></div>`
	c := newTestCrawler(t, &testutil.FakeSession{Source: minified})

	orders, err := c.parseOrderPage(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, time.Date(2024, time.June, 5, 0, 0, 0, 0, timezone.Location), orders[0].date)
	require.Equal(t, "7.5", orders[0].amount.String())
	require.Equal(t, "302-1111111-2222222", orders[0].number)
	require.Equal(t, "Stift", orders[0].items)
}

func TestNormalizeAmazonPayees(t *testing.T) {
	table := tabular.FromRecords([][]string{
		{"Empfänger"},
		{"AMZN Mktp DE 12ab34cd"},
		{"Amazon.de"},
		{"REWE Markt"},
	})

	out := normalizeAmazonPayees(table)
	payee, _ := out.Column("Empfänger")
	require.Equal(t, "Amazon.de", payee.Values[0].Text())
	require.Equal(t, "Amazon.de", payee.Values[1].Text())
	require.Equal(t, "REWE Markt", payee.Values[2].Text())

	purpose, _ := out.Column("Verwendungszweck")
	require.Equal(t, "12ab34cd", purpose.Values[0].Text(), "the marketplace reference survives as the purpose")
	require.True(t, purpose.Values[1].IsMissing())
}
