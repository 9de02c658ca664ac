package amazonvisa

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"readtx/lib/browser"
	"readtx/lib/crawler"
	"readtx/lib/tabular"
	"readtx/lib/textutil"
	"readtx/lib/timezone"
)

// The card statement only carries "AMAZON PAYMENTS" style payees. The
// order history on amazon.de has the actual items, so with details
// enabled the order list is scraped and merged onto the statement by
// amount and date.

const (
	maxItemsPerOrder = 5
	itemMaxChars     = 40
)

// The labels and their values live in sibling elements, so flattening
// the card text can glue them together without any whitespace in
// between. The separators are optional for that reason.
var (
	orderDateRe   = regexp.MustCompile(`(?i)BESTELLUNG AUFGEGEBEN\s*(\d{1,2}\.\s*[A-Za-zÄÖÜäöü]+(?:\s+\d{4})?)`)
	orderAmountRe = regexp.MustCompile(`(?i)SUMME\s*([0-9.\s]*\d{1,3}(?:[.,]\d{2})\s*€)`)
	orderNoRe     = regexp.MustCompile(`(?i)BESTELLNR\.?\s*([A-Za-z0-9\-/]+)`)
)

var germanMonths = map[string]time.Month{
	"januar": time.January, "februar": time.February, "märz": time.March,
	"april": time.April, "mai": time.May, "juni": time.June,
	"juli": time.July, "august": time.August, "september": time.September,
	"oktober": time.October, "november": time.November, "dezember": time.December,
}

type order struct {
	date   time.Time
	amount decimal.Decimal
	number string
	items  string
}

func (c *Crawler) fetchOrderDetails(ctx context.Context) (*tabular.Table, error) {
	ordersURL, err := c.URL("orders")
	if err != nil {
		return nil, err
	}
	s := c.Session()
	err = s.Navigate(ctx, ordersURL)
	if err != nil {
		return nil, err
	}

	cfg := c.Config()
	var orders []order
	for year := cfg.Until.Year(); year >= cfg.Since.Year(); year-- {
		if !c.selectOrderYear(ctx, year) {
			c.Log().Debug("order year not offered", "year", year)
			continue
		}
		for page := 1; ; page++ {
			pageOrders, err := c.parseOrderPage(ctx, year)
			if err != nil {
				return nil, err
			}
			c.Log().Info("orders parsed", "year", year, "page", page, "orders", len(pageOrders))
			done := false
			for _, o := range pageOrders {
				if o.date.Before(cfg.Since) {
					done = true
					break
				}
				orders = append(orders, o)
			}
			if done || !c.nextOrderPage(ctx) {
				break
			}
		}
	}

	dates := make([]tabular.Value, len(orders))
	amounts := make([]tabular.Value, len(orders))
	numbers := make([]tabular.Value, len(orders))
	items := make([]tabular.Value, len(orders))
	for i, o := range orders {
		dates[i] = tabular.Date(o.date)
		// orders are expenses, the statement books them negative
		amounts[i] = tabular.Decimal(o.amount.Neg())
		numbers[i] = tabular.String(o.number)
		items[i] = tabular.String(o.items)
	}
	return tabular.New(
		tabular.Column{Name: crawler.ColDate, Values: dates},
		tabular.Column{Name: crawler.ColAmount, Values: amounts},
		tabular.Column{Name: "Bestellnummer", Values: numbers},
		tabular.Column{Name: "Artikel", Values: items},
	)
}

// the year filter is a plain <select id="time-filter">
func (c *Crawler) selectOrderYear(ctx context.Context, year int) bool {
	s := c.Session()
	var ok bool
	err := s.ExecuteScript(ctx, fmt.Sprintf(`(() => {
		const sel = document.getElementById("time-filter");
		if (!sel) return false;
		const value = "year-%d";
		if (![...sel.options].some(o => o.value === value)) return false;
		sel.value = value;
		sel.dispatchEvent(new Event("change", {bubbles: true}));
		return true;
	})()`, year), &ok)
	if err != nil || !ok {
		return false
	}
	_, _ = s.Find(ctx, browser.ByCSS, "div.order-card.js-order-card", 10*time.Second)
	return true
}

func (c *Crawler) nextOrderPage(ctx context.Context) bool {
	s := c.Session()
	next, err := s.Find(ctx, browser.ByXPath,
		"//ul[contains(@class,'a-pagination')]//li[contains(@class,'a-last') and not(contains(@class,'a-disabled'))]/a",
		4*time.Second)
	if err != nil {
		return false
	}
	return s.Click(ctx, next) == nil
}

func (c *Crawler) parseOrderPage(ctx context.Context, year int) ([]order, error) {
	source, err := c.Session().PageSource(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parse order page: %w", err)
	}

	var orders []order
	doc.Find("div.order-card.js-order-card").Each(func(_ int, card *goquery.Selection) {
		text := textutil.CollapseWhitespace(card.Text())

		var o order
		m := orderDateRe.FindStringSubmatch(text)
		if m == nil {
			return
		}
		date, ok := parseGermanDate(m[1], year)
		if !ok {
			c.Log().Debug("unparseable order date", "raw", m[1])
			return
		}
		o.date = date

		m = orderAmountRe.FindStringSubmatch(text)
		if m == nil {
			return
		}
		amount, ok := tabular.ParseAmount(m[1])
		if !ok {
			return
		}
		o.amount = amount

		if m = orderNoRe.FindStringSubmatch(text); m != nil {
			o.number = m[1]
		}
		o.items = orderItems(card)
		orders = append(orders, o)
	})
	return orders, nil
}

func orderItems(card *goquery.Selection) string {
	var items []string
	seen := map[string]bool{}
	add := func(title string) {
		title = textutil.CollapseWhitespace(title)
		if title == "" || seen[title] || len(items) >= maxItemsPerOrder {
			return
		}
		seen[title] = true
		if len(title) > itemMaxChars {
			title = title[:itemMaxChars]
		}
		items = append(items, strings.TrimSpace(title))
	}
	card.Find("div.yohtmlc-product-title").Each(func(_ int, sel *goquery.Selection) {
		add(sel.Text())
	})
	if len(items) == 0 {
		card.Find("a[href*='/dp/']").Each(func(_ int, sel *goquery.Selection) {
			add(sel.Text())
		})
	}
	return strings.Join(items, " | ")
}

// "24. Oktober 2025", year optional on some cards
func parseGermanDate(raw string, fallbackYear int) (time.Time, bool) {
	fields := strings.Fields(strings.ReplaceAll(raw, ".", ". "))
	if len(fields) < 2 {
		return time.Time{}, false
	}
	day := strings.TrimSuffix(fields[0], ".")
	month, ok := germanMonths[strings.ToLower(fields[1])]
	if !ok {
		return time.Time{}, false
	}
	year := fallbackYear
	if len(fields) >= 3 {
		if y, err := time.Parse("2006", fields[2]); err == nil {
			year = y.Year()
		}
	}
	d, err := time.ParseInLocation("2 1 2006", fmt.Sprintf("%s %d %d", day, int(month), year), timezone.Location)
	if err != nil {
		return time.Time{}, false
	}
	return timezone.Midnight(d), true
}
