package traderepublic

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"readtx/lib/browser"
	"readtx/lib/crawler"
	"readtx/lib/tabular"
	"readtx/lib/textutil"
	"readtx/lib/timezone"
)

// rawEntry is one timeline <li> as read out of the DOM.
type rawEntry struct {
	Class    string `json:"class"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Price    string `json:"price"`
	Text     string `json:"text"`
}

func (c *Crawler) rawEntries(ctx context.Context) ([]rawEntry, error) {
	var entries []rawEntry
	err := c.Session().ExecuteScript(ctx, `
		Array.from(document.querySelectorAll(".timeline__entry")).map(li => ({
			class: li.className,
			title: li.querySelector(".timelineV2Event__title")?.innerText || "",
			subtitle: li.querySelector(".timelineV2Event__subtitle")?.innerText || "",
			price: li.querySelector(".timelineV2Event__price")?.innerText || "",
			text: li.innerText || ""
		}))`, &entries)
	if err != nil {
		return nil, fmt.Errorf("read timeline: %w", err)
	}
	c.Log().Debug("raw entries read", "entries", len(entries))
	return entries, nil
}

// subtitles look like "24.10." or "24.10. - Ausgeführt"
var subtitleRe = regexp.MustCompile(`^(\d{2}\.\d{2}\.)(?:\s*-\s*(.*))?$`)

// month dividers carry the month name and, for past years, the year
var monthDividerRe = regexp.MustCompile(`^([A-Za-zäöüÄÖÜß]+)(?:\s+(\d{4}))?$`)

// entries whose purpose names an order get the detail overlay opened
var orderDetailKeys = []string{"Kauforder", "Verkaufsorder", "Sparplan ausgeführt", "Saveback"}

// processEntries turns the raw timeline into a table. The timeline runs
// newest to oldest; entry dates have no year, so the year is tracked
// through the month divider rows. Parsing stops at the first entry
// older than the window.
func (c *Crawler) processEntries(ctx context.Context, entries []rawEntry) (*tabular.Table, error) {
	cfg := c.Config()
	year := timezone.Now().Year()

	var dates, payees, purposes, amounts, details []tabular.Value
	for idx, e := range entries {
		if strings.Contains(e.Class, "-isMonthDivider") || strings.Contains(e.Class, "-isNewSection") {
			year = updateYearFromDivider(e.Text, year, c)
			continue
		}

		payee := strings.TrimSpace(e.Title)
		date, purpose, ok := splitSubtitle(e.Subtitle, payee, year)
		if ok && date.Before(cfg.Since) {
			c.Log().Info("window start reached, parsing stopped",
				"date", date.Format("02.01.2006"), "parsed", len(dates))
			break
		}

		if ok {
			dates = append(dates, tabular.Date(date))
		} else {
			c.Log().Debug("entry without usable date", "subtitle", e.Subtitle)
			dates = append(dates, tabular.Missing(tabular.KindDate))
		}
		payees = append(payees, tabular.String(payee))
		purposes = append(purposes, tabular.String(purpose))
		amounts = append(amounts, tabular.String(signedAmount(e.Price)))

		detail := ""
		if cfg.WithDetails && isOrder(purpose) {
			d, err := c.orderDetails(ctx, idx)
			if err != nil {
				c.Log().Warn("order details unavailable", "entry", idx, "err", err)
			} else {
				detail = d
			}
		}
		if detail == "" {
			details = append(details, tabular.Missing(tabular.KindString))
		} else {
			details = append(details, tabular.String(detail))
		}
	}

	return tabular.New(
		tabular.Column{Name: crawler.ColDate, Values: dates},
		tabular.Column{Name: crawler.ColPayee, Values: payees},
		tabular.Column{Name: crawler.ColPurpose, Values: purposes},
		tabular.Column{Name: crawler.ColAmount, Values: amounts},
		tabular.Column{Name: "Details", Values: details},
	)
}

func updateYearFromDivider(text string, year int, c *Crawler) int {
	text = textutil.CollapseWhitespace(text)
	if text == "Dieser Monat" {
		return timezone.Now().Year()
	}
	m := monthDividerRe.FindStringSubmatch(text)
	if m == nil {
		c.Log().Debug("unrecognized month divider", "text", text)
		return year
	}
	if m[2] != "" {
		y, err := time.Parse("2006", m[2])
		if err == nil {
			return y.Year()
		}
	}
	return year
}

func splitSubtitle(subtitle, title string, year int) (time.Time, string, bool) {
	subtitle = strings.TrimSpace(subtitle)
	m := subtitleRe.FindStringSubmatch(subtitle)
	if m == nil {
		return time.Time{}, title, false
	}
	date, err := time.ParseInLocation("02.01.2006", fmt.Sprintf("%s%d", m[1], year), timezone.Location)
	if err != nil {
		return time.Time{}, title, false
	}
	purpose := title
	if m[2] != "" {
		purpose = title + " " + m[2]
	}
	return timezone.Midnight(date), purpose, true
}

// the timeline shows income with a leading "+" and expenses unsigned
func signedAmount(price string) string {
	price = strings.TrimSpace(price)
	if price == "" {
		return ""
	}
	if strings.HasPrefix(price, "+") {
		return strings.TrimPrefix(price, "+")
	}
	return "-" + price
}

func isOrder(purpose string) bool {
	for _, key := range orderDetailKeys {
		if strings.Contains(purpose, key) {
			return true
		}
	}
	return false
}

// "50 × 4,14 €" in the detail overlay's transaction row
var transactionRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*[×x*]\s*([\d.,]+)\s*€`)

// orderDetails opens the detail overlay of the idx-th timeline entry,
// reads its label/value table and closes the overlay again. A stuck
// overlay is an error; clicking through it would corrupt later entries.
func (c *Crawler) orderDetails(ctx context.Context, idx int) (string, error) {
	s := c.Session()
	entry, err := s.Find(ctx, browser.ByXPath,
		fmt.Sprintf("(//*[contains(@class,'timeline__entry')])[%d]"+
			"[.//*[contains(@class,'clickable') and contains(@class,'timelineEventAction')]]", idx+1),
		5*time.Second)
	if err != nil {
		// not clickable, nothing to open
		return "", nil
	}
	err = s.Click(ctx, entry)
	if err != nil {
		return "", err
	}
	defer c.closeOverlay(ctx)

	_, err = s.Find(ctx, browser.ByCSS, ".timelineDetailModal div.detailTable", 10*time.Second)
	if err != nil {
		return "", err
	}
	source, err := s.PageSource(ctx)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return "", err
	}

	pairs := map[string]string{}
	doc.Find("div.detailTable div.detailTable__row").Each(func(_ int, row *goquery.Selection) {
		label := textutil.CollapseWhitespace(row.Find("dt.detailTable__label").Text())
		value := textutil.CollapseWhitespace(row.Find("dd.detailTable__value").Text())
		if label != "" {
			pairs[label] = value
		}
	})
	if m := transactionRe.FindStringSubmatch(pairs["Transaktion"]); m != nil {
		pairs["Stückzahl"] = strings.ReplaceAll(m[1], ",", ".")
		pairs["Stückpreis"] = strings.ReplaceAll(m[2], ",", ".")
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+pairs[k])
	}
	return strings.Join(parts, "; "), nil
}

func (c *Crawler) closeOverlay(ctx context.Context) {
	s := c.Session()
	body, err := s.Find(ctx, browser.ByCSS, "body", 2*time.Second)
	if err != nil {
		return
	}
	_ = s.Type(ctx, body, browser.Escape)
	gone := c.WaitForCondition(ctx, 5*time.Second, 250*time.Millisecond, func() bool {
		var open int
		err := s.ExecuteScript(ctx, `document.querySelectorAll(".timelineDetailModal").length`, &open)
		return err == nil && open == 0
	})
	if !gone {
		c.Log().Warn("detail overlay did not close")
	}
}

// counterparties of card payments at grocery chains arrive in the
// purpose field; promote them to the payee
var groceryNeedles = []string{
	"edeka", "penny", "lidl", "aldi", "rewe", "netto",
	"konsum", "kaufland", "real", "marktkauf",
}

func matchGroceries(t *tabular.Table) *tabular.Table {
	purposeCol, okPurpose := t.Column(crawler.ColPurpose)
	payeeCol, okPayee := t.Column(crawler.ColPayee)
	if !okPurpose || !okPayee {
		return t
	}
	payees := append([]tabular.Value{}, payeeCol.Values...)
	for i, v := range purposeCol.Values {
		purpose := strings.ToLower(v.Text())
		for _, needle := range groceryNeedles {
			if strings.Contains(purpose, needle) {
				payees[i] = tabular.String(strings.TrimSpace(v.Text()))
				break
			}
		}
	}
	out, err := t.SetColumn(tabular.Column{Name: crawler.ColPayee, Values: payees})
	if err != nil {
		return t
	}
	return out
}

// deposits from and withdrawals to the linked bank account are
// transfers, not income or spending
func markTransfers(t *tabular.Table) *tabular.Table {
	purposeCol, okPurpose := t.Column(crawler.ColPurpose)
	payeeCol, okPayee := t.Column(crawler.ColPayee)
	if !okPurpose || !okPayee {
		return t
	}
	payees := append([]tabular.Value{}, payeeCol.Values...)
	for i, v := range purposeCol.Values {
		purpose := strings.TrimSpace(v.Text())
		if strings.HasPrefix(purpose, "Einzahlung") || strings.HasPrefix(purpose, "Auszahlung") {
			payees[i] = tabular.String("Umbuchung")
		}
	}
	out, err := t.SetColumn(tabular.Column{Name: crawler.ColPayee, Values: payees})
	if err != nil {
		return t
	}
	return out
}
