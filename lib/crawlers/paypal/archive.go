package paypal

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"readtx/lib/crawler"
	"readtx/lib/htmlutil"
	"readtx/lib/textutil"
	"readtx/lib/timezone"
)

// the report archive renders dates in whatever language the account is
// set to; both "Jan 1, 2025" and "1. Jan. 2025" show up
var reportRangeRe = regexp.MustCompile(
	`^\s*([A-Za-z]{3,9}\s+\d{1,2},\s+\d{4}|\d{1,2}\.\s*[A-Za-zäöüÄÖÜ]+\.?\s*\d{4}|\d{1,2}\.\d{1,2}\.\d{4})` +
		`\s*-\s*` +
		`([A-Za-z]{3,9}\s+\d{1,2},\s+\d{4}|\d{1,2}\.\s*[A-Za-zäöüÄÖÜ]+\.?\s*\d{4}|\d{1,2}\.\d{1,2}\.\d{4})\s*$`)

// longer names first so "Dezember" does not get cut to "December"
// halfway through by the "Dez" rule
var germanMonths = strings.NewReplacer(
	"Januar", "January", "Februar", "February", "März", "March",
	"Juni", "June", "Juli", "July", "Oktober", "October",
	"Dezember", "December",
	"Mär", "Mar", "Mai", "May", "Okt", "Oct", "Dez", "Dec",
)

// findArchivedReport returns the index of an all-transactions CSV
// report covering exactly the given span, or -1. When the row links the
// file directly the download href comes back too, so the file can be
// fetched over HTTP instead of another click-and-wait round.
func (c *Crawler) findArchivedReport(ctx context.Context, span crawler.Span) (int, string, error) {
	source, err := c.Session().PageSource(ctx)
	if err != nil {
		return -1, "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return -1, "", err
	}

	found := -1
	href := ""
	doc.Find("table[data-testid='table'] tbody tr").
		Not(".hidden").
		EachWithBreak(func(i int, row *goquery.Selection) bool {
			cells := row.Find("td")
			if cells.Length() < 4 {
				return true
			}
			reportType := strings.ToLower(htmlutil.Text(cells.Eq(0)))
			if reportType != "alle transaktionen" && reportType != "all transactions" {
				return true
			}
			format := strings.ToLower(htmlutil.Text(cells.Eq(3)))
			if format != "csv" {
				return true
			}
			m := reportRangeRe.FindStringSubmatch(htmlutil.Text(cells.Eq(2)))
			if m == nil {
				return true
			}
			from, okFrom := parseReportDate(m[1])
			to, okTo := parseReportDate(m[2])
			if !okFrom || !okTo {
				return true
			}
			if from.Equal(timezone.Midnight(span.From)) && to.Equal(timezone.Midnight(span.To)) {
				found = i
				for _, a := range htmlutil.GetAnchors(ctx, row.Find("a")) {
					if strings.Contains(a.Name, "Herunterladen") || strings.Contains(a.Name, "Download") {
						href = a.Href
						break
					}
				}
				return false
			}
			return true
		})
	return found, href, nil
}

var reportDateLayouts = []string{
	"Jan 2, 2006",
	"2. Jan. 2006",
	"2. Jan 2006",
	"2. January 2006",
	"2.1.2006",
}

func parseReportDate(s string) (time.Time, bool) {
	s = germanMonths.Replace(textutil.CollapseWhitespace(s))
	for _, layout := range reportDateLayouts {
		d, err := time.ParseInLocation(layout, s, timezone.Location)
		if err == nil {
			return timezone.Midnight(d), true
		}
	}
	return time.Time{}, false
}
