// Package amazonvisa crawls the Amazon Visa (Zinia) customer portal:
// login with email and a 4-digit PIN, an SMS challenge for older
// transactions, and an XLSX export per date span.
package amazonvisa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"readtx/lib/browser"
	"readtx/lib/crawler"
	"readtx/lib/tabular"
)

var tracer = otel.Tracer("readtx.crawlers.amazonvisa")

const Name = "amazon_visa"

// exports silently cut off beyond two months, so the window is split
const spanMonths = 2

type Crawler struct {
	*crawler.Base
	verified bool
	balance  string
}

func New(ctx context.Context, cfg crawler.Config, newSession crawler.SessionFactory) (crawler.Site, error) {
	base, err := crawler.NewBase(ctx, cfg, newSession)
	if err != nil {
		return nil, err
	}
	return &Crawler{Base: base}, nil
}

// AccountBalance is the consumed-credit figure read back after login.
func (c *Crawler) AccountBalance() string {
	return c.balance
}

func (c *Crawler) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	err := c.Base.Login(ctx)
	if err != nil {
		return err
	}
	loginURL, err := c.URL("login")
	if err != nil {
		return err
	}
	s := c.Session()
	err = s.Navigate(ctx, loginURL)
	if err != nil {
		return err
	}
	c.dismissCookieBanner(ctx)

	ok := c.Retry(ctx, "enter username", crawler.RetryOptions{MaxAttempts: 2, Wait: 500 * time.Millisecond}, func(ctx context.Context) crawler.Result {
		return crawler.ResultOf(c.enterUsername(ctx))
	})
	if !ok {
		return fmt.Errorf("username entry failed")
	}
	ok = c.Retry(ctx, "enter pin", crawler.RetryOptions{MaxAttempts: 2, Wait: 500 * time.Millisecond}, func(ctx context.Context) crawler.Result {
		return crawler.ResultOf(c.enterPIN(ctx))
	})
	if !ok {
		return fmt.Errorf("pin entry failed")
	}

	// the consumed-credit chart only renders once logged in
	el, err := s.Find(ctx, browser.ByXPath,
		"//p[@data-testid='credit-chart-label-consumed']"+
			"/ancestor::header/following-sibling::h5[@data-testid='credit-chart-label-value']",
		10*time.Second)
	if err != nil {
		return fmt.Errorf("login not confirmed: %w", err)
	}
	var balance string
	err = s.ExecuteScript(ctx,
		`document.querySelector("h5[data-testid='credit-chart-label-value']")?.innerText || ""`,
		&balance)
	if err == nil {
		c.balance = strings.TrimSpace(balance)
		c.Log().Info("logged in", "balance", c.balance)
	}
	_ = el
	return nil
}

func (c *Crawler) dismissCookieBanner(ctx context.Context) {
	s := c.Session()
	for _, sel := range []string{
		"button[onclick='handleDecline()']",
		"button[data-testid='uc-deny-all-button']",
		"button[data-testid='uc-accept-all-button']",
	} {
		el, err := s.Find(ctx, browser.ByCSS, sel, 3*time.Second)
		if err != nil {
			continue
		}
		if s.Click(ctx, el) == nil {
			c.Log().Debug("cookie banner dismissed", "selector", sel)
			return
		}
	}
	c.Log().Debug("no cookie banner found")
}

func (c *Crawler) enterUsername(ctx context.Context) error {
	s := c.Session()
	field, err := s.Find(ctx, browser.ByCSS, "input[data-testid='login-email-email']", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Type(ctx, field, c.Config().Credentials.User)
	if err != nil {
		return err
	}
	next, err := s.Find(ctx, browser.ByCSS, "button[data-testid='login-email-links']", 10*time.Second)
	if err != nil {
		return err
	}
	return s.Click(ctx, next)
}

// the PIN form is one input per digit
func (c *Crawler) enterPIN(ctx context.Context) error {
	s := c.Session()
	for i, digit := range c.Config().Credentials.Password {
		sel := fmt.Sprintf("input[data-testid='password-module-inputs-gap-%d']", i)
		field, err := s.Find(ctx, browser.ByCSS, sel, 5*time.Second)
		if err != nil {
			return err
		}
		err = s.Type(ctx, field, string(digit))
		if err != nil {
			return err
		}
	}
	submit, err := s.Find(ctx, browser.ByCSS, "button[data-testid='login-gaps-button']", 5*time.Second)
	if err != nil {
		return err
	}
	return s.Click(ctx, submit)
}

func (c *Crawler) DownloadData(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "DownloadData")
	defer span.End()

	err := c.Base.DownloadData(ctx)
	if err != nil {
		return err
	}
	transactionsURL, err := c.URL("transactions")
	if err != nil {
		return err
	}

	cfg := c.Config()
	spans := crawler.SplitMonths(cfg.Since, cfg.Until, spanMonths)
	c.Log().Info("downloading in spans", "spans", len(spans))

	for i, span := range spans {
		c.Log().Info("downloading span",
			"from", span.From.Format("02.01.2006"),
			"to", span.To.Format("02.01.2006"),
		)
		err := c.downloadSpan(ctx, transactionsURL, span)
		if err != nil {
			// a failed span shrinks the result, it does not abort the run
			c.Log().Error("span download failed", "err", err)
			continue
		}
		_, ok := c.WaitForNewFile(ctx, crawler.WatchOptions{IncludeTemp: i < len(spans)-1})
		if !ok {
			c.Log().Warn("no export appeared for span")
		}
	}

	return c.ReadTempFiles(ctx, crawler.ReadOptions{Comma: ','})
}

func (c *Crawler) downloadSpan(ctx context.Context, url string, span crawler.Span) error {
	s := c.Session()
	err := s.Navigate(ctx, url)
	if err != nil {
		return err
	}

	// open the filter dialog and pick a custom date range
	filter, err := s.Find(ctx, browser.ByXPath,
		"//span[contains(text(),'Filter') or contains(@class,'Filter')]", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, filter)
	if err != nil {
		return err
	}
	radio, err := s.Find(ctx, browser.ByXPath,
		"//p[@data-testid='radio-button-helper-message' and normalize-space()='Zeitraum auswählen']"+
			"/preceding::input[@type='radio'][1]",
		10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, radio)
	if err != nil {
		return err
	}

	err = c.fillDate(ctx, "Von", span.From)
	if err != nil {
		return err
	}
	err = c.fillDate(ctx, "Bis", span.To)
	if err != nil {
		return err
	}

	apply, err := s.Find(ctx, browser.ByCSS, "button[data-testid='filter-modal-apply-button']", 30*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, apply)
	if err != nil {
		return err
	}

	download, err := s.Find(ctx, browser.ByXPath,
		"//a[contains(@data-testid,'transactions-all-download')]", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, download)
	if err != nil {
		return err
	}
	xls, err := s.Find(ctx, browser.ByXPath, "//button[contains(.,'XLS herunterladen')]", 5*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, xls)
	if err != nil {
		return err
	}

	// spans older than 90 days trigger an extra confirmation plus an
	// SMS challenge, once per session
	if c.showOldTransactions(ctx, span.From) {
		return c.verifyIdentity(ctx)
	}
	return nil
}

// the date picker has one numeric input per date part
func (c *Crawler) fillDate(ctx context.Context, label string, date time.Time) error {
	s := c.Session()
	picker, err := s.Find(ctx, browser.ByXPath,
		fmt.Sprintf("//div[@data-testid='input-date-picker-component' and .//label[p[normalize-space()='%s']]]"+
			"//div[@data-testid='input-date-picker-value-component']", label),
		10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, picker)
	if err != nil {
		return err
	}

	parts := []struct {
		placeholder string
		value       string
	}{
		{"DD", date.Format("02")},
		{"MM", date.Format("01")},
		{"YYYY", date.Format("2006")},
	}
	for _, part := range parts {
		field, err := s.Find(ctx, browser.ByXPath,
			fmt.Sprintf("//input[@type='number' and @placeholder='%s']", part.placeholder),
			2*time.Second)
		if err != nil {
			return err
		}
		err = s.Type(ctx, field, part.value)
		if err != nil {
			return err
		}
	}
	c.Log().Debug("date set", "label", label, "date", date.Format("02.01.2006"))
	return nil
}

func (c *Crawler) showOldTransactions(ctx context.Context, from time.Time) bool {
	if c.verified {
		return false
	}
	timeout := 5 * time.Second
	if time.Since(from) >= 90*24*time.Hour {
		timeout = 20 * time.Second
	}
	s := c.Session()
	btn, err := s.Find(ctx, browser.ByXPath,
		"//button[.//span[normalize-space()='Umsätze anzeigen']]", timeout)
	if err != nil {
		c.Log().Debug("no old-transactions confirmation needed")
		return false
	}
	err = s.Click(ctx, btn)
	if err != nil {
		c.Log().Debug("old-transactions button not clickable", "err", err)
		return false
	}
	return true
}

func (c *Crawler) verifyIdentity(ctx context.Context) error {
	s := c.Session()
	// the first code routinely never arrives, request a fresh one up front
	c.requestNewCode(ctx)

	for attempt := 1; attempt <= 2; attempt++ {
		otp, err := s.Find(ctx, browser.ByXPath,
			"//input[@data-testid='challenge-otp-input' and @placeholder='Bestätigungscode']",
			5*time.Second)
		if err != nil {
			c.Log().Debug("no otp field visible, verification not required")
			return nil
		}

		code, err := crawler.PromptCode("confirmation code (or 'retry' for a new one)")
		if err != nil {
			return err
		}
		if strings.EqualFold(code, "retry") || len(code) != 4 {
			c.requestNewCode(ctx)
			continue
		}
		err = s.Type(ctx, otp, code)
		if err != nil {
			return err
		}

		submit, err := s.Find(ctx, browser.ByXPath,
			"//button[@data-testid='challenge-sms-otp-button' and .//span[normalize-space()='Weiter']]",
			5*time.Second)
		if err == nil {
			_ = s.Click(ctx, submit)
		}
		confirm, err := s.Find(ctx, browser.ByXPath,
			"//button[.//span[normalize-space()='Bestätigen']]", 5*time.Second)
		if err == nil {
			_ = s.Click(ctx, confirm)
		}

		_, err = s.Find(ctx, browser.ByXPath, "//button[contains(.,'XLS herunterladen')]", 5*time.Second)
		if err == nil {
			c.verified = true
			c.Log().Info("identity verified")
			return nil
		}
	}
	return fmt.Errorf("identity verification failed")
}

func (c *Crawler) requestNewCode(ctx context.Context) {
	s := c.Session()
	resend, err := s.Find(ctx, browser.ByXPath,
		"//a[@data-testid='challenge-helper-composer' and .//span[normalize-space()='Erneut anfordern']]",
		5*time.Second)
	if err == nil && s.Click(ctx, resend) == nil {
		c.Log().Info("new code requested")
	}
	retry, err := s.Find(ctx, browser.ByXPath,
		"//button[@data-testid='challenge-message-fail-button' and .//span[normalize-space()='Erneut versuchen']]",
		5*time.Second)
	if err == nil {
		_ = s.Click(ctx, retry)
	}
}

var amazonNeedles = []string{"Amazon", "AMZN Mktp", "AMAZON"}

func (c *Crawler) ProcessData(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ProcessData")
	defer span.End()

	err := c.Base.ProcessData(ctx)
	if err != nil {
		return err
	}
	merged, ok := c.Data().Merged()
	if !ok {
		c.Log().Warn("no transactions to process")
		return nil
	}

	// exports carry preamble rows above the real header
	merged = merged.PromoteHeader("Datum")

	// the portal's own categorization is noise
	keep := make([]string, 0, merged.NumCols())
	for _, name := range merged.ColumnNames() {
		if name == "Umsatzkategorie" || name == "Unterkategorie" {
			continue
		}
		keep = append(keep, name)
	}
	merged, err = merged.Select(keep, tabular.SelectOptions{})
	if err != nil {
		return err
	}

	merged = merged.Rename(map[string]string{"Beschreibung": "Empfänger"})
	merged = normalizeAmazonPayees(merged)

	out, err := c.NormalizeTransactions(merged, crawler.NormalizeOptions{
		DropInvalidAmounts: true,
		ProjectFull:        true,
	})
	if err != nil {
		return err
	}

	if c.Config().WithDetails {
		c.Log().Info("fetching order details")
		details, err := c.fetchOrderDetails(ctx)
		switch {
		case err != nil:
			// details are an enrichment, the statement alone still saves
			c.Log().Error("order detail fetch failed", "err", err)
		case details.NumRows() == 0:
			c.Log().Warn("no orders found to match against")
		default:
			out, err = out.OuterMerge(details)
			if err != nil {
				return err
			}
		}
	}

	c.SetData(crawler.SingleTable(out))
	c.Log().Info("transactions processed", "rows", out.NumRows())
	return nil
}

// marketplace merchants all book under variations of "Amazon ...";
// unify the payee and keep the variant as the purpose
func normalizeAmazonPayees(t *tabular.Table) *tabular.Table {
	col, ok := t.Column("Empfänger")
	if !ok {
		return t
	}
	payees := make([]tabular.Value, len(col.Values))
	purposes := make([]tabular.Value, len(col.Values))
	purposeCol, hasPurpose := t.Column("Verwendungszweck")
	for i, v := range col.Values {
		payees[i] = v
		if hasPurpose {
			purposes[i] = purposeCol.Values[i]
		} else {
			purposes[i] = tabular.Missing(tabular.KindString)
		}
		if v.IsMissing() {
			continue
		}
		text := v.Text()
		matched := false
		for _, needle := range amazonNeedles {
			if strings.Contains(text, needle) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		remainder := text
		for _, needle := range []string{"Amazon.de", "Amazon", "AMZN Mktp DE", "AMZN Mktp", "AMAZON"} {
			remainder = strings.ReplaceAll(remainder, needle, "")
		}
		remainder = strings.TrimSpace(remainder)
		payees[i] = tabular.String("Amazon.de")
		if remainder != "" && (purposes[i].IsMissing() || purposes[i].Text() == "") {
			purposes[i] = tabular.String(remainder)
		}
	}

	out, err := t.SetColumn(tabular.Column{Name: "Empfänger", Values: payees})
	if err != nil {
		return t
	}
	out, err = out.SetColumn(tabular.Column{Name: "Verwendungszweck", Values: purposes})
	if err != nil {
		return t
	}
	return out
}
