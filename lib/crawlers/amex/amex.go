// Package amex crawls the American Express card portal: form login
// with an optional SMS challenge, a date-range search and an Excel
// export of the results.
package amex

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"readtx/lib/browser"
	"readtx/lib/crawler"
	"readtx/lib/tabular"
)

var tracer = otel.Tracer("readtx.crawlers.amex")

const Name = "amex"

type Crawler struct {
	*crawler.Base
	balance string
}

func New(ctx context.Context, cfg crawler.Config, newSession crawler.SessionFactory) (crawler.Site, error) {
	base, err := crawler.NewBase(ctx, cfg, newSession)
	if err != nil {
		return nil, err
	}
	return &Crawler{Base: base}, nil
}

// AccountBalance is the current balance shown after login.
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

	banner, err := s.Find(ctx, browser.ByCSS, "button[data-testid='granular-banner-button-decline-all']", 5*time.Second)
	if err == nil {
		_ = s.Click(ctx, banner)
	}

	user, err := s.Find(ctx, browser.ByID, "eliloUserID", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Type(ctx, user, c.Config().Credentials.User)
	if err != nil {
		return err
	}
	password, err := s.Find(ctx, browser.ByID, "eliloPassword", 5*time.Second)
	if err != nil {
		return err
	}
	err = s.Type(ctx, password, c.Config().Credentials.Password)
	if err != nil {
		return err
	}
	submit, err := s.Find(ctx, browser.ByID, "loginSubmit", 5*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, submit)
	if err != nil {
		return err
	}

	err = c.maybeVerifyIdentity(ctx)
	if err != nil {
		return err
	}

	// the balance header doubles as the logged-in check
	balance, err := s.Find(ctx, browser.ByXPath,
		"//div[.//span[contains(text(),'Aktueller Kontostand')]]/following-sibling::div//span",
		30*time.Second)
	if err != nil {
		return fmt.Errorf("login not confirmed: %w", err)
	}
	var text string
	err = s.ExecuteScript(ctx,
		`(document.evaluate("//div[.//span[contains(text(),'Aktueller Kontostand')]]/following-sibling::div//span",
			document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue || {}).innerText || ""`,
		&text)
	if err == nil {
		c.balance = text
		c.Log().Info("logged in", "balance", c.balance)
	}
	_ = balance
	return nil
}

// the portal sometimes demands an SMS code after login
func (c *Crawler) maybeVerifyIdentity(ctx context.Context) error {
	s := c.Session()
	otp, err := s.Find(ctx, browser.ByID, "question-value", 10*time.Second)
	if err != nil {
		c.Log().Debug("no identity check")
		return nil
	}

	for attempt := 1; attempt <= 3; attempt++ {
		code, err := crawler.PromptCode("sms code (or 'retry' for a new one)")
		if err != nil {
			return err
		}
		if code == "retry" {
			resend, err := s.Find(ctx, browser.ByID, "resend-button", 5*time.Second)
			if err == nil {
				_ = s.Click(ctx, resend)
			}
			continue
		}
		err = s.Type(ctx, otp, code+browser.Enter)
		if err != nil {
			return err
		}
		_, err = s.Find(ctx, browser.ByID, "question-value", 3*time.Second)
		if err != nil {
			return nil
		}
		_ = s.Clear(ctx, otp)
	}
	return fmt.Errorf("identity verification failed")
}

func (c *Crawler) DownloadData(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "DownloadData")
	defer span.End()

	err := c.Base.DownloadData(ctx)
	if err != nil {
		return err
	}
	activityURL, err := c.URL("transactions")
	if err != nil {
		return err
	}
	s := c.Session()
	err = s.Navigate(ctx, activityURL)
	if err != nil {
		return err
	}

	cfg := c.Config()
	// the search form labels the pickers from the card's point of view:
	// its "End date" is the older bound
	err = c.fillDateGroup(ctx, "End date", cfg.Since)
	if err != nil {
		return err
	}
	err = c.fillDateGroup(ctx, "Start date", cfg.Until)
	if err != nil {
		return err
	}

	search, err := s.Find(ctx, browser.ByXPath, "//button[normalize-space()='Suchen']", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, search)
	if err != nil {
		return err
	}

	download, err := s.Find(ctx, browser.ByXPath,
		"//button[@title='Herunterladen' or .//span[normalize-space()='Herunterladen']]",
		30*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, download)
	if err != nil {
		return err
	}
	excel, err := s.Find(ctx, browser.ByID,
		"axp-activity-download-body-selection-options-type_excel", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, excel)
	if err != nil {
		return err
	}
	confirm, err := s.Find(ctx, browser.ByXPath,
		"//section[@id='axp-activity-download-footer']//button[normalize-space()='Herunterladen']",
		10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, confirm)
	if err != nil {
		return err
	}

	_, ok := c.WaitForNewFile(ctx, crawler.WatchOptions{Timeout: 60 * time.Second})
	if !ok {
		return fmt.Errorf("export did not arrive")
	}
	return c.ReadTempFiles(ctx, crawler.ReadOptions{Comma: ','})
}

// each picker is a fieldset with separate day, month and year inputs
func (c *Crawler) fillDateGroup(ctx context.Context, label string, date time.Time) error {
	s := c.Session()
	parts := []struct {
		name  string
		value string
	}{
		{"Day", date.Format("02")},
		{"Month", date.Format("01")},
		{"Year", date.Format("2006")},
	}
	for _, part := range parts {
		field, err := s.Find(ctx, browser.ByXPath,
			fmt.Sprintf("//div[@role='group' and contains(@aria-label,'%s')]//input[contains(@aria-label,'%s')]",
				label, part.name),
			10*time.Second)
		if err != nil {
			return err
		}
		err = s.Clear(ctx, field)
		if err != nil {
			return err
		}
		err = s.Type(ctx, field, part.value)
		if err != nil {
			return err
		}
	}
	c.Log().Debug("date set", "group", label, "date", date.Format("02.01.2006"))
	return nil
}

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

	merged = merged.PromoteHeader("Datum")
	out, err := c.NormalizeTransactions(merged, crawler.NormalizeOptions{
		DropInvalidAmounts: true,
		ProjectFull:        true,
	})
	if err != nil {
		return err
	}
	out = negateAmounts(out)

	c.SetData(crawler.SingleTable(out))
	c.Log().Info("transactions processed", "rows", out.NumRows())
	return nil
}

// the export books charges as positive numbers; flip the sign so
// expenses are negative like everywhere else
func negateAmounts(t *tabular.Table) *tabular.Table {
	col, ok := t.Column(crawler.ColAmount)
	if !ok {
		return t
	}
	values := make([]tabular.Value, len(col.Values))
	for i, v := range col.Values {
		if v.IsMissing() || v.Kind() != tabular.KindDecimal {
			values[i] = v
			continue
		}
		values[i] = tabular.Decimal(v.Decimal().Mul(decimal.NewFromInt(-1)))
	}
	out, err := t.SetColumn(tabular.Column{Name: crawler.ColAmount, Values: values})
	if err != nil {
		return t
	}
	return out
}
