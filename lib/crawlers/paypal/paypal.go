// Package paypal pulls transactions from paypal.com. The portal has no
// direct export; instead calendar-year CSV reports are generated into a
// report archive and downloaded from there.
package paypal

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"readtx/lib/browser"
	"readtx/lib/crawler"
	"readtx/lib/fetch"
)

var tracer = otel.Tracer("readtx.crawlers.paypal")

const Name = "paypal"

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

// AccountBalance is the available balance read back after login.
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

	email, err := s.Find(ctx, browser.ByCSS, "input#email", 15*time.Second)
	if err != nil {
		// bot checks occasionally hold the login page back, let the
		// user steer past them
		c.Log().Warn("login page not found, waiting for manual navigation")
		_ = s.Maximize(ctx)
		email, err = s.Find(ctx, browser.ByCSS, "input#email", 3*time.Minute)
		if err != nil {
			return fmt.Errorf("login page never appeared: %w", err)
		}
	}
	err = s.Clear(ctx, email)
	if err != nil {
		return err
	}
	err = s.Type(ctx, email, c.Config().Credentials.User)
	if err != nil {
		return err
	}
	next, err := s.Find(ctx, browser.ByCSS, "#btnNext", 5*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, next)
	if err != nil {
		return err
	}

	password, err := s.Find(ctx, browser.ByCSS, "input#password", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Type(ctx, password, c.Config().Credentials.Password)
	if err != nil {
		return err
	}
	login, err := s.Find(ctx, browser.ByCSS, "#btnLogin", 5*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, login)
	if err != nil {
		return err
	}

	return c.waitForVerification(ctx)
}

// 2FA is either a push confirmation in the app or something the user
// handles in the browser window; either way the available balance
// appearing is the success signal.
func (c *Crawler) waitForVerification(ctx context.Context) error {
	s := c.Session()
	_, err := s.Find(ctx, browser.ByXPath,
		"//h2[normalize-space()='Um fortzufahren, gehe zur PayPal-App']", 5*time.Second)
	if err == nil {
		c.Log().Info("push confirmation pending, approve it in the app")
	} else {
		c.Log().Info("no push prompt, confirm the login in the browser window")
		_ = s.Maximize(ctx)
	}

	balance, err := s.Find(ctx, browser.ByCSS, "[data-test-id='available-balance']", 3*time.Minute)
	if err != nil {
		return fmt.Errorf("login not confirmed: %w", err)
	}
	var text string
	err = s.ExecuteScript(ctx,
		`(document.querySelector("[data-test-id='available-balance']") || {}).innerText || ""`, &text)
	if err == nil {
		c.balance = strings.TrimSpace(text)
	}
	_ = balance
	_ = s.Minimize(ctx)
	c.Log().Info("logged in", "balance", c.balance)
	return nil
}

func (c *Crawler) DownloadData(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "DownloadData")
	defer span.End()

	err := c.Base.DownloadData(ctx)
	if err != nil {
		return err
	}
	reportsURL, err := c.URL("transactions")
	if err != nil {
		return err
	}
	s := c.Session()
	err = s.Navigate(ctx, reportsURL)
	if err != nil {
		return err
	}

	cfg := c.Config()
	spans := crawler.SplitYears(cfg.Since, cfg.Until)
	c.Log().Info("requesting reports", "years", len(spans))

	for _, span := range spans {
		archived, href, err := c.findArchivedReport(ctx, span)
		if err != nil {
			c.Log().Debug("report archive not readable", "err", err)
		}
		if archived >= 0 {
			c.Log().Info("archived report found",
				"from", span.From.Format("02.01.2006"),
				"to", span.To.Format("02.01.2006"))
			err = c.downloadReport(ctx, archived, href)
		} else {
			c.Log().Info("generating report",
				"from", span.From.Format("02.01.2006"),
				"to", span.To.Format("02.01.2006"))
			err = c.generateReport(ctx, span)
		}
		if err != nil {
			return err
		}
		_, ok := c.WaitForNewFile(ctx, crawler.WatchOptions{IncludeTemp: true})
		if !ok {
			c.Log().Warn("report download did not start")
		}
	}
	return c.ReadTempFiles(ctx, crawler.ReadOptions{Comma: ','})
}

// downloadReport pulls an archived report. Rows carrying a direct file
// link are fetched over HTTP with the session's cookies; rows without
// one get their download button clicked.
func (c *Crawler) downloadReport(ctx context.Context, row int, href string) error {
	if href != "" {
		err := c.fetchReport(ctx, href)
		if err == nil {
			return nil
		}
		c.Log().Warn("direct report fetch failed, falling back to the button", "err", err)
	}
	s := c.Session()
	btn, err := s.Find(ctx, browser.ByXPath,
		fmt.Sprintf("(//table[@data-testid='table']//tbody/tr[not(contains(@class,'hidden'))])[%d]"+
			"//button[@data-testid='linkButton' or contains(.,'Herunterladen')]", row+1),
		10*time.Second)
	if err != nil {
		return err
	}
	return s.Click(ctx, btn)
}

func (c *Crawler) fetchReport(ctx context.Context, href string) error {
	reportsURL, err := c.URL("transactions")
	if err != nil {
		return err
	}
	base, err := url.Parse(reportsURL)
	if err != nil {
		return err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return err
	}
	cookies, err := c.Session().Cookies(ctx)
	if err != nil {
		return err
	}
	client := fetch.NewClient(cookies, "")
	name, err := fetch.Download(ctx, client, base.ResolveReference(ref).String(), c.DownloadDir())
	if err != nil {
		return err
	}
	c.Log().Info("report fetched", "file", name)
	return nil
}

func (c *Crawler) generateReport(ctx context.Context, span crawler.Span) error {
	s := c.Session()

	// transaction type dropdown defaults to balance-affecting only
	dropdown, err := s.Find(ctx, browser.ByCSS, "#dropdownMenuButton_Transaktionstyp", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, dropdown)
	if err != nil {
		return err
	}
	all, err := s.Find(ctx, browser.ByCSS, "[role='option'][data-value='All transactions']", 5*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, all)
	if err != nil {
		return err
	}

	rangeInput, err := s.Find(ctx, browser.ByXPath,
		"//label[normalize-space()='Datumsbereich']/preceding-sibling::input", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, rangeInput)
	if err != nil {
		return err
	}
	// the date boxes are React controlled, plain sendKeys is reverted
	// on blur, so the value is set through the native setter
	err = c.setReactInput(ctx, "input#start, input[data-testid='startInputBox']", span.From.Format("02.01.2006"))
	if err != nil {
		return err
	}
	err = c.setReactInput(ctx, "input#end, input[data-testid='endInputBox']", span.To.Format("02.01.2006"))
	if err != nil {
		return err
	}
	_ = s.Click(ctx, rangeInput)

	create, err := s.Find(ctx, browser.ByXPath, "//*[normalize-space()='Bericht erstellen']", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, create)
	if err != nil {
		return err
	}
	_, err = s.Find(ctx, browser.ByXPath,
		"//*[contains(normalize-space(.),'Ihre Anforderung wird verarbeitet.')]", 10*time.Second)
	if err != nil {
		c.Log().Debug("no processing confirmation seen")
	}
	return c.waitForGeneratedReport(ctx)
}

func (c *Crawler) setReactInput(ctx context.Context, selector, value string) error {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), "value");
		if (desc && desc.set) { desc.set.call(el, ""); desc.set.call(el, %q); } else { el.value = %q; }
		for (const type of ["input", "change", "blur"]) {
			el.dispatchEvent(new Event(type, {bubbles: true}));
		}
		return true;
	})()`, selector, value, value)
	var ok bool
	err := c.Session().ExecuteScript(ctx, js, &ok)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("input %q not found", selector)
	}
	return nil
}

// report generation takes a while; the freshest report is the first
// table row, and its link button flips to "Herunterladen" when ready
func (c *Crawler) waitForGeneratedReport(ctx context.Context) error {
	s := c.Session()
	const timeout = 5 * time.Minute
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		btn, err := s.Find(ctx, browser.ByXPath,
			"(//table[@data-testid='table']//tbody/tr)[1]"+
				"//button[@data-testid='linkButton' and (normalize-space()='Herunterladen' or normalize-space()='Download')]",
			10*time.Second)
		if err == nil && s.Click(ctx, btn) == nil {
			c.Log().Info("report ready, download started")
			return nil
		}
		refresh, err := s.Find(ctx, browser.ByXPath,
			"//button[@data-testid='linkButton' and normalize-space()='Aktualisieren']", 5*time.Second)
		if err == nil {
			_ = s.Click(ctx, refresh)
		}
		c.Log().Info("report not ready yet", "timeout_in", time.Until(deadline).Round(time.Second))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}
	return fmt.Errorf("report generation timed out after %s", timeout)
}
