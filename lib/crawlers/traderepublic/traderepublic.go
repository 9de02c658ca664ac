// Package traderepublic reads the transaction timeline of the Trade
// Republic web app. There is no export; the infinite-scroll timeline is
// loaded completely and read out of the DOM.
package traderepublic

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"readtx/lib/browser"
	"readtx/lib/crawler"
)

var tracer = otel.Tracer("readtx.crawlers.traderepublic")

const Name = "trade_republic"

type Crawler struct {
	*crawler.Base
	portfolioBalance string
	cashBalance      string
}

func New(ctx context.Context, cfg crawler.Config, newSession crawler.SessionFactory) (crawler.Site, error) {
	base, err := crawler.NewBase(ctx, cfg, newSession)
	if err != nil {
		return nil, err
	}
	return &Crawler{Base: base}, nil
}

// PortfolioBalance is the total portfolio value shown after login.
func (c *Crawler) PortfolioBalance() string {
	return c.portfolioBalance
}

// CashBalance is the uninvested cash shown on the transaction page.
func (c *Crawler) CashBalance() string {
	return c.cashBalance
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

	ok := c.Retry(ctx, "enter phone number", crawler.RetryOptions{MaxAttempts: 2, Wait: time.Second}, func(ctx context.Context) crawler.Result {
		return crawler.ResultOf(c.enterPhoneNumber(ctx))
	})
	if !ok {
		return fmt.Errorf("phone number entry failed")
	}
	ok = c.Retry(ctx, "enter pin", crawler.RetryOptions{MaxAttempts: 2, Wait: time.Second}, func(ctx context.Context) crawler.Result {
		return crawler.ResultOf(c.enterPIN(ctx))
	})
	if !ok {
		return fmt.Errorf("pin entry failed")
	}

	err = c.verifyIdentity(ctx)
	if err != nil {
		return err
	}

	// the portfolio header is the logged-in signal
	el, err := s.Find(ctx, browser.ByXPath,
		"//span[contains(@class,'currencyStatus')]//span[@role='status']", 20*time.Second)
	if err != nil {
		return fmt.Errorf("login not confirmed: %w", err)
	}
	var text string
	err = s.ExecuteScript(ctx,
		`(document.querySelector("span[class*='currencyStatus'] span[role='status']") || {}).innerText || ""`,
		&text)
	if err == nil {
		c.portfolioBalance = text
	}
	_ = el
	c.Log().Info("logged in", "portfolio", c.portfolioBalance)
	return nil
}

func (c *Crawler) dismissCookieBanner(ctx context.Context) {
	s := c.Session()
	checkbox, err := s.Find(ctx, browser.ByID, "necessarySelection", 15*time.Second)
	if err != nil {
		c.Log().Debug("no cookie banner")
		return
	}
	var checked bool
	err = s.ExecuteScript(ctx, `document.getElementById("necessarySelection")?.checked === true`, &checked)
	if err == nil && !checked {
		_ = s.Click(ctx, checkbox)
	}
	save, err := s.Find(ctx, browser.ByXPath,
		"//span[@class='buttonBase__title' and text()='Auswahl speichern']", 15*time.Second)
	if err == nil && s.Click(ctx, save) == nil {
		c.Log().Debug("cookie banner dismissed")
	}
}

func (c *Crawler) enterPhoneNumber(ctx context.Context) error {
	s := c.Session()
	field, err := s.Find(ctx, browser.ByID, "loginPhoneNumber__input", 10*time.Second)
	if err != nil {
		return err
	}
	return s.Type(ctx, field, c.Config().Credentials.User+browser.Enter)
}

// the PIN form is a fieldset of single-character inputs
func (c *Crawler) enterPIN(ctx context.Context) error {
	return c.enterCodeInputs(ctx, "loginPin__input", c.Config().Credentials.Password)
}

func (c *Crawler) enterCodeInputs(ctx context.Context, fieldsetID, code string) error {
	s := c.Session()
	_, err := s.Find(ctx, browser.ByID, fieldsetID, 10*time.Second)
	if err != nil {
		return err
	}
	for i, digit := range code {
		field, err := s.Find(ctx, browser.ByXPath,
			fmt.Sprintf("(//fieldset[@id='%s']//input[contains(@class,'codeInput__character')])[%d]",
				fieldsetID, i+1),
			5*time.Second)
		if err != nil {
			return err
		}
		err = s.Type(ctx, field, string(digit))
		if err != nil {
			return err
		}
	}
	return nil
}

// 2FA defaults to an app push code; typing "sms" falls back to the SMS
// path once its cooldown timer has run out.
func (c *Crawler) verifyIdentity(ctx context.Context) error {
	s := c.Session()
	_, err := s.Find(ctx, browser.ByID, "smsCode__input", 15*time.Second)
	if err != nil {
		c.Log().Debug("no 2fa prompt")
		return nil
	}

	for attempt := 1; attempt <= 3; attempt++ {
		code, err := crawler.PromptCode("4-digit code from the app push ('sms' for sms verification)")
		if err != nil {
			return err
		}
		if code == "sms" {
			code, err = c.requestSMSCode(ctx)
			if err != nil {
				return err
			}
		}
		if len(code) != 4 {
			c.Log().Warn("code must be 4 digits")
			continue
		}
		err = c.enterCodeInputs(ctx, "smsCode__input", code)
		if err != nil {
			return err
		}
		// the form disappears once the code is accepted
		_, err = s.Find(ctx, browser.ByID, "smsCode__input", 3*time.Second)
		if err != nil {
			return nil
		}
	}
	return fmt.Errorf("identity verification failed")
}

func (c *Crawler) requestSMSCode(ctx context.Context) (string, error) {
	s := c.Session()
	// the resend button carries a countdown before it becomes usable
	ok := c.WaitForCondition(ctx, 2*time.Minute, 5*time.Second, func() bool {
		_, err := s.Find(ctx, browser.ByXPath,
			"//button[@class='trLink smsCode__resendCode']//span[@role='timer']", 3*time.Second)
		if err == nil {
			c.Log().Info("waiting for the sms option to become available")
			return false
		}
		return true
	})
	if !ok {
		return "", fmt.Errorf("sms verification never became available")
	}
	send, err := s.Find(ctx, browser.ByXPath,
		"//button[contains(@class,'smsCode__resendCode') and .//span[normalize-space()='Code als SMS senden']]",
		10*time.Second)
	if err != nil {
		return "", err
	}
	err = s.Click(ctx, send)
	if err != nil {
		return "", err
	}
	return crawler.PromptCode("4-digit code from the sms")
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
	s := c.Session()
	err = s.Navigate(ctx, transactionsURL)
	if err != nil {
		return err
	}

	cash, err := s.Find(ctx, browser.ByXPath,
		"//span[contains(@class,'cashBalance__amount')]", 15*time.Second)
	if err != nil {
		return fmt.Errorf("transaction page not loaded: %w", err)
	}
	var text string
	err = s.ExecuteScript(ctx,
		`(document.querySelector("span[class*='cashBalance__amount']") || {}).innerText || ""`, &text)
	if err == nil {
		c.cashBalance = text
		c.Log().Info("cash balance loaded", "balance", c.cashBalance)
	}
	_ = cash

	err = c.scrollToBottom(ctx)
	if err != nil {
		return err
	}
	entries, err := c.rawEntries(ctx)
	if err != nil {
		return err
	}
	table, err := c.processEntries(ctx, entries)
	if err != nil {
		return err
	}
	c.SetData(crawler.SingleTable(table))
	c.Log().Info("timeline read", "rows", table.NumRows())
	return nil
}

// keeps scrolling until the entry count stops growing for a few rounds
func (c *Crawler) scrollToBottom(ctx context.Context) error {
	s := c.Session()
	_ = s.Maximize(ctx)
	defer s.Minimize(ctx)

	const stableRounds = 3
	lastCount, sameCount := 0, 0
	for sameCount < stableRounds {
		err := s.ExecuteScript(ctx, `window.scrollTo(0, document.body.scrollHeight)`, nil)
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
		var count int
		err = s.ExecuteScript(ctx, `document.querySelectorAll(".timeline__entry").length`, &count)
		if err != nil {
			return err
		}
		if count == lastCount {
			sameCount++
		} else {
			sameCount = 0
		}
		lastCount = count
	}
	err := s.ExecuteScript(ctx, `window.scrollTo(0, 0)`, nil)
	if err != nil {
		return err
	}
	c.Log().Debug("scrolling finished", "entries", lastCount)
	return nil
}

func (c *Crawler) ProcessData(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ProcessData")
	defer span.End()

	err := c.Base.ProcessData(ctx)
	if err != nil {
		return err
	}
	t, ok := c.Data().Single()
	if !ok || t.NumRows() == 0 {
		c.Log().Warn("no transactions to process")
		return nil
	}

	t = matchGroceries(t)
	t = markTransfers(t)

	out, err := c.NormalizeTransactions(t, crawler.NormalizeOptions{
		DropInvalidAmounts: true,
		ProjectFull:        true,
	})
	if err != nil {
		return err
	}
	c.SetData(crawler.SingleTable(out))
	c.Log().Info("transactions processed", "rows", out.NumRows())
	return nil
}
