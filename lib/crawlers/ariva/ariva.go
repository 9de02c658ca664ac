// Package ariva downloads historic quotes from ariva.de: one CSV per
// configured quote page, merged into a single table with the WKN taken
// from the download's filename.
package ariva

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"readtx/lib/browser"
	"readtx/lib/crawler"
	"readtx/lib/tabular"
)

var tracer = otel.Tracer("readtx.crawlers.ariva")

const Name = "ariva"

// columns of interest in the historic-quotes export
var quoteColumns = []string{"Datum", "Schlusskurs", "Hoch", "Tief"}

type Crawler struct {
	*crawler.Base
}

func New(ctx context.Context, cfg crawler.Config, newSession crawler.SessionFactory) (crawler.Site, error) {
	base, err := crawler.NewBase(ctx, cfg, newSession)
	if err != nil {
		return nil, err
	}
	return &Crawler{Base: base}, nil
}

// quotes are public, login is only attempted when credentials and a
// login URL are configured
func (c *Crawler) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	err := c.Base.Login(ctx)
	if err != nil {
		return err
	}
	cfg := c.Config()
	loginURL, err := c.URL("login")
	if err != nil || cfg.Credentials.User == "" {
		c.Log().Info("anonymous session, skipping login")
		return nil
	}
	s := c.Session()
	err = s.Navigate(ctx, loginURL)
	if err != nil {
		return err
	}
	c.dismissAds(ctx)

	open, err := s.Find(ctx, browser.ByXPath,
		"//span[contains(@class,'prgLink') and normalize-space()='Login']", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Click(ctx, open)
	if err != nil {
		return err
	}
	user, err := s.Find(ctx, browser.ByID, "username", 10*time.Second)
	if err != nil {
		return err
	}
	err = s.Type(ctx, user, cfg.Credentials.User)
	if err != nil {
		return err
	}
	password, err := s.Find(ctx, browser.ByID, "password", 5*time.Second)
	if err != nil {
		return err
	}
	err = s.Type(ctx, password, cfg.Credentials.Password+browser.Enter)
	if err != nil {
		return err
	}
	c.Log().Info("logged in")
	return nil
}

// the site shows a full-page ad iframe every now and then; closing it
// is best effort, the quote pages work regardless
func (c *Crawler) dismissAds(ctx context.Context) {
	s := c.Session()
	close, err := s.Find(ctx, browser.ByCSS, "iframe[id*='sp_message_iframe']", 3*time.Second)
	if err != nil {
		return
	}
	_ = s.Click(ctx, close)
	c.Log().Debug("ad banner dismissed")
}

func (c *Crawler) DownloadData(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "DownloadData")
	defer span.End()

	err := c.Base.DownloadData(ctx)
	if err != nil {
		return err
	}
	cfg := c.Config()

	// every non-login URL is a quote page, processed in stable order
	var pages []string
	for purpose := range cfg.URLs {
		if purpose == "login" {
			continue
		}
		pages = append(pages, purpose)
	}
	sort.Strings(pages)
	if len(pages) == 0 {
		return fmt.Errorf("no quote pages configured")
	}

	for i, purpose := range pages {
		url := cfg.URLs[purpose]
		c.Log().Info("downloading quotes", "page", purpose)
		err := c.downloadQuotePage(ctx, url)
		if err != nil {
			c.Log().Error("quote download failed", "page", purpose, "err", err)
			continue
		}
		_, ok := c.WaitForNewFile(ctx, crawler.WatchOptions{IncludeTemp: i < len(pages)-1})
		if !ok {
			c.Log().Warn("no export appeared", "page", purpose)
		}
	}
	return c.ReadTempFiles(ctx, crawler.ReadOptions{Comma: ';'})
}

func (c *Crawler) downloadQuotePage(ctx context.Context, url string) error {
	s := c.Session()
	err := s.Navigate(ctx, url)
	if err != nil {
		return err
	}
	c.dismissAds(ctx)

	// currency dropdown only exists for foreign listings
	var switched bool
	err = s.ExecuteScript(ctx, `(() => {
		const sel = document.querySelector("select[name='waehrung']");
		if (!sel) return false;
		const eur = [...sel.options].find(o => o.text.includes("EUR"));
		if (!eur || sel.value === eur.value) return false;
		sel.value = eur.value;
		sel.dispatchEvent(new Event("change", {bubbles: true}));
		return true;
	})()`, &switched)
	if err == nil && switched {
		c.Log().Debug("currency switched to EUR")
	}

	cfg := c.Config()
	fields := []struct {
		name  string
		value string
	}{
		{"minTime", cfg.Since.Format("2.1.2006")},
		{"maxTime", cfg.Until.Format("2.1.2006")},
		{"trenner", string(crawler.OutputComma)},
	}
	for _, f := range fields {
		field, err := s.Find(ctx, browser.ByName, f.name, 10*time.Second)
		if err != nil {
			return err
		}
		err = s.Clear(ctx, field)
		if err != nil {
			return err
		}
		err = s.Type(ctx, field, f.value)
		if err != nil {
			return err
		}
	}

	submit, err := s.Find(ctx, browser.ByXPath, "//input[@type='submit' and @value='Download']", 10*time.Second)
	if err != nil {
		return err
	}
	return s.Click(ctx, submit)
}

func (c *Crawler) ProcessData(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ProcessData")
	defer span.End()

	err := c.Base.ProcessData(ctx)
	if err != nil {
		return err
	}

	tables := map[string]*tabular.Table{}
	if byFile, ok := c.Data().ByFile(); ok {
		tables = byFile
	} else if single, ok := c.Data().Single(); ok {
		tables[c.Name()+".csv"] = single
	}
	if len(tables) == 0 {
		c.Log().Warn("no quotes to process")
		return nil
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var merged *tabular.Table
	for _, name := range names {
		t, err := c.processQuoteTable(name, tables[name])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if merged == nil {
			merged = t
		} else {
			merged = merged.Concat(t)
		}
	}

	c.SetData(crawler.SingleTable(merged))
	c.Log().Info("quotes processed", "rows", merged.NumRows())
	return nil
}

func (c *Crawler) processQuoteTable(filename string, t *tabular.Table) (*tabular.Table, error) {
	t, err := t.Select(quoteColumns, tabular.SelectOptions{})
	if err != nil {
		return nil, err
	}
	for _, col := range quoteColumns[1:] {
		t, err = t.NormalizeAmounts(col, false)
		if err != nil {
			return nil, err
		}
	}
	cfg := c.Config()
	t, err = t.NormalizeDates("Datum", tabular.DayFirst, cfg.Since, cfg.Until)
	if err != nil {
		return nil, err
	}

	wkn := wknFromFilename(filename)
	values := make([]tabular.Value, t.NumRows())
	for i := range values {
		values[i] = tabular.String(wkn)
	}
	return t.WithColumn(tabular.Column{Name: "WKN", Values: values})
}

// exports are named like "wkn_840400_historic.csv"
func wknFromFilename(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	for _, part := range strings.Split(stem, "_") {
		if len(part) != 6 && len(part) != 7 {
			continue
		}
		alnum := true
		for _, r := range part {
			if (r < '0' || r > '9') && (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
				alnum = false
				break
			}
		}
		if alnum {
			return strings.ToUpper(part)
		}
	}
	return "UNKNOWN"
}
