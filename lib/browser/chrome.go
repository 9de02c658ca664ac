package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

type Options struct {
	// DownloadDir is where the browser drops downloads. Required for
	// crawlers that watch for export files.
	DownloadDir string
	Headless    bool
	UserAgent   string
}

type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// NewChrome starts a Chrome instance. Portals fingerprint automation,
// so the blink automation flag is disabled and headless is opt-in; most
// of these sites require a visible window for their login challenges
// anyway.
func NewChrome(parent context.Context, opts Options) (Session, error) {
	flags := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	}
	if opts.Headless {
		flags = append(flags, chromedp.Headless)
	}
	if opts.UserAgent != "" {
		flags = append(flags, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, flags...)
	ctx, cancel := chromedp.NewContext(allocCtx)
	s := &chromeSession{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}

	actions := []chromedp.Action{}
	if opts.DownloadDir != "" {
		actions = append(actions,
			cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
				WithDownloadPath(opts.DownloadDir).
				WithEventsEnabled(true),
		)
	}
	err := chromedp.Run(ctx, actions...)
	if err != nil {
		s.Quit()
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}
	slog.Debug("chrome started", "download_dir", opts.DownloadDir, "headless", opts.Headless)
	return s, nil
}

// run executes actions on the session's browser context while honoring
// the caller's cancellation.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(s.ctx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chromeSession) query(strategy Strategy, selector string) (string, chromedp.QueryOption) {
	switch strategy {
	case ByID:
		return "#" + selector, chromedp.ByQuery
	case ByName:
		return fmt.Sprintf(`[name=%q]`, selector), chromedp.ByQuery
	case ByXPath:
		return selector, chromedp.BySearch
	default:
		return selector, chromedp.ByQuery
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) Find(ctx context.Context, strategy Strategy, selector string, timeout time.Duration) (Element, error) {
	q, opt := s.query(strategy, selector)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.run(waitCtx, chromedp.WaitReady(q, opt))
	if errors.Is(err, context.DeadlineExceeded) {
		return Element{}, &TimeoutError{Strategy: strategy, Selector: selector, After: timeout}
	}
	if err != nil {
		return Element{}, fmt.Errorf("browser: find %s(%s): %w", strategy, selector, err)
	}
	return Element{strategy: strategy, selector: selector}, nil
}

func (s *chromeSession) Click(ctx context.Context, el Element) error {
	q, opt := s.query(el.strategy, el.selector)
	return s.run(ctx, chromedp.Click(q, opt))
}

func (s *chromeSession) Type(ctx context.Context, el Element, text string) error {
	q, opt := s.query(el.strategy, el.selector)
	return s.run(ctx, chromedp.SendKeys(q, text, opt))
}

func (s *chromeSession) Clear(ctx context.Context, el Element) error {
	q, opt := s.query(el.strategy, el.selector)
	return s.run(ctx, chromedp.SetValue(q, "", opt))
}

func (s *chromeSession) ExecuteScript(ctx context.Context, js string, out any) error {
	var sink any
	if out == nil {
		out = &sink
	}
	return s.run(ctx, chromedp.Evaluate(js, out))
}

func (s *chromeSession) PageSource(ctx context.Context) (string, error) {
	var src string
	err := s.run(ctx, chromedp.OuterHTML("html", &src, chromedp.ByQuery))
	return src, err
}

func (s *chromeSession) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var out []*http.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out = append(out, &http.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  time.Unix(int64(c.Expires), 0),
				Secure:   c.Secure,
				HttpOnly: c.HTTPOnly,
			})
		}
		return nil
	}))
	return out, err
}

func (s *chromeSession) setWindowState(ctx context.Context, state cdpbrowser.WindowState) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, _, err := cdpbrowser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		return cdpbrowser.SetWindowBounds(id, &cdpbrowser.Bounds{WindowState: state}).Do(ctx)
	}))
}

func (s *chromeSession) Minimize(ctx context.Context) error {
	return s.setWindowState(ctx, cdpbrowser.WindowStateMinimized)
}

func (s *chromeSession) Maximize(ctx context.Context) error {
	return s.setWindowState(ctx, cdpbrowser.WindowStateMaximized)
}

func (s *chromeSession) Quit() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()
	return err
}
