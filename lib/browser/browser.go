// Package browser defines the session surface the crawlers drive and a
// chromedp-backed implementation of it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Strategy selects how a selector string is interpreted.
type Strategy string

const (
	ByCSS   Strategy = "css"
	ByID    Strategy = "id"
	ByName  Strategy = "name"
	ByXPath Strategy = "xpath"
)

// Element is an opaque handle to an element located by Find. It stays
// valid across navigation only as far as the underlying selector does.
type Element struct {
	strategy Strategy
	selector string
}

func (e Element) String() string {
	return fmt.Sprintf("%s(%s)", e.strategy, e.selector)
}

// Enter submits the focused form when sent through Type. Escape
// dismisses overlays.
const (
	Enter  = "\r"
	Escape = "\x1b"
)

// TimeoutError reports that an element did not appear in time. Crawlers
// branch on it: a missing cookie banner is routine, a missing login
// form is not.
type TimeoutError struct {
	Strategy Strategy
	Selector string
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("browser: no element %s(%s) after %s", e.Strategy, e.Selector, e.After)
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Session is one logged-in browser. Implementations own the browser
// process; Quit must release it along with every page it opened.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// Find waits up to timeout for an element to be ready.
	Find(ctx context.Context, strategy Strategy, selector string, timeout time.Duration) (Element, error)
	Click(ctx context.Context, el Element) error
	// Type sends keystrokes to the element. Send Enter to submit.
	Type(ctx context.Context, el Element, text string) error
	Clear(ctx context.Context, el Element) error
	ExecuteScript(ctx context.Context, js string, out any) error
	PageSource(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	Minimize(ctx context.Context) error
	Maximize(ctx context.Context) error
	Quit() error
}
