package testutil

import (
	"context"
	"net/http"
	"time"

	"readtx/lib/browser"
)

// FakeSession satisfies browser.Session without a browser process. Find
// always succeeds immediately and PageSource serves the Source fixture.
type FakeSession struct {
	Source string
	Quits  int
}

func (s *FakeSession) Navigate(ctx context.Context, url string) error { return nil }

func (s *FakeSession) Find(ctx context.Context, strategy browser.Strategy, selector string, timeout time.Duration) (browser.Element, error) {
	return browser.Element{}, nil
}

func (s *FakeSession) Click(ctx context.Context, el browser.Element) error { return nil }

func (s *FakeSession) Type(ctx context.Context, el browser.Element, text string) error { return nil }

func (s *FakeSession) Clear(ctx context.Context, el browser.Element) error { return nil }

func (s *FakeSession) ExecuteScript(ctx context.Context, js string, out any) error { return nil }

func (s *FakeSession) PageSource(ctx context.Context) (string, error) { return s.Source, nil }

func (s *FakeSession) Cookies(ctx context.Context) ([]*http.Cookie, error) { return nil, nil }

func (s *FakeSession) Minimize(ctx context.Context) error { return nil }

func (s *FakeSession) Maximize(ctx context.Context) error { return nil }

func (s *FakeSession) Quit() error {
	s.Quits++
	return nil
}
