// Package fetch pulls export files over plain HTTP once a browser
// session holds the authenticated cookies, writing them into the same
// watched download directory a browser download would land in.
package fetch

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"readtx/lib/telemetry"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// NewClient builds an HTTP client carrying the browser session's
// cookies. The user agent must match the browser's or some portals
// invalidate the session server-side.
func NewClient(cookies []*http.Cookie, userAgent string) *resty.Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := resty.New()
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(time.Second * 60)
	client.SetCookies(cookies)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	telemetry.InstrumentResty(client, "readtx.lib.fetch")
	return client
}

func filenameFor(rawurl string, res *resty.Response) string {
	_, params, err := mime.ParseMediaType(res.Header().Get("Content-Disposition"))
	if err == nil && params["filename"] != "" {
		return filepath.Base(params["filename"])
	}
	u, err := url.Parse(rawurl)
	if err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		return path.Base(u.Path)
	}
	return "download.csv"
}

// Download fetches rawurl into dir and returns the stored filename. The
// body is first written under a .tmp marker name, the same in-progress
// marker the download watcher knows to wait out, then renamed into
// place.
func Download(ctx context.Context, client *resty.Client, rawurl, dir string) (string, error) {
	res, err := client.R().SetContext(ctx).Get(rawurl)
	if err != nil {
		return "", fmt.Errorf("fetch: get %s: %w", rawurl, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("fetch: get %s: status %s", rawurl, res.Status())
	}

	name := filenameFor(rawurl, res)
	tmp := filepath.Join(dir, name+".tmp")
	err = os.WriteFile(tmp, res.Body(), 0o644)
	if err != nil {
		return "", fmt.Errorf("fetch: write %s: %w", tmp, err)
	}
	final := filepath.Join(dir, name)
	err = os.Rename(tmp, final)
	if err != nil {
		return "", fmt.Errorf("fetch: finalize %s: %w", final, err)
	}
	return name, nil
}
