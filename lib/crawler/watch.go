package crawler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// suffixes browsers give files that are still being written
var inProgressSuffixes = []string{".crdownload", ".tmp", ".part"}

func isInProgress(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range inProgressSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

type WatchOptions struct {
	// Timeout bounds the whole wait. Defaults to 30s.
	Timeout time.Duration
	// Interval is the polling period. Defaults to 500ms.
	Interval time.Duration
	// IncludeTemp counts in-progress downloads as files.
	IncludeTemp bool
}

func (o *WatchOptions) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = time.Second * 30
	}
	if o.Interval <= 0 {
		o.Interval = time.Millisecond * 500
	}
}

func (b *Base) listDownloads(includeTemp bool) ([]string, error) {
	entries, err := os.ReadDir(b.downloadDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !includeTemp && isInProgress(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (b *Base) newestDownload(names []string) string {
	newest := ""
	var newestMod time.Time
	for _, name := range names {
		info, err := os.Stat(filepath.Join(b.downloadDir, name))
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = name
			newestMod = info.ModTime()
		}
	}
	return newest
}

// WaitForNewFile polls the download directory until it holds more files
// than the remembered baseline, then returns the newest file's name and
// advances the baseline so the next call waits for the next download.
// The baseline initializes lazily from the first listing, so files
// already present never count as new. Reports ok=false on timeout with
// a warning; triggering the download again is the caller's decision.
func (b *Base) WaitForNewFile(ctx context.Context, opts WatchOptions) (string, bool) {
	opts.defaults()
	deadline := time.Now().Add(opts.Timeout)

	for {
		names, err := b.listDownloads(opts.IncludeTemp)
		if err != nil {
			b.log.Warn("cannot list download dir", "err", err)
			return "", false
		}
		if !b.baselineSet {
			b.baseline = len(names)
			b.baselineSet = true
			b.log.Debug("download baseline established", "files", b.baseline)
		} else if len(names) > b.baseline {
			b.baseline = len(names)
			newest := b.newestDownload(names)
			b.log.Debug("new download detected", "file", newest)
			return newest, true
		}

		if time.Now().After(deadline) {
			b.log.Warn("timed out waiting for download", "timeout", opts.Timeout)
			return "", false
		}
		select {
		case <-ctx.Done():
			b.log.Warn("canceled while waiting for download", "err", ctx.Err())
			return "", false
		case <-time.After(opts.Interval):
		}
	}
}

// WaitForCondition polls cond until it reports true or the timeout
// elapses.
func (b *Base) WaitForCondition(ctx context.Context, timeout, interval time.Duration, cond func() bool) bool {
	if interval <= 0 {
		interval = time.Millisecond * 500
	}
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}
