package crawler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"readtx/lib/ingest"
	"readtx/lib/tabular"
)

type ReadOptions struct {
	// Comma is the CSV delimiter of the vendor's export. Defaults to ';'.
	Comma rune
	// MaxRetries bounds the wait for the directory to become non-empty.
	// Defaults to 10 attempts of RetryWait each.
	MaxRetries int
	RetryWait  time.Duration
	// DownloadTimeout bounds the wait for in-progress markers to clear.
	// Defaults to 10s, polled every Interval.
	DownloadTimeout time.Duration
	Interval        time.Duration
}

func (o *ReadOptions) defaults() {
	if o.Comma == 0 {
		o.Comma = OutputComma
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 10
	}
	if o.RetryWait <= 0 {
		o.RetryWait = time.Second
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = time.Second * 10
	}
	if o.Interval <= 0 {
		o.Interval = time.Millisecond * 500
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ReadTempFiles ingests every completed file in the download directory
// into the crawler's data slot: a single table when one file was
// downloaded, a filename-keyed map when several were. It first waits
// for the directory to become non-empty, then for in-progress download
// markers to disappear; markers that outlive the timeout fail the whole
// read since the corresponding file would be truncated.
func (b *Base) ReadTempFiles(ctx context.Context, opts ReadOptions) error {
	opts.defaults()

	for attempt := 1; ; attempt++ {
		names, err := b.listDownloads(true)
		if err != nil {
			return fmt.Errorf("crawler: list downloads: %w", err)
		}
		if len(names) > 0 {
			break
		}
		if attempt >= opts.MaxRetries {
			return fmt.Errorf("crawler: no downloads appeared after %d attempts", opts.MaxRetries)
		}
		b.log.Debug("download directory still empty", "attempt", attempt)
		err = sleep(ctx, opts.RetryWait)
		if err != nil {
			return err
		}
	}

	deadline := time.Now().Add(opts.DownloadTimeout)
	for {
		names, err := b.listDownloads(true)
		if err != nil {
			return fmt.Errorf("crawler: list downloads: %w", err)
		}
		pending := 0
		for _, name := range names {
			if isInProgress(name) {
				pending++
			}
		}
		if pending == 0 {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("crawler: %d download(s) still in progress after %s", pending, opts.DownloadTimeout)
		}
		b.log.Info("waiting for in-progress downloads", "pending", pending)
		err = sleep(ctx, opts.Interval)
		if err != nil {
			return err
		}
	}

	names, err := b.listDownloads(false)
	if err != nil {
		return fmt.Errorf("crawler: list downloads: %w", err)
	}
	tables := map[string]*tabular.Table{}
	for _, name := range names {
		t, supported, err := ingest.ReadFile(filepath.Join(b.downloadDir, name), opts.Comma)
		if err != nil {
			return fmt.Errorf("crawler: ingest %s: %w", name, err)
		}
		if !supported {
			continue
		}
		b.log.Debug("ingested download", "file", name, "rows", t.NumRows())
		tables[name] = t
	}

	switch len(tables) {
	case 0:
		b.log.Warn("no supported files among downloads", "files", len(names))
		b.data = Data{}
	case 1:
		for _, t := range tables {
			b.data = SingleTable(t)
		}
	default:
		b.data = TablesByFile(tables)
	}
	b.log.Info("downloads ingested", "tables", len(tables))
	return nil
}
