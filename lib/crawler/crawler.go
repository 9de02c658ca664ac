// Package crawler carries the machinery shared by every site crawler:
// the lifecycle state machine, the temp download directory with its
// watcher and ingestor, the retry executor and the canonical
// transaction schema normalization.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"readtx/lib/browser"
	"readtx/lib/tabular"
	"readtx/lib/timezone"
)

var tracer = otel.Tracer("readtx.lib.crawler")

type State string

const (
	StateInitialized State = "initialized"
	StateLogin       State = "login"
	StateDownload    State = "download_data"
	StateProcess     State = "process_data"
	StateSave        State = "save_data"
	StateClosed      State = "closed"
)

type Credentials struct {
	User     string
	Password string
}

type Config struct {
	// Name keys credential and URL lookups and names the output file.
	Name       string
	OutputPath string
	// Since is the chronologically earlier bound of the transaction
	// window, Until the later one. Both inclusive.
	Since       time.Time
	Until       time.Time
	Credentials Credentials
	URLs        map[string]string
	// WithDetails asks the crawler to also fetch per-transaction detail
	// records where the portal has them.
	WithDetails bool
}

func (c Config) validate() error {
	if c.Name == "" {
		return errors.New("crawler: config has no name")
	}
	if c.Since.IsZero() || c.Until.IsZero() {
		return errors.New("crawler: config needs both since and until")
	}
	if c.Until.Before(c.Since) {
		return fmt.Errorf("crawler: until %s is before since %s",
			c.Until.Format("02.01.2006"), c.Since.Format("02.01.2006"))
	}
	return nil
}

// ParseDay parses a dd.mm.yyyy day, the format flags and config files
// use. Unlike the lenient column normalizers this is strict: a bad
// window bound must fail the run, not shrink it.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2.1.2006", strings.TrimSpace(s), timezone.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("crawler: %q is not a dd.mm.yyyy date", s)
	}
	return timezone.Midnight(t), nil
}

// SessionFactory opens a browser session configured to download into
// dir. It is injected so tests can substitute a fake.
type SessionFactory func(ctx context.Context, downloadDir string) (browser.Session, error)

// Base carries the state shared by all site crawlers. Site crawlers
// embed it and override the lifecycle methods, calling back into the
// base implementation to keep state transitions and logging uniform.
type Base struct {
	cfg         Config
	log         *slog.Logger
	session     browser.Session
	downloadDir string
	state       State
	data        Data
	baseline    int
	baselineSet bool
	closed      bool
}

func NewBase(ctx context.Context, cfg Config, newSession SessionFactory) (*Base, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if cfg.OutputPath != "" {
		err := os.MkdirAll(cfg.OutputPath, 0o755)
		if err != nil {
			return nil, fmt.Errorf("crawler: create output dir: %w", err)
		}
	}

	downloadDir, err := os.MkdirTemp("", "readtx-"+cfg.Name+"-")
	if err != nil {
		return nil, fmt.Errorf("crawler: create download dir: %w", err)
	}
	session, err := newSession(ctx, downloadDir)
	if err != nil {
		os.RemoveAll(downloadDir)
		return nil, fmt.Errorf("crawler: open browser session: %w", err)
	}

	log := slog.With("crawler", cfg.Name)
	log.Info("initialized", "download_dir", downloadDir)
	return &Base{
		cfg:         cfg,
		log:         log,
		session:     session,
		downloadDir: downloadDir,
		state:       StateInitialized,
		// the download dir was just created empty, so the watcher
		// baseline starts at zero even if a download lands before the
		// first wait
		baselineSet: true,
	}, nil
}

func (b *Base) Name() string             { return b.cfg.Name }
func (b *Base) Config() Config           { return b.cfg }
func (b *Base) Session() browser.Session { return b.session }
func (b *Base) DownloadDir() string      { return b.downloadDir }
func (b *Base) State() State             { return b.state }
func (b *Base) Data() Data               { return b.data }
func (b *Base) SetData(d Data)           { b.data = d }
func (b *Base) Log() *slog.Logger        { return b.log }

// URL looks up a purpose-keyed URL from the config, failing with the
// crawler and purpose named so a misconfigured vault is diagnosable.
func (b *Base) URL(purpose string) (string, error) {
	u, ok := b.cfg.URLs[purpose]
	if !ok || u == "" {
		return "", fmt.Errorf("crawler: %s has no %q url configured", b.cfg.Name, purpose)
	}
	return u, nil
}

func (b *Base) Login(ctx context.Context) error {
	b.state = StateLogin
	b.log.Info("logging in", "user", b.cfg.Credentials.User)
	return nil
}

func (b *Base) DownloadData(ctx context.Context) error {
	b.state = StateDownload
	b.log.Info("downloading",
		"since", b.cfg.Since.Format("02.01.2006"),
		"until", b.cfg.Until.Format("02.01.2006"),
	)
	return nil
}

func (b *Base) ProcessData(ctx context.Context) error {
	b.state = StateProcess
	b.log.Info("processing")
	return nil
}

// SaveData writes the accumulated data as semicolon-delimited CSV under
// the output path: a single table as <name>.csv, per-file tables under
// their source filename with the extension swapped.
func (b *Base) SaveData(ctx context.Context) error {
	b.state = StateSave
	if single, ok := b.data.Single(); ok {
		return b.saveTable(b.cfg.Name, single)
	}
	if byFile, ok := b.data.ByFile(); ok {
		files := make([]string, 0, len(byFile))
		for file := range byFile {
			files = append(files, file)
		}
		sort.Strings(files)
		for _, file := range files {
			name := strings.TrimSuffix(file, filepath.Ext(file))
			err := b.saveTable(name, byFile[file])
			if err != nil {
				return err
			}
		}
		return nil
	}
	b.log.Warn("nothing downloaded, nothing saved")
	return nil
}

// OutputComma is the delimiter of saved CSV files. German locale tools
// expect semicolons since the comma is the decimal separator.
const OutputComma = ';'

func (b *Base) saveTable(name string, t *tabular.Table) error {
	path := filepath.Join(b.cfg.OutputPath, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("crawler: create %s: %w", path, err)
	}
	defer f.Close()

	err = t.WriteCSV(f, OutputComma)
	if err != nil {
		return fmt.Errorf("crawler: write %s: %w", path, err)
	}
	b.log.Info("saved", "path", path, "rows", t.NumRows())
	return nil
}

// Close releases the browser session and the temp download directory
// together. It is idempotent: the runner defers it and site crawlers
// may also close early on fatal configuration errors.
func (b *Base) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if b.session != nil {
		err := b.session.Quit()
		if err != nil {
			errs = append(errs, fmt.Errorf("quit browser: %w", err))
		}
	}
	err := os.RemoveAll(b.downloadDir)
	if err != nil {
		errs = append(errs, fmt.Errorf("remove download dir: %w", err))
	}
	b.state = StateClosed
	b.log.Info("closed")
	return errors.Join(errs...)
}

// Site is one crawler. The lifecycle methods are called in order by
// Run; each stage builds on the last.
type Site interface {
	Name() string
	Login(ctx context.Context) error
	DownloadData(ctx context.Context) error
	ProcessData(ctx context.Context) error
	SaveData(ctx context.Context) error
	Close() error
}

// Run drives a crawler through its lifecycle. The first failing stage
// aborts the run and propagates; Close runs on every exit path.
func Run(ctx context.Context, site Site) (err error) {
	ctx, span := tracer.Start(ctx, "run:"+site.Name())
	defer span.End()

	defer func() {
		closeErr := site.Close()
		if closeErr == nil {
			return
		}
		closeErr = fmt.Errorf("%s: close: %w", site.Name(), closeErr)
		if err == nil {
			err = closeErr
		} else {
			slog.Error("cleanup failed after run error", "err", closeErr)
		}
	}()

	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"login", site.Login},
		{"download_data", site.DownloadData},
		{"process_data", site.ProcessData},
		{"save_data", site.SaveData},
	}
	for _, stage := range stages {
		stageCtx, stageSpan := tracer.Start(ctx, stage.name)
		stageErr := stage.fn(stageCtx)
		if stageErr != nil {
			stageSpan.RecordError(stageErr)
			stageSpan.SetStatus(codes.Error, stageErr.Error())
			stageSpan.End()
			span.SetStatus(codes.Error, stage.name+" failed")
			return fmt.Errorf("%s: %s: %w", site.Name(), stage.name, stageErr)
		}
		stageSpan.End()
	}
	return nil
}
