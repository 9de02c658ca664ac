package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"readtx/lib/browser"
	"readtx/lib/crawler"
	"readtx/lib/crawlers"
	"readtx/lib/runlog"
	"readtx/lib/serviceutil"
	"readtx/lib/telemetry"
	"readtx/lib/timezone"
	"readtx/lib/vault"
)

var (
	runSince    *string
	runUntil    *string
	runOutput   *string
	runDetails  *bool
	runHeadless *bool
	runPreview  *int
)

func init() {
	runSince = runCmd.Flags().String("since", "", "Oldest transaction date to fetch, D.M.YYYY. Defaults to 6 months ago.")
	runUntil = runCmd.Flags().String("until", "", "Newest transaction date to fetch, D.M.YYYY. Defaults to today.")
	runOutput = runCmd.Flags().String("output", "out", "Directory the CSV files are written to.")
	runDetails = runCmd.Flags().Bool("details", false, "Also fetch per-transaction details where the crawler supports it.")
	runHeadless = runCmd.Flags().Bool("headless", false, "Run the browser headless. Portals with interactive 2FA may not work.")
	runPreview = runCmd.Flags().Int("preview", 10, "Number of result rows to print, 0 disables the preview.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <crawler> [--since <date>] [--until <date>]",
	Short: "Runs one crawler and writes its transactions as CSV.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		name := args[0]

		factory, ok := crawlers.Lookup(name)
		if !ok {
			msg := fmt.Sprintf("unknown crawler %q", name)
			if suggestion := crawlers.Suggest(name); suggestion != "" {
				msg += fmt.Sprintf(", did you mean %q?", suggestion)
			}
			serviceutil.Fatal(msg, nil)
		}

		t, err := telemetry.SetupFromEnv(ctx, "readtx-cli")
		if err != nil && !os.IsNotExist(err) {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer t.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)

		cfg := buildConfig(name)
		run := runlog.Run{
			Crawler: name,
			Since:   cfg.Since,
			Until:   cfg.Until,
			Started: timezone.Now(),
			Output:  cfg.OutputPath,
			Status:  "ok",
		}

		site, err := factory(ctx, cfg, func(ctx context.Context, downloadDir string) (browser.Session, error) {
			return browser.NewChrome(ctx, browser.Options{
				DownloadDir: downloadDir,
				Headless:    *runHeadless,
			})
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize crawler", err)
		}

		runErr := crawler.Run(ctx, site)
		run.Finished = timezone.Now()
		if runErr != nil {
			run.Status = runErr.Error()
		} else if base, ok := site.(interface{ Data() crawler.Data }); ok {
			run.Rows = base.Data().Rows()
		}
		recordRun(ctx, run)

		if runErr != nil {
			serviceutil.Fatal("crawler run failed", runErr)
		}
		slog.Info("run finished",
			"crawler", name,
			"rows", run.Rows,
			"output", run.Output,
			"took", run.Finished.Sub(run.Started).Round(time.Second),
		)
		if *runPreview > 0 {
			previewData(site, *runPreview)
		}
	},
}

func buildConfig(name string) crawler.Config {
	v, err := vault.Open(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to open config", err)
	}
	creds, err := v.Credentials(name)
	if err != nil {
		serviceutil.Fatal("missing credentials, run \"readtx-cli config set\"", err)
	}
	urls, err := v.URLs(name)
	if err != nil {
		serviceutil.Fatal("missing portal urls in the config file", err)
	}

	until := timezone.Midnight(timezone.Now())
	since := until.AddDate(0, -6, 0)
	if *runSince != "" {
		since, err = crawler.ParseDay(*runSince)
		if err != nil {
			serviceutil.Fatal("invalid --since", err)
		}
	}
	if *runUntil != "" {
		until, err = crawler.ParseDay(*runUntil)
		if err != nil {
			serviceutil.Fatal("invalid --until", err)
		}
	}

	return crawler.Config{
		Name:        name,
		OutputPath:  *runOutput,
		Since:       since,
		Until:       until,
		Credentials: crawler.Credentials{User: creds.User, Password: creds.Password},
		URLs:        urls,
		WithDetails: *runDetails,
	}
}

func recordRun(ctx context.Context, run runlog.Run) {
	path, err := runlog.DefaultPath()
	if err != nil {
		slog.Warn("run not recorded", "err", err)
		return
	}
	log, err := runlog.Open(path)
	if err != nil {
		slog.Warn("run not recorded", "err", err)
		return
	}
	defer log.Close()
	err = log.Record(ctx, run)
	if err != nil {
		slog.Warn("run not recorded", "err", err)
	}
}

func previewData(site crawler.Site, limit int) {
	base, ok := site.(interface{ Data() crawler.Data })
	if !ok {
		return
	}
	merged, ok := base.Data().Merged()
	if !ok {
		return
	}
	records := merged.Records()
	if len(records) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	header := make(table.Row, len(records[0]))
	for i, name := range records[0] {
		header[i] = name
	}
	t.AppendHeader(header)
	for _, rec := range records[1:] {
		if limit == 0 {
			break
		}
		limit--
		row := make(table.Row, len(rec))
		for i, cell := range rec {
			row[i] = cell
		}
		t.AppendRow(row)
	}
	t.Render()
}
