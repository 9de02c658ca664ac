package commands

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"readtx/lib/runlog"
	"readtx/lib/serviceutil"
)

var runsLimit *int

func init() {
	runsLimit = runsCmd.Flags().Int("limit", 20, "Number of runs to show.")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Shows the most recent crawler runs.",
	Run: func(cmd *cobra.Command, args []string) {
		path, err := runlog.DefaultPath()
		if err != nil {
			serviceutil.Fatal("failed to resolve run ledger path", err)
		}
		log, err := runlog.Open(path)
		if err != nil {
			serviceutil.Fatal("failed to open run ledger", err)
		}
		defer log.Close()

		runs, err := log.Recent(cmd.Context(), *runsLimit)
		if err != nil {
			serviceutil.Fatal("failed to read run ledger", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"started", "crawler", "window", "rows", "took", "status"})
		for _, r := range runs {
			t.AppendRow(table.Row{
				r.Started.Format("2006-01-02 15:04"),
				r.Crawler,
				r.Since.Format("02.01.2006") + " - " + r.Until.Format("02.01.2006"),
				r.Rows,
				r.Finished.Sub(r.Started).Round(time.Second),
				r.Status,
			})
		}
		t.Render()
	},
}
