package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"readtx/lib/crawlers"
	"readtx/lib/vault"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the registered crawlers and whether they are configured.",
	Run: func(cmd *cobra.Command, args []string) {
		v, err := vault.Open(*configPath)
		if err != nil {
			v = nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"crawler", "credentials", "urls"})
		for _, name := range crawlers.Names() {
			hasCreds, hasURLs := "-", "-"
			if v != nil {
				if _, err := v.Credentials(name); err == nil {
					hasCreds = "yes"
				}
				if _, err := v.URLs(name); err == nil {
					hasURLs = "yes"
				}
			}
			t.AppendRow(table.Row{name, hasCreds, hasURLs})
		}
		t.Render()
	},
}
